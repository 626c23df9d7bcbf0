package proxy

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/florianilch/switchboard/internal/anthropicadapter"
	"github.com/florianilch/switchboard/internal/openaiadapter"
)

// Recovery recovers from panics in HTTP handlers and returns HTTP 500 to the client.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				// Logging of panics is handled in Logging middleware
				writeJSON(r.Context(), w, openaiadapter.NewError("api_error", http.StatusText(http.StatusInternalServerError)), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimit enforces maximum request body size.
// Handlers that read the body will receive *http.MaxBytesError when the limit is exceeded.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// protocolErrorWriter writes an error of the given type in one protocol's shape.
type protocolErrorWriter func(w http.ResponseWriter, r *http.Request, errorType, message string)

func openAIErrorWriter(w http.ResponseWriter, r *http.Request, errorType, message string) {
	writeOpenAIError(r.Context(), w, openaiadapter.NewError(errorType, message))
}

func anthropicErrorWriter(w http.ResponseWriter, r *http.Request, errorType, message string) {
	writeAnthropicError(r.Context(), w, anthropicadapter.NewError(errorType, message))
}

// RequireAPIKey accepts requests presenting one of keys either as a bearer
// token or in x-api-key. With no keys configured every request passes.
func RequireAPIKey(keys []string, writeError protocolErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := presentedAPIKey(r)
			if presented == "" {
				writeError(w, r, "authentication_error", "missing API key")
				return
			}
			if !matchesAny(presented, keys) {
				slog.WarnContext(r.Context(), "rejected request with invalid API key")
				writeError(w, r, "authentication_error", "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.Header.Get("x-api-key")
}

func matchesAny(presented string, keys []string) bool {
	match := 0
	for _, key := range keys {
		match |= subtle.ConstantTimeCompare([]byte(presented), []byte(key))
	}
	return match == 1
}

// RequireAnthropicVersion rejects Anthropic requests without an anthropic-version header.
func RequireAnthropicVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("anthropic-version") == "" {
			anthropicErrorWriter(w, r, "invalid_request_error", "anthropic-version: header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
