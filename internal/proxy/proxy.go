// Package proxy serves the OpenAI and Anthropic HTTP surfaces of switchboard.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/propagation"

	"github.com/florianilch/switchboard/internal/anthropicadapter"
	"github.com/florianilch/switchboard/internal/catalog"
	"github.com/florianilch/switchboard/internal/observability/middleware"
	"github.com/florianilch/switchboard/internal/openaiadapter"
)

// ReadinessChecker reports whether the application can serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// Adapters bundles the protocol adapters the proxy routes to.
type Adapters struct {
	OpenAI    openaiadapter.CreateChatCompletionAdapter
	Anthropic anthropicadapter.CreateMessageAdapter
	Counter   TokenCounter
}

const (
	DefaultMaxRequestBytes = 10 << 20
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
)

type options struct {
	apiKeys         []string
	maxRequestBytes int64
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	catalog         *catalog.Catalog
	logger          *slog.Logger
}

// Option configures a Proxy.
type Option func(*options)

// WithAPIKeys requires clients to present one of keys.
func WithAPIKeys(keys ...string) Option {
	return func(o *options) {
		o.apiKeys = keys
	}
}

// WithMaxRequestBytes limits request bodies on the API routes.
func WithMaxRequestBytes(n int64) Option {
	return func(o *options) {
		o.maxRequestBytes = n
	}
}

// WithTimeouts sets the server read, write and idle timeouts. A zero write
// timeout leaves streams unbounded.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(o *options) {
		o.readTimeout = read
		o.writeTimeout = write
		o.idleTimeout = idle
	}
}

// WithCatalog sets the models listed on /v1/models.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Proxy is the HTTP server in front of the adapters.
type Proxy struct {
	handler http.Handler
	server  *http.Server
}

var _ http.Handler = (*Proxy)(nil)

// New builds the router. It does not listen until Start.
func New(adapters Adapters, health ReadinessChecker, opts ...Option) (*Proxy, error) {
	o := options{
		maxRequestBytes: DefaultMaxRequestBytes,
		readTimeout:     DefaultReadTimeout,
		idleTimeout:     DefaultIdleTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if adapters.OpenAI == nil || adapters.Anthropic == nil || adapters.Counter == nil {
		return nil, errors.New("proxy: all adapters are required")
	}
	if o.catalog == nil {
		c, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load model catalog: %w", err)
		}
		o.catalog = c
	}

	validate := newValidator()

	r := chi.NewRouter()
	r.Use(
		middleware.RequestIDGeneration,
		middleware.TraceContextExtraction(propagation.TraceContext{}),
		middleware.Logging(o.logger),
		middleware.RequestIDPropagation,
		Recovery,
	)

	r.Get("/health/liveness", livenessHandler())
	r.Get("/health/readiness", readinessHandler(health))

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequestSizeLimit(o.maxRequestBytes))

		r.Group(func(r chi.Router) {
			r.Use(RequireAPIKey(o.apiKeys, openAIErrorWriter))
			r.Get("/models", modelsHandler(o.catalog))
			r.Method(http.MethodPost, "/chat/completions", &CreateChatCompletionsHandler{
				Adapter:  adapters.OpenAI,
				Validate: validate,
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireAPIKey(o.apiKeys, anthropicErrorWriter), RequireAnthropicVersion)
			r.Method(http.MethodPost, "/messages", &CreateMessageHandler{
				Adapter:  adapters.Anthropic,
				Validate: validate,
			})
			r.Method(http.MethodPost, "/messages/count_tokens", &CountTokensHandler{
				Counter:  adapters.Counter,
				Validate: validate,
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		openAIErrorWriter(w, r, "not_found_error", "no route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(r.Context(), w, openaiadapter.NewError("invalid_request_error", "method not allowed"), http.StatusMethodNotAllowed)
	})

	return &Proxy{
		handler: r,
		server: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: o.readTimeout,
			ReadTimeout:       o.readTimeout,
			WriteTimeout:      o.writeTimeout,
			IdleTimeout:       o.idleTimeout,
		},
	}, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background. Listen errors are
// returned directly; later serve errors arrive on the returned channel.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	p.server.BaseContext = func(net.Listener) context.Context {
		return context.WithoutCancel(ctx)
	}

	slog.InfoContext(ctx, "proxy listening", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh, nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("proxy shutdown: %w", err)
	}
	return nil
}
