package proxy

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"

	"github.com/florianilch/switchboard/internal/adapter"
	"github.com/florianilch/switchboard/internal/anthropicadapter"
	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/backend/backendtest"
	"github.com/florianilch/switchboard/internal/backend/claude"
	"github.com/florianilch/switchboard/internal/openaiadapter"
	"github.com/florianilch/switchboard/internal/unified"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type readiness bool

func (r readiness) IsReady() bool { return bool(r) }

const (
	chatRequest = `{
		"model": "gpt-4o",
		"messages": [{"role": "user", "content": "Hi"}]
	}`
	messagesRequest = `{
		"model": "claude-sonnet-4-5",
		"max_tokens": 256,
		"messages": [{"role": "user", "content": "Hi"}]
	}`
)

func newTestServer(t *testing.T, model backend.Model, opts ...Option) *httptest.Server {
	t.Helper()

	adapterOpts := []adapter.Option{adapter.WithLogger(discardLogger)}
	anthropic := anthropicadapter.New(model, adapterOpts...)

	p, err := New(Adapters{
		OpenAI:    openaiadapter.New(model, adapterOpts...),
		Anthropic: anthropic,
		Counter:   anthropic,
	}, readiness(true), append([]Option{WithLogger(discardLogger)}, opts...)...)
	require.NoError(t, err)

	server := httptest.NewServer(p)
	t.Cleanup(server.Close)
	return server
}

func post(t *testing.T, server *httptest.Server, path, body string, header map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

type sseFrame struct {
	event string
	data  string
}

func readFrames(t *testing.T, body string) []sseFrame {
	t.Helper()

	var frames []sseFrame
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var f sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				f.data = strings.TrimPrefix(line, "data: ")
			}
		}
		frames = append(frames, f)
	}
	return frames
}

var anthropicHeaders = map[string]string{"anthropic-version": "2023-06-01"}

func TestChatCompletions(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New(
		unified.TextDelta{Text: "Hello"},
		unified.TextDelta{Text: " there"},
		unified.UsageEvent{OutputTokens: 2},
	))

	resp := post(t, server, "/v1/chat/completions", chatRequest, nil)
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Hello there", gjson.Get(body, "choices.0.message.content").String())
	assert.Equal(t, "stop", gjson.Get(body, "choices.0.finish_reason").String())
	assert.Equal(t, int64(1), gjson.Get(body, "usage.prompt_tokens").Int())
	assert.Equal(t, int64(2), gjson.Get(body, "usage.completion_tokens").Int())
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestChatCompletions_Streaming(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New(
		unified.TextDelta{Text: "Hello"},
		unified.ToolCallEvent{ID: "t1", Name: "get_weather", Arguments: map[string]any{"location": "SF"}},
		unified.UsageEvent{OutputTokens: 3},
	))

	body, err := sjson.Set(chatRequest, "stream", true)
	require.NoError(t, err)

	resp := post(t, server, "/v1/chat/completions", body, nil)
	raw := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readFrames(t, raw)
	require.Len(t, frames, 4)
	assert.Equal(t, "assistant", gjson.Get(frames[0].data, "choices.0.delta.role").String())
	assert.Equal(t, "Hello", gjson.Get(frames[0].data, "choices.0.delta.content").String())
	assert.Equal(t, "get_weather", gjson.Get(frames[1].data, "choices.0.delta.tool_calls.0.function.name").String())
	assert.Equal(t, "tool_calls", gjson.Get(frames[2].data, "choices.0.finish_reason").String())
	assert.False(t, gjson.Get(frames[2].data, "usage").Exists(), "usage stays server-side")
	assert.Equal(t, "[DONE]", frames[3].data)
	for _, f := range frames {
		assert.Empty(t, f.event, "OpenAI frames are unnamed")
	}
}

func TestChatCompletions_StreamFailsBeforeFirstChunk(t *testing.T) {
	t.Parallel()

	model := backendtest.New()
	model.Err = backend.Unavailable("connection refused", 0, nil)
	server := newTestServer(t, model)

	body, err := sjson.Set(chatRequest, "stream", true)
	require.NoError(t, err)

	resp := post(t, server, "/v1/chat/completions", body, nil)
	raw := readBody(t, resp)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "server_error", gjson.Get(raw, "error.type").String())
	assert.Equal(t, "connection refused", gjson.Get(raw, "error.message").String())
}

func TestChatCompletions_StreamFailsMidway(t *testing.T) {
	t.Parallel()

	model := backendtest.New(unified.TextDelta{Text: "partial"})
	model.Err = backend.Unavailable("connection reset", 0, nil)
	server := newTestServer(t, model)

	body, err := sjson.Set(chatRequest, "stream", true)
	require.NoError(t, err)

	resp := post(t, server, "/v1/chat/completions", body, nil)
	raw := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	frames := readFrames(t, raw)
	require.Len(t, frames, 1)
	assert.Equal(t, "partial", gjson.Get(frames[0].data, "choices.0.delta.content").String())
	assert.NotContains(t, raw, "[DONE]")
	assert.NotContains(t, raw, "error")
}

func TestMessages(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New(
		unified.TextDelta{Text: "Hello there"},
		unified.UsageEvent{OutputTokens: 2},
	))

	resp := post(t, server, "/v1/messages", messagesRequest, anthropicHeaders)
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `[{"type":"text","text":"Hello there"}]`, gjson.Get(body, "content").Raw)
	assert.Equal(t, "end_turn", gjson.Get(body, "stop_reason").String())
	assert.JSONEq(t, `{"input_tokens":1,"output_tokens":2}`, gjson.Get(body, "usage").Raw)
}

func TestMessages_Streaming(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New(
		unified.TextDelta{Text: "Hello"},
		unified.UsageEvent{OutputTokens: 1},
	))

	body, err := sjson.Set(messagesRequest, "stream", true)
	require.NoError(t, err)

	resp := post(t, server, "/v1/messages", body, anthropicHeaders)
	raw := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readFrames(t, raw)
	var names []string
	for _, f := range frames {
		names = append(names, f.event)
		assert.Equal(t, f.event, gjson.Get(f.data, "type").String(), "event name matches payload type")
	}
	assert.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, names)
	assert.NotContains(t, raw, "[DONE]")
}

func TestMessages_StreamFailsMidway(t *testing.T) {
	t.Parallel()

	model := backendtest.New()
	model.Err = backend.Unavailable("overloaded", 529, nil)
	server := newTestServer(t, model)

	body, err := sjson.Set(messagesRequest, "stream", true)
	require.NoError(t, err)

	resp := post(t, server, "/v1/messages", body, anthropicHeaders)
	raw := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	frames := readFrames(t, raw)
	require.Len(t, frames, 1)
	assert.Equal(t, "message_start", frames[0].event)
}

func TestMessages_CountFailureIsJSONError(t *testing.T) {
	t.Parallel()

	model := backendtest.New()
	model.CountErr = backend.Unavailable("tokenizer offline", 0, nil)
	server := newTestServer(t, model)

	body, err := sjson.Set(messagesRequest, "stream", true)
	require.NoError(t, err)

	resp := post(t, server, "/v1/messages", body, anthropicHeaders)
	raw := readBody(t, resp)

	assert.Equal(t, 529, resp.StatusCode)
	assert.Equal(t, "error", gjson.Get(raw, "type").String())
	assert.Equal(t, "overloaded_error", gjson.Get(raw, "error.type").String())
}

func TestMessages_RequiresVersionHeader(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New())

	resp := post(t, server, "/v1/messages", messagesRequest, nil)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request_error", gjson.Get(body, "error.type").String())
	assert.Contains(t, gjson.Get(body, "error.message").String(), "anthropic-version")
}

func TestCountTokens(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New())

	resp := post(t, server, "/v1/messages/count_tokens", `{
		"model": "m",
		"system": "be brief",
		"messages": [{"role": "user", "content": "how are you"}]
	}`, anthropicHeaders)
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"input_tokens":5}`, body)
}

func TestValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		path      string
		body      func() (string, error)
		wantField string
	}{
		{
			name:      "openai missing model",
			path:      "/v1/chat/completions",
			body:      func() (string, error) { return sjson.Delete(chatRequest, "model") },
			wantField: "model",
		},
		{
			name:      "openai empty messages",
			path:      "/v1/chat/completions",
			body:      func() (string, error) { return sjson.SetRaw(chatRequest, "messages", "[]") },
			wantField: "messages",
		},
		{
			name:      "openai temperature out of range",
			path:      "/v1/chat/completions",
			body:      func() (string, error) { return sjson.Set(chatRequest, "temperature", 2.5) },
			wantField: "temperature",
		},
		{
			name:      "anthropic missing max_tokens",
			path:      "/v1/messages",
			body:      func() (string, error) { return sjson.Delete(messagesRequest, "max_tokens") },
			wantField: "max_tokens",
		},
		{
			name:      "anthropic bad role",
			path:      "/v1/messages",
			body:      func() (string, error) { return sjson.Set(messagesRequest, "messages.0.role", "system") },
			wantField: "messages[0].role",
		},
		{
			name:      "anthropic temperature out of range",
			path:      "/v1/messages",
			body:      func() (string, error) { return sjson.Set(messagesRequest, "temperature", 1.5) },
			wantField: "temperature",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			model := backendtest.New()
			server := newTestServer(t, model)

			body, err := tt.body()
			require.NoError(t, err)

			resp := post(t, server, tt.path, body, anthropicHeaders)
			raw := readBody(t, resp)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "invalid_request_error", gjson.Get(raw, "error.type").String())
			assert.Contains(t, gjson.Get(raw, "error.message").String(), tt.wantField+":")
			assert.Empty(t, model.Requests(), "backend must not run")
		})
	}
}

func TestMalformedJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New())

	resp := post(t, server, "/v1/chat/completions", `{"model":`, nil)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, gjson.Get(body, "error.message").String(), "malformed JSON")
}

func TestRequestSizeLimit(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New(), WithMaxRequestBytes(64))
	big, err := sjson.Set(messagesRequest, "messages.0.content", strings.Repeat("x", 256))
	require.NoError(t, err)

	t.Run("openai", func(t *testing.T) {
		resp := post(t, server, "/v1/chat/completions", big, nil)
		body := readBody(t, resp)

		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, "invalid_request_error", gjson.Get(body, "error.type").String())
		assert.Equal(t, "request_too_large", gjson.Get(body, "error.code").String())
	})

	t.Run("anthropic", func(t *testing.T) {
		resp := post(t, server, "/v1/messages", big, anthropicHeaders)
		body := readBody(t, resp)

		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, "request_too_large", gjson.Get(body, "error.type").String())
	})
}

func TestAPIKeys(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New(unified.UsageEvent{}), WithAPIKeys("secret-1", "secret-2"))

	tests := []struct {
		name       string
		path       string
		header     map[string]string
		wantStatus int
		wantShape  string
	}{
		{name: "openai missing", path: "/v1/chat/completions", wantStatus: http.StatusUnauthorized, wantShape: "error.message"},
		{name: "openai wrong", path: "/v1/chat/completions", header: map[string]string{"Authorization": "Bearer nope"}, wantStatus: http.StatusUnauthorized, wantShape: "error.message"},
		{name: "openai bearer", path: "/v1/chat/completions", header: map[string]string{"Authorization": "Bearer secret-2"}, wantStatus: http.StatusOK},
		{name: "openai x-api-key", path: "/v1/chat/completions", header: map[string]string{"x-api-key": "secret-1"}, wantStatus: http.StatusOK},
		{name: "anthropic missing", path: "/v1/messages", header: map[string]string{"anthropic-version": "2023-06-01"}, wantStatus: http.StatusUnauthorized, wantShape: "type"},
		{name: "anthropic x-api-key", path: "/v1/messages", header: map[string]string{"anthropic-version": "2023-06-01", "x-api-key": "secret-1"}, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := chatRequest
			if strings.HasPrefix(tt.path, "/v1/messages") {
				body = messagesRequest
			}

			resp := post(t, server, tt.path, body, tt.header)
			raw := readBody(t, resp)

			assert.Equal(t, tt.wantStatus, resp.StatusCode, raw)
			if tt.wantShape != "" {
				assert.True(t, gjson.Get(raw, tt.wantShape).Exists(), raw)
				assert.Equal(t, "authentication_error", gjson.Get(raw, "error.type").String())
			}
		})
	}
}

func TestModels(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New())

	resp, err := server.Client().Get(server.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "list", gjson.Get(body, "object").String())
	assert.False(t, gjson.Get(body, "has_more").Bool())

	data := gjson.Get(body, "data").Array()
	require.NotEmpty(t, data)
	assert.Equal(t, data[0].Get("id").String(), gjson.Get(body, "first_id").String())
	for _, m := range data {
		assert.Equal(t, "model", m.Get("object").String())
		assert.Equal(t, "model", m.Get("type").String())
		assert.Positive(t, m.Get("created").Int())
		_, err := time.Parse(time.RFC3339, m.Get("created_at").String())
		assert.NoError(t, err)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	anthropic := anthropicadapter.New(backendtest.New())
	p, err := New(Adapters{
		OpenAI:    openaiadapter.New(backendtest.New()),
		Anthropic: anthropic,
		Counter:   anthropic,
	}, readiness(false), WithLogger(discardLogger))
	require.NoError(t, err)

	for path, want := range map[string]int{
		"/health/liveness":  http.StatusOK,
		"/health/readiness": http.StatusServiceUnavailable,
	} {
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New())

	resp := post(t, server, "/v1/chat/completions", chatRequest, map[string]string{"X-Request-ID": "req-123"})
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, backendtest.New())

	resp := post(t, server, "/v1/completions", chatRequest, nil)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found_error", gjson.Get(body, "error.type").String())
}

func TestStreaming_ClientDisconnectCancelsBackend(t *testing.T) {
	t.Parallel()

	model := backendtest.New(unified.TextDelta{Text: "first"})
	model.Block = true
	model.Stopped = make(chan struct{})
	server := newTestServer(t, model)

	body, err := sjson.Set(chatRequest, "stream", true)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL+"/v1/chat/completions", strings.NewReader(body))
	require.NoError(t, err)

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "first")

	cancel()

	select {
	case <-model.Stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("backend run was not cancelled after client disconnect")
	}
}

func TestConversationWithoutTurnsIsInvalidRequest(t *testing.T) {
	t.Parallel()

	var messageCalls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/messages/count_tokens" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"input_tokens": 3}`)
			return
		}
		messageCalls.Add(1)
		http.Error(w, "unexpected", http.StatusTeapot)
	}))
	t.Cleanup(upstream.Close)

	model, err := claude.New("claude-test",
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "sk-test"}),
		claude.WithBaseURL(upstream.URL),
	)
	require.NoError(t, err)
	server := newTestServer(t, model)

	imageOnlyChat := `{
		"model": "gpt-4o",
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": [{"type": "image_url", "image_url": {"url": "https://example.com/a.png"}}]}
		]
	}`
	imageOnlyMessages := `{
		"model": "claude-sonnet-4-5",
		"max_tokens": 256,
		"system": "be brief",
		"messages": [
			{"role": "user", "content": [{"type": "image", "source": {"type": "url", "url": "https://example.com/a.png"}}]}
		]
	}`
	streamingChat, err := sjson.Set(imageOnlyChat, "stream", true)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		body   string
		header map[string]string
	}{
		{name: "chat completions", path: "/v1/chat/completions", body: imageOnlyChat},
		{name: "chat completions streaming", path: "/v1/chat/completions", body: streamingChat},
		{name: "messages", path: "/v1/messages", body: imageOnlyMessages, header: anthropicHeaders},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, server, tt.path, tt.body, tt.header)
			body := readBody(t, resp)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, "invalid_request_error", gjson.Get(body, "error.type").String(), body)
			assert.Contains(t, gjson.Get(body, "error.message").String(), "no user or assistant turns")
		})
	}

	assert.Zero(t, messageCalls.Load())
}
