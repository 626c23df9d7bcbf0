// Package claude implements the backend contract on the Anthropic Messages API.
//
// Unified conversations are translated into Anthropic message params: leading
// assistant text turns are hoisted into the system prompt and consecutive turns
// of the same role are merged to satisfy the API's alternation rule. The unified
// model carries system prompts as assistant turns, so a conversation that
// genuinely opens with an assistant text turn, such as a greeting, has that
// turn folded into the system prompt as well. Streamed
// tool_use input fragments are reassembled so every tool call reaches the
// adapters whole.
package claude

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/oauth2"

	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/tokensource"
)

// DefaultMaxTokens applies when a request carries no max_tokens.
const DefaultMaxTokens = 4096

// Model is a backend.Model served by the Anthropic Messages API.
type Model struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

var _ backend.Model = (*Model)(nil)

type options struct {
	transport http.RoundTripper
	baseURL   string
	maxTokens int64
}

// Option configures a Model.
type Option func(*options)

// WithTransport sets the base transport beneath the authentication layer.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) { o.transport = transport }
}

// WithBaseURL overrides the Anthropic API base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithMaxTokens sets the output cap used when a request has none.
func WithMaxTokens(maxTokens int) Option {
	return func(o *options) { o.maxTokens = int64(maxTokens) }
}

// New returns a Model for the named Anthropic model. Requests are
// authenticated with the API key provided by tokenSource.
func New(model string, tokenSource oauth2.TokenSource, opts ...Option) (*Model, error) {
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if tokenSource == nil {
		return nil, errors.New("token source cannot be nil")
	}

	o := options{
		transport: http.DefaultTransport,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := newClient(&tokensource.Transport{Source: tokenSource, Base: o.transport}, o.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic client: %w", err)
	}

	return &Model{
		client:    client,
		model:     model,
		maxTokens: o.maxTokens,
	}, nil
}

// newClient creates an Anthropic client on top of transport.
// The transport chain needs to handle authentication.
func newClient(transport http.RoundTripper, baseURL string) (*anthropic.Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}

	httpClient := &http.Client{
		Transport: transport,
		// Client.Timeout = 0 allows long-running SSE streams (bounded by server WriteTimeout)
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		// Generous RequestTimeout bypasses SDK maxTokens checks - actual limit enforced by server WriteTimeout
		option.WithRequestTimeout(1 * time.Hour),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := anthropic.NewClient(opts...)
	return &client, nil
}

func (m *Model) Name() string {
	return m.model
}
