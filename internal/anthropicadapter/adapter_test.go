package anthropicadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/florianilch/switchboard/internal/adapter"
	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/backend/backendtest"
	"github.com/florianilch/switchboard/internal/unified"
)

func newTestAdapter(model backend.Model) *Adapter {
	return New(model, adapter.WithLogger(discardLogger))
}

// fixedInput reports a fixed input token count for every counted message.
type fixedInput struct {
	*backendtest.Model
	input int
}

func (f fixedInput) CountTokens(ctx context.Context, text string) (int, error) {
	return f.input, nil
}

type frame struct {
	name string
	data gjson.Result
}

func collectFrames(t *testing.T, model backend.Model, body string) []frame {
	t.Helper()

	stream, err := newTestAdapter(model).ProcessStreamingRequest(t.Context(), decodeRequest(t, body))
	require.NoError(t, err)

	var frames []frame
	for ev, err := range stream {
		require.NoError(t, err)
		data, err := json.Marshal(ev.Payload)
		require.NoError(t, err)
		frames = append(frames, frame{name: ev.Name, data: gjson.ParseBytes(data)})
	}
	return frames
}

func frameNames(frames []frame) []string {
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.name)
	}
	return names
}

func TestProcessRequest_TextOnly(t *testing.T) {
	t.Parallel()

	model := fixedInput{
		Model: backendtest.New(
			unified.TextDelta{Text: "Hello"},
			unified.TextDelta{Text: " there"},
			unified.UsageEvent{OutputTokens: 2},
		),
		input: 3,
	}

	msg, err := newTestAdapter(model).ProcessRequest(t.Context(), decodeRequest(t, baseRequest))
	require.NoError(t, err)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.JSONEq(t, `[{"type":"text","text":"Hello there"}]`, gjson.GetBytes(data, "content").Raw)
	assert.Equal(t, "end_turn", gjson.GetBytes(data, "stop_reason").String())
	assert.JSONEq(t, `{"input_tokens":3,"output_tokens":2}`, gjson.GetBytes(data, "usage").Raw)
	assert.Equal(t, "message", gjson.GetBytes(data, "type").String())
	assert.Equal(t, "assistant", gjson.GetBytes(data, "role").String())
	assert.Equal(t, "claude-sonnet-4-5", gjson.GetBytes(data, "model").String())
	assert.Regexp(t, `^msg_[0-9a-f]{32}$`, msg.ID)
}

func TestProcessRequest_ToolUse(t *testing.T) {
	t.Parallel()

	model := backendtest.New(
		unified.TextDelta{Text: "Checking."},
		unified.ToolCallEvent{ID: "t1", Name: "get_weather", Arguments: map[string]any{"location": "SF"}},
		unified.ToolCallEvent{ID: "t2", Name: "get_time"},
		unified.UsageEvent{OutputTokens: 4},
	)

	msg, err := newTestAdapter(model).ProcessRequest(t.Context(), decodeRequest(t, baseRequest))
	require.NoError(t, err)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.JSONEq(t, `[
		{"type":"text","text":"Checking."},
		{"type":"tool_use","id":"t1","name":"get_weather","input":{"location":"SF"}},
		{"type":"tool_use","id":"t2","name":"get_time","input":{}}
	]`, gjson.GetBytes(data, "content").Raw)
	assert.Equal(t, "tool_use", gjson.GetBytes(data, "stop_reason").String())
}

func TestProcessRequest_NoTextNoBlocks(t *testing.T) {
	t.Parallel()

	msg, err := newTestAdapter(backendtest.New()).ProcessRequest(t.Context(), decodeRequest(t, baseRequest))
	require.NoError(t, err)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Equal(t, "[]", gjson.GetBytes(data, "content").Raw)
}

func TestProcessStreamingRequest_SingleToolUseFrames(t *testing.T) {
	t.Parallel()

	model := fixedInput{
		Model: backendtest.New(
			unified.ToolCallEvent{ID: "t1", Name: "get_weather", Arguments: map[string]any{"location": "SF"}},
			unified.UsageEvent{OutputTokens: 1},
		),
		input: 5,
	}

	frames := collectFrames(t, model, baseRequest)
	require.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, frameNames(frames))

	start := frames[0].data
	assert.Equal(t, "message_start", start.Get("type").String())
	assert.JSONEq(t, `{"input_tokens":0,"output_tokens":0}`, start.Get("message.usage").Raw)
	assert.Equal(t, "[]", start.Get("message.content").Raw)
	assert.Equal(t, gjson.Null, start.Get("message.stop_reason").Type)

	assert.JSONEq(t, `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"t1","name":"get_weather","input":{}}}`, frames[1].data.Raw)
	assert.Equal(t, int64(0), frames[2].data.Get("index").Int())
	assert.Equal(t, "input_json_delta", frames[2].data.Get("delta.type").String())
	assert.JSONEq(t, `{"location":"SF"}`, frames[2].data.Get("delta.partial_json").String())
	assert.JSONEq(t, `{"type":"content_block_stop","index":0}`, frames[3].data.Raw)

	assert.Equal(t, "tool_use", frames[4].data.Get("delta.stop_reason").String())
	assert.Equal(t, int64(1), frames[4].data.Get("usage.output_tokens").Int())
	assert.JSONEq(t, `{"type":"message_stop"}`, frames[5].data.Raw)
}

func TestProcessStreamingRequest_TextBlocks(t *testing.T) {
	t.Parallel()

	frames := collectFrames(t, backendtest.New(
		unified.TextDelta{Text: "Hello"},
		unified.TextDelta{Text: " there"},
		unified.UsageEvent{OutputTokens: 2},
	), baseRequest)

	require.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, frameNames(frames))

	assert.JSONEq(t, `{"type":"text","text":""}`, frames[1].data.Get("content_block").Raw)
	assert.JSONEq(t, `{"type":"text_delta","text":"Hello"}`, frames[2].data.Get("delta").Raw)
	assert.JSONEq(t, `{"type":"text_delta","text":" there"}`, frames[3].data.Get("delta").Raw)
	assert.Equal(t, "end_turn", frames[5].data.Get("delta.stop_reason").String())
}

func TestProcessStreamingRequest_BlockIndexMonotonic(t *testing.T) {
	t.Parallel()

	frames := collectFrames(t, backendtest.New(
		unified.TextDelta{Text: "a"},
		unified.ToolCallEvent{ID: "t1", Name: "f"},
		unified.TextDelta{Text: "b"},
		unified.TextDelta{Text: "c"},
		unified.ToolCallEvent{ID: "t2", Name: "g"},
		unified.ToolCallEvent{ID: "t3", Name: "h"},
		unified.TextDelta{Text: "d"},
		unified.UsageEvent{OutputTokens: 7},
	), baseRequest)

	var (
		open    = -1
		last    = -1
		started = map[int]int{}
		stopped = map[int]int{}
	)
	for _, f := range frames {
		switch f.name {
		case "content_block_start":
			require.Equal(t, -1, open, "block started while another is open")
			idx := int(f.data.Get("index").Int())
			require.Greater(t, idx, last, "indices must strictly increase")
			started[idx]++
			open, last = idx, idx
		case "content_block_delta":
			require.Equal(t, open, int(f.data.Get("index").Int()), "delta outside open block")
		case "content_block_stop":
			idx := int(f.data.Get("index").Int())
			require.Equal(t, open, idx)
			stopped[idx]++
			open = -1
		}
	}

	assert.Equal(t, -1, open, "stream ended with an open block")
	assert.Len(t, started, 6)
	for idx := range 6 {
		assert.Equal(t, 1, started[idx], "index %d started", idx)
		assert.Equal(t, 1, stopped[idx], "index %d stopped", idx)
	}
	assert.Equal(t, "tool_use", frames[len(frames)-2].data.Get("delta.stop_reason").String())
}

func TestProcessStreamingRequest_EquivalentToNonStreaming(t *testing.T) {
	t.Parallel()

	events := []unified.Event{
		unified.TextDelta{Text: "The weather "},
		unified.ToolCallEvent{ID: "t1", Name: "log", Arguments: map[string]any{"level": "info"}},
		unified.UsageEvent{OutputTokens: 6},
	}

	msg, err := newTestAdapter(backendtest.New(events...)).ProcessRequest(t.Context(), decodeRequest(t, baseRequest))
	require.NoError(t, err)

	frames := collectFrames(t, backendtest.New(events...), baseRequest)

	var (
		text      string
		toolNames []string
	)
	for _, f := range frames {
		switch {
		case f.name == "content_block_delta" && f.data.Get("delta.type").String() == "text_delta":
			text += f.data.Get("delta.text").String()
		case f.name == "content_block_start" && f.data.Get("content_block.type").String() == "tool_use":
			toolNames = append(toolNames, f.data.Get("content_block.name").String())
		}
	}

	require.Len(t, msg.Content, 2)
	assert.Equal(t, msg.Content[0].(TextBlock).Text, text)
	assert.Equal(t, []string{msg.Content[1].(ToolUseBlock).Name}, toolNames)
	assert.Equal(t, *msg.StopReason, frames[len(frames)-2].data.Get("delta.stop_reason").String())
	assert.Equal(t, msg.Usage.OutputTokens, int(frames[len(frames)-2].data.Get("usage.output_tokens").Int()))
}

func TestProcessStreamingRequest_MidStreamError(t *testing.T) {
	t.Parallel()

	model := backendtest.New(unified.TextDelta{Text: "partial"})
	model.Err = backend.Unavailable("overloaded", 529, nil)

	stream, err := newTestAdapter(model).ProcessStreamingRequest(t.Context(), decodeRequest(t, baseRequest))
	require.NoError(t, err)

	var (
		names  []string
		gotErr error
	)
	for ev, err := range stream {
		if err != nil {
			gotErr = err
			break
		}
		names = append(names, ev.Name)
	}

	assert.Equal(t, []string{"message_start", "content_block_start", "content_block_delta"}, names)
	var errResp *ErrorResponse
	require.ErrorAs(t, gotErr, &errResp)
	assert.Equal(t, "overloaded_error", errResp.Err.Type)
}

func TestProcessRequest_BackendErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantType   string
		wantStatus int
	}{
		{name: "auth", err: backend.Unavailable("invalid x-api-key", http.StatusUnauthorized, nil), wantType: "authentication_error", wantStatus: http.StatusUnauthorized},
		{name: "not found", err: backend.Unavailable("model: nope", http.StatusNotFound, nil), wantType: "not_found_error", wantStatus: http.StatusNotFound},
		{name: "rate limit", err: backend.Unavailable("slow down", http.StatusTooManyRequests, nil), wantType: "rate_limit_error", wantStatus: http.StatusTooManyRequests},
		{name: "outage", err: errors.New("dial tcp: i/o timeout"), wantType: "overloaded_error", wantStatus: 529},
		{name: "bad upstream request", err: &backend.Error{Kind: backend.ErrProtocol, Message: "roles must alternate", Status: http.StatusBadRequest}, wantType: "invalid_request_error", wantStatus: http.StatusBadRequest},
		{name: "protocol", err: backend.Protocol("malformed tool input", nil), wantType: "api_error", wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			model := backendtest.New()
			model.Err = tt.err

			_, err := newTestAdapter(model).ProcessRequest(t.Context(), decodeRequest(t, baseRequest))

			var errResp *ErrorResponse
			require.ErrorAs(t, err, &errResp)
			assert.Equal(t, "error", errResp.Type)
			assert.Equal(t, tt.wantType, errResp.Err.Type)
			assert.Equal(t, tt.wantStatus, errResp.StatusCode())
			assert.NotContains(t, errResp.Err.Message, "dial tcp")
		})
	}
}

func TestCountTokens(t *testing.T) {
	t.Parallel()

	var req CountTokensRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"model": "m",
		"system": "one two",
		"messages": [{"role": "user", "content": "three four five"}]
	}`), &req))

	resp, err := newTestAdapter(backendtest.New()).CountTokens(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, 5, resp.InputTokens)
}

func TestProcessRequest_CountMatchesRunInput(t *testing.T) {
	t.Parallel()

	model := backendtest.New()
	body := `{"model":"m","max_tokens":5,"system":"be brief","messages":[{"role":"user","content":"hello there friend"}]}`

	msg, err := newTestAdapter(model).ProcessRequest(t.Context(), decodeRequest(t, body))
	require.NoError(t, err)

	var countReq CountTokensRequest
	require.NoError(t, json.Unmarshal([]byte(body), &countReq))
	count, err := newTestAdapter(model).CountTokens(t.Context(), countReq)
	require.NoError(t, err)

	assert.Equal(t, count.InputTokens, msg.Usage.InputTokens)
}
