package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamWrite is returned when a frame cannot be delivered to the client.
var ErrStreamWrite = errors.New("stream write failed")

// SSEWriter writes Server-Sent Events frames and flushes after each one.
//
// Headers and the 200 status are committed lazily with the first frame, so a
// handler can still answer with a JSON error as long as Started reports false.
type SSEWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

// NewSSEWriter wraps w. Nothing is written until the first frame.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	return &SSEWriter{w: w, rc: http.NewResponseController(w)}
}

// Started reports whether the response status and any frame have been sent.
func (s *SSEWriter) Started() bool {
	return s.started
}

// WriteEvent writes a named event whose data is the JSON encoding of data.
func (s *SSEWriter) WriteEvent(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: failed to encode %s event: %w", ErrStreamWrite, name, err)
	}
	return s.write("event: " + name + "\ndata: " + string(payload) + "\n\n")
}

// WriteData writes an unnamed event whose data is the JSON encoding of data.
func (s *SSEWriter) WriteData(data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: failed to encode data: %w", ErrStreamWrite, err)
	}
	return s.write("data: " + string(payload) + "\n\n")
}

// WriteRaw writes data verbatim as an unnamed event, e.g. the [DONE] marker.
func (s *SSEWriter) WriteRaw(data string) error {
	return s.write("data: " + data + "\n\n")
}

func (s *SSEWriter) write(frame string) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if _, err := s.w.Write([]byte(frame)); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamWrite, err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("%w: failed to flush: %w", ErrStreamWrite, err)
	}
	return nil
}
