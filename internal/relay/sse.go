package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// terminalFrame is the distinguished sentinel clients watch for. It is not
// JSON on purpose, so it can never collide with a content frame.
const terminalFrame = "data: [DONE]\n\n"

// SSESink frames relay events as Server-Sent Events on an HTTP response:
//
//	data: {"content": "..."}   — one per forwarded chunk
//	data: {"error": "..."}     — at most one, before the terminal frame
//	data: [DONE]               — the terminal marker
//
// Every frame is flushed immediately so clients render incrementally.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink prepares w for event streaming and returns the sink. It fails
// if the response writer cannot flush incrementally.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("relay: response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &SSESink{w: w, flusher: flusher}, nil
}

// Send writes one event as an SSE frame and flushes it.
func (s *SSESink) Send(e Event) error {
	if e.Terminal {
		if _, err := fmt.Fprint(s.w, terminalFrame); err != nil {
			return err
		}
		s.flusher.Flush()
		return nil
	}

	var frame any
	if e.Err != "" {
		frame = struct {
			Error string `json:"error"`
		}{e.Err}
	} else {
		frame = struct {
			Content string `json:"content"`
		}{e.Content}
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
