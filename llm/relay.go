package llm

import (
	"encoding/json"
	"io"
	"net/http"
)

// StreamEvent is one line of the newline-delimited JSON stream sent to the
// client: a "start" marker, zero or more "chunk" events carrying content,
// and a terminal "done" or "error".
type StreamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Relay copies provider chunks to w as NDJSON events, flushing after every
// line so the client sees tokens as they arrive. It always terminates the
// stream with a "done" or "error" event and reports whether the stream
// completed cleanly.
func Relay(w io.Writer, chunks <-chan StreamChunk) error {
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	write := func(ev StreamEvent) error {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := write(StreamEvent{Type: "start"}); err != nil {
		return err
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			write(StreamEvent{Type: "error", Error: chunk.Err.Error()})
			return chunk.Err
		}
		if chunk.Content != "" {
			if err := write(StreamEvent{Type: "chunk", Content: chunk.Content}); err != nil {
				return err
			}
		}
		if chunk.Done {
			break
		}
	}

	return write(StreamEvent{Type: "done"})
}
