package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"resumelens/internal/types"
)

// DoneMarker is the literal payload of the frame that ends a successful stream.
const DoneMarker = "[DONE]"

// Writer writes Server-Sent Events frames of the form "data: <json>\n\n".
// Every frame is flushed before Emit returns, so a slow client slows the
// producer instead of growing a buffer.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter prepares w for streaming and sets the event-stream headers.
// Headers are sent with the first frame.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Writer{w: w, flusher: flusher}, nil
}

// NewPlainWriter writes frames to any writer, such as stdout.
func NewPlainWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Emit writes one event frame.
func (s *Writer) Emit(ev types.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}
	return s.frame(data)
}

// Done writes the terminal success marker.
func (s *Writer) Done() error {
	return s.frame([]byte(DoneMarker))
}

func (s *Writer) frame(payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
