package stream

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Encode renders a frame in wire form: an event line, one data line per
// payload line, then the blank-line terminator.
func Encode(f Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", f.Name)
	for _, line := range strings.Split(f.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')
	return b.String()
}

// WriteFrame writes one encoded frame to w and flushes it immediately when
// w supports flushing, so the consumer observes frames as they are emitted.
func WriteFrame(w io.Writer, f Frame) error {
	if _, err := io.WriteString(w, Encode(f)); err != nil {
		return fmt.Errorf("write frame %s: %w", f.Name, err)
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
