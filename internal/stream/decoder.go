package stream

import (
	"strings"
)

const frameDelimiter = "\n\n"

// Decoder reassembles frames from an unbounded byte stream delivered in
// arbitrary-sized chunks. Incomplete frames are buffered across Feed calls;
// a frame boundary is never assumed to align with a chunk boundary.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	buf strings.Builder
}

// Feed appends one chunk and returns every complete frame it finished.
// May return nil when the chunk ends mid-frame.
func (d *Decoder) Feed(p []byte) []Frame {
	d.buf.Write(p)

	pending := d.buf.String()
	var frames []Frame
	for {
		idx := strings.Index(pending, frameDelimiter)
		if idx < 0 {
			break
		}
		raw := pending[:idx]
		pending = pending[idx+len(frameDelimiter):]
		if f, ok := parseFrame(raw); ok {
			frames = append(frames, f)
		}
	}

	d.buf.Reset()
	d.buf.WriteString(pending)
	return frames
}

// Flush drains a trailing frame that never received its delimiter. The
// dangling text degrades to an opaque frame instead of a decode failure.
func (d *Decoder) Flush() (Frame, bool) {
	raw := d.buf.String()
	d.buf.Reset()
	if strings.TrimSpace(raw) == "" {
		return Frame{}, false
	}
	if f, ok := parseFrame(raw); ok {
		return f, true
	}
	return Frame{}, false
}

// parseFrame splits one raw frame into its name and joined payload. Lines
// that are neither event nor data lines (comments, retry hints, ids) are
// ignored. A frame with no data lines carries no payload and is dropped.
func parseFrame(raw string) (Frame, bool) {
	name := DefaultFrameName
	var data []string
	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			if v := strings.TrimSpace(strings.TrimPrefix(line, "event:")); v != "" {
				name = v
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if len(data) == 0 {
		return Frame{}, false
	}
	return Frame{Name: name, Data: strings.Join(data, "\n")}, true
}
