package stream

import (
	"strings"
	"testing"
)

func sampleFrames() []Frame {
	return []Frame{
		NewFrame(EventExchangeAccepted, AcceptedPayload{UserMessageID: "101"}),
		NewFrame(EventAnswerPartial, PartialPayload{Delta: "Yes"}),
		NewFrame(EventAnswerComplete, CompletePayload{
			JudgeMessageID: "102",
			Content:        "Yes",
			AnswerCategory: "YES",
		}),
		NewFrame(EventSessionUpdated, SessionUpdatedPayload{
			SessionID:     "7",
			QuestionCount: 3,
			Status:        "PLAYING",
		}),
	}
}

func decodeChunked(t *testing.T, wire string, chunkSize int) []Frame {
	t.Helper()
	var dec Decoder
	var got []Frame
	for i := 0; i < len(wire); i += chunkSize {
		end := i + chunkSize
		if end > len(wire) {
			end = len(wire)
		}
		got = append(got, dec.Feed([]byte(wire[i:end]))...)
	}
	if f, ok := dec.Flush(); ok {
		got = append(got, f)
	}
	return got
}

func TestRoundTripArbitraryChunking(t *testing.T) {
	frames := sampleFrames()
	var wire strings.Builder
	for _, f := range frames {
		wire.WriteString(Encode(f))
	}

	for _, chunkSize := range []int{1, 2, 3, 7, 16, len(wire.String())} {
		got := decodeChunked(t, wire.String(), chunkSize)
		if len(got) != len(frames) {
			t.Fatalf("chunk size %d: got %d frames, want %d", chunkSize, len(got), len(frames))
		}
		for i := range frames {
			if got[i] != frames[i] {
				t.Errorf("chunk size %d: frame %d = %+v, want %+v", chunkSize, i, got[i], frames[i])
			}
		}
	}
}

func TestMultiLinePayloadJoined(t *testing.T) {
	f := Frame{Name: EventAnswerPartial, Data: "line one\nline two"}
	got := decodeChunked(t, Encode(f), 1)
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	if got[0].Data != "line one\nline two" {
		t.Errorf("payload = %q, want joined lines", got[0].Data)
	}
}

func TestMissingEventLineDefaultsName(t *testing.T) {
	var dec Decoder
	got := dec.Feed([]byte("data: hello\n\n"))
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	if got[0].Name != DefaultFrameName || got[0].Data != "hello" {
		t.Errorf("frame = %+v, want default-named opaque frame", got[0])
	}
}

func TestTrailingFrameWithoutDelimiterFlushes(t *testing.T) {
	var dec Decoder
	if frames := dec.Feed([]byte("event: error\ndata: boom")); frames != nil {
		t.Fatalf("incomplete frame must not be emitted, got %v", frames)
	}
	f, ok := dec.Flush()
	if !ok {
		t.Fatal("expected dangling frame from Flush")
	}
	if f.Name != EventError || f.Data != "boom" {
		t.Errorf("flushed frame = %+v", f)
	}
}

func TestPayloadDecodesTypedFrames(t *testing.T) {
	f := NewFrame(EventAnswerComplete, CompletePayload{
		JudgeMessageID: "9",
		Content:        "No",
		AnswerCategory: "NO",
	})
	p, err := f.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	complete, ok := p.(CompletePayload)
	if !ok {
		t.Fatalf("payload type %T, want CompletePayload", p)
	}
	if complete.JudgeMessageID != "9" || complete.AnswerCategory != "NO" {
		t.Errorf("payload = %+v", complete)
	}
}

func TestPayloadFallsBackToRawText(t *testing.T) {
	f := Frame{Name: "some.future.event", Data: "not json"}
	p, err := f.Payload()
	if err != nil {
		t.Fatalf("unknown frames must not fail: %v", err)
	}
	raw, ok := p.(RawPayload)
	if !ok || raw.Text != "not json" {
		t.Errorf("payload = %#v, want RawPayload", p)
	}
}

func TestPayloadRejectsMalformedKnownFrame(t *testing.T) {
	f := Frame{Name: EventSessionUpdated, Data: "{broken"}
	if _, err := f.Payload(); err == nil {
		t.Error("malformed session.updated payload must return a decode error")
	}
}

func TestKeepaliveCommentLinesIgnored(t *testing.T) {
	var dec Decoder
	got := dec.Feed([]byte("retry: 5000\n\nevent: answer.partial\ndata: Yes\n\n"))
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1 (retry hint must be skipped)", len(got))
	}
	if got[0].Name != EventAnswerPartial {
		t.Errorf("frame = %+v", got[0])
	}
}
