// Package stream implements the wire framing used for incremental exchange
// delivery: named, data-bearing frames separated by a blank line, in the
// shape of server-sent events. The decoder tolerates arbitrary chunk
// boundaries so it can sit directly on a network read loop.
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/haigui-labs/soupserver/internal/domain"
)

// Frame names emitted during one exchange, in protocol order.
const (
	EventExchangeAccepted = "exchange.accepted"
	EventAnswerPartial    = "answer.partial"
	EventAnswerComplete   = "answer.complete"
	EventSessionUpdated   = "session.updated"
	EventError            = "error"
)

// DefaultFrameName is used when a frame arrives without an event line.
const DefaultFrameName = "message"

// Frame is one named unit in the stream. Data holds the logical payload
// string: multi-line payloads are joined with "\n" by the decoder before
// any JSON interpretation happens.
type Frame struct {
	Name string
	Data string
}

// AcceptedPayload carries the persisted USER message identity.
type AcceptedPayload struct {
	UserMessageID string `json:"user_message_id"`
}

// PartialPayload carries one incremental fragment of the answer text.
type PartialPayload struct {
	Delta string `json:"delta"`
}

// CompletePayload carries the final persisted JUDGE message.
type CompletePayload struct {
	JudgeMessageID string                `json:"judge_message_id"`
	Content        string                `json:"content"`
	AnswerCategory domain.AnswerCategory `json:"answer_category"`
}

// SessionUpdatedPayload carries the refreshed session counters.
type SessionUpdatedPayload struct {
	SessionID     string `json:"session_id"`
	QuestionCount int    `json:"question_count"`
	Status        string `json:"status"`
}

// ErrorPayload carries a human-readable failure message; terminal.
type ErrorPayload struct {
	Message string `json:"message"`
}

// RawPayload is the fallback for unknown frame names or payloads that are
// not valid JSON. Consumers must tolerate it.
type RawPayload struct {
	Text string
}

// Payload validates and decodes the frame's data into its typed payload.
// Known frame names with malformed JSON return an error; unknown names
// degrade to RawPayload so a newer server does not break an older consumer.
func (f Frame) Payload() (any, error) {
	switch f.Name {
	case EventExchangeAccepted:
		return decodeInto[AcceptedPayload](f)
	case EventAnswerPartial:
		return decodeInto[PartialPayload](f)
	case EventAnswerComplete:
		return decodeInto[CompletePayload](f)
	case EventSessionUpdated:
		return decodeInto[SessionUpdatedPayload](f)
	case EventError:
		return decodeInto[ErrorPayload](f)
	}
	return RawPayload{Text: f.Data}, nil
}

func decodeInto[T any](f Frame) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(f.Data), &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", f.Name, err)
	}
	return v, nil
}

// NewFrame marshals v as the frame's JSON payload. Marshal failures are a
// programming error on the emitting side, so they surface as an error frame
// rather than a panic.
func NewFrame(name string, v any) Frame {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{Name: EventError, Data: `{"message":"failed to serialize frame"}`}
	}
	return Frame{Name: name, Data: string(data)}
}
