package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/haigui-labs/soupserver/internal/domain"
	"github.com/haigui-labs/soupserver/internal/stream"
)

// ErrExchangeInFlight is returned when a new exchange is begun while a
// previous one has neither committed nor rolled back.
var ErrExchangeInFlight = errors.New("an exchange is already in flight")

// Phase is the lifecycle of the reconciler's current exchange.
type Phase string

const (
	// PhaseIdle means no exchange is in flight.
	PhaseIdle Phase = "IDLE"
	// PhasePending means optimistic entries exist but no server frame has
	// arrived yet.
	PhasePending Phase = "PENDING"
	// PhaseStreaming means the server accepted the exchange and answer
	// fragments may still arrive.
	PhaseStreaming Phase = "STREAMING"
)

// Entry is one row of the conversation as the UI should render it. An
// optimistic entry has not been confirmed by the server yet.
type Entry struct {
	MessageID      string
	Role           domain.MessageRole
	Content        string
	AnswerCategory domain.AnswerCategory
	Optimistic     bool
	Failed         bool
}

// SessionState is the client's last known session counters.
type SessionState struct {
	SessionID     string
	QuestionCount int
	Status        domain.SessionStatus
}

// Reconciler maintains the ordered conversation log for one session,
// merging optimistic local entries with server frames. It is the single
// source of truth for rendering: callers append questions through Begin and
// feed everything the server says through ApplyFrame or ResolveResult.
type Reconciler struct {
	mu      sync.Mutex
	entries []Entry
	session SessionState
	phase   Phase
	lastErr string
}

// NewReconciler creates a reconciler for a session.
func NewReconciler(sessionID string) *Reconciler {
	return &Reconciler{
		session: SessionState{SessionID: sessionID, Status: domain.StatusPlaying},
		phase:   PhaseIdle,
	}
}

// Begin appends the optimistic USER entry and an empty JUDGE placeholder
// for a new exchange. A second Begin while one is in flight is rejected;
// the caller must commit or roll back first.
func (r *Reconciler) Begin(question string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseIdle {
		return ErrExchangeInFlight
	}
	r.entries = append(r.entries,
		Entry{Role: domain.RoleUser, Content: question, Optimistic: true},
		Entry{Role: domain.RoleJudge, Optimistic: true},
	)
	r.phase = PhasePending
	r.lastErr = ""
	return nil
}

// ApplyFrame folds one server frame into the log.
//
// Partial fragments append to the trailing JUDGE placeholder and are
// ignored if the tail is not a JUDGE entry, so a malformed frame sequence
// cannot corrupt a committed row. An error frame surfaces the failure on
// the placeholder without rolling back the question: the server kept the
// USER message, so the client keeps it too.
func (r *Reconciler) ApplyFrame(f stream.Frame) error {
	payload, err := f.Payload()
	if err != nil {
		return fmt.Errorf("apply frame: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch p := payload.(type) {
	case stream.AcceptedPayload:
		if last := r.userEntry(); last != nil {
			last.MessageID = p.UserMessageID
			last.Optimistic = false
		}
		r.phase = PhaseStreaming

	case stream.PartialPayload:
		if last := r.judgeEntry(); last != nil && last.Optimistic {
			last.Content += p.Delta
		}

	case stream.CompletePayload:
		if last := r.judgeEntry(); last != nil {
			last.MessageID = p.JudgeMessageID
			last.Content = p.Content
			last.AnswerCategory = p.AnswerCategory
			last.Optimistic = false
		}
		r.phase = PhaseIdle

	case stream.SessionUpdatedPayload:
		r.mergeSession(p)

	case stream.ErrorPayload:
		r.lastErr = p.Message
		if last := r.judgeEntry(); last != nil {
			last.Failed = true
		}
		r.phase = PhaseIdle

	case stream.RawPayload:
		// Unknown frame name from a newer server; nothing to fold in.
	}
	return nil
}

// ResolveResult folds a non-streaming exchange response into the log,
// replacing the two optimistic entries with the server's messages. When
// fewer than two optimistic entries exist the messages are appended
// instead, so a reconnecting client converges to the same log.
func (r *Reconciler) ResolveResult(userMsg, judgeMsg Message, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	confirmed := []Entry{
		{MessageID: userMsg.ID, Role: userMsg.Role, Content: userMsg.Content},
		{MessageID: judgeMsg.ID, Role: judgeMsg.Role, Content: judgeMsg.Content, AnswerCategory: judgeMsg.AnswerCategory},
	}

	n := len(r.entries)
	if n >= 2 && r.entries[n-2].Optimistic && r.entries[n-1].Optimistic {
		r.entries = append(r.entries[:n-2], confirmed...)
	} else {
		r.entries = append(r.entries, confirmed...)
	}

	if session != nil {
		r.mergeSession(stream.SessionUpdatedPayload{
			SessionID:     session.ID,
			QuestionCount: session.QuestionCount,
			Status:        string(session.Status),
		})
	}
	r.phase = PhaseIdle
	r.lastErr = ""
}

// Rollback abandons the in-flight exchange, removing its optimistic
// entries. Confirmed entries are never removed.
func (r *Reconciler) Rollback() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.entries) > 0 && r.entries[len(r.entries)-1].Optimistic {
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.phase = PhaseIdle
}

// mergeSession folds the refreshed counters in, field by field. Invalid
// values are dropped rather than clobbering known-good state.
func (r *Reconciler) mergeSession(p stream.SessionUpdatedPayload) {
	if p.QuestionCount >= 0 {
		r.session.QuestionCount = p.QuestionCount
	}
	if status := domain.SessionStatus(p.Status); status.Valid() {
		r.session.Status = status
	}
}

// userEntry returns the optimistic USER entry of the in-flight exchange.
func (r *Reconciler) userEntry() *Entry {
	if n := len(r.entries); n >= 2 && r.entries[n-1].Role == domain.RoleJudge && r.entries[n-2].Role == domain.RoleUser {
		return &r.entries[n-2]
	}
	return nil
}

// judgeEntry returns the trailing JUDGE entry, or nil when the tail is
// something else.
func (r *Reconciler) judgeEntry() *Entry {
	if n := len(r.entries); n > 0 && r.entries[n-1].Role == domain.RoleJudge {
		return &r.entries[n-1]
	}
	return nil
}

// Entries returns a snapshot of the conversation log.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Session returns the last known session counters.
func (r *Reconciler) Session() SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Phase returns the current exchange phase.
func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// LastError returns the most recent error surfaced by the server, empty
// when the last exchange succeeded.
func (r *Reconciler) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
