package game

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/haigui-labs/soupserver/internal/domain"
	"github.com/haigui-labs/soupserver/internal/stream"
)

// Exchange is the ephemeral unit of work for one validated question: one
// judge invocation, one USER+JUDGE message pair, one counter increment. It
// holds only the snapshot taken at validation and is never reused.
type Exchange struct {
	svc     *Service
	session *domain.Session
	puzzle  *domain.Puzzle
	content string
}

// Result is the complete outcome of a non-streaming exchange. Session is
// nil when the post-increment refresh failed; the exchange itself still
// completed.
type Result struct {
	UserMessage  *domain.Message
	JudgeMessage *domain.Message
	Session      *domain.Session
}

// Run executes the exchange and returns the full outcome at once.
//
// The USER message survives a judge failure: a question with no answer is
// an accepted, resumable state, not corruption, so there is no compensating
// rollback. The JUDGE message and the counter increment are only produced
// together.
func (ex *Exchange) Run(ctx context.Context) (*Result, error) {
	userMsg, err := ex.svc.repo.AppendMessage(ctx, ex.session.ID, domain.RoleUser, ex.content, "")
	if err != nil {
		return nil, wrap(CodeInternal, "failed to save message", err)
	}

	category, err := ex.svc.judge.Classify(ctx, ex.content, ex.puzzle.Surface, ex.puzzle.Bottom)
	if err != nil {
		slog.Warn("judge classification failed", "session_id", ex.session.ID, "error", err)
		return nil, wrap(CodeJudgeUnavailable, "judge unavailable, try asking again", err)
	}

	judgeMsg, err := ex.svc.repo.AppendMessage(ctx, ex.session.ID, domain.RoleJudge, category.DisplayText(), category)
	if err != nil {
		return nil, wrap(CodeInternal, "failed to save judge message", err)
	}

	if err := ex.svc.repo.IncrementQuestionCount(ctx, ex.session.ID); err != nil {
		return nil, wrap(CodeInternal, "failed to advance question count", err)
	}

	updated, err := ex.svc.repo.GetSession(ctx, ex.session.ID)
	if err != nil {
		// The exchange completed; the caller just misses the refreshed counters.
		slog.Warn("failed to refresh session after exchange", "session_id", ex.session.ID, "error", err)
		updated = nil
	}

	return &Result{UserMessage: userMsg, JudgeMessage: judgeMsg, Session: updated}, nil
}

// Stream executes the exchange, emitting each frame as soon as it becomes
// available. On failure exactly one error frame is emitted and no frames
// follow it. An emit error means the consumer went away; the exchange stops
// where it is, leaving whatever was already persisted.
func (ex *Exchange) Stream(ctx context.Context, emit func(stream.Frame) error) error {
	userMsg, err := ex.svc.repo.AppendMessage(ctx, ex.session.ID, domain.RoleUser, ex.content, "")
	if err != nil {
		return emit(errorFrame("failed to save message"))
	}
	if err := emit(stream.NewFrame(stream.EventExchangeAccepted, stream.AcceptedPayload{
		UserMessageID: formatID(userMsg.ID),
	})); err != nil {
		return err
	}

	category, err := ex.svc.judge.Classify(ctx, ex.content, ex.puzzle.Surface, ex.puzzle.Bottom)
	if err != nil {
		slog.Warn("judge classification failed", "session_id", ex.session.ID, "error", err)
		return emit(errorFrame("judge unavailable, try asking again"))
	}

	// The judge answers in one piece here, but the channel carries any
	// number of partial frames for backends that stream token by token.
	answerText := category.DisplayText()
	if err := emit(stream.NewFrame(stream.EventAnswerPartial, stream.PartialPayload{Delta: answerText})); err != nil {
		return err
	}

	judgeMsg, err := ex.svc.repo.AppendMessage(ctx, ex.session.ID, domain.RoleJudge, answerText, category)
	if err != nil {
		return emit(errorFrame("failed to save judge message"))
	}

	if err := ex.svc.repo.IncrementQuestionCount(ctx, ex.session.ID); err != nil {
		return emit(errorFrame("failed to advance question count"))
	}

	if err := emit(stream.NewFrame(stream.EventAnswerComplete, stream.CompletePayload{
		JudgeMessageID: formatID(judgeMsg.ID),
		Content:        answerText,
		AnswerCategory: category,
	})); err != nil {
		return err
	}

	updated, err := ex.svc.repo.GetSession(ctx, ex.session.ID)
	if err != nil || updated == nil {
		// Refresh failure omits session.updated; the stream still closes cleanly.
		slog.Warn("failed to refresh session after exchange", "session_id", ex.session.ID, "error", err)
		return nil
	}
	return emit(stream.NewFrame(stream.EventSessionUpdated, stream.SessionUpdatedPayload{
		SessionID:     formatID(updated.ID),
		QuestionCount: updated.QuestionCount,
		Status:        string(updated.Status),
	}))
}

func errorFrame(message string) stream.Frame {
	return stream.NewFrame(stream.EventError, stream.ErrorPayload{Message: message})
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
