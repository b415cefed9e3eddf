package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haigui-labs/soupserver/internal/domain"
	"github.com/haigui-labs/soupserver/internal/stream"
)

func acceptedFrame(id string) stream.Frame {
	return stream.NewFrame(stream.EventExchangeAccepted, stream.AcceptedPayload{UserMessageID: id})
}

func partialFrame(delta string) stream.Frame {
	return stream.NewFrame(stream.EventAnswerPartial, stream.PartialPayload{Delta: delta})
}

func completeFrame(id, content string, cat domain.AnswerCategory) stream.Frame {
	return stream.NewFrame(stream.EventAnswerComplete, stream.CompletePayload{
		JudgeMessageID: id, Content: content, AnswerCategory: cat,
	})
}

func sessionUpdatedFrame(count int, status string) stream.Frame {
	return stream.NewFrame(stream.EventSessionUpdated, stream.SessionUpdatedPayload{
		SessionID: "1", QuestionCount: count, Status: status,
	})
}

func TestReconcilerOptimisticEntries(t *testing.T) {
	rec := NewReconciler("1")
	require.NoError(t, rec.Begin("was it poison?"))

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, domain.RoleUser, entries[0].Role)
	assert.Equal(t, "was it poison?", entries[0].Content)
	assert.True(t, entries[0].Optimistic)
	assert.Equal(t, domain.RoleJudge, entries[1].Role)
	assert.Empty(t, entries[1].Content)

	assert.ErrorIs(t, rec.Begin("second?"), ErrExchangeInFlight)
}

func TestReconcilerStreamingLifecycle(t *testing.T) {
	rec := NewReconciler("1")
	require.NoError(t, rec.Begin("was it poison?"))

	require.NoError(t, rec.ApplyFrame(acceptedFrame("10")))
	assert.Equal(t, PhaseStreaming, rec.Phase())

	require.NoError(t, rec.ApplyFrame(partialFrame("N")))
	require.NoError(t, rec.ApplyFrame(partialFrame("o")))
	assert.Equal(t, "No", rec.Entries()[1].Content)

	require.NoError(t, rec.ApplyFrame(completeFrame("11", "No", domain.AnswerNo)))
	require.NoError(t, rec.ApplyFrame(sessionUpdatedFrame(1, "PLAYING")))

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "10", entries[0].MessageID)
	assert.False(t, entries[0].Optimistic)
	assert.Equal(t, "11", entries[1].MessageID)
	assert.Equal(t, domain.AnswerNo, entries[1].AnswerCategory)
	assert.False(t, entries[1].Optimistic)

	assert.Equal(t, PhaseIdle, rec.Phase())
	assert.Equal(t, 1, rec.Session().QuestionCount)

	// The next exchange may begin now.
	require.NoError(t, rec.Begin("another?"))
}

func TestReconcilerErrorFrameKeepsQuestion(t *testing.T) {
	rec := NewReconciler("1")
	require.NoError(t, rec.Begin("was it poison?"))
	require.NoError(t, rec.ApplyFrame(acceptedFrame("10")))

	require.NoError(t, rec.ApplyFrame(stream.NewFrame(stream.EventError,
		stream.ErrorPayload{Message: "judge unavailable, try asking again"})))

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Optimistic, "accepted question must survive the failure")
	assert.True(t, entries[1].Failed)
	assert.Equal(t, "judge unavailable, try asking again", rec.LastError())
	assert.Equal(t, PhaseIdle, rec.Phase())
}

func TestReconcilerPartialIgnoredAfterCommit(t *testing.T) {
	rec := NewReconciler("1")
	require.NoError(t, rec.Begin("q?"))
	require.NoError(t, rec.ApplyFrame(acceptedFrame("10")))
	require.NoError(t, rec.ApplyFrame(completeFrame("11", "Yes", domain.AnswerYes)))

	// A straggler fragment after completion must not corrupt the log.
	require.NoError(t, rec.ApplyFrame(partialFrame("stray")))
	assert.Equal(t, "Yes", rec.Entries()[1].Content, "committed content must not grow")
}

func TestReconcilerSessionMergeDropsInvalidFields(t *testing.T) {
	rec := NewReconciler("1")
	require.NoError(t, rec.Begin("q?"))
	require.NoError(t, rec.ApplyFrame(sessionUpdatedFrame(3, "PLAYING")))
	require.NoError(t, rec.ApplyFrame(sessionUpdatedFrame(-1, "EXPLODED")))

	got := rec.Session()
	assert.Equal(t, 3, got.QuestionCount, "negative count must not clobber")
	assert.Equal(t, domain.StatusPlaying, got.Status, "unknown status must not clobber")
}

func TestReconcilerResolveResultReplacesOptimisticPair(t *testing.T) {
	rec := NewReconciler("1")
	require.NoError(t, rec.Begin("was it poison?"))

	rec.ResolveResult(
		Message{ID: "10", Role: domain.RoleUser, Content: "was it poison?"},
		Message{ID: "11", Role: domain.RoleJudge, Content: "Doesn't matter", AnswerCategory: domain.AnswerIrrelevant},
		&Session{ID: "1", QuestionCount: 1, Status: domain.StatusPlaying},
	)

	entries := rec.Entries()
	require.Len(t, entries, 2, "optimistic pair replaced, not appended to")
	assert.Equal(t, "10", entries[0].MessageID)
	assert.Equal(t, domain.AnswerIrrelevant, entries[1].AnswerCategory)
	assert.Equal(t, 1, rec.Session().QuestionCount)
}

func TestReconcilerResolveResultAppendsWithoutOptimisticPair(t *testing.T) {
	rec := NewReconciler("1")

	rec.ResolveResult(
		Message{ID: "10", Role: domain.RoleUser, Content: "q?"},
		Message{ID: "11", Role: domain.RoleJudge, Content: "Yes", AnswerCategory: domain.AnswerYes},
		nil,
	)
	require.Len(t, rec.Entries(), 2, "messages appended when nothing optimistic to replace")
}

func TestReconcilerRollbackRemovesOnlyOptimistic(t *testing.T) {
	rec := NewReconciler("1")
	rec.ResolveResult(
		Message{ID: "10", Role: domain.RoleUser, Content: "q?"},
		Message{ID: "11", Role: domain.RoleJudge, Content: "Yes", AnswerCategory: domain.AnswerYes},
		nil,
	)
	require.NoError(t, rec.Begin("doomed?"))

	rec.Rollback()
	entries := rec.Entries()
	require.Len(t, entries, 2, "committed entries survive rollback")
	assert.Equal(t, "11", entries[1].MessageID)
	assert.Equal(t, PhaseIdle, rec.Phase())
}

// exchangeServer is a minimal stand-in for the messages endpoint.
type exchangeServer struct {
	t *testing.T
	// block, when non-nil, holds streaming responses with the given
	// content open until closed.
	block        chan struct{}
	blockContent string
}

func (s *exchangeServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content string `json:"content"`
			Stream  bool   `json:"stream"`
		}
		assert.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))

		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"user_message":  Message{ID: "10", Role: domain.RoleUser, Content: req.Content},
				"judge_message": Message{ID: "11", Role: domain.RoleJudge, Content: "Yes", AnswerCategory: domain.AnswerYes},
				"session":       Session{ID: "1", QuestionCount: 1, Status: domain.StatusPlaying},
			})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()

		if s.block != nil && req.Content == s.blockContent {
			<-s.block
			return
		}

		for _, f := range []stream.Frame{
			acceptedFrame("20"),
			partialFrame("Yes"),
			completeFrame("21", "Yes", domain.AnswerYes),
			sessionUpdatedFrame(1, "PLAYING"),
		} {
			assert.NoError(s.t, stream.WriteFrame(w, f))
		}
	}
}

func TestClientStreamAppliesFrames(t *testing.T) {
	es := &exchangeServer{t: t}
	srv := httptest.NewServer(es.handler())
	defer srv.Close()

	c := New(srv.URL)
	rec := NewReconciler("1")
	require.NoError(t, c.StartStream(context.Background(), "1", "was it murder?", rec))

	require.Eventually(t, func() bool {
		entries := rec.Entries()
		return len(entries) == 2 && !entries[1].Optimistic
	}, 2*time.Second, 10*time.Millisecond, "stream frames never committed")

	entries := rec.Entries()
	assert.Equal(t, "20", entries[0].MessageID)
	assert.Equal(t, "Yes", entries[1].Content)
	assert.Equal(t, 1, rec.Session().QuestionCount)
}

func TestClientSupersededStreamFramesNeverLand(t *testing.T) {
	es := &exchangeServer{t: t, block: make(chan struct{}), blockContent: "slow?"}
	srv := httptest.NewServer(es.handler())
	defer srv.Close()

	c := New(srv.URL)
	rec := NewReconciler("1")

	// First stream: accepted by the server, then it stalls before any frame.
	require.NoError(t, c.StartStream(context.Background(), "1", "slow?", rec))

	// Second stream supersedes the first. No error for the supersession.
	require.NoError(t, c.StartStream(context.Background(), "1", "fast?", rec))

	require.Eventually(t, func() bool {
		entries := rec.Entries()
		return len(entries) == 2 && !entries[1].Optimistic
	}, 2*time.Second, 10*time.Millisecond, "second stream never committed")

	// Release the stalled handler; anything it writes now must be discarded.
	close(es.block)
	time.Sleep(50 * time.Millisecond)

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "fast?", entries[0].Content, "log must hold the superseding exchange only")
	assert.Empty(t, rec.LastError(), "supersession is not an error")
}

func TestClientSubmitRejectedWhileStreaming(t *testing.T) {
	es := &exchangeServer{t: t, block: make(chan struct{}), blockContent: "slow?"}
	srv := httptest.NewServer(es.handler())
	defer srv.Close()

	c := New(srv.URL)
	rec := NewReconciler("1")
	require.NoError(t, c.StartStream(context.Background(), "1", "slow?", rec))
	defer close(es.block)

	_, err := c.SubmitQuestion(context.Background(), "1", "impatient?", rec)
	assert.ErrorIs(t, err, ErrExchangeInFlight)
}

func TestClientSubmitQuestion(t *testing.T) {
	es := &exchangeServer{t: t}
	srv := httptest.NewServer(es.handler())
	defer srv.Close()

	c := New(srv.URL)
	rec := NewReconciler("1")
	res, err := c.SubmitQuestion(context.Background(), "1", "was it murder?", rec)
	require.NoError(t, err)
	assert.Equal(t, domain.AnswerYes, res.JudgeMessage.AnswerCategory)

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Optimistic)
	assert.Equal(t, "11", entries[1].MessageID)
	assert.Equal(t, 1, rec.Session().QuestionCount)
}

func TestClientSurfacesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"ILLEGAL_STATE","message":"session is no longer playing","request_id":"req-1"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	rec := NewReconciler("1")
	_, err := c.SubmitQuestion(context.Background(), "1", "too late?", rec)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "ILLEGAL_STATE", apiErr.Code)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Empty(t, rec.Entries(), "failed submit rolls its optimistic entries back")
}

func TestClientMintsStableIdentity(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get(externalIDHeader))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session":{"id":"1"},"puzzle":{"id":"2"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, _, err := c.CreateSession(context.Background(), domain.SoupClear)
	require.NoError(t, err)
	_, _, err = c.GetSession(context.Background(), "1")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0])
	assert.Equal(t, got[0], got[1], "one client presents one identity")
}
