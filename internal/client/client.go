// Package client is the Go consumer of the soup API: a thin HTTP client
// plus a reconciliation layer that keeps a local conversation log
// consistent with the server across streaming and non-streaming exchanges.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haigui-labs/soupserver/internal/domain"
	"github.com/haigui-labs/soupserver/internal/stream"
)

const externalIDHeader = "X-External-Id"

// Session is the wire shape of a session as the server serializes it.
type Session struct {
	ID            string               `json:"id"`
	PuzzleID      string               `json:"puzzle_id"`
	SoupType      domain.SoupType      `json:"soup_type"`
	Title         string               `json:"title"`
	Status        domain.SessionStatus `json:"status"`
	QuestionCount int                  `json:"question_count"`
}

// Puzzle is the wire shape of a puzzle. Bottom and Hints are empty until
// the session is revealed.
type Puzzle struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	SoupType domain.SoupType `json:"soup_type"`
	Surface  string          `json:"surface"`
	Bottom   string          `json:"bottom"`
	Hints    []string        `json:"hints"`
}

// Message is the wire shape of one conversation message.
type Message struct {
	ID             string                `json:"id"`
	Role           domain.MessageRole    `json:"role"`
	Content        string                `json:"content"`
	AnswerCategory domain.AnswerCategory `json:"answer_category"`
}

// ExchangeResult is the outcome of a non-streaming question submission.
type ExchangeResult struct {
	UserMessage  Message  `json:"user_message"`
	JudgeMessage Message  `json:"judge_message"`
	Session      *Session `json:"session"`
}

// APIError is a decoded server error envelope.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Status    int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Client talks to one soup server on behalf of one identity. At most one
// exchange stream is active at a time: starting a new one silently
// supersedes the previous, and its remaining frames are discarded.
type Client struct {
	baseURL    string
	externalID string
	httpc      *http.Client

	mu           sync.Mutex
	streamCancel context.CancelFunc
	streamGen    uint64
	streaming    bool
}

// Option configures a Client.
type Option func(*Client)

// WithExternalID pins the client's identity instead of minting one.
func WithExternalID(id string) Option {
	return func(c *Client) { c.externalID = id }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// New creates a client for baseURL with a freshly minted identity.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		externalID: uuid.NewString(),
		httpc:      &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExternalID returns the identity this client presents to the server.
func (c *Client) ExternalID() string {
	return c.externalID
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(externalIDHeader, c.externalID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var envelope struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		return &APIError{Code: "INTERNAL", Message: "unexpected server response", Status: resp.StatusCode}
	}
	envelope.Error.Status = resp.StatusCode
	return &envelope.Error
}

// CreateSession opens a new session for a random puzzle of the soup type.
func (c *Client) CreateSession(ctx context.Context, soupType domain.SoupType) (*Session, *Puzzle, error) {
	var out struct {
		Session Session `json:"session"`
		Puzzle  Puzzle  `json:"puzzle"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]any{"soup_type": soupType}, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out.Session, &out.Puzzle, nil
}

// GetSession fetches a session and its puzzle view.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, *Puzzle, error) {
	var out struct {
		Session Session `json:"session"`
		Puzzle  Puzzle  `json:"puzzle"`
	}
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID, nil, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out.Session, &out.Puzzle, nil
}

// ListMessages fetches one page of session history.
func (c *Client) ListMessages(ctx context.Context, sessionID, after string) ([]Message, string, error) {
	path := "/api/sessions/" + sessionID + "/messages"
	if after != "" {
		path += "?after=" + after
	}
	var out struct {
		Messages   []Message `json:"messages"`
		NextCursor string    `json:"next_cursor"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, "", err
	}
	return out.Messages, out.NextCursor, nil
}

// Reveal ends the session and returns the puzzle with its solution.
func (c *Client) Reveal(ctx context.Context, sessionID string) (*Session, *Puzzle, error) {
	var out struct {
		Session Session `json:"session"`
		Puzzle  Puzzle  `json:"puzzle"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/reveal", nil, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out.Session, &out.Puzzle, nil
}

// Quit abandons the session without revealing.
func (c *Client) Quit(ctx context.Context, sessionID string) (*Session, error) {
	var out struct {
		Session Session `json:"session"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/quit", nil, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// SubmitQuestion asks one question without streaming and folds the result
// into rec. It is rejected while a stream is in flight; supersede semantics
// only apply between streams.
func (c *Client) SubmitQuestion(ctx context.Context, sessionID, content string, rec *Reconciler) (*ExchangeResult, error) {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return nil, ErrExchangeInFlight
	}
	c.mu.Unlock()

	if err := rec.Begin(content); err != nil {
		return nil, err
	}

	var res ExchangeResult
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/messages",
		map[string]any{"content": content}, &res)
	if err != nil {
		rec.Rollback()
		return nil, err
	}

	rec.ResolveResult(res.UserMessage, res.JudgeMessage, res.Session)
	return &res, nil
}

// StartStream submits a question with streaming enabled and applies each
// frame to rec as it arrives. It returns once the stream has been accepted;
// frames are applied from a background goroutine until the stream ends.
//
// Starting a new stream supersedes any previous one: the old stream is
// cancelled and none of its remaining frames reach the reconciler. The
// superseded stream is not an error.
func (c *Client) StartStream(ctx context.Context, sessionID, content string, rec *Reconciler) error {
	c.mu.Lock()
	if c.streamCancel != nil {
		// Supersede: the previous exchange's frames must never land after
		// this point, even ones already in flight.
		c.streamCancel()
		c.streamCancel = nil
		c.streaming = false
	}
	c.streamGen++
	gen := c.streamGen
	c.mu.Unlock()

	if rec.Phase() != PhaseIdle {
		rec.Rollback()
	}
	if err := rec.Begin(content); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{"content": content, "stream": true})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost,
		c.baseURL+"/api/sessions/"+sessionID+"/messages", bytes.NewReader(payload))
	if err != nil {
		cancel()
		rec.Rollback()
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(externalIDHeader, c.externalID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		cancel()
		rec.Rollback()
		return fmt.Errorf("start stream: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := decodeAPIError(resp)
		_ = resp.Body.Close()
		cancel()
		rec.Rollback()
		return apiErr
	}

	c.mu.Lock()
	c.streamCancel = cancel
	c.streaming = true
	c.mu.Unlock()

	go c.consumeStream(resp.Body, rec, gen)
	return nil
}

// consumeStream reads frames until EOF or cancellation, applying only
// frames that still belong to the current generation.
func (c *Client) consumeStream(body io.ReadCloser, rec *Reconciler, gen uint64) {
	defer func() { _ = body.Close() }()
	defer func() {
		c.mu.Lock()
		if c.streamGen == gen {
			c.streamCancel = nil
			c.streaming = false
		}
		c.mu.Unlock()
	}()

	var dec stream.Decoder
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				if !c.applyIfCurrent(rec, f, gen) {
					return
				}
			}
		}
		if err != nil {
			if f, ok := dec.Flush(); ok {
				c.applyIfCurrent(rec, f, gen)
			}
			return
		}
	}
}

// applyIfCurrent applies f unless the stream has been superseded. The
// generation check and the apply happen under one lock acquisition on the
// client so a supersede cannot interleave between check and apply.
func (c *Client) applyIfCurrent(rec *Reconciler, f stream.Frame, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streamGen != gen {
		return false
	}
	_ = rec.ApplyFrame(f)
	return true
}

// CancelStream cancels the in-flight stream, if any, and rolls back its
// optimistic entries.
func (c *Client) CancelStream(rec *Reconciler) {
	c.mu.Lock()
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
		c.streaming = false
		c.streamGen++
	}
	c.mu.Unlock()
	if rec != nil && rec.Phase() != PhaseIdle {
		rec.Rollback()
	}
}
