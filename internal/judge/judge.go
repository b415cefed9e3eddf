// Package judge provides the answer classification capability: given a
// player question and the puzzle's public and private text, produce one of
// the fixed answer categories.
package judge

import (
	"context"
	"errors"

	"github.com/haigui-labs/soupserver/internal/domain"
)

// ErrUnavailable indicates the classification backend failed or timed out.
// Callers surface it distinctly from internal errors so a player can retry
// the same question.
var ErrUnavailable = errors.New("judge unavailable")

// Classifier answers a question against a hidden scenario. Implementations
// must not mutate session state.
type Classifier interface {
	Classify(ctx context.Context, question, surface, bottom string) (domain.AnswerCategory, error)
}
