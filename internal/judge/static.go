package judge

import (
	"context"

	"github.com/haigui-labs/soupserver/internal/domain"
)

// StaticJudge answers every question with a fixed category. It backs the
// no-API-key startup mode so the protocol stays exercisable without an AI
// backend, and doubles as a test stand-in.
type StaticJudge struct {
	Category domain.AnswerCategory
}

// NewStaticJudge returns a judge that always answers IRRELEVANT.
func NewStaticJudge() *StaticJudge {
	return &StaticJudge{Category: domain.AnswerIrrelevant}
}

// Classify returns the fixed category.
func (j *StaticJudge) Classify(_ context.Context, _, _, _ string) (domain.AnswerCategory, error) {
	return j.Category, nil
}
