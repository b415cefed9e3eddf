package domain

import (
	"strings"
)

// AnswerCategory is the closed set of judge answers. It is never extended
// at runtime.
type AnswerCategory string

const (
	AnswerYes        AnswerCategory = "YES"
	AnswerNo         AnswerCategory = "NO"
	AnswerIrrelevant AnswerCategory = "IRRELEVANT"
	AnswerBoth       AnswerCategory = "BOTH"
)

// Valid reports whether c is one of the four known categories.
func (c AnswerCategory) Valid() bool {
	switch c {
	case AnswerYes, AnswerNo, AnswerIrrelevant, AnswerBoth:
		return true
	}
	return false
}

// DisplayText returns the fixed text shown to the player for a category.
func (c AnswerCategory) DisplayText() string {
	switch c {
	case AnswerYes:
		return "Yes"
	case AnswerNo:
		return "No"
	case AnswerIrrelevant:
		return "Doesn't matter"
	case AnswerBoth:
		return "Yes and no"
	}
	return ""
}

// ParseAnswerCategory normalizes a raw string into a category. Case is
// ignored. Returns false for anything outside the closed set.
func ParseAnswerCategory(raw string) (AnswerCategory, bool) {
	c := AnswerCategory(strings.ToUpper(strings.TrimSpace(raw)))
	if c.Valid() {
		return c, true
	}
	return "", false
}
