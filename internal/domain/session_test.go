package domain

import (
	"testing"
)

func TestSessionStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to SessionStatus
		want     bool
	}{
		{StatusPlaying, StatusRevealed, true},
		{StatusPlaying, StatusQuit, true},
		{StatusPlaying, StatusPlaying, false},
		{StatusRevealed, StatusQuit, false},
		{StatusRevealed, StatusRevealed, false},
		{StatusRevealed, StatusPlaying, false},
		{StatusQuit, StatusRevealed, false},
		{StatusQuit, StatusPlaying, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestSessionStatusTerminal(t *testing.T) {
	if StatusPlaying.Terminal() {
		t.Error("PLAYING must not be terminal")
	}
	if !StatusRevealed.Terminal() || !StatusQuit.Terminal() {
		t.Error("REVEALED and QUIT must both be terminal")
	}
}

func TestParseAnswerCategory(t *testing.T) {
	for raw, want := range map[string]AnswerCategory{
		"YES":          AnswerYes,
		"no":           AnswerNo,
		" Irrelevant ": AnswerIrrelevant,
		"both":         AnswerBoth,
	} {
		got, ok := ParseAnswerCategory(raw)
		if !ok || got != want {
			t.Errorf("ParseAnswerCategory(%q) = %q, %v; want %q", raw, got, ok, want)
		}
	}

	if _, ok := ParseAnswerCategory("MAYBE"); ok {
		t.Error("MAYBE must not parse as a category")
	}
}

func TestAnswerCategoryDisplayText(t *testing.T) {
	for _, c := range []AnswerCategory{AnswerYes, AnswerNo, AnswerIrrelevant, AnswerBoth} {
		if c.DisplayText() == "" {
			t.Errorf("category %s has no display text", c)
		}
	}
}
