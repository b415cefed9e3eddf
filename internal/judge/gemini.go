package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/haigui-labs/soupserver/internal/domain"
)

const defaultGeminiModel = "gemini-2.5-flash"

const classifyPromptTemplate = `You are the host of a lateral-thinking puzzle game. Players ask closed
questions about a hidden scenario and you answer against the solution.

Solution (hidden from the player): %s
Prompt (visible to the player): %s

You must output exactly one JSON object of the form:
{"answer_category": "YES" | "NO" | "IRRELEVANT" | "BOTH"}

Rules:
- YES: the question's guess matches the solution.
- NO: the question's guess contradicts the solution.
- IRRELEVANT: the question has no bearing on the solution.
- BOTH: the guess is partly right and partly wrong, or the situation is mixed.

Player question: %s`

// GeminiJudge classifies questions with the Gemini API.
type GeminiJudge struct {
	client *genai.Client
	model  string
}

// NewGeminiJudge creates a Gemini-backed classifier.
func NewGeminiJudge(ctx context.Context, apiKey, model string) (*GeminiJudge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiJudge{client: client, model: model}, nil
}

// Classify asks the model for a category. Any transport or model failure is
// reported as ErrUnavailable; a response the parser cannot interpret is too,
// so the player can simply resubmit.
func (j *GeminiJudge) Classify(ctx context.Context, question, surface, bottom string) (domain.AnswerCategory, error) {
	prompt := fmt.Sprintf(classifyPromptTemplate, bottom, surface, question)

	resp, err := j.client.Models.GenerateContent(ctx,
		j.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0),
		},
	)
	if err != nil {
		slog.Warn("gemini classification failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text := resp.Text()
	category, ok := parseAnswerCategory(text)
	if !ok {
		slog.Warn("gemini returned unparseable classification", "response", text)
		return "", fmt.Errorf("%w: unparseable model response", ErrUnavailable)
	}
	return category, nil
}

// parseAnswerCategory extracts a category from a model response. Tries the
// strict JSON shape first, then a bare category word, then a substring
// match, mirroring how loosely models follow output instructions.
func parseAnswerCategory(raw string) (domain.AnswerCategory, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	var payload struct {
		AnswerCategory string `json:"answer_category"`
	}
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		if c, ok := domain.ParseAnswerCategory(payload.AnswerCategory); ok {
			return c, true
		}
	}

	if c, ok := domain.ParseAnswerCategory(trimmed); ok {
		return c, true
	}

	upper := strings.ToUpper(trimmed)
	for _, c := range []domain.AnswerCategory{domain.AnswerBoth, domain.AnswerIrrelevant, domain.AnswerYes, domain.AnswerNo} {
		if strings.Contains(upper, string(c)) {
			return c, true
		}
	}
	return "", false
}
