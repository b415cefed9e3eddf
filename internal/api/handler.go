// Package api provides HTTP handlers for the soup API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/haigui-labs/soupserver/internal/game"
)

// errorEnvelope is the wire shape of every failed response.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      game.Code `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error writes the error envelope for err, deriving the HTTP status from
// its category. Internal details never reach the wire; the envelope carries
// only the display message and the request id for correlation.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	code := game.CodeOf(err)
	if code == game.CodeInternal {
		slog.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	JSON(w, httpStatus(code), errorEnvelope{Error: errorBody{
		Code:      code,
		Message:   game.DisplayMessage(err),
		RequestID: middleware.GetReqID(r.Context()),
	}})
}

func httpStatus(code game.Code) int {
	switch code {
	case game.CodeUnauthorized:
		return http.StatusUnauthorized
	case game.CodeInvalidArgument:
		return http.StatusBadRequest
	case game.CodeNotFound:
		return http.StatusNotFound
	case game.CodeForbidden:
		return http.StatusForbidden
	case game.CodeIllegalState:
		return http.StatusConflict
	case game.CodeJudgeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
