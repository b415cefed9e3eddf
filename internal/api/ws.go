package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/coder/websocket"

	"github.com/haigui-labs/soupserver/internal/game"
	"github.com/haigui-labs/soupserver/internal/identity"
	"github.com/haigui-labs/soupserver/internal/stream"
)

// ExchangeSocketHandler serves question exchanges over a WebSocket. Each
// text message from the client is one exchange request; the server replies
// with the same encoded frame sequence the SSE transport produces, one
// frame per message.
type ExchangeSocketHandler struct {
	svc            *game.Service
	allowedOrigins []string
}

// NewExchangeSocketHandler creates the WebSocket exchange handler.
func NewExchangeSocketHandler(svc *game.Service, allowedOrigins []string) *ExchangeSocketHandler {
	return &ExchangeSocketHandler{svc: svc, allowedOrigins: allowedOrigins}
}

// exchangeRequest is one question submission over the socket.
type exchangeRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *ExchangeSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		Error(w, r, game.Errf(game.CodeUnauthorized, "identity required"))
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns(),
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", user.ID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "done"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", user.ID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	slog.Info("WebSocket exchange connection", "user_id", user.ID, "ip", r.RemoteAddr)

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				slog.Debug("WebSocket read error", "error", err, "user_id", user.ID)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var req exchangeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := h.writeFrame(ctx, ws, errorFrame("invalid request")); err != nil {
				return
			}
			continue
		}
		if err := h.runExchange(ctx, ws, user.ID, req); err != nil {
			return
		}
	}
}

// runExchange executes one exchange, forwarding its frames to the socket. A
// non-nil return means the connection is unusable.
func (h *ExchangeSocketHandler) runExchange(ctx context.Context, ws *websocket.Conn, userID int64, req exchangeRequest) error {
	sessionID, err := strconv.ParseInt(req.SessionID, 10, 64)
	if err != nil || sessionID <= 0 {
		return h.writeFrame(ctx, ws, errorFrame("session not found"))
	}

	ex, err := h.svc.BeginExchange(ctx, userID, sessionID, req.Content)
	if err != nil {
		return h.writeFrame(ctx, ws, errorFrame(game.DisplayMessage(err)))
	}

	return ex.Stream(ctx, func(f stream.Frame) error {
		return h.writeFrame(ctx, ws, f)
	})
}

func (h *ExchangeSocketHandler) writeFrame(ctx context.Context, ws *websocket.Conn, f stream.Frame) error {
	return ws.Write(ctx, websocket.MessageText, []byte(stream.Encode(f)))
}

func (h *ExchangeSocketHandler) originPatterns() []string {
	if len(h.allowedOrigins) == 0 {
		return []string{"*"}
	}
	return h.allowedOrigins
}

func errorFrame(message string) stream.Frame {
	return stream.NewFrame(stream.EventError, stream.ErrorPayload{Message: message})
}
