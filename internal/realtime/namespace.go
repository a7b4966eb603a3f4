package realtime

import (
	"context"
	"time"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/internal/service"
)

const handlerTimeout = 5 * time.Second

func (h *Hub) registerNamespace() {
	_ = h.sio.Of("/", nil).On("connection", func(args ...any) {
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}
		sid := string(client.Id())
		h.trackConnect(sid)
		_ = client.Emit(eventConnected, map[string]interface{}{"message": "connected", "sid": sid})

		_ = client.On(eventJoinSession, func(eventArgs ...any) {
			payload := firstPayload(eventArgs)
			token := firstNonEmptyString(strFromAny(payload["session_token"]), strFromAny(payload["sessionToken"]))
			if token == "" {
				_ = client.Emit(eventError, map[string]interface{}{"message": "session_token is required"})
				return
			}
			room := service.SessionTopic(token)
			client.Join(socketio.Room(room))
			h.trackJoin(sid, room)
			_ = client.Emit(eventJoinedSession, map[string]interface{}{"message": "joined session", "session_token": token})
		})

		_ = client.On(eventLeaveSession, func(eventArgs ...any) {
			payload := firstPayload(eventArgs)
			token := firstNonEmptyString(strFromAny(payload["session_token"]), strFromAny(payload["sessionToken"]))
			if token == "" {
				return
			}
			room := service.SessionTopic(token)
			client.Leave(socketio.Room(room))
			h.trackLeave(sid, room)
			_ = client.Emit(eventLeftSession, map[string]interface{}{"message": "left session", "session_token": token})
		})

		_ = client.On(eventJoinLecturer, func(eventArgs ...any) {
			token := normalizeToken(firstNonEmptyString(
				strFromAny(firstPayload(eventArgs)["token"]),
				tokenFromHandshake(client.Handshake()),
			))
			if !h.isLecturer(token) {
				_ = client.Emit(eventAuthFailed, map[string]interface{}{"message": "lecturer authentication required"})
				return
			}
			client.Join(socketio.Room(service.TopicDashboard))
			h.trackJoin(sid, service.TopicDashboard)
			_ = client.Emit(eventJoinedLecturer, map[string]interface{}{"message": "joined lecturer dashboard"})
		})

		_ = client.On(eventCheckIn, func(eventArgs ...any) {
			req, ok := parseCheckIn(eventArgs...)
			if !ok {
				_ = client.Emit(eventCheckInResponse, CheckInResponse{Success: false, Message: "invalid check-in payload", Code: "VALIDATION_ERROR", Error: "invalid check-in payload"})
				return
			}
			_ = client.Emit(eventCheckInResponse, h.handleCheckIn(req))
		})

		_ = client.On(eventHeartbeat, func(_ ...any) {
			_ = client.Emit(eventHeartbeatAck, map[string]interface{}{
				"status":    "alive",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		})

		_ = client.On("disconnect", func(_ ...any) {
			h.trackDisconnect(sid)
		})
	})
}

// handleCheckIn runs the shared pipeline for a socket claim.
func (h *Hub) handleCheckIn(req models.CheckInRequest) CheckInResponse {
	if h.checkIns == nil {
		return CheckInResponse{Success: false, Message: "check-in unavailable", Code: "INTERNAL_ERROR", Error: "check-in unavailable"}
	}
	ctx, cancel := context.WithTimeout(h.baseCtx, handlerTimeout)
	defer cancel()

	result, err := h.checkIns.CheckIn(ctx, req, service.TransportSocket)
	if err != nil {
		h.logger.Debug("socket check-in rejected", zap.String("student_id", req.StudentID), zap.Error(err))
	}
	return checkInResponse(result, err)
}

func (h *Hub) isLecturer(token string) bool {
	if token == "" || h.tokens == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(h.baseCtx, handlerTimeout)
	defer cancel()
	claims, err := h.tokens.ValidateToken(ctx, token)
	if err != nil || claims == nil {
		return false
	}
	return claims.Role == models.RoleLecturer
}
