package realtime

import (
	"encoding/json"
	"strings"

	socketio "github.com/zishang520/socket.io/v2/socket"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
)

// checkInResponse maps a pipeline outcome onto the socket acknowledgement.
func checkInResponse(result *dto.CheckInResult, err error) CheckInResponse {
	if err != nil {
		appErr := appErrors.FromError(err)
		return CheckInResponse{Success: false, Message: appErr.Message, Code: appErr.Code, Error: appErr.Message}
	}
	if result == nil {
		return CheckInResponse{Success: false, Message: appErrors.ErrInternal.Message, Code: appErrors.ErrInternal.Code, Error: appErrors.ErrInternal.Message}
	}
	if result.Outcome == dto.CheckInAlreadyCheckedIn {
		return CheckInResponse{
			Success:    false,
			Message:    result.Message,
			Code:       appErrors.ErrAlreadyCheckedIn.Code,
			Error:      result.Message,
			Attendance: result.Attendance,
		}
	}
	return CheckInResponse{Success: true, Message: result.Message, Attendance: result.Attendance}
}

func parseCheckIn(args ...any) (models.CheckInRequest, bool) {
	if len(args) == 0 || args[0] == nil {
		return models.CheckInRequest{}, false
	}

	var req models.CheckInRequest
	switch raw := args[0].(type) {
	case models.CheckInRequest:
		req = raw
	case map[string]interface{}:
		req.StudentID = strFromAny(raw["student_id"])
		req.DeviceUUID = strFromAny(raw["device_uuid"])
		req.SessionToken = strFromAny(raw["session_token"])
	case string:
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return models.CheckInRequest{}, false
		}
	case []byte:
		if err := json.Unmarshal(raw, &req); err != nil {
			return models.CheckInRequest{}, false
		}
	default:
		data, err := json.Marshal(raw)
		if err != nil {
			return models.CheckInRequest{}, false
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return models.CheckInRequest{}, false
		}
	}
	return req, true
}

func firstPayload(args []any) map[string]interface{} {
	if len(args) == 0 {
		return map[string]interface{}{}
	}
	if raw, ok := args[0].(string); ok {
		out := map[string]interface{}{}
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return map[string]interface{}{}
		}
		return out
	}
	return mapFromAny(args[0])
}

func mapFromAny(v interface{}) map[string]interface{} {
	switch typed := v.(type) {
	case nil:
		return map[string]interface{}{}
	case map[string]interface{}:
		return typed
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return map[string]interface{}{}
		}
		out := map[string]interface{}{}
		if err := json.Unmarshal(data, &out); err != nil {
			return map[string]interface{}{}
		}
		return out
	}
}

func strFromAny(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return strings.TrimSpace(typed)
	default:
		return ""
	}
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

// tokenFromHandshake finds a bearer token in the socket auth payload, query or headers.
func tokenFromHandshake(handshake *socketio.Handshake) string {
	if handshake == nil {
		return ""
	}
	if auth := mapFromAny(handshake.Auth); len(auth) > 0 {
		if token := strFromAny(auth["token"]); token != "" {
			return token
		}
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	return firstValueFromMultiMap(handshake.Headers, "authorization")
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		if v := strings.TrimSpace(list[0]); v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
