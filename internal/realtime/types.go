package realtime

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/models"
)

// Inbound and outbound socket events.
const (
	eventConnected       = "connected"
	eventJoinSession     = "join_session"
	eventJoinedSession   = "joined_session"
	eventLeaveSession    = "leave_session"
	eventLeftSession     = "left_session"
	eventJoinLecturer    = "join_lecturer"
	eventJoinedLecturer  = "joined_lecturer"
	eventAuthFailed      = "auth_failed"
	eventCheckIn         = "check_in"
	eventCheckInResponse = "check_in_response"
	eventHeartbeat       = "heartbeat"
	eventHeartbeatAck    = "heartbeat_ack"
	eventError           = "error"

	defaultRedisChannel = "attendance:realtime"
	broadcastBuffer     = 256
)

// Message is the envelope used by hub broadcasts and Redis fan-out.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	Room    string      `json:"room,omitempty"`
	Origin  string      `json:"origin,omitempty"`
}

// CheckInResponse is the acknowledgement sent to the submitting socket.
type CheckInResponse struct {
	Success    bool                     `json:"success"`
	Message    string                   `json:"message"`
	Code       string                   `json:"code,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Attendance *models.AttendanceDetail `json:"attendance,omitempty"`
}

type checkInHandler interface {
	CheckIn(ctx context.Context, req models.CheckInRequest, transport string) (*dto.CheckInResult, error)
}

type tokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error)
}

type clientObserver interface {
	SocketConnected(delta int)
}

// Config wires the hub's collaborators. Redis may be nil for a single instance.
type Config struct {
	CheckIns     checkInHandler
	Tokens       tokenValidator
	Metrics      clientObserver
	Redis        *redis.Client
	RedisChannel string
	Logger       *zap.Logger
}

// Hub owns the socket.io server, room bookkeeping and cross-instance fan-out.
type Hub struct {
	mu        sync.RWMutex
	sidRooms  map[string]map[string]struct{}
	roomCount map[string]int

	broadcast chan Message
	dropped   int64

	instanceID string
	channel    string
	rc         *redis.Client
	checkIns   checkInHandler
	tokens     tokenValidator
	metrics    clientObserver
	logger     *zap.Logger
	sio        *socketio.Server
	baseCtx    context.Context
}
