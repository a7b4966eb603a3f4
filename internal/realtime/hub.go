package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/noah-isme/lan-attendance-api/internal/service"
)

// NewHub builds the push channel and registers the default namespace handlers.
func NewHub(cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	channel := cfg.RedisChannel
	if channel == "" {
		channel = defaultRedisChannel
	}
	h := newHubState(logger)
	h.channel = channel
	h.rc = cfg.Redis
	h.checkIns = cfg.CheckIns
	h.tokens = cfg.Tokens
	h.metrics = cfg.Metrics
	h.sio = socketio.NewServer(nil, nil)
	h.registerNamespace()
	return h
}

func newHubState(logger *zap.Logger) *Hub {
	return &Hub{
		sidRooms:   make(map[string]map[string]struct{}),
		roomCount:  make(map[string]int),
		broadcast:  make(chan Message, broadcastBuffer),
		instanceID: uuid.NewString(),
		logger:     logger,
		baseCtx:    context.Background(),
	}
}

// SetCheckIns attaches the check-in pipeline. The pipeline publishes through the
// hub, so it is constructed after the hub and wired here.
func (h *Hub) SetCheckIns(checkIns checkInHandler) {
	h.checkIns = checkIns
}

// Run starts the hub loop and, when configured, the Redis subscriber. It
// returns once ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.baseCtx = ctx
	if h.rc != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.sio.Close(nil)
			return

		case msg := <-h.broadcast:
			h.deliver(msg)
			if h.rc == nil {
				continue
			}
			msg.Origin = h.instanceID
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Warn("realtime encode failed", zap.String("event", msg.Event), zap.Error(err))
				continue
			}
			if err := h.rc.Publish(ctx, h.channel, data).Err(); err != nil {
				h.logger.Warn("realtime publish failed", zap.String("channel", h.channel), zap.Error(err))
			}
		}
	}
}

// Publish queues an event for a topic. It never blocks the caller: when the
// buffer is full the event is dropped, matching the at-most-once contract.
func (h *Hub) Publish(topic, event string, payload interface{}) {
	select {
	case h.broadcast <- Message{Event: event, Payload: payload, Room: topic}:
	default:
		atomic.AddInt64(&h.dropped, 1)
		h.logger.Warn("realtime buffer full, event dropped", zap.String("event", event), zap.String("room", topic))
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (h *Hub) Dropped() int64 {
	return atomic.LoadInt64(&h.dropped)
}

func (h *Hub) deliver(msg Message) {
	if msg.Room == service.TopicBroadcast {
		h.sio.Emit(msg.Event, msg.Payload)
		return
	}
	if err := h.sio.To(socketio.Room(msg.Room)).Emit(msg.Event, msg.Payload); err != nil {
		h.logger.Debug("realtime emit failed", zap.String("event", msg.Event), zap.String("room", msg.Room), zap.Error(err))
	}
}

// subscribeRedis delivers broadcasts published by other instances.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rc.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
				continue
			}
			if msg.Origin == h.instanceID {
				continue
			}
			h.deliver(msg)
		}
	}
}

// ClientCount returns the number of connected clients, optionally within one room.
func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room == "" {
		return len(h.sidRooms)
	}
	return h.roomCount[room]
}

// Handler returns the socket.io HTTP handler mounted at /socket.io/.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}

func (h *Hub) trackConnect(sid string) {
	h.mu.Lock()
	if _, ok := h.sidRooms[sid]; ok {
		h.mu.Unlock()
		return
	}
	h.sidRooms[sid] = make(map[string]struct{})
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SocketConnected(1)
	}
}

func (h *Hub) trackDisconnect(sid string) {
	h.mu.Lock()
	rooms, ok := h.sidRooms[sid]
	if !ok {
		h.mu.Unlock()
		return
	}
	for room := range rooms {
		h.decrementLocked(room)
	}
	delete(h.sidRooms, sid)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SocketConnected(-1)
	}
}

func (h *Hub) trackJoin(sid, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms, ok := h.sidRooms[sid]
	if !ok {
		rooms = make(map[string]struct{})
		h.sidRooms[sid] = rooms
	}
	if _, joined := rooms[room]; joined {
		return
	}
	rooms[room] = struct{}{}
	h.roomCount[room]++
}

func (h *Hub) trackLeave(sid, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms, ok := h.sidRooms[sid]
	if !ok {
		return
	}
	if _, joined := rooms[room]; !joined {
		return
	}
	delete(rooms, room)
	h.decrementLocked(room)
}

func (h *Hub) decrementLocked(room string) {
	if h.roomCount[room] <= 1 {
		delete(h.roomCount, room)
		return
	}
	h.roomCount[room]--
}
