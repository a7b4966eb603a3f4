package service

// Topics and events of the change notifier.
const (
	TopicDashboard = "dashboard"
	// TopicBroadcast reaches every connected client.
	TopicBroadcast = ""

	EventAttendanceUpdate       = "attendance_update"
	EventSessionAttendanceCount = "session_attendance_count"
	EventSessionUpdate          = "session_update"
)

// SessionTopic names the room observers of one session join.
func SessionTopic(token string) string {
	return "session:" + token
}

// Notifier fans out change events. Publish must not block; delivery is best effort.
type Notifier interface {
	Publish(topic, event string, payload interface{})
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, string, interface{}) {}
