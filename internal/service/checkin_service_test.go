package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
)

type mockAttendanceStore struct {
	mu        sync.Mutex
	records   map[string]*models.AttendanceRecord
	sessions  *mockSessionRepo
	createErr error
	creates   int
}

func newMockAttendanceStore(sessions *mockSessionRepo) *mockAttendanceStore {
	return &mockAttendanceStore{records: make(map[string]*models.AttendanceRecord), sessions: sessions}
}

func pairKey(studentID, sessionID string) string {
	return studentID + "|" + sessionID
}

func (m *mockAttendanceStore) FindByStudentAndSession(ctx context.Context, studentID, sessionID string) (*models.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[pairKey(studentID, sessionID)]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceStore) CreateForActiveSession(ctx context.Context, record *models.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if s, ok := m.sessions.sessions[record.SessionID]; !ok || !s.Active {
		return repository.ErrSessionInactive
	}
	key := pairKey(record.StudentID, record.SessionID)
	if _, ok := m.records[key]; ok {
		return fmt.Errorf("insert attendance: %w", repository.ErrAttendanceExists)
	}
	clone := *record
	m.records[key] = &clone
	m.sessions.counts[record.SessionID]++
	m.creates++
	return nil
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveCheckIn(transport, outcome string, accepted bool) {
	o.outcomes = append(o.outcomes, fmt.Sprintf("%s:%s:%t", transport, outcome, accepted))
}

type checkInFixture struct {
	sessions   *mockSessionRepo
	students   *mockStudentRepo
	attendance *mockAttendanceStore
	notifier   *recordingNotifier
	observer   *recordingObserver
	svc        *CheckInService
	session    *models.Session
}

func newCheckInFixture(t *testing.T) *checkInFixture {
	t.Helper()
	session := &models.Session{ID: "sess-1", CourseCode: "C1", SessionToken: "T", StartTime: fixedNow, Active: true}
	sessions := newMockSessionRepo(session)
	students := newMockStudentRepo(enrolledStudent("S1", "D1"))
	attendance := newMockAttendanceStore(sessions)
	notifier := &recordingNotifier{}
	observer := &recordingObserver{}
	svc := NewCheckInService(sessions, students, attendance, notifier, observer, nil, zap.NewNop(), CheckInConfig{LateThreshold: 15 * time.Minute})
	svc.now = func() time.Time { return fixedNow.Add(5 * time.Minute) }
	return &checkInFixture{sessions: sessions, students: students, attendance: attendance, notifier: notifier, observer: observer, svc: svc, session: session}
}

func TestCheckInRecordsPresent(t *testing.T) {
	f := newCheckInFixture(t)

	res, err := f.svc.CheckIn(context.Background(), models.CheckInRequest{StudentID: "S1", DeviceUUID: "D1", SessionToken: "T"}, TransportHTTP)
	require.NoError(t, err)
	assert.Equal(t, dto.CheckInRecorded, res.Outcome)
	assert.Equal(t, models.AttendanceStatusPresent, res.Attendance.Status)
	assert.Equal(t, "S1", res.Attendance.StudentMatric)
	assert.Equal(t, "C1", res.Attendance.CourseCode)
	assert.Equal(t, 1, f.attendance.creates)

	events := f.notifier.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, TopicDashboard, events[0].Topic)
	assert.Equal(t, EventAttendanceUpdate, events[0].Event)
	assert.Equal(t, SessionTopic("T"), events[1].Topic)
	assert.Equal(t, EventSessionAttendanceCount, events[1].Event)
	assert.Equal(t, 1, events[1].Payload.(dto.SessionAttendanceCount).Count)
	assert.Equal(t, []string{"http:recorded:true"}, f.observer.outcomes)
}

func TestCheckInLateBoundary(t *testing.T) {
	f := newCheckInFixture(t)
	f.svc.now = func() time.Time { return fixedNow.Add(15 * time.Minute) }

	res, err := f.svc.CheckIn(context.Background(), models.CheckInRequest{StudentID: "S1", DeviceUUID: "D1", SessionToken: "T"}, TransportHTTP)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, res.Attendance.Status)

	f2 := newCheckInFixture(t)
	f2.svc.now = func() time.Time { return fixedNow.Add(15*time.Minute + time.Second) }
	res, err = f2.svc.CheckIn(context.Background(), models.CheckInRequest{StudentID: "S1", DeviceUUID: "D1", SessionToken: "T"}, TransportHTTP)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusLate, res.Attendance.Status)
}

func TestCheckInRepeatReturnsExisting(t *testing.T) {
	f := newCheckInFixture(t)
	req := models.CheckInRequest{StudentID: "S1", DeviceUUID: "D1", SessionToken: "T"}

	first, err := f.svc.CheckIn(context.Background(), req, TransportHTTP)
	require.NoError(t, err)
	second, err := f.svc.CheckIn(context.Background(), req, TransportSocket)
	require.NoError(t, err)

	assert.Equal(t, dto.CheckInAlreadyCheckedIn, second.Outcome)
	assert.Equal(t, first.Attendance.ID, second.Attendance.ID)
	assert.Equal(t, 1, f.attendance.creates)
	assert.Len(t, f.notifier.snapshot(), 2)
	assert.Equal(t, "socket:already_checked_in:false", f.observer.outcomes[1])
}

func TestCheckInRaceSurfacesExistingRecord(t *testing.T) {
	f := newCheckInFixture(t)
	f.attendance.records[pairKey("uuid-S1", "sess-1")] = &models.AttendanceRecord{ID: "winner", StudentID: "uuid-S1", SessionID: "sess-1", Status: models.AttendanceStatusPresent}
	f.attendance.createErr = repository.ErrAttendanceExists
	// Simulate the row appearing between the read and the insert.
	store := &racingStore{mockAttendanceStore: f.attendance}
	f.svc.attendance = store

	res, err := f.svc.CheckIn(context.Background(), models.CheckInRequest{StudentID: "S1", DeviceUUID: "D1", SessionToken: "T"}, TransportHTTP)
	require.NoError(t, err)
	assert.Equal(t, dto.CheckInAlreadyCheckedIn, res.Outcome)
	assert.Equal(t, "winner", res.Attendance.ID)
}

type racingStore struct {
	*mockAttendanceStore
	reads int
}

func (r *racingStore) FindByStudentAndSession(ctx context.Context, studentID, sessionID string) (*models.AttendanceRecord, error) {
	r.reads++
	if r.reads == 1 {
		return nil, sql.ErrNoRows
	}
	return r.mockAttendanceStore.FindByStudentAndSession(ctx, studentID, sessionID)
}

func TestCheckInFailureOrder(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *checkInFixture)
		req   models.CheckInRequest
		want  error
	}{
		{
			name: "missing fields",
			req:  models.CheckInRequest{StudentID: "S1", SessionToken: "T"},
			want: appErrors.ErrValidation,
		},
		{
			name: "unknown token",
			req:  models.CheckInRequest{StudentID: "S1", DeviceUUID: "D1", SessionToken: "nope"},
			want: appErrors.ErrInvalidToken,
		},
		{
			name:  "closed session before unknown student",
			setup: func(f *checkInFixture) { f.session.Active = false },
			req:   models.CheckInRequest{StudentID: "ghost", DeviceUUID: "D1", SessionToken: "T"},
			want:  appErrors.ErrSessionClosed,
		},
		{
			name: "not enrolled",
			req:  models.CheckInRequest{StudentID: "ghost", DeviceUUID: "D1", SessionToken: "T"},
			want: appErrors.ErrNotEnrolled,
		},
		{
			name: "device mismatch is case sensitive",
			req:  models.CheckInRequest{StudentID: "S1", DeviceUUID: "d1", SessionToken: "T"},
			want: appErrors.ErrDeviceMismatch,
		},
		{
			name:  "mismatch precedes deactivation",
			setup: func(f *checkInFixture) { f.students.byMatric["S1"].Active = false },
			req:   models.CheckInRequest{StudentID: "S1", DeviceUUID: "D2", SessionToken: "T"},
			want:  appErrors.ErrDeviceMismatch,
		},
		{
			name:  "deactivated",
			setup: func(f *checkInFixture) { f.students.byMatric["S1"].Active = false },
			req:   models.CheckInRequest{StudentID: "S1", DeviceUUID: "D1", SessionToken: "T"},
			want:  appErrors.ErrAccountDeactivated,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newCheckInFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}
			_, err := f.svc.CheckIn(context.Background(), tc.req, TransportHTTP)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Zero(t, f.attendance.creates)
			assert.Empty(t, f.notifier.snapshot())
		})
	}
}

func TestCheckInSessionEndedDuringCommit(t *testing.T) {
	f := newCheckInFixture(t)
	f.attendance.createErr = repository.ErrSessionInactive

	_, err := f.svc.CheckIn(context.Background(), models.CheckInRequest{StudentID: "S1", DeviceUUID: "D1", SessionToken: "T"}, TransportHTTP)
	assert.True(t, errors.Is(err, appErrors.ErrSessionClosed))
	assert.Equal(t, []string{"http:SESSION_CLOSED:false"}, f.observer.outcomes)
}

func TestCheckInScenarioAcrossSessionEnd(t *testing.T) {
	f := newCheckInFixture(t)
	sessions := newTestSessionService(f.sessions, nil)
	req := models.CheckInRequest{StudentID: "S1", DeviceUUID: "D1", SessionToken: "T"}

	_, err := f.svc.CheckIn(context.Background(), req, TransportHTTP)
	require.NoError(t, err)
	_, err = sessions.End(context.Background(), models.EndSessionRequest{CourseCode: "C1"})
	require.NoError(t, err)

	_, err = f.svc.CheckIn(context.Background(), req, TransportHTTP)
	assert.True(t, errors.Is(err, appErrors.ErrSessionClosed))
}
