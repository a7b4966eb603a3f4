package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
	"github.com/noah-isme/lan-attendance-api/pkg/jobs"
	"github.com/noah-isme/lan-attendance-api/pkg/signing"
)

const (
	syncJobType     = "sync_task"
	maxRetryBackoff = time.Hour
)

type syncTaskRepository interface {
	ListDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.SyncTask, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, reason string, nextRetryAt time.Time) error
	Stats(ctx context.Context) (models.SyncStats, error)
}

type syncStudentLoader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type syncAttendanceLoader interface {
	FindDetail(ctx context.Context, id string) (*models.AttendanceDetail, error)
}

type syncObserver interface {
	ObserveSync(synced bool)
}

// SyncConfig tunes the drain worker.
type SyncConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	Workers     int
	MaxAttempts int
	RetryDelay  time.Duration
}

// SyncService drains the sync queue to a SyncTarget. Each task is signed,
// pushed and marked synced; failures back off exponentially until MaxAttempts.
type SyncService struct {
	tasks      syncTaskRepository
	students   syncStudentLoader
	attendance syncAttendanceLoader
	target     SyncTarget
	signer     *signing.Signer
	metrics    syncObserver
	logger     *zap.Logger
	config     SyncConfig
	queue      *jobs.Queue
	now        func() time.Time

	mu        sync.Mutex
	inFlight  map[string]struct{}
	lastRunAt *time.Time
	lastError string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSyncService constructs the drain worker. target and signer may be nil when sync is disabled.
func NewSyncService(tasks syncTaskRepository, students syncStudentLoader, attendance syncAttendanceLoader, target SyncTarget, signer *signing.Signer, metrics syncObserver, logger *zap.Logger, config SyncConfig) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 30 * time.Second
	}
	if target == nil || signer == nil {
		config.Enabled = false
	}

	svc := &SyncService{
		tasks:      tasks,
		students:   students,
		attendance: attendance,
		target:     target,
		signer:     signer,
		metrics:    metrics,
		logger:     logger,
		config:     config,
		now:        time.Now,
		inFlight:   make(map[string]struct{}),
	}
	// Backoff between attempts is persisted on the task, so the queue does not retry in process.
	svc.queue = jobs.NewQueue("sync", svc.handle, jobs.QueueConfig{
		Workers:    config.Workers,
		BufferSize: config.BatchSize,
		MaxRetries: -1,
		OnGiveUp:   svc.giveUp,
		Logger:     logger,
	})
	return svc
}

// Start launches the queue workers and the periodic scanner.
func (s *SyncService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info("sync worker disabled")
		return
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.queue.Start(runCtx)
	go s.loop(runCtx)
	s.logger.Info("sync worker started", zap.String("target", s.target.Name()), zap.Duration("interval", s.config.Interval))
}

// Stop halts the scanner and waits for workers to exit.
func (s *SyncService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.queue.Stop()
}

func (s *SyncService) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.DrainOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("sync scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DrainOnce enqueues due tasks that are not already in flight and returns how many were queued.
func (s *SyncService) DrainOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	tasks, err := s.tasks.ListDue(ctx, now, s.config.MaxAttempts, s.config.BatchSize)
	s.mu.Lock()
	s.lastRunAt = &now
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, task := range tasks {
		if !s.claim(task.ID) {
			continue
		}
		err := s.queue.TryEnqueue(jobs.Job{ID: task.ID, Type: syncJobType, Payload: task})
		if err != nil {
			s.release(task.ID)
			if errors.Is(err, jobs.ErrQueueFull) {
				break
			}
			return queued, err
		}
		queued++
	}
	return queued, nil
}

func (s *SyncService) handle(ctx context.Context, job jobs.Job) error {
	task, ok := job.Payload.(models.SyncTask)
	if !ok {
		return fmt.Errorf("unexpected sync job payload %T", job.Payload)
	}

	record, err := s.loadRecord(ctx, task)
	if errors.Is(err, sql.ErrNoRows) {
		// The row was removed after this upsert was queued; its delete task carries the final state.
		s.logger.Debug("sync record no longer exists", zap.String("table", task.TableName), zap.String("record_id", task.RecordID))
		return s.complete(ctx, task)
	}
	if err != nil {
		return err
	}

	envelope, err := s.Envelope(task, record)
	if err != nil {
		return err
	}
	if err := s.target.Push(ctx, envelope); err != nil {
		return err
	}
	return s.complete(ctx, task)
}

// Envelope builds the signed envelope for a task.
func (s *SyncService) Envelope(task models.SyncTask, record interface{}) (dto.SyncEnvelope, error) {
	body, err := json.Marshal(dto.SyncPayload{
		TaskID:    task.ID,
		Table:     task.TableName,
		RecordID:  task.RecordID,
		Operation: task.Operation,
		Record:    record,
	})
	if err != nil {
		return dto.SyncEnvelope{}, fmt.Errorf("encode sync payload: %w", err)
	}
	issuedAt := s.now().UTC().Truncate(time.Second)
	return dto.SyncEnvelope{
		Payload:   body,
		IssuedAt:  issuedAt,
		Signature: s.signer.Sign(body, issuedAt),
	}, nil
}

func (s *SyncService) loadRecord(ctx context.Context, task models.SyncTask) (interface{}, error) {
	if task.Operation == models.SyncOperationDelete {
		return nil, nil
	}
	switch task.TableName {
	case models.SyncTableStudents:
		return s.students.FindByID(ctx, task.RecordID)
	case models.SyncTableAttendance:
		return s.attendance.FindDetail(ctx, task.RecordID)
	default:
		return nil, fmt.Errorf("unknown sync table %q", task.TableName)
	}
}

func (s *SyncService) complete(ctx context.Context, task models.SyncTask) error {
	defer s.release(task.ID)
	if err := s.tasks.MarkSynced(ctx, task.ID, s.now().UTC()); err != nil {
		s.logger.Error("failed to mark sync task synced", zap.String("task_id", task.ID), zap.Error(err))
		return nil
	}
	if s.metrics != nil {
		s.metrics.ObserveSync(true)
	}
	return nil
}

func (s *SyncService) giveUp(ctx context.Context, job jobs.Job, cause error) {
	task, ok := job.Payload.(models.SyncTask)
	if !ok {
		return
	}
	defer s.release(task.ID)

	attempts := task.Attempts + 1
	next := s.now().UTC().Add(s.backoff(attempts))
	if err := s.tasks.MarkFailed(context.WithoutCancel(ctx), task.ID, attempts, cause.Error(), next); err != nil {
		s.logger.Error("failed to mark sync task failed", zap.String("task_id", task.ID), zap.Error(err))
	}
	if attempts >= s.config.MaxAttempts {
		s.logger.Error("sync task abandoned", zap.String("task_id", task.ID), zap.Int("attempts", attempts), zap.Error(cause))
	}
	s.mu.Lock()
	s.lastError = cause.Error()
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ObserveSync(false)
	}
}

// backoff doubles RetryDelay per attempt up to an hour.
func (s *SyncService) backoff(attempts int) time.Duration {
	delay := s.config.RetryDelay
	for i := 1; i < attempts && delay < maxRetryBackoff; i++ {
		delay *= 2
	}
	if delay > maxRetryBackoff {
		delay = maxRetryBackoff
	}
	return delay
}

// Status reports queue counts and the worker state.
func (s *SyncService) Status(ctx context.Context) (*dto.SyncStatus, error) {
	stats, err := s.tasks.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sync stats")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	status := &dto.SyncStatus{
		Enabled:   s.config.Enabled,
		Stats:     stats,
		InFlight:  len(s.inFlight),
		LastRunAt: s.lastRunAt,
		LastError: s.lastError,
	}
	if s.target != nil {
		status.Target = s.target.Name()
	}
	return status, nil
}

func (s *SyncService) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[id]; ok {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *SyncService) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}
