// Package session follows processing jobs by polling the backend until they
// reach a terminal status.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/doc-classifier/dashboard/internal/backend"
	"github.com/doc-classifier/dashboard/internal/logging"
	"github.com/doc-classifier/dashboard/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 2 * time.Second

var (
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("session controller closed")
	// ErrInvalidJob is returned for a job without a file id.
	ErrInvalidJob = errors.New("job has no file id")
)

// StatusChecker reports the processing status of a file.
type StatusChecker interface {
	JobStatus(ctx context.Context, fileID int64) (models.FileStatus, error)
}

// Ticker delivers poll ticks. *time.Ticker is adapted by NewTimeTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the default TickerFactory.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Job identifies the work a session follows.
type Job struct {
	FileID int64 `json:"fileId"`
}

// Snapshot describes the active session.
type Snapshot struct {
	ID         string            `json:"id"`
	FileID     int64             `json:"fileId"`
	StartedAt  time.Time         `json:"startedAt"`
	Checks     int               `json:"checks"`
	LastStatus models.FileStatus `json:"lastStatus,omitempty"`
}

// Outcome is how a session ended. Err is a *backend.RemoteFailure for a
// failed job and the transport error for a halted one.
type Outcome struct {
	SessionID  string            `json:"sessionId"`
	FileID     int64             `json:"fileId"`
	Filename   string            `json:"filename,omitempty"`
	Status     models.FileStatus `json:"status,omitempty"`
	Checks     int               `json:"checks"`
	Halted     bool              `json:"halted"`
	Err        error             `json:"-"`
	FinishedAt time.Time         `json:"finishedAt"`
}

// Hooks are invoked from the poll goroutine once the session has been
// cleared. They must not call Close.
type Hooks struct {
	// Filename resolves a file id to its name. It is consulted before
	// OnFailed fires, so before any refresh can drop the record.
	Filename    func(fileID int64) string
	OnCompleted func(Outcome)
	OnFailed    func(Outcome)
	OnHalted    func(Outcome)
}

// Option configures a Controller.
type Option func(*Controller)

// WithTickerFactory replaces the ticker source, mainly for tests.
func WithTickerFactory(f TickerFactory) Option {
	return func(c *Controller) {
		c.newTicker = f
	}
}

// Controller owns at most one polling session at a time.
type Controller struct {
	checker   StatusChecker
	interval  time.Duration
	hooks     Hooks
	logger    *zap.Logger
	newTicker TickerFactory

	mu     sync.Mutex
	active *pollSession
	last   *Outcome
	closed bool
	wg     sync.WaitGroup
}

type pollSession struct {
	id        string
	fileID    int64
	startedAt time.Time
	ticker    Ticker
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once

	checks     int
	lastStatus models.FileStatus
}

// teardown stops the ticker and signals the loop, exactly once.
func (s *pollSession) teardown() {
	s.stopOnce.Do(func() {
		s.ticker.Stop()
		s.cancel()
		close(s.done)
	})
}

// NewController creates a controller polling checker every interval.
func NewController(checker StatusChecker, interval time.Duration, hooks Hooks, logger *zap.Logger, opts ...Option) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := &Controller{
		checker:   checker,
		interval:  interval,
		hooks:     hooks,
		logger:    logging.OrNop(logger).Named("session"),
		newTicker: NewTimeTicker,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start adopts a new session for job. Any active session is torn down first.
func (c *Controller) Start(job Job) (Snapshot, error) {
	if job.FileID <= 0 {
		return Snapshot{}, ErrInvalidJob
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if old := c.active; old != nil {
		old.teardown()
		c.logger.Info("session superseded",
			zap.String("session", logging.ShortID(old.id)),
			zap.Int64("file_id", old.fileID))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &pollSession{
		id:        uuid.New().String(),
		fileID:    job.FileID,
		startedAt: time.Now(),
		ticker:    c.newTicker(c.interval),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.active = s
	snap := s.snapshot()
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("session started",
		zap.String("session", logging.ShortID(s.id)),
		zap.Int64("file_id", s.fileID),
		zap.Duration("interval", c.interval))

	go c.run(s)
	return snap, nil
}

// Stop abandons the active session. It reports whether there was one.
// Results of a check still in flight are discarded.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	s := c.active
	if s == nil {
		c.mu.Unlock()
		return false
	}
	s.teardown()
	c.active = nil
	c.mu.Unlock()

	c.logger.Info("session abandoned",
		zap.String("session", logging.ShortID(s.id)),
		zap.Int64("file_id", s.fileID))
	return true
}

// StopFile abandons the active session only if it follows fileID.
func (c *Controller) StopFile(fileID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.active
	if s == nil || s.fileID != fileID {
		return false
	}
	s.teardown()
	c.active = nil
	return true
}

// Active returns the active session, if any.
func (c *Controller) Active() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Snapshot{}, false
	}
	return c.active.snapshot(), true
}

// Last returns the outcome of the most recently finished session.
func (c *Controller) Last() (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Outcome{}, false
	}
	return *c.last, true
}

// Close stops the active session and waits for the poll goroutine to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if s := c.active; s != nil {
		s.teardown()
		c.active = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (s *pollSession) snapshot() Snapshot {
	return Snapshot{
		ID:         s.id,
		FileID:     s.fileID,
		StartedAt:  s.startedAt,
		Checks:     s.checks,
		LastStatus: s.lastStatus,
	}
}

func (c *Controller) run(s *pollSession) {
	defer c.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C():
			if !c.current(s) {
				return
			}
			if !c.check(s) {
				return
			}
		}
	}
}

func (c *Controller) current(s *pollSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == s
}

// check performs one status check and reports whether polling continues.
func (c *Controller) check(s *pollSession) (keepPolling bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("poll panicked",
				zap.String("session", logging.ShortID(s.id)),
				zap.Any("panic", r))
			c.finish(s, Outcome{Halted: true, Err: fmt.Errorf("poll panicked: %v", r)}, c.hooks.OnHalted)
			keepPolling = false
		}
	}()

	status, err := c.checker.JobStatus(s.ctx, s.fileID)

	c.mu.Lock()
	if c.active != s {
		c.mu.Unlock()
		return false
	}
	if err == nil {
		s.checks++
		s.lastStatus = status
	}
	checks := s.checks
	c.mu.Unlock()

	log := c.logger.With(
		zap.String("session", logging.ShortID(s.id)),
		zap.Int64("file_id", s.fileID))

	if err != nil {
		log.Warn("status check failed, polling halted", zap.Error(err))
		c.finish(s, Outcome{Halted: true, Err: err}, c.hooks.OnHalted)
		return false
	}

	log.Debug("status checked", zap.String("status", string(status)), zap.Int("checks", checks))

	switch status {
	case models.FileStatusCompleted:
		log.Info("processing completed", zap.Int("checks", checks))
		c.finish(s, Outcome{Status: status}, c.hooks.OnCompleted)
		return false
	case models.FileStatusFailed:
		filename := c.filename(s.fileID)
		log.Warn("processing failed", zap.String("filename", filename), zap.Int("checks", checks))
		c.finish(s, Outcome{
			Status:   status,
			Filename: filename,
			Err:      &backend.RemoteFailure{FileID: s.fileID, Filename: filename},
		}, c.hooks.OnFailed)
		return false
	default:
		return true
	}
}

// finish clears s if it is still active and fires hook outside the lock.
func (c *Controller) finish(s *pollSession, out Outcome, hook func(Outcome)) {
	c.mu.Lock()
	if c.active != s {
		c.mu.Unlock()
		return
	}
	s.teardown()
	c.active = nil

	out.SessionID = s.id
	out.FileID = s.fileID
	out.Checks = s.checks
	out.FinishedAt = time.Now()
	c.last = &out
	c.mu.Unlock()

	if hook != nil {
		hook(out)
	}
}

func (c *Controller) filename(fileID int64) string {
	if c.hooks.Filename == nil {
		return ""
	}
	return c.hooks.Filename(fileID)
}
