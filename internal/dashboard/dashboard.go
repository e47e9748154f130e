// Package dashboard wires the upload, polling, selection and recovery flows
// around a shared file cache.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/doc-classifier/dashboard/internal/archive"
	"github.com/doc-classifier/dashboard/internal/backend"
	"github.com/doc-classifier/dashboard/internal/classification"
	"github.com/doc-classifier/dashboard/internal/config"
	"github.com/doc-classifier/dashboard/internal/logging"
	"github.com/doc-classifier/dashboard/internal/models"
	"github.com/doc-classifier/dashboard/internal/recovery"
	"github.com/doc-classifier/dashboard/internal/session"
	"github.com/doc-classifier/dashboard/internal/storage"
	"github.com/doc-classifier/dashboard/internal/upload"
	"go.uber.org/zap"
)

// ErrFileNotFound is returned for ids missing from the cached list.
var ErrFileNotFound = errors.New("file not found")

// Backend is the subset of the backend client the dashboard uses.
type Backend interface {
	ListFiles(ctx context.Context) ([]models.FileRecord, error)
	UploadFile(ctx context.Context, filename string, content io.Reader, override bool) (backend.UploadResponse, error)
	SubmitProcessing(ctx context.Context, req models.ProcessRequest) (backend.ProcessResponse, error)
	JobStatus(ctx context.Context, fileID int64) (models.FileStatus, error)
	DeleteFile(ctx context.Context, fileID int64) error
}

// Dashboard owns every component and routes outcomes between them.
type Dashboard struct {
	cfg     *config.AppConfig
	backend Backend
	logger  *zap.Logger

	cache      storage.Store
	resolver   *upload.Resolver
	controller *session.Controller
	recovery   *recovery.Coordinator
	selector   *classification.Selector
	archive    *archive.Store
	events     *broker

	refreshMu sync.Mutex

	// deleteMu orders local removals against cache replacement. While a
	// refresh is in flight, deleted ids are collected in pendingDeletes so a
	// list fetched before the delete cannot bring the record back.
	deleteMu       sync.Mutex
	pendingDeletes map[int64]struct{}

	mu          sync.RWMutex
	lastRefresh error
	lastHalt    error
}

// New builds a dashboard. A nil archive disables run history; opts are
// passed to the session controller.
func New(cfg *config.AppConfig, client Backend, palette *classification.Palette, runs *archive.Store, logger *zap.Logger, opts ...session.Option) *Dashboard {
	logger = logging.OrNop(logger)
	if runs == nil {
		runs = archive.Disabled()
	}

	d := &Dashboard{
		cfg:      cfg,
		backend:  client,
		logger:   logger.Named("dashboard"),
		cache:    storage.NewFileCache(),
		selector: classification.NewSelector(palette),
		archive:  runs,
		events:   newBroker(),
	}

	d.resolver = upload.NewResolver(client, upload.Limits{
		AllowedExtensions: cfg.AllowedExtensions(),
		MaxBytes:          cfg.MaxUploadBytes(),
	}, d.onUploaded, logger)

	d.controller = session.NewController(client, cfg.PollInterval(), session.Hooks{
		Filename:    d.cache.Filename,
		OnCompleted: d.onCompleted,
		OnFailed:    d.onFailed,
		OnHalted:    d.onHalted,
	}, logger, opts...)

	d.recovery = recovery.NewCoordinator(client, d.cache, logger)
	return d
}

// Refresh reloads the file list, replaces the cache wholesale and re-feeds
// the selector with the record it is showing.
func (d *Dashboard) Refresh(ctx context.Context) ([]models.FileRecord, error) {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	d.deleteMu.Lock()
	d.pendingDeletes = make(map[int64]struct{})
	d.deleteMu.Unlock()

	files, err := d.backend.ListFiles(ctx)
	d.mu.Lock()
	d.lastRefresh = err
	d.mu.Unlock()
	if err != nil {
		d.deleteMu.Lock()
		d.pendingDeletes = nil
		d.deleteMu.Unlock()
		d.logger.Warn("refresh failed", zap.Error(err))
		return nil, fmt.Errorf("refreshing files: %w", err)
	}

	d.deleteMu.Lock()
	deleted := d.pendingDeletes
	d.pendingDeletes = nil
	normalized := make([]models.FileRecord, 0, len(files))
	for i := range files {
		if _, gone := deleted[files[i].ID]; gone {
			continue
		}
		normalized = append(normalized, *models.NormalizeRuns(&files[i]))
	}
	d.cache.Replace(normalized)
	d.deleteMu.Unlock()

	if id, ok := d.selector.FileID(); ok {
		if rec, found := d.cache.Find(id); found {
			d.selector.Select(rec)
		} else {
			d.selector.Clear()
		}
	}

	if added, err := d.archive.Record(ctx, normalized); err != nil {
		d.logger.Warn("archiving runs failed", zap.Error(err))
	} else if added > 0 {
		d.logger.Info("runs archived", zap.Int("count", added))
	}

	d.logger.Debug("files refreshed", zap.Int("count", len(normalized)))
	d.events.publish(Event{Type: EventFilesRefreshed})
	return d.cache.Snapshot(), nil
}

// Files returns the cached list.
func (d *Dashboard) Files() []models.FileRecord {
	return d.cache.Snapshot()
}

// File returns one cached record.
func (d *Dashboard) File(id int64) (*models.FileRecord, error) {
	rec, ok := d.cache.Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrFileNotFound, id)
	}
	return rec, nil
}

// LastRefreshError returns the error of the latest refresh, if it failed.
func (d *Dashboard) LastRefreshError() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastRefresh
}

// Upload chooses f and submits it.
func (d *Dashboard) Upload(ctx context.Context, f upload.File, override bool) (upload.Result, error) {
	if err := d.resolver.Choose(f); err != nil {
		return upload.Result{}, err
	}
	return d.resolver.Submit(ctx, override)
}

// ResolveConflict answers a pending upload conflict.
func (d *Dashboard) ResolveConflict(ctx context.Context, override bool) (upload.Result, error) {
	return d.resolver.ResolveConflict(ctx, override)
}

// CancelUpload discards the selected file.
func (d *Dashboard) CancelUpload() error {
	return d.resolver.Cancel()
}

// UploadState returns the resolver state.
func (d *Dashboard) UploadState() upload.State {
	return d.resolver.State()
}

// Process submits a classification job and starts following it.
func (d *Dashboard) Process(ctx context.Context, req models.ProcessRequest) (session.Snapshot, error) {
	if err := req.Validate(); err != nil {
		return session.Snapshot{}, &backend.ValidationError{Message: err.Error()}
	}

	resp, err := d.backend.SubmitProcessing(ctx, req)
	if err != nil {
		d.logger.Warn("submit failed", zap.Int64("file_id", req.FileID), zap.Error(err))
		return session.Snapshot{}, err
	}

	d.cache.PatchStatus(req.FileID, models.FileStatusProcessing)
	d.logger.Info("processing submitted",
		zap.Int64("file_id", req.FileID),
		zap.String("model", req.Model),
		zap.String("chunking", string(req.ChunkingStrategy)))
	return d.follow(resp.ID)
}

// follow starts polling fileID and announces the session.
func (d *Dashboard) follow(fileID int64) (session.Snapshot, error) {
	snap, err := d.controller.Start(session.Job{FileID: fileID})
	if err != nil {
		return snap, err
	}
	d.events.publish(Event{Type: EventSessionStarted, FileID: fileID, Message: snap.ID})
	return snap, nil
}

// OpenFile feeds a cached record into the selector.
func (d *Dashboard) OpenFile(id int64) (classification.SelectionView, error) {
	rec, ok := d.cache.Find(id)
	if !ok {
		return classification.SelectionView{}, fmt.Errorf("%w: %d", ErrFileNotFound, id)
	}
	d.selector.Select(rec)
	return d.selector.View(), nil
}

// SelectRun switches the selected run of the open record.
func (d *Dashboard) SelectRun(key string) (classification.SelectionView, error) {
	if err := d.selector.SetSelectedKey(key); err != nil {
		return classification.SelectionView{}, err
	}
	return d.selector.View(), nil
}

// Selection returns the current selector view.
func (d *Dashboard) Selection() classification.SelectionView {
	return d.selector.View()
}

// CloseFile clears the selector.
func (d *Dashboard) CloseFile() {
	d.selector.Clear()
}

// DeleteFile removes any file. A session following it is abandoned first.
func (d *Dashboard) DeleteFile(ctx context.Context, id int64) error {
	if d.controller.StopFile(id) {
		d.logger.Info("session abandoned for deleted file", zap.Int64("file_id", id))
	}
	if err := d.backend.DeleteFile(ctx, id); err != nil {
		d.logger.Warn("delete failed", zap.Int64("file_id", id), zap.Error(err))
		return err
	}
	d.dropLocal(id)
	d.forget(id)
	d.events.publish(Event{Type: EventFileDeleted, FileID: id})
	return nil
}

// History returns archived runs of a file, newest first.
func (d *Dashboard) History(ctx context.Context, id int64) ([]archive.ArchivedRun, error) {
	return d.archive.History(ctx, id)
}

// ArchiveEnabled reports whether run history is recorded.
func (d *Dashboard) ArchiveEnabled() bool {
	return d.archive.Enabled()
}

// Session returns the active polling session.
func (d *Dashboard) Session() (session.Snapshot, bool) {
	return d.controller.Active()
}

// LastOutcome returns how the latest session ended.
func (d *Dashboard) LastOutcome() (session.Outcome, bool) {
	return d.controller.Last()
}

// LastHalt returns the error that halted the latest session, if any.
func (d *Dashboard) LastHalt() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastHalt
}

// AbandonSession stops polling without waiting for the job.
func (d *Dashboard) AbandonSession() bool {
	return d.controller.Stop()
}

// Recovery returns the recovery dialog state.
func (d *Dashboard) Recovery() recovery.State {
	return d.recovery.State()
}

// DismissRecovery closes the recovery dialog and keeps the failed record.
func (d *Dashboard) DismissRecovery() {
	st := d.recovery.State()
	d.recovery.Dismiss()
	if st.Open {
		d.events.publish(Event{Type: EventRecoveryDismissed, FileID: st.FileID, Filename: st.Filename})
	}
}

// DeleteFailed deletes the file shown in the recovery dialog.
func (d *Dashboard) DeleteFailed(ctx context.Context) error {
	id := d.recovery.State().FileID
	if err := d.recovery.Delete(ctx); err != nil {
		return err
	}
	d.dropLocal(id)
	d.forget(id)
	d.events.publish(Event{Type: EventFileDeleted, FileID: id})
	return nil
}

// Subscribe returns a stream of state changes and a function that ends it.
// The stream is closed when the dashboard closes.
func (d *Dashboard) Subscribe() (<-chan Event, func()) {
	return d.events.subscribe()
}

// Close stops polling, ends every event stream and closes the archive.
func (d *Dashboard) Close() error {
	d.controller.Close()
	d.events.close()
	return d.archive.Close()
}

// dropLocal removes a deleted record from the cache and hides it from any
// refresh whose list was fetched before the delete.
func (d *Dashboard) dropLocal(id int64) {
	d.deleteMu.Lock()
	defer d.deleteMu.Unlock()
	if d.pendingDeletes != nil {
		d.pendingDeletes[id] = struct{}{}
	}
	d.cache.Remove(id)
}

// forget clears state still pointing at a removed file.
func (d *Dashboard) forget(id int64) {
	if open, ok := d.selector.FileID(); ok && open == id {
		d.selector.Clear()
	}
	if st := d.recovery.State(); st.Open && st.FileID == id {
		d.recovery.Dismiss()
	}
}

func (d *Dashboard) hookContext() (context.Context, context.CancelFunc) {
	timeout := d.cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (d *Dashboard) onUploaded(res upload.Result) {
	d.events.publish(Event{Type: EventUploadSucceeded, FileID: res.FileID, Filename: res.Filename, Message: res.Message})
	if _, err := d.follow(res.FileID); err != nil {
		d.logger.Warn("could not follow upload", zap.Int64("file_id", res.FileID), zap.Error(err))
	}
	ctx, cancel := d.hookContext()
	defer cancel()
	d.Refresh(ctx)
}

func (d *Dashboard) onCompleted(out session.Outcome) {
	d.events.publish(Event{Type: EventSessionCompleted, FileID: out.FileID, Filename: out.Filename})
	ctx, cancel := d.hookContext()
	defer cancel()
	d.Refresh(ctx)
}

func (d *Dashboard) onFailed(out session.Outcome) {
	d.recovery.Open(out.FileID, out.Filename)
	d.events.publish(Event{Type: EventSessionFailed, FileID: out.FileID, Filename: out.Filename})
	ctx, cancel := d.hookContext()
	defer cancel()
	d.Refresh(ctx)
}

func (d *Dashboard) onHalted(out session.Outcome) {
	d.mu.Lock()
	d.lastHalt = out.Err
	d.mu.Unlock()
	d.logger.Warn("polling halted", zap.Int64("file_id", out.FileID), zap.Error(out.Err))
	d.events.publish(Event{
		Type:    EventSessionHalted,
		FileID:  out.FileID,
		Message: backend.UserMessage(out.Err, "Status check failed"),
	})
}
