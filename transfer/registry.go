package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/fileutil"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/reviewdeck/go-transferutils/network"
)

// Registry owns every transfer of the process. Transfers run in the background;
// callers observe them through List and Subscribe.
type Registry struct {
	transport network.Transport
	resolve   network.Resolver
	config    Config
	logger    log.Logger
	stats     *Stats

	fileManager  fileutil.FileManager
	pathModifier pathutil.PathModifier

	mu       sync.Mutex
	entries  map[string]*entry
	order    []string
	notifier *notifier

	// running counts workers; idle is closed whenever it drops to zero.
	running int
	idle    chan struct{}
}

type entry struct {
	transfer  Transfer
	cancel    context.CancelFunc
	cancelled bool
	attempt   int
}

// New creates a Registry sending files through transport. resolve maps destinations
// to transport targets; if nil, the destination is used as is.
func New(transport network.Transport, resolve network.Resolver, config Config, logger log.Logger) (*Registry, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport must not be nil")
	}
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if resolve == nil {
		resolve = func(destination string) (string, error) { return destination, nil }
	}
	if logger == nil {
		logger = log.NewLogger()
	}

	return &Registry{
		transport:    transport,
		resolve:      resolve,
		config:       config,
		logger:       logger,
		stats:        NewStats(),
		fileManager:  fileutil.NewFileManager(),
		pathModifier: pathutil.NewPathModifier(),
		entries:      map[string]*entry{},
		notifier:     newNotifier(),
	}, nil
}

// StartOption customizes the form fields sent with a transfer.
type StartOption func(fields map[string]string)

// WithDescription sends a description of the file along with it.
func WithDescription(description string) StartOption {
	return WithField(network.FieldDescription, description)
}

// WithField sends an extra form field. The name, original_name and large_file fields are
// managed by the Registry and can not be overridden.
func WithField(key, value string) StartOption {
	return func(fields map[string]string) {
		if value != "" {
			fields[key] = value
		}
	}
}

// StartTransfer registers a new transfer and starts uploading it in the background.
// It fails only if the file is missing, empty or unreadable, or the destination can not be resolved.
func (r *Registry) StartTransfer(file network.File, destination, displayName string, opts ...StartOption) (string, error) {
	return r.start(file, destination, displayName, nil, opts)
}

// StartTransferFromPath opens the file at pth and starts uploading it.
// The file is closed once the transfer stops running.
func (r *Registry) StartTransferFromPath(pth, destination, displayName string, opts ...StartOption) (string, error) {
	absPath, err := r.pathModifier.AbsPath(pth)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", pth, err)
	}

	file, err := network.OpenLocalFile(r.fileManager, absPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnreadableFile, err)
	}

	id, err := r.start(file, destination, displayName, file, opts)
	if err != nil {
		_ = file.Close()
		return "", err
	}
	return id, nil
}

func (r *Registry) start(file network.File, destination, displayName string, closer io.Closer, opts []StartOption) (string, error) {
	if err := checkFile(file); err != nil {
		return "", err
	}

	target, err := r.resolve(destination)
	if err != nil {
		return "", fmt.Errorf("resolve destination %s: %w", destination, err)
	}

	originalName := filepath.Base(file.Name())
	name := displayName
	if name == "" {
		name = originalName
	}

	fields := map[string]string{}
	for _, opt := range opts {
		opt(fields)
	}
	delete(fields, network.FieldOriginalName)
	delete(fields, network.FieldLargeFile)
	fields[network.FieldName] = name
	if name != originalName {
		fields[network.FieldOriginalName] = originalName
	}
	if r.config.LargeFileThreshold > 0 && file.Size() >= r.config.LargeFileThreshold {
		fields[network.FieldLargeFile] = "true"
	}

	now := time.Now()
	t := Transfer{
		ID:           uuid.NewString(),
		Filename:     name,
		OriginalName: originalName,
		Destination:  destination,
		Size:         file.Size(),
		Status:       StatusPending,
		MaxAttempts:  r.config.MaxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		registry:  r,
		id:        t.ID,
		transport: r.transport,
		request: network.Request{
			URL:       target,
			File:      file,
			FileField: r.config.FileField,
			Fields:    fields,
		},
		config: r.config,
		logger: r.logger,
		cancel: cancel,
		closer: closer,
	}

	r.mu.Lock()
	r.entries[t.ID] = &entry{transfer: t, cancel: cancel}
	r.order = append(r.order, t.ID)
	if r.running == 0 {
		r.idle = make(chan struct{})
	}
	r.running++
	r.publishLocked()
	r.mu.Unlock()

	r.logger.Infof("Transfer %s: uploading %s (%s) to %s", t.ID, name, units.HumanSizeWithPrecision(float64(t.Size), 3), destination)

	go w.run(ctx)

	return t.ID, nil
}

func checkFile(file network.File) error {
	if file == nil {
		return ErrNilFile
	}
	if file.Size() <= 0 {
		return ErrEmptyFile
	}

	probe := make([]byte, 1)
	if _, err := file.ReadAt(probe, 0); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s", ErrUnreadableFile, err)
	}
	return nil
}

// Cancel stops a running transfer; it ends as failed with a cancelled error.
// Unknown, finished or already cancelled transfers are left untouched.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || !r.cancelLocked(e) {
		return
	}
	r.publishLocked()
}

// CancelAll cancels every running transfer.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, id := range r.order {
		if r.cancelLocked(r.entries[id]) {
			changed = true
		}
	}
	if changed {
		r.publishLocked()
	}
}

func (r *Registry) cancelLocked(e *entry) bool {
	if e.transfer.Status.Terminal() || e.cancelled {
		return false
	}

	e.cancelled = true
	e.cancel()
	e.transfer.Message = "cancelling"
	e.transfer.UpdatedAt = time.Now()
	r.logger.Debugf("Transfer %s: cancel requested", e.transfer.ID)
	return true
}

// Remove cancels the transfer if it is running and forgets it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.cancel()
	delete(r.entries, id)
	for i, orderedID := range r.order {
		if orderedID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Debugf("Transfer %s: removed", id)
	r.publishLocked()
}

// Subscribe registers fn to receive the transfer list now and after every change.
// Calls to fn are made from a dedicated goroutine, one at a time, in change order.
// The returned function unsubscribes; calling it more than once is safe.
func (r *Registry) Subscribe(fn Subscriber) func() {
	r.mu.Lock()
	sub := r.notifier.add(fn, r.snapshotLocked())
	r.mu.Unlock()

	return func() {
		r.notifier.remove(sub)
	}
}

// List returns a snapshot of all transfers in creation order.
func (r *Registry) List() []Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Get ...
func (r *Registry) Get(id string) (Transfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Transfer{}, false
	}
	return e.transfer, true
}

// Stats returns attempt statistics of all transfers run by the registry.
func (r *Registry) Stats() StatsSnapshot {
	return r.stats.Snapshot()
}

// Wait blocks until every started transfer stopped running or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.Lock()
	if r.running == 0 {
		r.mu.Unlock()
		return nil
	}
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels all running transfers and waits for them to stop.
// Subscribers then receive the snapshots still queued for them and are unsubscribed.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.CancelAll()
	err := r.Wait(ctx)

	r.mu.Lock()
	r.notifier.close()
	r.mu.Unlock()

	return err
}

func (r *Registry) workerDone() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running--
	if r.running == 0 {
		close(r.idle)
	}
}

func (r *Registry) snapshotLocked() []Transfer {
	snapshot := make([]Transfer, 0, len(r.order))
	for _, id := range r.order {
		snapshot = append(snapshot, r.entries[id].transfer)
	}
	return snapshot
}

func (r *Registry) publishLocked() {
	r.notifier.publish(r.snapshotLocked())
}

// update applies fn to a non terminal transfer and publishes the result if fn reports a change.
// It returns false if the transfer is gone or already terminal.
func (r *Registry) update(id string, fn func(e *entry) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.transfer.Status.Terminal() {
		return false
	}
	if fn(e) {
		e.transfer.UpdatedAt = time.Now()
		r.publishLocked()
	}
	return true
}

func (r *Registry) beginAttempt(id string, number int) bool {
	return r.update(id, func(e *entry) bool {
		e.attempt = number
		e.transfer.Status = StatusInFlight
		e.transfer.Progress = 0
		e.transfer.AttemptCount = number
		if number == 1 {
			e.transfer.Message = "uploading"
		} else {
			e.transfer.Message = fmt.Sprintf("retrying (attempt %d/%d)", number, r.config.MaxAttempts)
		}
		return true
	})
}

func (r *Registry) endAttempt(id string, number int) {
	r.update(id, func(e *entry) bool {
		if e.attempt == number {
			e.attempt = 0
		}
		return false
	})
}

// setProgress only accepts progress of the transfer's active attempt, and never moves it backwards.
func (r *Registry) setProgress(id string, number int, percent float64) {
	r.update(id, func(e *entry) bool {
		if e.attempt != number || e.transfer.Status != StatusInFlight || percent <= e.transfer.Progress {
			return false
		}
		e.transfer.Progress = percent
		return true
	})
}

func (r *Registry) retrying(id string, cause *Error, next int, delay time.Duration) bool {
	return r.update(id, func(e *entry) bool {
		e.transfer.Message = fmt.Sprintf("upload failed (%s), retrying (attempt %d/%d) in %s",
			cause.Kind.describe(), next, r.config.MaxAttempts, delay)
		return true
	})
}

func (r *Registry) complete(id string, outcome network.Outcome, took time.Duration) {
	done := r.update(id, func(e *entry) bool {
		e.attempt = 0
		e.transfer.Status = StatusCompleted
		e.transfer.Progress = 100
		e.transfer.Message = "upload complete"
		e.transfer.FinishedAt = time.Now()
		return true
	})
	if done {
		r.logger.Donef("Transfer %s: completed in %s (%s)", id, took.Round(time.Millisecond), outcome)
	}
}

func (r *Registry) fail(id string, cause *Error) {
	done := r.update(id, func(e *entry) bool {
		e.attempt = 0
		e.transfer.Status = StatusFailed
		e.transfer.Message = ""
		e.transfer.Error = cause.Error()
		e.transfer.ErrorKind = cause.Kind
		e.transfer.FinishedAt = time.Now()
		return true
	})
	if !done {
		return
	}
	if cause.Kind == KindCancelled {
		r.logger.Infof("Transfer %s: cancelled", id)
		return
	}
	r.logger.Errorf("Transfer %s: failed: %s", id, cause)
}
