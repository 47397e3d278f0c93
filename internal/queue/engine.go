// Package queue implements the offline-first mutation queue: every enqueued
// mutation is eventually delivered to the backend, surviving restarts and
// arbitrary offline stretches, or parked as failed for the user to act on.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"fieldsync/internal/metrics"
	"fieldsync/internal/model"
	"fieldsync/pkg/logger"

	"go.uber.org/zap"
)

// Store persists the full queue. Writes are best-effort: a failed write costs
// durability across a restart, never the in-memory item.
type Store interface {
	Load() ([]*model.QueueItem, error)
	Save(items []*model.QueueItem) error
}

// Uploader pushes a local attachment to object storage.
type Uploader interface {
	Upload(ctx context.Context, localPath, folder string) (string, error)
}

// Submitter delivers one fully-formed mutation to the backend.
type Submitter interface {
	Submit(ctx context.Context, kind model.Kind, payload model.Payload) error
}

// Oracle reports connectivity. Absence of real detection must degrade to
// "assume online".
type Oracle interface {
	IsOnline() bool
	OnChange(fn func(online bool)) (unsubscribe func())
}

// Listener receives a full queue snapshot after every mutation.
type Listener func(items []*model.QueueItem)

type Options struct {
	RetryCeiling   int           // failed attempts before an item is parked (default 3)
	RetryDelay     time.Duration // delay before re-running a pass that left pending items (default 30s)
	SafetyInterval time.Duration // periodic pass in case a trigger was missed (default 60s)
	AttemptTimeout time.Duration // per upload/submission call (default 30s)
	UploadFolder   string        // logical folder for attachments (default "receipts")
	OnSynced       func()        // invoked after every successful removal
	Observer       metrics.QueueObserver
	Scheduler      Scheduler
}

func (o *Options) fillDefaults() {
	if o.RetryCeiling <= 0 {
		o.RetryCeiling = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 30 * time.Second
	}
	if o.SafetyInterval <= 0 {
		o.SafetyInterval = 60 * time.Second
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 30 * time.Second
	}
	if o.UploadFolder == "" {
		o.UploadFolder = "receipts"
	}
	if o.Observer == nil {
		o.Observer = metrics.NopObserver{}
	}
	if o.Scheduler == nil {
		o.Scheduler = NewTimerScheduler()
	}
}

// Engine owns the queue. All mutations of queue state go through it; readers
// only ever see snapshot copies.
type Engine struct {
	store     Store
	uploader  Uploader
	submitter Submitter
	oracle    Oracle
	opts      Options

	mu           sync.Mutex
	items        []*model.QueueItem // FIFO, creation order
	listeners    map[int]Listener
	nextListener int
	processing   bool   // single-flight guard for ProcessQueue
	cancelRetry  func() // pending deferred-retry timer, nil when none
	seq          uint64 // bumped per published snapshot

	notifyMu sync.Mutex
	notified uint64 // highest seq delivered to listeners

	kick chan struct{}
}

func New(store Store, uploader Uploader, submitter Submitter, oracle Oracle, opts Options) *Engine {
	opts.fillDefaults()
	e := &Engine{
		store:     store,
		uploader:  uploader,
		submitter: submitter,
		oracle:    oracle,
		opts:      opts,
		listeners: make(map[int]Listener),
		kick:      make(chan struct{}, 1),
	}

	items, err := store.Load()
	if err != nil {
		// A corrupt snapshot costs durability, never availability: start
		// empty and let the next successful write replace it.
		logger.Warn("queue snapshot load failed, starting empty", zap.Error(err))
		e.opts.Observer.RecordPersistError()
		items = nil
	}
	// An item left in-flight by a crash was never confirmed; submit it again.
	for _, item := range items {
		if item.Status == model.StatusInFlight {
			item.Status = model.StatusPending
		}
	}
	e.items = items
	e.opts.Observer.SetQueueDepth(e.countLocked())
	if len(items) > 0 {
		logger.Info("queue reloaded", zap.Int("items", len(items)))
	}
	return e
}

// Enqueue appends a new pending item and triggers a best-effort processing
// attempt. It cannot fail; with no connectivity the item simply waits.
func (e *Engine) Enqueue(payload model.Payload, ownerID, localAttachmentPath string) string {
	item := &model.QueueItem{
		ID:                  model.NewItemID(payload.Kind()),
		Kind:                payload.Kind(),
		Payload:             payload,
		LocalAttachmentPath: localAttachmentPath,
		Status:              model.StatusPending,
		CreatedAt:           time.Now(),
		OwnerID:             ownerID,
	}

	e.mu.Lock()
	e.items = append(e.items, item)
	e.persistLocked()
	seq, snap := e.publishLocked()
	e.mu.Unlock()

	logger.Info("mutation enqueued",
		zap.String("id", item.ID),
		zap.String("kind", string(item.Kind)),
		zap.String("owner", ownerID))
	e.notify(seq, snap)
	e.TriggerSync()
	return item.ID
}

// Run drives processing: enqueue kicks, oracle online transitions, deferred
// retries and a coarse safety-net ticker all funnel into serial passes.
func (e *Engine) Run(ctx context.Context) {
	unsubscribe := e.oracle.OnChange(func(online bool) {
		if online {
			e.TriggerSync()
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(e.opts.SafetyInterval)
	defer ticker.Stop()
	logger.Info("queue engine started", zap.Duration("safety_interval", e.opts.SafetyInterval))

	e.TriggerSync() // items reloaded from disk may already be pending
	for {
		select {
		case <-ctx.Done():
			logger.Info("queue engine stopped")
			return
		case <-e.kick:
		case <-ticker.C:
		}
		e.ProcessQueue(ctx)
	}
}

// TriggerSync requests a processing pass without blocking. Collapsed into the
// already-pending request if one exists.
func (e *Engine) TriggerSync() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// ProcessQueue runs one serial pass over all pending items in FIFO order.
// No-op while another pass is running or while the oracle reports offline.
func (e *Engine) ProcessQueue(ctx context.Context) {
	if !e.oracle.IsOnline() {
		return
	}

	e.mu.Lock()
	if e.processing {
		e.mu.Unlock()
		return
	}
	e.processing = true
	if e.cancelRetry != nil {
		e.cancelRetry()
		e.cancelRetry = nil
	}
	ids := make([]string, 0, len(e.items))
	for _, item := range e.items {
		if item.Status == model.StatusPending {
			ids = append(ids, item.ID)
		}
	}
	e.mu.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		e.processItem(ctx, id)
	}

	e.mu.Lock()
	e.processing = false
	pending, _ := e.countLocked()
	if pending > 0 && e.cancelRetry == nil {
		// Fixed-delay re-pass bounds retry pressure on a flaky network.
		e.cancelRetry = e.opts.Scheduler.AfterFunc(e.opts.RetryDelay, func() {
			e.mu.Lock()
			e.cancelRetry = nil
			e.mu.Unlock()
			e.TriggerSync()
		})
	}
	e.mu.Unlock()
}

// processItem runs the upload-then-submit sequence for a single item. Only
// one processItem executes at a time (the pass is serial), so the item's
// payload is never mutated concurrently.
func (e *Engine) processItem(ctx context.Context, id string) {
	e.mu.Lock()
	item := e.findLocked(id)
	if item == nil || item.Status != model.StatusPending {
		e.mu.Unlock()
		return
	}
	item.Status = model.StatusInFlight
	e.persistLocked()
	seq, snap := e.publishLocked()
	kind := item.Kind
	attachmentPath := item.LocalAttachmentPath
	uploaded := item.UploadedAttachmentURL
	payload := item.Payload
	e.mu.Unlock()
	e.notify(seq, snap)

	if attachmentPath != "" && uploaded == "" {
		url, err := e.uploadAttachment(ctx, id, attachmentPath)
		if err != nil {
			e.finishAttempt(id, kind, err)
			return
		}
		e.mu.Lock()
		if item := e.findLocked(id); item != nil {
			item.UploadedAttachmentURL = url
			if carrier, ok := item.Payload.(model.AttachmentCarrier); ok {
				carrier.SetAttachmentURL(url)
			}
			e.persistLocked()
			seq, snap = e.publishLocked()
			e.mu.Unlock()
			e.notify(seq, snap)
		} else {
			e.mu.Unlock()
		}
	}

	sctx, cancel := context.WithTimeout(ctx, e.opts.AttemptTimeout)
	err := e.submitter.Submit(sctx, kind, payload)
	cancel()
	e.finishAttempt(id, kind, err)
}

func (e *Engine) uploadAttachment(ctx context.Context, id, localPath string) (string, error) {
	uctx, cancel := context.WithTimeout(ctx, e.opts.AttemptTimeout)
	defer cancel()
	url, err := e.uploader.Upload(uctx, localPath, e.opts.UploadFolder)
	if err != nil {
		logger.Warn("attachment upload failed", zap.String("id", id), zap.Error(err))
		return "", err
	}
	return url, nil
}

// finishAttempt applies the outcome of one upload-or-submit attempt. Upload
// and submission failures are treated uniformly: the attempt failed.
func (e *Engine) finishAttempt(id string, kind model.Kind, attemptErr error) {
	e.mu.Lock()
	item := e.findLocked(id)
	if item == nil {
		// Removed while in flight; nothing left to update.
		e.mu.Unlock()
		e.opts.Observer.RecordAttempt(string(kind), attemptErr == nil)
		return
	}

	if attemptErr == nil {
		e.removeLocked(id)
		e.persistLocked()
		seq, snap := e.publishLocked()
		e.mu.Unlock()

		logger.Info("mutation delivered", zap.String("id", id), zap.String("kind", string(kind)))
		e.opts.Observer.RecordAttempt(string(kind), true)
		e.notify(seq, snap)
		if e.opts.OnSynced != nil {
			e.opts.OnSynced()
		}
		return
	}

	item.RetryCount++
	if item.RetryCount >= e.opts.RetryCeiling || isPermanent(attemptErr) {
		item.Status = model.StatusFailed
		logger.Error("mutation parked as failed",
			zap.String("id", id),
			zap.Int("retry_count", item.RetryCount),
			zap.Error(attemptErr))
	} else {
		item.Status = model.StatusPending
		logger.Warn("mutation attempt failed",
			zap.String("id", id),
			zap.Int("retry_count", item.RetryCount),
			zap.Error(attemptErr))
	}
	e.persistLocked()
	seq, snap := e.publishLocked()
	e.mu.Unlock()

	e.opts.Observer.RecordAttempt(string(kind), false)
	e.notify(seq, snap)
}

// isPermanent reports whether the error says another attempt cannot succeed.
// Anything that does not explicitly say so is treated as transient.
func isPermanent(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && !r.Retryable()
}

// GetQueue returns a deep snapshot copy, safe for UI rendering.
func (e *Engine) GetQueue() []*model.QueueItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// GetPendingCount counts items still awaiting delivery (pending or in-flight).
func (e *Engine) GetPendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	pending, _ := e.countLocked()
	return pending
}

func (e *Engine) GetFailedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, failed := e.countLocked()
	return failed
}

// IsPendingSync reports whether the item is still in the queue, i.e. has not
// been delivered or discarded yet.
func (e *Engine) IsPendingSync(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findLocked(id) != nil
}

// Subscribe registers a listener called with a full snapshot after every
// mutation. The returned function deregisters it; extra calls are no-ops.
func (e *Engine) Subscribe(fn Listener) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// RetryItem resets a failed item for another round of attempts. No-op if the
// item is missing or not failed.
func (e *Engine) RetryItem(id string) {
	e.mu.Lock()
	item := e.findLocked(id)
	if item == nil || item.Status != model.StatusFailed {
		e.mu.Unlock()
		return
	}
	item.Status = model.StatusPending
	item.RetryCount = 0
	e.persistLocked()
	seq, snap := e.publishLocked()
	e.mu.Unlock()

	logger.Info("failed mutation queued for retry", zap.String("id", id))
	e.notify(seq, snap)
	e.TriggerSync()
}

// RetryAllFailed resets every failed item with a single persist and notify.
func (e *Engine) RetryAllFailed() {
	e.mu.Lock()
	count := 0
	for _, item := range e.items {
		if item.Status == model.StatusFailed {
			item.Status = model.StatusPending
			item.RetryCount = 0
			count++
		}
	}
	if count == 0 {
		e.mu.Unlock()
		return
	}
	e.persistLocked()
	seq, snap := e.publishLocked()
	e.mu.Unlock()

	logger.Info("failed mutations queued for retry", zap.Int("count", count))
	e.notify(seq, snap)
	e.TriggerSync()
}

// RemoveItem deletes an item unconditionally, whatever its status.
func (e *Engine) RemoveItem(id string) {
	e.mu.Lock()
	if !e.removeLocked(id) {
		e.mu.Unlock()
		return
	}
	e.persistLocked()
	seq, snap := e.publishLocked()
	e.mu.Unlock()

	logger.Info("mutation removed", zap.String("id", id))
	e.notify(seq, snap)
}

func (e *Engine) findLocked(id string) *model.QueueItem {
	for _, item := range e.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (e *Engine) removeLocked(id string) bool {
	for i, item := range e.items {
		if item.ID == id {
			e.items = append(e.items[:i], e.items[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Engine) countLocked() (pending, failed int) {
	for _, item := range e.items {
		switch item.Status {
		case model.StatusPending, model.StatusInFlight:
			pending++
		case model.StatusFailed:
			failed++
		}
	}
	return pending, failed
}

func (e *Engine) snapshotLocked() []*model.QueueItem {
	snap := make([]*model.QueueItem, 0, len(e.items))
	for _, item := range e.items {
		snap = append(snap, item.Clone())
	}
	return snap
}

// persistLocked rewrites the durable snapshot. Failures are swallowed: losing
// a write loses durability until the next successful write, never the item.
func (e *Engine) persistLocked() {
	if err := e.store.Save(e.items); err != nil {
		logger.Warn("queue persist failed", zap.Error(err))
		e.opts.Observer.RecordPersistError()
	}
	e.opts.Observer.SetQueueDepth(e.countLocked())
}

// publishLocked stamps a snapshot with a sequence number so deliveries racing
// toward notify can be ordered.
func (e *Engine) publishLocked() (uint64, []*model.QueueItem) {
	e.seq++
	return e.seq, e.snapshotLocked()
}

// notify delivers snap to all listeners. Deliveries are serialized and stale
// snapshots dropped, so a listener's last-seen state never runs backwards
// when two mutations race here. Listeners run without mu held; they must not
// mutate the queue from the callback.
func (e *Engine) notify(seq uint64, snap []*model.QueueItem) {
	e.mu.Lock()
	fns := make([]Listener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if seq <= e.notified {
		return
	}
	e.notified = seq
	for _, fn := range fns {
		fn(snap)
	}
}
