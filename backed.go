package livequery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/livequery/internal/fanout"
	"github.com/arloliu/livequery/internal/lifecycle"
	"github.com/arloliu/livequery/internal/logging"
)

// BackedConfig describes a Backed value.
type BackedConfig[T any] struct {
	// Path is the document ID inside Namespace. It may contain the client's
	// placeholder (Config.PlaceholderID), replaced by the client identity.
	Path string

	// Namespace is the collection holding the document.
	Namespace string

	// Field is the document field holding the value.
	Field string

	// Default is the value used when neither a backup nor a remote value exists.
	Default T

	// Backup persists the value locally between runs. Nil disables persistence.
	Backup BackupStore

	// DisableRemote keeps the value local-only ("view" mode for local data).
	DisableRemote bool
}

// Backed is a value held locally and, unless disabled, mirrored to a document field.
//
// Its value is, in order of arrival: Default, the backup value, local Set calls and
// remote snapshots; the last one to arrive wins. Set applies locally at once; saving
// to the backup store and writing to the remote store happen in the background, in
// call order. Remote values are saved to the backup store so they survive restarts.
//
// Its lifecycle state mirrors the underlying query and additionally moves to error
// when a background write fails. A failed write is not rolled back. All methods are
// safe for concurrent use.
type Backed[T any] struct {
	client *Client
	cfg    BackedConfig[T]
	id     string
	logger Logger

	query   *Query
	machine *lifecycle.Machine
	values  *fanout.Fanout[T]

	// updateMu serializes Update so the binding and the query move together.
	updateMu sync.Mutex

	mu            sync.Mutex
	value         T
	path          string
	disableRemote bool
	bound         binding
	closed        bool

	writes   []pendingWrite[T]
	inflight *pendingWrite[T]
	writing  bool
	writesWG sync.WaitGroup
}

// binding is a path resolved against the client identity.
type binding struct {
	resolved string
	remote   bool
	key      string
}

// pendingWrite is one queued background operation: a backup save when backupKey
// is set, followed by a remote write when remote is true.
type pendingWrite[T any] struct {
	backupKey string
	remote    bool
	ref       DocumentRef
	value     T
}

// NewBacked creates a backed value and mounts its remote subscription when enabled.
//
// The initial value is the backup value when one is saved, else cfg.Default.
//
// Parameters:
//   - c: Client providing the store, configuration and identity
//   - cfg: Value description
//
// Returns:
//   - *Backed[T]: The backed value; call Close to release it
//   - error: ErrInvalidConfig when Namespace or Field is empty
//
// Example:
//
//	levels, err := livequery.NewBacked(client, livequery.BackedConfig[map[string]int]{
//	    Path: "%ID%", Namespace: "hero-list", Field: "levels", Default: map[string]int{},
//	})
func NewBacked[T any](c *Client, cfg BackedConfig[T]) (*Backed[T], error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("%w: backed namespace is empty", ErrInvalidConfig)
	}
	if cfg.Field == "" {
		return nil, fmt.Errorf("%w: backed field is empty", ErrInvalidConfig)
	}

	id := uuid.NewString()
	b := &Backed[T]{
		client:        c,
		cfg:           cfg,
		id:            id,
		logger:        logging.With(c.logger, "backed_id", id, "namespace", cfg.Namespace, "field", cfg.Field),
		values:        fanout.New[T](c.cfg.SubscriberBuffer, nil),
		path:          cfg.Path,
		disableRemote: cfg.DisableRemote,
	}
	b.bound = b.bind(cfg.Path, cfg.DisableRemote)
	b.value = b.loadBackup(b.bound.key)
	desc := b.bound.descriptor(cfg.Namespace)

	b.machine = lifecycle.NewMachine(
		id,
		lifecycle.Initial(desc != nil, false),
		b.logger,
		c.metrics,
		c.cfg.SubscriberBuffer,
		func(from, to Status) { c.fireStateChanged(id, from, to) },
	)
	b.query = c.Query(WithDescriptor(desc), withObserver(b.observe))

	return b, nil
}

// ID returns the unique identifier used in logs and hooks.
func (b *Backed[T]) ID() string {
	return b.id
}

// Value returns the current value.
func (b *Backed[T]) Value() T {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.value
}

// State returns the lifecycle state: the underlying query's state, or error after a
// failed write.
func (b *Backed[T]) State() State {
	return b.machine.State()
}

// Remote reports whether the value is currently bound to a remote document.
func (b *Backed[T]) Remote() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.bound.remote
}

// Path returns the resolved document path.
func (b *Backed[T]) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.bound.resolved
}

// Subscribe returns a channel receiving value changes, starting with the current value.
//
// Returns:
//   - <-chan T: Channel that receives values
//   - func(): Unsubscribe function to clean up resources
func (b *Backed[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.values.Subscribe(b.value)
}

// SubscribeState returns a channel receiving lifecycle state changes.
// Like Query.Subscribe, a path change made while loading emits no second loading state.
func (b *Backed[T]) SubscribeState() (<-chan State, func()) {
	return b.machine.Subscribe()
}

// Wait blocks until the lifecycle state satisfies pred. See Query.Wait.
func (b *Backed[T]) Wait(ctx context.Context, pred func(State) bool) (State, error) {
	return waitState(ctx, b.machine, pred)
}

// Set replaces the value.
//
// The local value changes immediately. Saving to the backup store and, when the
// value is bound to a remote document, writing the field happen in the background,
// each bounded by Config.WriteTimeout. Write failures move the state to error, invoke
// Hooks.OnError and are logged; the local value is kept. Set after Close is ignored.
//
// Parameters:
//   - next: New value (must be JSON-serializable for remote and backup storage)
func (b *Backed[T]) Set(next T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Debug("set ignored on closed value")

		return
	}
	b.value = next
	b.values.Publish(next)
	startDrain := b.enqueueLocked(pendingWrite[T]{
		backupKey: b.backupKeyLocked(),
		remote:    b.bound.remote,
		ref:       Doc(b.cfg.Namespace, b.bound.resolved),
		value:     next,
	})
	b.mu.Unlock()

	if startDrain {
		b.startDrain()
	}
}

// Update re-renders the value with a new path and mode.
//
// The path is resolved again with the client's current identity. When the resolved
// path changes, the value restarts from the backup for the new path (or Default)
// and the remote subscription follows the new document. Snapshots of the previous
// document arriving after the switch are ignored.
//
// Parameters:
//   - path: Document ID, possibly containing the placeholder
//   - disableRemote: Keep the value local-only
func (b *Backed[T]) Update(path string, disableRemote bool) {
	b.updateMu.Lock()
	defer b.updateMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	prevKey := b.bound.key
	next := b.bind(path, disableRemote)
	pending, hasPending := b.pendingValueLocked(next.key)
	b.mu.Unlock()

	// The backup is read without holding the lock; queued saves for the key are newer.
	var loaded T
	moved := next.key != prevKey
	if moved {
		if hasPending {
			loaded = pending
		} else {
			loaded = b.loadBackup(next.key)
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.path = path
	b.disableRemote = disableRemote
	b.bound = next
	if moved {
		b.value = loaded
		b.values.Publish(loaded)
	}
	desc := b.bound.descriptor(b.cfg.Namespace)
	b.mu.Unlock()

	b.query.Update(desc, false)
}

// Close releases the subscription, waits for queued writes, and closes subscriber
// channels. Close is idempotent.
func (b *Backed[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.query.Close()
	b.writesWG.Wait()
	b.machine.Close()
	b.values.Close()
}

// bind resolves path with the client's current identity.
func (b *Backed[T]) bind(path string, disableRemote bool) binding {
	resolved, concrete := b.client.resolvePath(path)

	return binding{
		resolved: resolved,
		remote:   concrete && !disableRemote,
		key:      b.cfg.Namespace + "/" + resolved + "/" + b.cfg.Field,
	}
}

// descriptor returns the document to watch, or nil when remote is off.
func (bd binding) descriptor(namespace string) Descriptor {
	if !bd.remote {
		return nil
	}

	return Doc(namespace, bd.resolved)
}

// backupKeyLocked returns the key to save under, or "" without a backup store.
func (b *Backed[T]) backupKeyLocked() string {
	if b.cfg.Backup == nil {
		return ""
	}

	return b.bound.key
}

// pendingValueLocked returns the newest queued backup value for key, if any.
func (b *Backed[T]) pendingValueLocked(key string) (T, bool) {
	for i := len(b.writes) - 1; i >= 0; i-- {
		if b.writes[i].backupKey == key {
			return b.writes[i].value, true
		}
	}
	if b.inflight != nil && b.inflight.backupKey == key {
		return b.inflight.value, true
	}

	var zero T

	return zero, false
}

// observe receives every state of the underlying query, in order, under the query
// lock, together with the descriptor the state belongs to. States for a descriptor
// other than the current binding's are dropped.
func (b *Backed[T]) observe(d Descriptor, state State) {
	if state.Status == StatusSuccess {
		b.applyRemote(d, state)
		return
	}

	b.mu.Lock()
	current := !b.closed && DescriptorsEqual(d, b.bound.descriptor(b.cfg.Namespace))
	b.mu.Unlock()
	if !current {
		b.logger.Debug("dropped state of previous path", "status", state.Status.String())
		return
	}

	switch state.Status {
	case StatusIdle:
		b.machine.Dispatch(lifecycle.Reset())
	case StatusLoading:
		b.machine.Dispatch(lifecycle.Start())
	case StatusError:
		b.machine.Dispatch(lifecycle.Fail(state.Err))
	}
}

// applyRemote adopts the remote field value when d is still the bound document.
func (b *Backed[T]) applyRemote(d Descriptor, state State) {
	next, decodeErr := b.decode(state)

	b.mu.Lock()
	if b.closed || !DescriptorsEqual(d, b.bound.descriptor(b.cfg.Namespace)) {
		b.mu.Unlock()
		b.logger.Debug("dropped snapshot of previous path", "descriptor", fmt.Sprint(d))

		return
	}
	if decodeErr != nil {
		b.mu.Unlock()
		b.logger.Warn("remote value rejected", "error", decodeErr)
		b.machine.Dispatch(lifecycle.Fail(decodeErr))

		return
	}
	b.value = next
	b.values.Publish(next)
	startDrain := false
	if key := b.backupKeyLocked(); key != "" {
		startDrain = b.enqueueLocked(pendingWrite[T]{backupKey: key, value: next})
	}
	b.mu.Unlock()

	b.machine.Dispatch(lifecycle.Data(next))
	if startDrain {
		b.startDrain()
	}
}

// decode extracts the configured field from a document record.
func (b *Backed[T]) decode(state State) (T, error) {
	rec, _ := state.Record()
	raw, ok := rec[b.cfg.Field]
	if !ok || raw == nil {
		return b.cfg.Default, nil
	}
	if v, ok := raw.(T); ok {
		return v, nil
	}

	var out T
	data, err := json.Marshal(raw)
	if err != nil {
		return out, fmt.Errorf("%w: field %q: %w", ErrDecodeFailed, b.cfg.Field, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: field %q: %w", ErrDecodeFailed, b.cfg.Field, err)
	}

	return out, nil
}

// loadBackup returns the saved value for key, or Default.
func (b *Backed[T]) loadBackup(key string) T {
	if b.cfg.Backup == nil {
		return b.cfg.Default
	}

	ctx, cancel := context.WithTimeout(b.client.ctx, b.client.cfg.SubscribeTimeout)
	defer cancel()

	data, found, err := b.cfg.Backup.Load(ctx, key)
	b.client.metrics.RecordBackupOperation("load", err == nil)
	if err != nil {
		b.logger.Warn("backup load failed, using default", "key", key, "error", err)
		return b.cfg.Default
	}
	if !found {
		return b.cfg.Default
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		b.logger.Warn("backup value undecodable, using default", "key", key, "error", err)
		return b.cfg.Default
	}

	return v
}

// saveBackup persists v under key. Failures are logged and counted.
func (b *Backed[T]) saveBackup(parent context.Context, key string, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		b.client.metrics.RecordBackupOperation("save", false)
		b.logger.Warn("backup value not serializable", "key", key, "error", err)

		return
	}

	ctx, cancel := context.WithTimeout(parent, b.client.cfg.WriteTimeout)
	defer cancel()

	err = b.cfg.Backup.Save(ctx, key, data)
	b.client.metrics.RecordBackupOperation("save", err == nil)
	if err != nil {
		b.logger.Warn("backup save failed", "key", key, "error", err)
	}
}

// enqueueLocked queues w and reports whether a drain goroutine must be started.
// Operations with nothing to do are skipped. Must be called with b.mu held on an
// open value.
func (b *Backed[T]) enqueueLocked(w pendingWrite[T]) bool {
	if w.backupKey == "" && !w.remote {
		return false
	}
	b.writes = append(b.writes, w)
	if b.writing {
		return false
	}
	b.writing = true
	b.writesWG.Add(1)

	return true
}

// startDrain runs drainWrites in the background, failing the queue when the
// client no longer accepts background work.
func (b *Backed[T]) startDrain() {
	if b.client.goBackground(b.drainWrites) {
		return
	}

	b.mu.Lock()
	dropped := 0
	for _, w := range b.writes {
		if w.remote {
			dropped++
		}
	}
	b.writes = nil
	b.writing = false
	b.mu.Unlock()
	b.writesWG.Done()

	if dropped == 0 {
		b.logger.Warn("backup saves dropped on closed client")
		return
	}
	b.writeFailed(fmt.Errorf("%w: %d queued writes dropped: %w", ErrWriteFailed, dropped, ErrClosed))
}

// drainWrites applies queued operations in order until the queue is empty.
func (b *Backed[T]) drainWrites(ctx context.Context) {
	defer b.writesWG.Done()

	for {
		b.mu.Lock()
		b.inflight = nil
		if len(b.writes) == 0 {
			b.writing = false
			b.mu.Unlock()

			return
		}
		w := b.writes[0]
		b.writes = b.writes[1:]
		b.inflight = &w
		b.mu.Unlock()

		if w.backupKey != "" {
			b.saveBackup(ctx, w.backupKey, w.value)
		}
		if w.remote {
			b.write(ctx, w)
		}
	}
}

func (b *Backed[T]) write(parent context.Context, w pendingWrite[T]) {
	ctx, cancel := context.WithTimeout(parent, b.client.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := b.client.store.Write(ctx, w.ref, b.cfg.Field, w.value)
	b.client.metrics.RecordWrite(err == nil, time.Since(start).Seconds())

	if err != nil {
		if !errors.Is(err, ErrWriteFailed) {
			err = fmt.Errorf("%w: %s.%s: %w", ErrWriteFailed, w.ref, b.cfg.Field, err)
		}
		b.writeFailed(err)

		return
	}
	b.logger.Debug("remote write applied", "path", w.ref.String())
}

// writeFailed surfaces a write failure without touching the local value.
func (b *Backed[T]) writeFailed(err error) {
	b.logger.Error("remote write failed", "error", err)
	b.machine.Dispatch(lifecycle.Fail(err))
	b.client.fireError(b.id, err)
}
