package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/user/cortexdash/internal/cancel"
	"github.com/user/cortexdash/internal/types"
)

var (
	// ErrClosed is returned by Resync after Close.
	ErrClosed = errors.New("reconciler closed")

	// errSuperseded marks a load whose project was switched away mid-flight.
	errSuperseded = errors.New("load superseded by project switch")
)

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	Project        string
	LoadTimeout    time.Duration
	ConfirmTimeout time.Duration
	Logger         *slog.Logger
}

// Reconciler applies live events and full resyncs to a Collection. Events
// must be applied in arrival order; events for different ids commute.
// Collection observers must not call back into the Reconciler.
type Reconciler struct {
	coll     *Collection
	source   types.RecordSource
	commands *Commands
	timeout  time.Duration
	logger   *slog.Logger
	group    singleflight.Group

	mu        sync.Mutex
	project   string
	loadTok   *cancel.Token
	requested uint64
	completed uint64
	lastSync  time.Time
	closed    bool

	// While a load is in flight, live events are recorded and replayed on
	// top of its snapshot, which may predate them.
	loading bool
	journal []journalEntry
}

type journalEntry struct {
	kind ChangeKind
	rec  types.Record
	id   types.RecordID
}

// NewReconciler wires a reconciler to coll and source.
func NewReconciler(coll *Collection, source types.RecordSource, opts ReconcilerOptions) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.LoadTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reconciler{
		coll:     coll,
		source:   source,
		commands: NewCommands(coll, opts.ConfirmTimeout, logger),
		timeout:  timeout,
		logger:   logger.With("component", "reconciler"),
		project:  opts.Project,
		loadTok:  cancel.New(),
	}
}

// Collection returns the collection being reconciled.
func (r *Reconciler) Collection() *Collection {
	return r.coll
}

// Commands returns the optimistic command tracker.
func (r *Reconciler) Commands() *Commands {
	return r.commands
}

// Project returns the active project.
func (r *Reconciler) Project() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.project
}

// LastSync returns when the last full resync completed.
func (r *Reconciler) LastSync() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSync
}

// ApplyCreate inserts rec, or updates it if the id is already present.
func (r *Reconciler) ApplyCreate(rec types.Record) {
	ch := r.apply(journalEntry{kind: ChangeCreated, rec: rec, id: rec.ID})
	r.commands.Confirm(rec.ID)
	r.logger.Debug("applied create", "record_id", rec.ID, "result", ch.Kind)
}

// ApplyUpdate replaces rec, or inserts it if the id is missing.
func (r *Reconciler) ApplyUpdate(rec types.Record) {
	ch := r.apply(journalEntry{kind: ChangeUpdated, rec: rec, id: rec.ID})
	r.commands.Confirm(rec.ID)
	r.logger.Debug("applied update", "record_id", rec.ID, "result", ch.Kind)
}

// ApplyDelete removes id. Deleting an unknown id is a no-op.
func (r *Reconciler) ApplyDelete(id types.RecordID) {
	ch := r.apply(journalEntry{kind: ChangeDeleted, id: id})
	r.commands.Confirm(id)
	if ch.Kind == "" {
		r.logger.Debug("delete for unknown record ignored", "record_id", id)
	}
}

// apply mutates the collection under r.mu so that an event is either in
// the journal of the running load or lands after its Replace.
func (r *Reconciler) apply(e journalEntry) Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loading {
		r.journal = append(r.journal, e)
	}
	return r.applyEntry(e)
}

func (r *Reconciler) applyEntry(e journalEntry) Change {
	switch e.kind {
	case ChangeCreated:
		return r.coll.ApplyCreate(e.rec)
	case ChangeUpdated:
		return r.coll.ApplyUpdate(e.rec)
	default:
		ch, _ := r.coll.ApplyDelete(e.id)
		return ch
	}
}

// Resync reloads the whole collection from the source and replaces it.
// Concurrent calls share one load. A call made while a load is already in
// flight waits for a further load, so the result is never older than the
// call. ctx only bounds how long the caller waits.
func (r *Reconciler) Resync(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.requested++
	want := r.requested
	r.mu.Unlock()

	for {
		ch := r.group.DoChan("resync", r.load)
		select {
		case res := <-ch:
			if res.Err != nil && !errors.Is(res.Err, errSuperseded) {
				return res.Err
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		r.mu.Lock()
		done, closed := r.completed >= want, r.closed
		r.mu.Unlock()
		if done {
			return nil
		}
		if closed {
			return ErrClosed
		}
	}
}

func (r *Reconciler) load() (any, error) {
	r.mu.Lock()
	seq := r.requested
	project := r.project
	tok := r.loadTok
	r.loading = true
	r.journal = nil
	r.mu.Unlock()
	defer r.endLoad()

	ctx, release := tok.Bind(context.Background())
	defer release()
	ctx, cancelTimeout := context.WithTimeout(ctx, r.timeout)
	defer cancelTimeout()

	started := time.Now()
	records, err := r.source.LoadRecords(ctx, project, r.coll.Sort())
	if tok.Cancelled() {
		return nil, errSuperseded
	}
	if err != nil {
		r.logger.Error("resync failed", "project", project, "error", err)
		return nil, fmt.Errorf("load records: %w", err)
	}

	r.mu.Lock()
	if tok != r.loadTok {
		r.mu.Unlock()
		return nil, errSuperseded
	}
	r.coll.Replace(records)
	for _, e := range r.journal {
		r.applyEntry(e)
	}
	replayed := len(r.journal)
	r.journal = nil
	settled := r.commands.Settle()
	if seq > r.completed {
		r.completed = seq
	}
	r.lastSync = time.Now()
	r.mu.Unlock()

	r.logger.Info("resynced", "project", project, "records", len(records), "replayed", replayed, "settled", settled, "duration", time.Since(started))
	return len(records), nil
}

func (r *Reconciler) endLoad() {
	r.mu.Lock()
	r.loading = false
	r.journal = nil
	r.mu.Unlock()
}

// SetProject switches to project. Any in-flight load for the previous
// project is cancelled and its result discarded, the collection is cleared
// and a resync for the new project runs before SetProject returns.
func (r *Reconciler) SetProject(ctx context.Context, project string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	old := r.loadTok
	r.loadTok = cancel.New()
	r.project = project
	r.journal = nil
	r.mu.Unlock()

	old.Cancel()
	r.commands.Settle()
	r.coll.Replace(nil)
	r.logger.Info("project switched", "project", project)
	return r.Resync(ctx)
}

// Close cancels any in-flight load.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	tok := r.loadTok
	r.mu.Unlock()
	tok.Cancel()
	r.commands.Settle()
}
