// Package dashboard wires the live connection, event dispatch, record store,
// chat panel and periodic resync into one explicitly constructed object.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/cortexdash/internal/chat"
	"github.com/user/cortexdash/internal/dispatch"
	"github.com/user/cortexdash/internal/live"
	"github.com/user/cortexdash/internal/scheduler"
	"github.com/user/cortexdash/internal/store"
	"github.com/user/cortexdash/internal/types"
)

// Backend is everything the dashboard needs from the memory server besides
// the live connection.
type Backend interface {
	types.RecordSource
	types.RecordFetcher
	types.RecordWriter
	chat.Transport
}

// Dashboard owns every component of one dashboard instance. Nothing is
// shared through package state; two Dashboards are fully independent.
type Dashboard struct {
	backend    Backend
	logger     *slog.Logger
	conn       *live.Manager
	dispatcher *dispatch.Dispatcher
	coll       *store.Collection
	recon      *store.Reconciler
	panel      *chat.Panel
	sched      *scheduler.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	started     bool
	stopped     bool
	clientID    types.ClientID
	connections int
	lastPong    time.Time
}

// New builds a Dashboard from opts. Nothing touches the network until Start.
func New(opts Options) (*Dashboard, error) {
	if opts.Backend == nil {
		return nil, errors.New("dashboard: backend is required")
	}
	opts = opts.withDefaults()

	endpoint, err := live.EndpointFromOrigin(opts.Origin)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	if err := scheduler.Validate(opts.ResyncSchedule); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	d := &Dashboard{
		backend: opts.Backend,
		logger:  opts.Logger.With("component", "dashboard"),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.dispatcher = dispatch.New(opts.Logger)
	d.coll = store.NewCollection(opts.Sort, opts.RecentWindow)
	d.recon = store.NewReconciler(d.coll, opts.Backend, store.ReconcilerOptions{
		Project:        opts.Project,
		LoadTimeout:    opts.LoadTimeout,
		ConfirmTimeout: opts.ConfirmTimeout,
		Logger:         opts.Logger,
	})
	d.recon.Commands().OnRollback(func(cmd store.Command, reason error) {
		d.logger.Warn("optimistic change rolled back", "record_id", cmd.RecordID, "kind", cmd.Kind, "reason", reason)
	})

	liveOpts := []live.Option{live.WithPolicy(opts.Policy), live.WithLogger(opts.Logger)}
	if opts.Dialer != nil {
		liveOpts = append(liveOpts, live.WithDialer(opts.Dialer))
	}
	d.conn = live.NewManager(endpoint, d.dispatcher.Dispatch, liveOpts...)

	d.panel = chat.NewPanel(opts.Backend, chat.Options{
		Project:      d.recon.Project,
		Timeout:      opts.ChatTimeout,
		TickInterval: opts.ChatTickInterval,
		Logger:       opts.Logger,
	})
	d.sched = scheduler.New(opts.ResyncSchedule, func(ctx context.Context) {
		d.resync(ctx, "schedule")
	}, opts.Logger)

	d.registerHandlers()
	return d, nil
}

func (d *Dashboard) registerHandlers() {
	d.dispatcher.Handle(types.EventConnected, d.handleConnected)
	d.dispatcher.Handle(types.EventPong, func(types.InboundEvent) {
		d.mu.Lock()
		d.lastPong = time.Now()
		d.mu.Unlock()
	})
	d.dispatcher.Handle(types.EventMemoryCreated, func(ev types.InboundEvent) {
		r, err := dispatch.DecodeRecord(ev)
		if err != nil {
			d.logger.Warn("dropping event", "error", err)
			return
		}
		d.recon.ApplyCreate(r)
	})
	d.dispatcher.Handle(types.EventMemoryUpdated, func(ev types.InboundEvent) {
		r, err := dispatch.DecodeRecord(ev)
		if err != nil {
			d.logger.Warn("dropping event", "error", err)
			return
		}
		d.recon.ApplyUpdate(r)
	})
	d.dispatcher.Handle(types.EventMemoryDeleted, func(ev types.InboundEvent) {
		id, err := dispatch.DecodeDeletedID(ev)
		if err != nil {
			d.logger.Warn("dropping event", "error", err)
			return
		}
		d.recon.ApplyDelete(id)
	})
	d.dispatcher.Handle(types.EventDatabaseChanged, func(ev types.InboundEvent) {
		var data types.DatabaseChangedData
		if err := dispatch.DecodeData(ev, &data); err != nil {
			d.logger.Debug("database_changed payload ignored", "error", err)
		}
		d.triggerResync("database_changed " + data.Path)
	})
}

// handleConnected records the server-assigned client id. Every connection
// after the first may have missed events, so it triggers a resync. So does
// the first one when the initial load never succeeded.
func (d *Dashboard) handleConnected(ev types.InboundEvent) {
	var data types.ConnectedData
	if err := dispatch.DecodeData(ev, &data); err != nil {
		d.logger.Warn("bad connected payload", "error", err)
	}
	d.mu.Lock()
	d.clientID = data.ClientID
	d.connections++
	reconnected := d.connections > 1
	d.mu.Unlock()

	d.logger.Info("live connection established", "client_id", data.ClientID)
	switch {
	case reconnected:
		d.triggerResync("reconnected")
	case d.recon.LastSync().IsZero():
		d.triggerResync("connected before first load")
	}
}

// triggerResync runs a resync in the background. Concurrent triggers are
// coalesced by the reconciler.
func (d *Dashboard) triggerResync(reason string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.resync(d.ctx, reason)
	}()
}

func (d *Dashboard) resync(ctx context.Context, reason string) {
	d.logger.Debug("resync triggered", "reason", reason)
	err := d.recon.Resync(ctx)
	if err != nil && !errors.Is(err, store.ErrClosed) && ctx.Err() == nil {
		d.logger.Warn("resync failed", "reason", reason, "error", err)
	}
}

// Start loads the collection, opens the live connection and starts the
// periodic resync. A failed initial load is logged, not fatal: the live
// connection and later resyncs can still bring the view up to date.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started || d.stopped {
		d.mu.Unlock()
		return errors.New("dashboard: already started")
	}
	d.started = true
	d.mu.Unlock()

	if err := d.recon.Resync(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Error("initial load failed", "project", d.recon.Project(), "error", err)
	}
	if err := d.sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	d.conn.Connect()
	d.logger.Info("dashboard started", "endpoint", d.conn.Endpoint(), "project", d.recon.Project(), "records", d.coll.Len())
	return nil
}

// Stop tears down every component: scheduler, live connection, chat session
// and in-flight resyncs. It is safe to call more than once.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.cancel()
	d.sched.Stop()
	d.conn.Close()
	d.panel.Close()
	d.recon.Close()
	d.wg.Wait()
	d.logger.Info("dashboard stopped")
}

// Reconnect starts a fresh connection attempt, e.g. after the reconnect
// budget ran out.
func (d *Dashboard) Reconnect() {
	d.conn.Connect()
}

// Disconnect closes the live connection without stopping the dashboard.
func (d *Dashboard) Disconnect() {
	d.conn.Disconnect()
}

// Resync reloads the collection and waits for the result.
func (d *Dashboard) Resync(ctx context.Context) error {
	return d.recon.Resync(ctx)
}

// SetProject switches the dashboard to project and reloads.
func (d *Dashboard) SetProject(ctx context.Context, project string) error {
	return d.recon.SetProject(ctx, project)
}

// SetSort re-sorts the collection. Later loads use the new order.
func (d *Dashboard) SetSort(s types.Sort) {
	d.coll.SetSort(s)
}

// SetResyncSchedule swaps the periodic resync schedule.
func (d *Dashboard) SetResyncSchedule(schedule string) error {
	return d.sched.Reload(schedule)
}

// UpdateRecord applies r locally at once and sends it to the backend. The
// change is confirmed by its live echo; if the request fails it is rolled
// back and the error returned.
func (d *Dashboard) UpdateRecord(ctx context.Context, r types.Record) error {
	cmd, err := d.recon.Commands().Update(r)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.ID, err)
	}
	if _, err := d.backend.UpdateRecord(ctx, d.recon.Project(), r); err != nil {
		d.recon.Commands().Fail(cmd.ID, err)
		return fmt.Errorf("update %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRecord removes id locally at once and asks the backend to delete
// it, restoring the record if the request fails.
func (d *Dashboard) DeleteRecord(ctx context.Context, id types.RecordID) error {
	cmd, err := d.recon.Commands().Delete(id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if err := d.backend.DeleteRecord(ctx, d.recon.Project(), id); err != nil {
		d.recon.Commands().Fail(cmd.ID, err)
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// OpenCitation resolves a chat source id to its record, from the local
// collection when present and from the backend otherwise.
func (d *Dashboard) OpenCitation(ctx context.Context, id types.RecordID) (types.Record, error) {
	if r, ok := d.coll.Get(id); ok {
		return r, nil
	}
	r, err := d.backend.GetRecord(ctx, d.recon.Project(), id)
	if err != nil {
		return types.Record{}, fmt.Errorf("open citation %s: %w", id, err)
	}
	return *r, nil
}

// Chat returns the chat panel.
func (d *Dashboard) Chat() *chat.Panel { return d.panel }

// Records returns the current collection in display order.
func (d *Dashboard) Records() []types.Record { return d.coll.Snapshot() }

// Record returns the loaded record with id.
func (d *Dashboard) Record(id types.RecordID) (types.Record, bool) { return d.coll.Get(id) }

// IsRecent reports whether id arrived live within the recent window.
func (d *Dashboard) IsRecent(id types.RecordID) bool { return d.coll.IsRecent(id) }

// OnRecordsChange registers an observer for collection changes. fn runs
// while the store is locked and must not call back into the Dashboard.
func (d *Dashboard) OnRecordsChange(fn func(store.Change)) { d.coll.OnChange(fn) }

// OnStateChange registers an observer for connection state transitions.
func (d *Dashboard) OnStateChange(fn live.StateObserver) { d.conn.OnStateChange(fn) }

// State returns the live connection state.
func (d *Dashboard) State() live.State { return d.conn.State() }

// Status is a point-in-time summary for status bars.
type Status struct {
	State    live.State
	Attempts int
	Endpoint string
	ClientID types.ClientID
	Project  string
	Records  int
	Pending  int
	LastSync time.Time
	LastPong time.Time
	Events   dispatch.Stats
}

// Status returns a snapshot of connection and store state.
func (d *Dashboard) Status() Status {
	d.mu.Lock()
	clientID, lastPong := d.clientID, d.lastPong
	d.mu.Unlock()
	return Status{
		State:    d.conn.State(),
		Attempts: d.conn.Attempts(),
		Endpoint: d.conn.Endpoint(),
		ClientID: clientID,
		Project:  d.recon.Project(),
		Records:  d.coll.Len(),
		Pending:  d.recon.Commands().Pending(),
		LastSync: d.recon.LastSync(),
		LastPong: lastPong,
		Events:   d.dispatcher.Stats(),
	}
}
