package store

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/user/cortexdash/internal/types"
)

var (
	// ErrUnknownRecord is returned when a command targets a record the
	// collection does not hold.
	ErrUnknownRecord = errors.New("unknown record")
	// ErrConfirmTimeout is the rollback reason when no live event confirms
	// a command in time.
	ErrConfirmTimeout = errors.New("change not confirmed by server")
)

// DefaultConfirmTimeout bounds how long an optimistic change waits for its
// live echo.
const DefaultConfirmTimeout = 10 * time.Second

type CommandKind string

const (
	CommandUpdate CommandKind = "update"
	CommandDelete CommandKind = "delete"
)

// Command is an optimistic change applied locally before the backend has
// acknowledged it. Before holds the state to restore on rollback; it is nil
// when the record did not exist.
type Command struct {
	ID       types.CommandID
	Kind     CommandKind
	RecordID types.RecordID
	Before   *types.Record
	IssuedAt time.Time

	timer *time.Timer
}

// RollbackFunc is told about every command that was rolled back.
type RollbackFunc func(cmd Command, reason error)

// Commands tracks pending optimistic changes against a collection. A
// pending command ends in one of three ways: a live event for its record
// confirms it, a full resync settles it, or a failure or timeout rolls it
// back.
type Commands struct {
	coll    *Collection
	timeout time.Duration
	logger  *slog.Logger

	mu         sync.Mutex
	pending    map[types.RecordID]*Command
	onRollback []RollbackFunc
}

func NewCommands(coll *Collection, timeout time.Duration, logger *slog.Logger) *Commands {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{
		coll:    coll,
		timeout: timeout,
		logger:  logger.With("component", "commands"),
		pending: make(map[types.RecordID]*Command),
	}
}

// OnRollback registers a rollback observer.
func (cs *Commands) OnRollback(fn RollbackFunc) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.onRollback = append(cs.onRollback, fn)
}

// Update applies r locally and registers the rollback.
func (cs *Commands) Update(r types.Record) (*Command, error) {
	before, ok := cs.coll.Get(r.ID)
	if !ok {
		return nil, ErrUnknownRecord
	}
	cmd := cs.register(CommandUpdate, r.ID, &before)
	cs.coll.ApplyUpdate(r)
	return cmd, nil
}

// Delete removes id locally and registers the rollback.
func (cs *Commands) Delete(id types.RecordID) (*Command, error) {
	before, ok := cs.coll.Get(id)
	if !ok {
		return nil, ErrUnknownRecord
	}
	cmd := cs.register(CommandDelete, id, &before)
	cs.coll.ApplyDelete(id)
	return cmd, nil
}

// register records a command. If another command is still pending for the
// same record, the new one inherits its rollback state so a rollback
// restores the last server-confirmed version.
func (cs *Commands) register(kind CommandKind, id types.RecordID, before *types.Record) *Command {
	cmd := &Command{
		ID:       types.NewCommandID(),
		Kind:     kind,
		RecordID: id,
		Before:   before,
		IssuedAt: time.Now(),
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if prev, ok := cs.pending[id]; ok {
		prev.timer.Stop()
		cmd.Before = prev.Before
	}
	cs.pending[id] = cmd
	cmdID := cmd.ID
	cmd.timer = time.AfterFunc(cs.timeout, func() {
		cs.Fail(cmdID, ErrConfirmTimeout)
	})
	return cmd
}

// Confirm ends the pending command for id, if any. It is called when a live
// event for id has been applied.
func (cs *Commands) Confirm(id types.RecordID) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cmd, ok := cs.pending[id]
	if !ok {
		return false
	}
	cmd.timer.Stop()
	delete(cs.pending, id)
	cs.logger.Debug("change confirmed", "command_id", cmd.ID, "record_id", id, "kind", cmd.Kind)
	return true
}

// Fail rolls back the command with cmdID if it is still pending.
func (cs *Commands) Fail(cmdID types.CommandID, reason error) bool {
	cs.mu.Lock()
	var cmd *Command
	for _, c := range cs.pending {
		if c.ID == cmdID {
			cmd = c
			break
		}
	}
	if cmd == nil {
		cs.mu.Unlock()
		return false
	}
	cmd.timer.Stop()
	delete(cs.pending, cmd.RecordID)
	observers := cs.onRollback
	cs.mu.Unlock()

	if cmd.Before != nil {
		cs.coll.ApplyUpdate(*cmd.Before)
	} else {
		cs.coll.ApplyDelete(cmd.RecordID)
	}
	cs.logger.Warn("change rolled back", "command_id", cmd.ID, "record_id", cmd.RecordID, "kind", cmd.Kind, "reason", reason)
	for _, fn := range observers {
		fn(*cmd, reason)
	}
	return true
}

// Settle drops every pending command without rolling back. It is called
// after a full resync, whose result is authoritative.
func (cs *Commands) Settle() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := len(cs.pending)
	for id, cmd := range cs.pending {
		cmd.timer.Stop()
		delete(cs.pending, id)
	}
	return n
}

// Pending returns the number of unconfirmed commands.
func (cs *Commands) Pending() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.pending)
}
