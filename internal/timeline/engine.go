// Package timeline owns the simulated clock: the current date, the pause
// guard and the set of branching timelines that each carry their own cursor.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/observability"
)

// Store is the persistence the clock needs for branches
type Store interface {
	ListBranches(ctx context.Context) ([]*domain.TimelineBranch, error)
	GetBranch(ctx context.Context, id string) (*domain.TimelineBranch, error)
	CreateBranch(ctx context.Context, b *domain.TimelineBranch) error
	UpdateBranchDate(ctx context.Context, id string, date domain.Date) error
	ActiveBranchID(ctx context.Context) (string, error)
	SetActiveBranch(ctx context.Context, id string) error
}

// CatchUp fires every due event as of a date. It runs as part of every
// clock mutation.
type CatchUp interface {
	RunDue(ctx context.Context, now domain.Date) (*domain.ExecutionReport, error)
}

// Purger removes derived records dated after a rollback target
type Purger interface {
	DeletePacketsAfter(ctx context.Context, date domain.Date) (int, error)
}

// RollbackPolicy decides what RollbackTo does besides moving the cursor
type RollbackPolicy string

const (
	// RollbackPurge deletes day packets dated after the target.
	// Executed events stay executed.
	RollbackPurge RollbackPolicy = "purge"
	// RollbackSoft only moves the cursor and writes the audit entry
	RollbackSoft RollbackPolicy = "soft"
)

// ParseRollbackPolicy validates a policy name
func ParseRollbackPolicy(s string) (RollbackPolicy, error) {
	switch p := RollbackPolicy(strings.ToLower(s)); p {
	case RollbackPurge, RollbackSoft:
		return p, nil
	case "":
		return RollbackPurge, nil
	default:
		return "", fmt.Errorf("unknown rollback policy %q (expected purge or soft)", s)
	}
}

// State is an immutable snapshot of the clock handed to observers
type State struct {
	CurrentDate    domain.Date             `json:"current_date"`
	StartDate      domain.Date             `json:"start_date"`
	IsPaused       bool                    `json:"is_paused"`
	ActiveBranchID string                  `json:"active_branch_id,omitempty"`
	Branches       []domain.TimelineBranch `json:"branches"`
}

// Listener receives a snapshot after every successful mutation.
// Listeners run synchronously and must not call back into Engine mutators.
type Listener func(State)

// Advance describes one clock movement and the catch-up it triggered
type Advance struct {
	From    domain.Date             `json:"from"`
	To      domain.Date             `json:"to"`
	Applied bool                    `json:"applied"`
	Report  *domain.ExecutionReport `json:"report,omitempty"`
}

// Rollback describes a completed RollbackTo
type Rollback struct {
	Advance
	Policy        RollbackPolicy `json:"policy"`
	PacketsPurged int            `json:"packets_purged"`
}

// Config holds the optional collaborators of an Engine
type Config struct {
	Logger         *slog.Logger
	Purger         Purger
	RollbackPolicy RollbackPolicy
}

// Engine is the clock state machine and branch manager
type Engine struct {
	store   Store
	catchUp CatchUp
	purger  Purger
	policy  RollbackPolicy
	log     *slog.Logger
	audit   *slog.Logger

	// opMu serializes mutating operations end to end, including the
	// catch-up pass and observer fan-out. mu guards the fields below.
	opMu sync.Mutex
	mu   sync.RWMutex

	currentDate domain.Date
	startDate   domain.Date
	isPaused    bool
	activeID    string
	branches    []*domain.TimelineBranch

	listeners    []listenerEntry
	nextListener int
}

type listenerEntry struct {
	id int
	fn Listener
}

// New creates a paused Engine anchored at today. Call Initialize before use.
func New(store Store, cfg Config) *Engine {
	if cfg.RollbackPolicy == "" {
		cfg.RollbackPolicy = RollbackPurge
	}
	today := domain.Today()
	return &Engine{
		store:       store,
		purger:      cfg.Purger,
		policy:      cfg.RollbackPolicy,
		log:         observability.For(cfg.Logger, observability.ChannelSystem),
		audit:       observability.For(cfg.Logger, observability.ChannelAudit),
		currentDate: today,
		startDate:   today,
		isPaused:    true,
	}
}

// SetCatchUp installs the due-event runner invoked after every clock mutation
func (e *Engine) SetCatchUp(c CatchUp) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.catchUp = c
}

// Initialize anchors the clock at start (today when nil), pauses it and
// adopts the persisted active branch if there is one. When loading fails the
// engine still reports a valid anonymous clock and the error is returned.
func (e *Engine) Initialize(ctx context.Context, start *domain.Date) (Advance, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	date := domain.Today()
	if start != nil && !start.IsZero() {
		date = *start
	}

	e.mu.Lock()
	from := e.currentDate
	e.startDate = date
	e.currentDate = date
	e.isPaused = true
	e.activeID = ""
	e.branches = nil
	e.mu.Unlock()

	branches, err := e.store.ListBranches(ctx)
	if err != nil {
		e.notify()
		return Advance{From: from, To: date}, fmt.Errorf("loading branches: %w", err)
	}
	activeID, err := e.store.ActiveBranchID(ctx)
	if err != nil {
		e.notify()
		return Advance{From: from, To: date}, fmt.Errorf("loading active branch: %w", err)
	}

	e.mu.Lock()
	e.branches = branches
	for _, b := range branches {
		if b.ID == activeID {
			e.activeID = b.ID
			e.currentDate = b.CurrentDate
		}
	}
	now := e.currentDate
	active := e.activeID
	e.mu.Unlock()

	e.notify()
	e.log.Info("Time engine initialized", "date", date.String(), "current", now.String(), "branch", active)

	report, err := e.runCatchUp(ctx, now)
	return Advance{From: from, To: now, Applied: true, Report: report}, err
}

// State returns a snapshot of the clock
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// CurrentDate returns the simulated "now"
func (e *Engine) CurrentDate() domain.Date {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentDate
}

// StartDate returns the date the simulation started from
func (e *Engine) StartDate() domain.Date {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.startDate
}

// Tick advances the clock by days calendar days. While paused it is a logged
// no-op that returns Applied == false and no error.
func (e *Engine) Tick(ctx context.Context, days int) (Advance, error) {
	if days < 0 {
		return Advance{}, fmt.Errorf("%w: cannot tick by %d days, use jump or rollback to move backwards", domain.ErrInvalidOperation, days)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.RLock()
	paused := e.isPaused
	now := e.currentDate
	e.mu.RUnlock()

	if paused {
		e.log.Warn("Cannot tick while paused", "date", now.String(), "days", days)
		return Advance{From: now, To: now}, nil
	}

	target, err := now.Shift(days)
	if err != nil {
		return Advance{From: now, To: now}, err
	}
	return e.jumpLocked(ctx, target)
}

// JumpTo sets the clock to an arbitrary date, ignoring the pause guard.
// Jumping backwards is allowed.
func (e *Engine) JumpTo(ctx context.Context, date domain.Date) (Advance, error) {
	if date.IsZero() {
		return Advance{}, fmt.Errorf("%w: jump target date is required", domain.ErrInvalidOperation)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.jumpLocked(ctx, date)
}

func (e *Engine) jumpLocked(ctx context.Context, date domain.Date) (Advance, error) {
	e.mu.RLock()
	from := e.currentDate
	activeID := e.activeID
	e.mu.RUnlock()

	if err := date.Validate(); err != nil {
		return Advance{From: from, To: from}, err
	}

	// Persist before touching memory so a failed write leaves the clock as it was.
	if activeID != "" {
		if err := e.store.UpdateBranchDate(ctx, activeID, date); err != nil {
			return Advance{From: from, To: from}, fmt.Errorf("moving branch %s: %w", activeID, err)
		}
	}

	e.mu.Lock()
	e.currentDate = date
	for _, b := range e.branches {
		if b.ID == activeID {
			b.CurrentDate = date
		}
	}
	e.mu.Unlock()

	e.notify()
	e.log.Info("Time jumped", "from", from.String(), "date", date.String(), "branch", activeID)

	report, err := e.runCatchUp(ctx, date)
	return Advance{From: from, To: date, Applied: true, Report: report}, err
}

// CreateBranch records a new inactive branch whose cursor starts at from
// (the current date when nil). It does not switch to it.
func (e *Engine) CreateBranch(ctx context.Context, name string, from *domain.Date) (*domain.TimelineBranch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: branch name is required", domain.ErrInvalidOperation)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	date := e.CurrentDate()
	if from != nil && !from.IsZero() {
		date = *from
	}
	if err := date.Validate(); err != nil {
		return nil, err
	}

	b := &domain.TimelineBranch{
		ID:           uuid.NewString(),
		Name:         name,
		BranchedFrom: date,
		CurrentDate:  date,
		CreatedAt:    time.Now(),
	}
	if err := e.store.CreateBranch(ctx, b); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.branches = append(e.branches, b)
	e.mu.Unlock()

	e.notify()
	e.log.Info("Branch created", "branch_id", b.ID, "name", name, "from", date.String())
	return b.Clone(), nil
}

// SwitchBranch makes id the active branch and adopts its cursor. The switch
// is a single pointer write, so exactly one branch is active afterwards.
func (e *Engine) SwitchBranch(ctx context.Context, id string) (Advance, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.RLock()
	from := e.currentDate
	e.mu.RUnlock()

	target, err := e.store.GetBranch(ctx, id)
	if err != nil {
		return Advance{From: from, To: from}, err
	}
	if err := e.store.SetActiveBranch(ctx, id); err != nil {
		return Advance{From: from, To: from}, err
	}

	e.mu.Lock()
	e.activeID = target.ID
	e.currentDate = target.CurrentDate
	known := false
	for _, b := range e.branches {
		b.IsActive = b.ID == target.ID
		if b.IsActive {
			b.CurrentDate = target.CurrentDate
			known = true
		}
	}
	if !known {
		target.IsActive = true
		e.branches = append(e.branches, target)
	}
	e.mu.Unlock()

	e.notify()
	e.log.Info("Switched branch", "branch_id", id, "date", target.CurrentDate.String())

	report, err := e.runCatchUp(ctx, target.CurrentDate)
	return Advance{From: from, To: target.CurrentDate, Applied: true, Report: report}, err
}

// Pause stops Tick from advancing the clock
func (e *Engine) Pause() {
	e.setPaused(true)
	e.log.Info("Time paused")
}

// Resume lets Tick advance the clock again
func (e *Engine) Resume() {
	e.setPaused(false)
	e.log.Info("Time resumed")
}

func (e *Engine) setPaused(paused bool) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	e.isPaused = paused
	e.mu.Unlock()

	e.notify()
}

// RollbackTo is an audited jump, normally backwards. Under RollbackPurge the
// day packets dated after date are deleted; executed events are left alone.
func (e *Engine) RollbackTo(ctx context.Context, date domain.Date) (Rollback, error) {
	if date.IsZero() {
		return Rollback{}, fmt.Errorf("%w: rollback target date is required", domain.ErrInvalidOperation)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	from := e.CurrentDate()
	e.audit.Warn("Time rollback initiated", "from", from.String(), "date", date.String(), "policy", string(e.policy))

	adv, err := e.jumpLocked(ctx, date)
	result := Rollback{Advance: adv, Policy: e.policy}
	if !adv.Applied {
		return result, err
	}

	if e.policy == RollbackPurge && e.purger != nil {
		n, perr := e.purger.DeletePacketsAfter(ctx, date)
		if perr != nil {
			err = errors.Join(err, fmt.Errorf("purging packets after %s: %w", date, perr))
		}
		result.PacketsPurged = n
	}

	e.audit.Warn("Time rollback completed", "from", from.String(), "date", date.String(), "packets_purged", result.PacketsPurged)
	return result, err
}

// Subscribe registers a listener and returns a function that removes it
func (e *Engine) Subscribe(fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextListener++
	id := e.nextListener
	e.listeners = append(e.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// notify fans a fresh snapshot out to every listener. Callers hold opMu,
// which keeps notifications in issuance order.
func (e *Engine) notify() {
	e.mu.RLock()
	state := e.snapshotLocked()
	listeners := make([]Listener, len(e.listeners))
	for i, l := range e.listeners {
		listeners[i] = l.fn
	}
	e.mu.RUnlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func (e *Engine) snapshotLocked() State {
	branches := make([]domain.TimelineBranch, len(e.branches))
	for i, b := range e.branches {
		branches[i] = *b
		branches[i].IsActive = b.ID == e.activeID
	}
	return State{
		CurrentDate:    e.currentDate,
		StartDate:      e.startDate,
		IsPaused:       e.isPaused,
		ActiveBranchID: e.activeID,
		Branches:       branches,
	}
}

func (e *Engine) runCatchUp(ctx context.Context, now domain.Date) (*domain.ExecutionReport, error) {
	if e.catchUp == nil {
		return nil, nil
	}
	report, err := e.catchUp.RunDue(ctx, now)
	if err != nil {
		return report, fmt.Errorf("running due events: %w", err)
	}
	return report, report.Err()
}
