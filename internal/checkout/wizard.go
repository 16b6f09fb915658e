// Package checkout drives the four-step checkout wizard and auto-saves its
// progress to the cache so a reload can pick up where the shopper left off.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-session/pkg/cache"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
)

const (
	defaultDebounce    = 500 * time.Millisecond
	defaultAutosaveTTL = time.Hour
	saveTimeout        = 5 * time.Second
)

// StateKey is the cache entry holding a shopper's saved checkout progress.
func StateKey(userID string) string {
	return "checkout_state_" + userID
}

type Params struct {
	UserID      string
	Cache       cache.Store
	Debounce    time.Duration
	AutosaveTTL time.Duration
	Logger      *logger.Logger
	Now         func() time.Time
}

// Wizard is one shopper's checkout state machine.
//
// saving serializes writes to the store, so Reset and Complete wait for an
// auto-save already in flight before dropping the entry. epoch counts those
// clears; an auto-save scheduled before the latest clear writes nothing.
type Wizard struct {
	userID    string
	store     cache.Store
	ttl       time.Duration
	logg      *logger.Logger
	now       func() time.Time
	autosaver *Debouncer

	saving sync.Mutex

	mu    sync.Mutex
	state State
	epoch uint64
}

func NewWizard(params Params) (*Wizard, error) {
	if params.UserID == "" {
		return nil, fmt.Errorf("user id required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("cache store required")
	}
	debounce := params.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	ttl := params.AutosaveTTL
	if ttl <= 0 {
		ttl = defaultAutosaveTTL
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Wizard{
		userID:    params.UserID,
		store:     params.Cache,
		ttl:       ttl,
		logg:      logg,
		now:       now,
		autosaver: NewDebouncer(debounce),
		state:     newState(),
	}, nil
}

// State returns a copy of the current state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Next advances one step when the current step's gate holds. Otherwise the
// state is unchanged and the missing field names are returned.
func (w *Wizard) Next() (State, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.CurrentStep == StepConfirmation {
		return w.state, nil
	}
	if missing := MissingFields(w.state.CurrentStep, w.state); len(missing) > 0 {
		return w.state, missing
	}
	w.state.CurrentStep++
	w.touchLocked()
	return w.state, nil
}

// Previous steps back once; it does nothing on the first step.
func (w *Wizard) Previous() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.CurrentStep > StepShipping {
		w.state.CurrentStep--
		w.touchLocked()
	}
	return w.state
}

// GoTo jumps to any step in range without checking the gates in between.
func (w *Wizard) GoTo(step Step) (State, error) {
	if !step.Valid() {
		return w.State(), pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("step must be between %d and %d", StepShipping, StepConfirmation)).
			WithDetails(map[string]any{"field": "step"})
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.CurrentStep != step {
		w.state.CurrentStep = step
		w.touchLocked()
	}
	return w.state, nil
}

func (w *Wizard) UpdateShipping(shipping Shipping) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Shipping = shipping
	w.touchLocked()
	return w.state
}

func (w *Wizard) UpdatePayment(payment Payment) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Payment = payment
	w.touchLocked()
	return w.state
}

func (w *Wizard) SetAuthenticated(authenticated bool) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.IsAuthenticated != authenticated {
		w.state.IsAuthenticated = authenticated
		w.touchLocked()
	}
	return w.state
}

// Restore loads saved progress. It reports false when nothing was saved.
func (w *Wizard) Restore(ctx context.Context) (State, bool, error) {
	saved, err := cache.GetJSON[State](ctx, w.store, StateKey(w.userID))
	if errors.Is(err, cache.ErrMiss) {
		return w.State(), false, nil
	}
	if err != nil {
		return w.State(), false, err
	}
	if !saved.CurrentStep.Valid() {
		saved.CurrentStep = StepShipping
	}
	w.mu.Lock()
	w.state = saved
	w.mu.Unlock()
	return saved, true, nil
}

// Reset starts over and drops the saved entry.
func (w *Wizard) Reset(ctx context.Context) error {
	return w.clear(ctx, newState())
}

// Complete moves to Confirmation after an order was placed, clearing the
// entered details and the saved entry.
func (w *Wizard) Complete(ctx context.Context) error {
	st := newState()
	st.CurrentStep = StepConfirmation
	st.UpdatedAt = w.now().UTC()
	return w.clear(ctx, st)
}

func (w *Wizard) clear(ctx context.Context, next State) error {
	w.autosaver.Cancel()
	w.mu.Lock()
	w.state = next
	w.epoch++
	w.mu.Unlock()

	w.saving.Lock()
	defer w.saving.Unlock()
	return w.store.Invalidate(ctx, StateKey(w.userID))
}

// Flush writes the current state now, replacing any pending auto-save.
func (w *Wizard) Flush(ctx context.Context) error {
	w.autosaver.Cancel()
	w.mu.Lock()
	epoch := w.epoch
	w.mu.Unlock()
	return w.save(ctx, epoch)
}

// AutosavePending reports whether an auto-save is waiting for its window.
func (w *Wizard) AutosavePending() bool {
	return w.autosaver.Pending()
}

// Close cancels any pending auto-save without writing it.
func (w *Wizard) Close() {
	w.autosaver.Close()
}

func (w *Wizard) touchLocked() {
	w.state.UpdatedAt = w.now().UTC()
	epoch := w.epoch
	w.autosaver.Schedule(func() { w.autosave(epoch) })
}

func (w *Wizard) autosave(epoch uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	ctx = w.logg.WithUserID(ctx, w.userID)
	if err := w.save(ctx, epoch); err != nil {
		w.logg.Warn(w.logg.WithField(ctx, "error", err.Error()), "checkout auto-save failed")
		return
	}
	w.logg.Debug(w.logg.WithCheckoutStep(ctx, int(w.State().CurrentStep)), "checkout state saved")
}

// save writes the state unless the wizard was cleared after epoch.
func (w *Wizard) save(ctx context.Context, epoch uint64) error {
	w.saving.Lock()
	defer w.saving.Unlock()
	w.mu.Lock()
	st, current := w.state, w.epoch
	w.mu.Unlock()
	if current != epoch {
		return nil
	}
	return cache.SetJSON(ctx, w.store, StateKey(w.userID), st, w.ttl)
}
