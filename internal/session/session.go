// Package session ties one shopper's cart, discount and checkout together
// and keeps a registry of live sessions.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/storefront-session/internal/cart"
	"github.com/angelmondragon/storefront-session/internal/checkout"
	"github.com/angelmondragon/storefront-session/internal/discount"
	"github.com/angelmondragon/storefront-session/pkg/cache"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/metrics"
	"github.com/angelmondragon/storefront-session/pkg/pricing"
	"github.com/shopspring/decimal"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Remote      cart.Remote
	Validator   discount.Validator
	Orders      OrderPlacer
	Cache       cache.Store
	Backup      cart.Backup
	Calculator  pricing.Calculator
	CartTTL     time.Duration
	Debounce    time.Duration
	AutosaveTTL time.Duration
	Logger      *logger.Logger
	Metrics     *metrics.CartMetrics
	Now         func() time.Time
}

// View is the cart page payload: items, totals and the applied code.
type View struct {
	Cart     cart.Snapshot        `json:"cart"`
	Summary  pricing.OrderSummary `json:"summary"`
	Discount *discount.Result     `json:"discount,omitempty"`
}

// Session is one signed-in shopper's working state.
type Session struct {
	userID  string
	cart    *cart.Engine
	wizard  *checkout.Wizard
	applier *discount.Applier
	calc    pricing.Calculator
	orders  OrderPlacer
	logg    *logger.Logger
	now     func() time.Time

	lastSeen atomic.Int64
	placing  sync.Mutex

	mu       sync.Mutex
	discount *discount.Result
}

// New builds a session without touching the network. Call Load before use.
func New(userID string, deps Deps) (*Session, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "please sign in again")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("order placer required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &Session{
		userID: userID,
		calc:   deps.Calculator,
		orders: deps.Orders,
		logg:   logg,
		now:    now,
	}

	engine, err := cart.NewEngine(cart.Params{
		UserID:    userID,
		Remote:    deps.Remote,
		Cache:     deps.Cache,
		CacheTTL:  deps.CartTTL,
		Backup:    deps.Backup,
		Logger:    logg,
		Metrics:   deps.Metrics,
		OnConfirm: s.cartChanged,
	})
	if err != nil {
		return nil, err
	}
	wizard, err := checkout.NewWizard(checkout.Params{
		UserID:      userID,
		Cache:       deps.Cache,
		Debounce:    deps.Debounce,
		AutosaveTTL: deps.AutosaveTTL,
		Logger:      logg,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	applier, err := discount.NewApplier(deps.Validator, logg)
	if err != nil {
		wizard.Close()
		return nil, err
	}

	s.cart = engine
	s.wizard = wizard
	s.applier = applier
	s.touch()
	return s, nil
}

// Load fills the cart and restores saved checkout progress. A failed
// restore is logged and the wizard starts fresh.
func (s *Session) Load(ctx context.Context) error {
	ctx = s.logg.WithUserID(ctx, s.userID)
	if _, err := s.cart.Load(ctx); err != nil {
		return err
	}
	state, _, err := s.wizard.Restore(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "checkout restore failed")
	}
	if !state.IsAuthenticated {
		s.wizard.SetAuthenticated(true)
	}
	return nil
}

func (s *Session) UserID() string { return s.userID }

func (s *Session) Cart() *cart.Engine { return s.cart }

func (s *Session) Checkout() *checkout.Wizard { return s.wizard }

// Discount returns the applied code, if any.
func (s *Session) Discount() (discount.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discount == nil {
		return discount.Result{}, false
	}
	return *s.discount, true
}

// Summary prices the current cart with the applied discount, which never
// counts for more than the subtotal.
func (s *Session) Summary() pricing.OrderSummary {
	return s.summarize(s.cart.Snapshot())
}

// View bundles the cart, its summary and the applied code.
func (s *Session) View() View {
	snap := s.cart.Snapshot()
	view := View{Cart: snap, Summary: s.summarize(snap)}
	if applied, ok := s.Discount(); ok {
		view.Discount = &applied
	}
	return view
}

func (s *Session) summarize(snap cart.Snapshot) pricing.OrderSummary {
	amount := decimal.Zero
	if applied, ok := s.Discount(); ok {
		amount = decimal.Min(applied.Amount, snap.TotalPrice)
	}
	return s.calc.Summarize(snap.TotalPrice, amount)
}

// ApplyDiscount validates raw against the current cart. Any failure clears
// a previously applied code.
func (s *Session) ApplyDiscount(ctx context.Context, raw string) (View, error) {
	s.touch()
	snap := s.cart.Snapshot()
	result, err := s.applier.Apply(s.logg.WithUserID(ctx, s.userID), raw, discount.OrderContext{
		Subtotal:   snap.TotalPrice,
		ProductIDs: snap.ProductIDs(),
	})
	s.mu.Lock()
	if err != nil {
		s.discount = nil
	} else {
		s.discount = &result
	}
	s.mu.Unlock()
	if err != nil {
		return s.View(), err
	}
	return s.View(), nil
}

func (s *Session) RemoveDiscount() View {
	s.touch()
	s.clearDiscount()
	return s.View()
}

// PlaceOrder submits the cart from the Review step. On success the wizard
// moves to Confirmation, the cart is forgotten and the discount dropped.
func (s *Session) PlaceOrder(ctx context.Context) (Order, error) {
	s.touch()
	if !s.placing.TryLock() {
		return Order{}, pkgerrors.New(pkgerrors.CodeConflict, "your order is already being placed")
	}
	defer s.placing.Unlock()

	ctx = s.logg.WithUserID(ctx, s.userID)
	state := s.wizard.State()
	if state.CurrentStep != checkout.StepReview {
		return Order{}, pkgerrors.New(pkgerrors.CodeBusinessRule, "review your order before placing it").
			WithDetails(map[string]any{"current_step": int(state.CurrentStep)})
	}
	var missing []string
	missing = append(missing, checkout.MissingFields(checkout.StepShipping, state)...)
	missing = append(missing, checkout.MissingFields(checkout.StepPayment, state)...)
	if len(missing) > 0 {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "checkout details are incomplete").
			WithDetails(map[string]any{"missing": missing})
	}

	snap := s.cart.Snapshot()
	if snap.Empty() {
		return Order{}, pkgerrors.New(pkgerrors.CodeBusinessRule, "your cart is empty")
	}
	for _, item := range snap.Items {
		if item.Pending() {
			return Order{}, pkgerrors.New(pkgerrors.CodeConflict, "your cart is still being updated")
		}
	}

	req := OrderRequest{
		UserID:   s.userID,
		Items:    snap.Items,
		Shipping: state.Shipping,
		Payment:  state.Payment,
		Summary:  s.summarize(snap),
	}
	if applied, ok := s.Discount(); ok {
		req.DiscountCode = applied.Code
	}

	order, err := s.orders.PlaceOrder(ctx, req)
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not place your order")
		}
		s.logg.Warn(s.logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "order placement failed")
		return Order{}, err
	}

	if err := s.wizard.Complete(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "clearing saved checkout failed")
	}
	s.cart.Forget(ctx)
	s.clearDiscount()
	s.logg.Info(s.logg.WithField(ctx, "order_id", order.ID), "order placed")
	return order, nil
}

// Close stops the auto-save timer. Unsaved progress is dropped.
func (s *Session) Close() {
	s.wizard.Close()
}

// LastSeen is when the session last served a request.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch() {
	s.lastSeen.Store(s.now().UnixNano())
}

func (s *Session) clearDiscount() {
	s.mu.Lock()
	s.discount = nil
	s.mu.Unlock()
}

// cartChanged runs after every confirmed cart change and reprices the
// applied code against the new subtotal. An emptied cart, or one below the
// code's minimum, drops it.
func (s *Session) cartChanged(ctx context.Context, snap cart.Snapshot) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discount == nil {
		return
	}
	repriced, ok := s.discount.Reprice(snap.TotalPrice)
	if !ok {
		s.logg.Info(s.logg.WithField(ctx, "discount_code", s.discount.Code), "discount dropped after cart change")
		s.discount = nil
		return
	}
	s.discount = &repriced
}
