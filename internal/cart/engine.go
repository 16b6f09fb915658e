// Package cart holds the shopper's in-memory cart and keeps it consistent
// with the storefront. Mutations are applied optimistically as reversible
// patches and either confirmed or reverted once the storefront answers.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-session/internal/localstore"
	"github.com/angelmondragon/storefront-session/pkg/cache"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/metrics"
	"github.com/google/uuid"
)

const defaultCacheTTL = 5 * time.Minute

// Remote is the storefront cart API.
type Remote interface {
	FetchCart(ctx context.Context, userID string) ([]Item, error)
	AddItem(ctx context.Context, userID string, item Item) (Item, error)
	UpdateItem(ctx context.Context, userID, itemID string, quantity int) (Item, error)
	RemoveItem(ctx context.Context, userID, itemID string) error
	ClearCart(ctx context.Context, userID string) error
}

// Backup persists the last confirmed cart so it survives an upstream outage.
// It never sees optimistic rows.
type Backup interface {
	PutJSON(ctx context.Context, userID, key string, value any) error
	GetJSON(ctx context.Context, userID, key string, dst any) error
	Delete(ctx context.Context, userID, key string) error
}

// Params wires an Engine. UserID, Remote and Cache are required.
type Params struct {
	UserID    string
	Remote    Remote
	Cache     cache.Store
	CacheTTL  time.Duration
	Backup    Backup
	Logger    *logger.Logger
	Metrics   *metrics.CartMetrics
	OnConfirm func(ctx context.Context, snap Snapshot)
}

// Engine owns one shopper's cart.
//
// Item mutations hold the barrier shared plus a lock on the item's merge
// key, so changes to the same line run one at a time while different lines
// proceed in parallel. Load, Refresh, Clear and Forget hold the barrier
// exclusively. mu guards items and confirmed and is never held across a
// remote call.
//
// items is what the shopper sees, optimistic patches included. confirmed
// only changes once the storefront accepts a mutation; the backup and
// OnConfirm are fed from it. publish orders those writes so a slower
// confirmation cannot overwrite a newer one.
type Engine struct {
	userID    string
	remote    Remote
	cache     cache.Store
	cacheTTL  time.Duration
	backup    Backup
	logg      *logger.Logger
	metrics   *metrics.CartMetrics
	onConfirm func(ctx context.Context, snap Snapshot)
	newID     func() string

	barrier sync.RWMutex
	keys    *keyedLock

	mu        sync.Mutex
	items     []Item
	confirmed []Item

	publish sync.Mutex
}

func NewEngine(params Params) (*Engine, error) {
	if params.UserID == "" {
		return nil, fmt.Errorf("user id required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("cart remote required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("cache store required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Engine{
		userID:    params.UserID,
		remote:    params.Remote,
		cache:     params.Cache,
		cacheTTL:  ttl,
		backup:    params.Backup,
		logg:      logg,
		metrics:   params.Metrics,
		onConfirm: params.OnConfirm,
		newID:     func() string { return TempIDPrefix + uuid.NewString() },
		keys:      newKeyedLock(),
	}, nil
}

// CacheKey is the cache entry holding the user's confirmed cart.
func CacheKey(userID string) string {
	return "cart_" + userID
}

// CachePrefix covers every derived cart entry for the user.
func CachePrefix(userID string) string {
	return CacheKey(userID) + ":"
}

// Snapshot returns a copy of the current cart with fresh totals.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return NewSnapshot(e.items)
}

// Load populates the cart from cache, falling back to the storefront and
// then to the persisted backup when the storefront is unreachable.
func (e *Engine) Load(ctx context.Context) (Snapshot, error) {
	e.barrier.Lock()
	defer e.barrier.Unlock()
	ctx = e.logg.WithUserID(ctx, e.userID)

	items, err := cache.GetJSON[[]Item](ctx, e.cache, CacheKey(e.userID))
	switch {
	case err == nil:
		return e.replace(items), nil
	case !errors.Is(err, cache.ErrMiss):
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "cart cache read failed; fetching from storefront")
	}
	return e.fetch(ctx, true)
}

// Refresh ignores the cache and reloads from the storefront.
func (e *Engine) Refresh(ctx context.Context) (Snapshot, error) {
	e.barrier.Lock()
	defer e.barrier.Unlock()
	ctx = e.logg.WithUserID(ctx, e.userID)
	e.invalidate(ctx)
	return e.fetch(ctx, false)
}

func (e *Engine) fetch(ctx context.Context, allowBackup bool) (Snapshot, error) {
	items, err := e.remote.FetchCart(ctx, e.userID)
	if err != nil {
		if allowBackup {
			if backup, ok := e.loadBackup(ctx); ok {
				e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "storefront unavailable; cart restored from backup")
				return e.replace(backup), nil
			}
		}
		return e.Snapshot(), asCartError(err, "could not load your cart")
	}
	if err := cache.SetJSON(ctx, e.cache, CacheKey(e.userID), items, e.cacheTTL); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "cart cache write failed")
	}
	snap := e.replace(items)
	e.persist(ctx)
	return snap, nil
}

// Add merges item into a matching line or appends it, then persists it.
func (e *Engine) Add(ctx context.Context, item Item) (Snapshot, error) {
	if err := validateNewItem(item); err != nil {
		return e.Snapshot(), err
	}
	e.barrier.RLock()
	defer e.barrier.RUnlock()
	unlock := e.keys.Lock(item.MergeKey())
	defer unlock()

	e.mu.Lock()
	var p patch
	if idx := indexByMergeKey(e.items, item.MergeKey()); idx >= 0 {
		existing := e.items[idx]
		if existing.Quantity+item.Quantity > MaxQuantity {
			e.mu.Unlock()
			return e.Snapshot(), pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("you can have at most %d of this item in your cart", MaxQuantity)).
				WithDetails(map[string]any{"field": "quantity", "in_cart": existing.Quantity, "max": MaxQuantity})
		}
		p = &mergePatch{id: existing.ID, delta: item.Quantity}
	} else {
		row := item.clone()
		row.ID = e.newID()
		p = &insertPatch{item: row}
	}
	e.items = p.apply(e.items)
	e.mu.Unlock()

	confirmed, err := e.remote.AddItem(ctx, e.userID, item)
	if err != nil {
		return e.rollback(ctx, p, err, "could not add the item to your cart")
	}
	return e.confirm(ctx, p, &confirmed), nil
}

// UpdateQuantity sets a line's quantity. Out-of-range values are rejected
// before anything changes.
func (e *Engine) UpdateQuantity(ctx context.Context, itemID string, quantity int) (Snapshot, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return e.Snapshot(), err
	}
	e.barrier.RLock()
	defer e.barrier.RUnlock()
	ctx = e.logg.WithCartItemID(ctx, itemID)

	unlock, current, err := e.lockItem(itemID)
	if err != nil {
		return e.Snapshot(), err
	}
	defer unlock()
	if current.Quantity == quantity {
		return e.Snapshot(), nil
	}

	p := &quantityPatch{id: itemID, from: current.Quantity, to: quantity}
	e.mu.Lock()
	e.items = p.apply(e.items)
	e.mu.Unlock()

	confirmed, err := e.remote.UpdateItem(ctx, e.userID, itemID, quantity)
	if err != nil {
		return e.rollback(ctx, p, err, "could not update the item quantity")
	}
	return e.confirm(ctx, p, &confirmed), nil
}

// Remove drops a line; on failure it reappears at its old position.
func (e *Engine) Remove(ctx context.Context, itemID string) (Snapshot, error) {
	e.barrier.RLock()
	defer e.barrier.RUnlock()
	ctx = e.logg.WithCartItemID(ctx, itemID)

	unlock, _, err := e.lockItem(itemID)
	if err != nil {
		return e.Snapshot(), err
	}
	defer unlock()

	p := &removePatch{item: Item{ID: itemID}}
	e.mu.Lock()
	e.items = p.apply(e.items)
	e.mu.Unlock()

	if err := e.remote.RemoveItem(ctx, e.userID, itemID); err != nil {
		return e.rollback(ctx, p, err, "could not remove the item from your cart")
	}
	return e.confirm(ctx, p, nil), nil
}

// Clear empties the cart; on failure the previous contents come back.
func (e *Engine) Clear(ctx context.Context) (Snapshot, error) {
	e.barrier.Lock()
	defer e.barrier.Unlock()
	ctx = e.logg.WithUserID(ctx, e.userID)

	p := &clearPatch{}
	e.mu.Lock()
	e.items = p.apply(e.items)
	e.mu.Unlock()

	if err := e.remote.ClearCart(ctx, e.userID); err != nil {
		return e.rollback(ctx, p, err, "could not clear your cart")
	}
	return e.confirm(ctx, p, nil), nil
}

// Forget drops local cart state after the storefront consumed the cart
// into an order.
func (e *Engine) Forget(ctx context.Context) {
	e.barrier.Lock()
	defer e.barrier.Unlock()

	e.mu.Lock()
	e.items = nil
	e.confirmed = nil
	e.mu.Unlock()
	e.invalidate(ctx)
	if e.backup != nil {
		if err := e.backup.Delete(ctx, e.userID, localstore.KeyCartBackup); err != nil {
			e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "cart backup delete failed")
		}
	}
	e.notify(ctx, NewSnapshot(nil))
}

// lockItem takes the merge-key lock for itemID. The row is looked up again
// after the lock is held since it may have changed while waiting.
func (e *Engine) lockItem(itemID string) (func(), Item, error) {
	e.mu.Lock()
	idx := indexByID(e.items, itemID)
	if idx < 0 {
		e.mu.Unlock()
		return nil, Item{}, itemNotFound(itemID)
	}
	key := e.items[idx].MergeKey()
	e.mu.Unlock()

	unlock := e.keys.Lock(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	idx = indexByID(e.items, itemID)
	if idx < 0 {
		unlock()
		return nil, Item{}, itemNotFound(itemID)
	}
	if e.items[idx].Pending() {
		unlock()
		return nil, Item{}, pkgerrors.New(pkgerrors.CodeConflict, "this item is still being saved")
	}
	return unlock, e.items[idx].clone(), nil
}

func (e *Engine) rollback(ctx context.Context, p patch, cause error, message string) (Snapshot, error) {
	e.mu.Lock()
	e.items = p.revert(e.items)
	snap := NewSnapshot(e.items)
	e.mu.Unlock()

	err := asCartError(cause, message)
	outcome := metrics.OutcomeFailed
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeBusinessRule, pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeUnauthorized:
		outcome = metrics.OutcomeRejected
	}
	e.metrics.Mutation(p.op(), outcome)
	e.metrics.Rollback(p.op())
	e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
		"op":     p.op(),
		"target": p.target(),
		"error":  cause.Error(),
	}), "cart mutation reverted")
	return snap, err
}

// confirm folds the storefront's row into the patched line and records the
// change in the confirmed list, then drops the cached cart and publishes.
func (e *Engine) confirm(ctx context.Context, p patch, server *Item) Snapshot {
	e.mu.Lock()
	switch p.(type) {
	case *removePatch:
		if idx := indexByID(e.confirmed, p.target()); idx >= 0 {
			e.confirmed = append(e.confirmed[:idx], e.confirmed[idx+1:]...)
		}
	case *clearPatch:
		e.confirmed = nil
	default:
		idx := indexByID(e.items, p.target())
		if idx >= 0 {
			if server != nil {
				e.items[idx] = reconcile(e.items[idx], *server)
			}
			e.commit(e.items[idx])
		}
	}
	snap := NewSnapshot(e.items)
	e.mu.Unlock()

	e.invalidate(ctx)
	e.metrics.Mutation(p.op(), metrics.OutcomeConfirmed)
	e.persist(ctx)
	return snap
}

// commit records row as confirmed. A row still carrying a temporary id was
// not given one by the storefront and stays out. Caller holds mu.
func (e *Engine) commit(row Item) {
	if row.Pending() {
		return
	}
	if idx := indexByID(e.confirmed, row.ID); idx >= 0 {
		e.confirmed[idx] = row.clone()
		return
	}
	e.confirmed = append(e.confirmed, row.clone())
}

// persist writes the confirmed cart to the backup and hands it to OnConfirm.
// The snapshot is taken under publish so writes land in confirmation order.
func (e *Engine) persist(ctx context.Context) {
	e.publish.Lock()
	defer e.publish.Unlock()
	e.mu.Lock()
	snap := NewSnapshot(e.confirmed)
	e.mu.Unlock()
	e.saveBackup(ctx, snap.Items)
	e.notify(ctx, snap)
}

// ConfirmedSnapshot is the cart as the storefront last acknowledged it.
func (e *Engine) ConfirmedSnapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return NewSnapshot(e.confirmed)
}

func reconcile(local, server Item) Item {
	if server.ID == "" {
		return local
	}
	local.ID = server.ID
	if server.Quantity >= MinQuantity && server.Quantity <= MaxQuantity {
		local.Quantity = server.Quantity
	}
	if !server.UnitPrice.IsNegative() {
		local.UnitPrice = server.UnitPrice
	}
	if server.OriginalPrice != nil {
		op := *server.OriginalPrice
		local.OriginalPrice = &op
	}
	if server.Name != "" {
		local.Name = server.Name
	}
	return local
}

// replace installs a storefront, cache or backup cart as both the visible and
// the confirmed list. Rows with temporary ids are dropped: nothing the
// storefront returned can carry one.
func (e *Engine) replace(items []Item) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = make([]Item, 0, len(items))
	e.confirmed = make([]Item, 0, len(items))
	for _, item := range items {
		if item.Pending() {
			continue
		}
		e.items = append(e.items, item.clone())
		e.confirmed = append(e.confirmed, item.clone())
	}
	return NewSnapshot(e.items)
}

func (e *Engine) invalidate(ctx context.Context) {
	if err := e.cache.Invalidate(ctx, CacheKey(e.userID)); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "cart cache invalidate failed")
	}
	if err := e.cache.InvalidatePattern(ctx, CachePrefix(e.userID)); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "cart cache prefix invalidate failed")
	}
}

func (e *Engine) saveBackup(ctx context.Context, items []Item) {
	if e.backup == nil {
		return
	}
	if err := e.backup.PutJSON(ctx, e.userID, localstore.KeyCartBackup, items); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "cart backup write failed")
	}
}

func (e *Engine) loadBackup(ctx context.Context) ([]Item, bool) {
	if e.backup == nil {
		return nil, false
	}
	var items []Item
	if err := e.backup.GetJSON(ctx, e.userID, localstore.KeyCartBackup, &items); err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "cart backup read failed")
		}
		return nil, false
	}
	return items, true
}

func (e *Engine) notify(ctx context.Context, snap Snapshot) {
	if e.onConfirm != nil {
		e.onConfirm(ctx, snap)
	}
}

func itemNotFound(itemID string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "item is no longer in your cart").
		WithDetails(map[string]any{"item_id": itemID})
}

// asCartError keeps typed storefront errors and classifies anything else as
// a dependency failure.
func asCartError(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
