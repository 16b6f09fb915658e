package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-session/api/middleware"
	"github.com/angelmondragon/storefront-session/internal/cart"
	"github.com/angelmondragon/storefront-session/internal/discount"
	"github.com/angelmondragon/storefront-session/internal/session"
	"github.com/angelmondragon/storefront-session/pkg/cache"
	"github.com/angelmondragon/storefront-session/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/pricing"
)

type fakeRemote struct {
	mu    sync.Mutex
	items []cart.Item
}

func (r *fakeRemote) FetchCart(context.Context, string) ([]cart.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cart.Item(nil), r.items...), nil
}

func (r *fakeRemote) AddItem(_ context.Context, _ string, item cart.Item) (cart.Item, error) {
	item.ID = "srv-9"
	return item, nil
}

func (r *fakeRemote) UpdateItem(_ context.Context, _ string, itemID string, qty int) (cart.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == itemID {
			r.items[i].Quantity = qty
			return r.items[i], nil
		}
	}
	return cart.Item{}, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
}

func (r *fakeRemote) RemoveItem(context.Context, string, string) error { return nil }

func (r *fakeRemote) ClearCart(context.Context, string) error { return nil }

type fakeValidator struct{}

func (fakeValidator) ValidateCode(_ context.Context, code string, _ discount.OrderContext) (discount.Validation, error) {
	if code == "EXPIRED" {
		return discount.Validation{}, pkgerrors.New(pkgerrors.CodeBusinessRule, "Discount code has expired")
	}
	ten := decimal.NewFromInt(10)
	return discount.Validation{
		Code:           discount.Code{Code: code, Type: discount.TypeFixed, Value: ten, IsActive: true},
		DiscountAmount: ten,
	}, nil
}

type fakePlacer struct{}

func (fakePlacer) PlaceOrder(_ context.Context, req session.OrderRequest) (session.Order, error) {
	return session.Order{ID: "77", OrderNumber: "ORD-77", Status: "pending", Total: req.Summary.Total}, nil
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*session.Session, error) {
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "storefront unavailable")
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestManager(t *testing.T) *session.Manager {
	t.Helper()
	manager, err := session.NewManager(session.ManagerParams{
		Deps: session.Deps{
			Remote: &fakeRemote{items: []cart.Item{
				{ID: "a", ProductID: 1, Name: "Tee", Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
				{ID: "b", ProductID: 2, Name: "Cap", Quantity: 1, UnitPrice: decimal.NewFromInt(30)},
			}},
			Validator: fakeValidator{},
			Orders:    fakePlacer{},
			Cache:     cache.NewMemory(),
			Calculator: pricing.Calculator{
				TaxRate:               decimal.RequireFromString("0.08"),
				FreeShippingThreshold: decimal.NewFromInt(100),
				FlatShippingFee:       decimal.RequireFromString("9.99"),
			},
			Debounce: time.Hour,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })
	return manager
}

func newTestRouter(store SessionStore) http.Handler {
	r := chi.NewRouter()
	r.Get("/cart", CartGet(store, nil))
	r.Post("/cart/items", CartAddItem(store, nil))
	r.Patch("/cart/items/{itemID}", CartUpdateItem(store, nil))
	r.Delete("/cart/items/{itemID}", CartRemoveItem(store, nil))
	r.Delete("/cart", CartClear(store, nil))
	r.Get("/cart/summary", CartSummary(store, nil))
	r.Post("/cart/discount", DiscountApply(store, nil))
	r.Delete("/cart/discount", DiscountRemove(store, nil))
	r.Get("/checkout", CheckoutGet(store, nil))
	r.Put("/checkout/shipping", CheckoutShipping(store, nil))
	r.Put("/checkout/payment", CheckoutPayment(store, nil))
	r.Post("/checkout/next", CheckoutNext(store, nil))
	r.Post("/checkout/previous", CheckoutPrevious(store, nil))
	r.Post("/checkout/goto", CheckoutGoTo(store, nil))
	r.Post("/checkout/reset", CheckoutReset(store, nil))
	r.Post("/checkout/submit", CheckoutSubmit(store, nil))
	return r
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func call(t *testing.T, h http.Handler, userID, method, path, body string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	var env envelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, path, err, resp.Body.String())
	}
	return resp.Code, env
}

func TestCartRequiresSignedInUser(t *testing.T) {
	h := newTestRouter(newTestManager(t))
	code, env := call(t, h, "", http.MethodGet, "/cart", "")
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if env.Error.Code != string(pkgerrors.CodeUnauthorized) {
		t.Fatalf("unexpected error code %q", env.Error.Code)
	}
}

func TestCartGetReturnsItemsAndSummary(t *testing.T) {
	h := newTestRouter(newTestManager(t))
	code, env := call(t, h, "1", http.MethodGet, "/cart", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var view session.View
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if len(view.Cart.Items) != 2 || view.Cart.TotalItems != 3 {
		t.Fatalf("unexpected cart %+v", view.Cart)
	}
	if !view.Summary.Total.Equal(decimal.RequireFromString("140.4")) {
		t.Fatalf("expected total 140.4, got %s", view.Summary.Total)
	}
}

func TestCartAddItemReturnsCreated(t *testing.T) {
	h := newTestRouter(newTestManager(t))
	code, env := call(t, h, "1", http.MethodPost, "/cart/items",
		`{"product_id":3,"name":"  Socks ","quantity":1,"unit_price":"5"}`)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", code, env.Error.Message)
	}
	var view session.View
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if len(view.Cart.Items) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(view.Cart.Items))
	}
	if got := view.Cart.Items[2].Name; got != "Socks" {
		t.Fatalf("expected sanitized name, got %q", got)
	}
}

func TestCartAddItemRejectsUnknownFields(t *testing.T) {
	h := newTestRouter(newTestManager(t))
	code, env := call(t, h, "1", http.MethodPost, "/cart/items", `{"product_id":3,"sku":"x"}`)
	if code != http.StatusBadRequest || env.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %d %q", code, env.Error.Code)
	}
}

func TestCartUpdateItemOutOfRange(t *testing.T) {
	h := newTestRouter(newTestManager(t))
	code, env := call(t, h, "1", http.MethodPatch, "/cart/items/a", `{"quantity":0}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if env.Error.Message == "" {
		t.Fatalf("expected shopper facing message")
	}

	code, _ = call(t, h, "1", http.MethodPatch, "/cart/items/a", `{"quantity":4}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	_, env = call(t, h, "1", http.MethodGet, "/cart/summary", "")
	var summary pricing.OrderSummary
	if err := json.Unmarshal(env.Data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if !summary.Subtotal.Equal(decimal.NewFromInt(230)) {
		t.Fatalf("expected subtotal 230, got %s", summary.Subtotal)
	}
}

func TestCartRemoveUnknownItem(t *testing.T) {
	h := newTestRouter(newTestManager(t))
	code, env := call(t, h, "1", http.MethodDelete, "/cart/items/zzz", "")
	if code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (%s)", code, env.Error.Code)
	}
}

func TestDiscountApplyAndRemove(t *testing.T) {
	h := newTestRouter(newTestManager(t))
	code, env := call(t, h, "1", http.MethodPost, "/cart/discount", `{"code":"save10"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", code, env.Error.Message)
	}
	var view session.View
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Discount == nil || view.Discount.Code != "SAVE10" {
		t.Fatalf("expected SAVE10 applied, got %+v", view.Discount)
	}
	if !view.Summary.Total.Equal(decimal.RequireFromString("130.4")) {
		t.Fatalf("expected total 130.4, got %s", view.Summary.Total)
	}

	code, env = call(t, h, "1", http.MethodDelete, "/cart/discount", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	view = session.View{}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Discount != nil {
		t.Fatalf("expected discount removed")
	}
}

func TestDiscountApplyRejectedCode(t *testing.T) {
	h := newTestRouter(newTestManager(t))
	code, env := call(t, h, "1", http.MethodPost, "/cart/discount", `{"code":"EXPIRED"}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
	if env.Error.Message != "Discount code has expired" {
		t.Fatalf("unexpected message %q", env.Error.Message)
	}
}

func TestCheckoutNextBlockedListsMissingFields(t *testing.T) {
	h := newTestRouter(newTestManager(t))
	code, env := call(t, h, "1", http.MethodPost, "/checkout/next", "")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	var details struct {
		Step    int      `json:"step"`
		Missing []string `json:"missing"`
	}
	if err := json.Unmarshal(env.Error.Details, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details.Step != 1 {
		t.Fatalf("expected step 1, got %d", details.Step)
	}
	if strings.Join(details.Missing, ",") != "first_name,last_name,email,address" {
		t.Fatalf("unexpected missing fields %v", details.Missing)
	}
}

func TestCheckoutFlowThroughSubmit(t *testing.T) {
	h := newTestRouter(newTestManager(t))

	code, _ := call(t, h, "1", http.MethodPut, "/checkout/shipping",
		`{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com","address":"123 Main St"}`)
	if code != http.StatusOK {
		t.Fatalf("shipping: expected 200, got %d", code)
	}
	if code, _ = call(t, h, "1", http.MethodPost, "/checkout/next", ""); code != http.StatusOK {
		t.Fatalf("next from shipping: got %d", code)
	}
	if code, _ = call(t, h, "1", http.MethodPut, "/checkout/payment", `{"method":"card"}`); code != http.StatusOK {
		t.Fatalf("payment: got %d", code)
	}
	code, env := call(t, h, "1", http.MethodPost, "/checkout/next", "")
	if code != http.StatusOK {
		t.Fatalf("next from payment: got %d", code)
	}
	var view checkoutView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	if view.Step != "review" {
		t.Fatalf("expected review, got %s", view.Step)
	}

	code, env = call(t, h, "1", http.MethodPost, "/checkout/submit", "")
	if code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d (%s)", code, env.Error.Message)
	}
	var placed orderResponse
	if err := json.Unmarshal(env.Data, &placed); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if placed.Order.ID != "77" || placed.Checkout.Step != "confirmation" {
		t.Fatalf("unexpected order response %+v", placed)
	}
}

func TestCheckoutSubmitOutsideReview(t *testing.T) {
	h := newTestRouter(newTestManager(t))
	code, env := call(t, h, "1", http.MethodPost, "/checkout/submit", "")
	if code < 400 || code >= 500 {
		t.Fatalf("expected client error, got %d", code)
	}
	if env.Error.Code == "" {
		t.Fatalf("expected error envelope")
	}
}

func TestCheckoutGoToAndPrevious(t *testing.T) {
	h := newTestRouter(newTestManager(t))
	code, _ := call(t, h, "1", http.MethodPost, "/checkout/goto", `{"step":9}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range step, got %d", code)
	}

	code, env := call(t, h, "1", http.MethodPost, "/checkout/goto", `{"step":3}`)
	if code != http.StatusOK {
		t.Fatalf("goto: got %d", code)
	}
	code, env = call(t, h, "1", http.MethodPost, "/checkout/previous", "")
	if code != http.StatusOK {
		t.Fatalf("previous: got %d", code)
	}
	var view checkoutView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	if view.Step != "payment" {
		t.Fatalf("expected payment, got %s", view.Step)
	}

	if code, _ = call(t, h, "1", http.MethodPost, "/checkout/reset", ""); code != http.StatusOK {
		t.Fatalf("reset: got %d", code)
	}
	_, env = call(t, h, "1", http.MethodGet, "/checkout", "")
	view = checkoutView{}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	if view.Step != "shipping" {
		t.Fatalf("expected shipping after reset, got %s", view.Step)
	}
}

func TestSessionLoadFailureSurfacesDependencyError(t *testing.T) {
	h := newTestRouter(failingStore{})
	code, env := call(t, h, "1", http.MethodGet, "/cart", "")
	if code != http.StatusServiceUnavailable || env.Error.Code != string(pkgerrors.CodeDependency) {
		t.Fatalf("expected 503 dependency error, got %d %q", code, env.Error.Code)
	}
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvDev}}
	healthy := HealthReady(cfg, nil, map[string]Pinger{
		"db": pingFunc(func(context.Context) error { return nil }),
	}, func() string { return "closed" })

	resp := httptest.NewRecorder()
	healthy(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Header().Get(envHeader) != config.AppEnvDev {
		t.Fatalf("expected env header")
	}

	failing := HealthReady(cfg, nil, map[string]Pinger{
		"db":    pingFunc(func(context.Context) error { return nil }),
		"redis": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}, nil)
	resp = httptest.NewRecorder()
	failing(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "connection refused") {
		t.Fatalf("expected failing check in details: %s", resp.Body.String())
	}
}
