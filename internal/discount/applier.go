// Package discount validates and applies shopper discount codes against
// the storefront.
package discount

import (
	"context"
	"fmt"

	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/shopspring/decimal"
)

// OrderContext is what the storefront needs to price a code.
type OrderContext struct {
	Subtotal    decimal.Decimal
	ProductIDs  []int64
	CategoryIDs []int64
}

// Validation is the storefront's answer for a valid code.
type Validation struct {
	Code           Code
	DiscountAmount decimal.Decimal
}

// Validator asks the storefront whether a code applies to an order.
type Validator interface {
	ValidateCode(ctx context.Context, code string, order OrderContext) (Validation, error)
}

// Result is an applied discount. terms is the storefront's record for the
// code, kept so the amount can follow the cart.
type Result struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
	Type   Type            `json:"type,omitempty"`

	terms *Code
}

// Reprice follows the cart after the code was applied. A percentage code is
// recomputed on the new subtotal and a code whose minimum is no longer met
// stops applying. Without the storefront's record only the subtotal clamp
// is possible. ok is false when the discount should be dropped.
func (r Result) Reprice(subtotal decimal.Decimal) (Result, bool) {
	if !subtotal.IsPositive() {
		return Result{}, false
	}
	if r.terms != nil {
		if subtotal.LessThan(r.terms.MinimumAmount) {
			return Result{}, false
		}
		if r.terms.Type == TypePercentage {
			r.Amount = r.terms.AmountFor(subtotal)
		}
	}
	r.Amount = decimal.Min(r.Amount, subtotal)
	return r, true
}

type Applier struct {
	validator Validator
	logg      *logger.Logger
}

func NewApplier(validator Validator, logg *logger.Logger) (*Applier, error) {
	if validator == nil {
		return nil, fmt.Errorf("discount validator required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Applier{validator: validator, logg: logg}, nil
}

// Apply normalizes raw, checks the cart is not empty, and asks the
// storefront for the amount. Every failure is a typed error carrying a
// Reason; format and empty-cart failures never reach the network.
func (a *Applier) Apply(ctx context.Context, raw string, order OrderContext) (Result, error) {
	code, err := Normalize(raw)
	if err != nil {
		return Result{}, err
	}
	if !order.Subtotal.IsPositive() {
		return Result{}, ReasonCartEmpty.Err()
	}

	ctx = a.logg.WithField(ctx, "discount_code", code)
	validation, err := a.validator.ValidateCode(ctx, code, order)
	if err != nil {
		return Result{}, a.classify(ctx, err)
	}

	amount := validation.DiscountAmount
	if amount.IsZero() && !validation.Code.Value.IsZero() {
		amount = validation.Code.AmountFor(order.Subtotal)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	amount = decimal.Min(amount, order.Subtotal)

	result := Result{Code: code, Amount: amount, Type: validation.Code.Type}
	if validation.Code.Code != "" {
		terms := validation.Code
		result.terms = &terms
	}
	a.logg.Info(ctx, "discount code applied")
	return result, nil
}

// classify turns storefront rejections into reasons. Transport and auth
// failures pass through untouched.
func (a *Applier) classify(ctx context.Context, err error) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not validate the discount code")
	}
	switch typed.Code() {
	case pkgerrors.CodeBusinessRule, pkgerrors.CodeValidation:
		reason := ClassifyMessage(typed.Message())
		a.logg.Info(a.logg.WithField(ctx, "reason", string(reason)), "discount code rejected")
		return pkgerrors.Wrap(reason.code(), err, reason.Message()).WithDetails(map[string]any{"reason": string(reason)})
	case pkgerrors.CodeNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeBusinessRule, err, ReasonNotFound.Message()).
			WithDetails(map[string]any{"reason": string(ReasonNotFound)})
	default:
		return err
	}
}
