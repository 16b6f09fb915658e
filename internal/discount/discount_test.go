package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	calls  int
	result Validation
	err    error
	got    string
}

func (s *stubValidator) ValidateCode(_ context.Context, code string, _ OrderContext) (Validation, error) {
	s.calls++
	s.got = code
	return s.result, s.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNormalize(t *testing.T) {
	code, err := Normalize(" save10 ")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", code)

	for _, raw := range []string{"sa", "", "SAVE-10", "ÄBC", string(make([]byte, 51))} {
		_, err := Normalize(raw)
		require.Error(t, err, raw)
		reason, ok := ReasonOf(err)
		assert.True(t, ok)
		assert.Equal(t, ReasonInvalidFormat, reason)
	}
}

func TestApplyFormatErrorSkipsNetwork(t *testing.T) {
	validator := &stubValidator{}
	applier, err := NewApplier(validator, nil)
	require.NoError(t, err)

	_, err = applier.Apply(context.Background(), "sa", OrderContext{Subtotal: dec("100")})
	require.Error(t, err)
	assert.Equal(t, 0, validator.calls)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestApplyEmptyCartSkipsNetwork(t *testing.T) {
	validator := &stubValidator{}
	applier, _ := NewApplier(validator, nil)

	_, err := applier.Apply(context.Background(), "SAVE10", OrderContext{Subtotal: decimal.Zero})
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonCartEmpty, reason)
	assert.Equal(t, 0, validator.calls)
}

func TestApplySuccess(t *testing.T) {
	validator := &stubValidator{result: Validation{
		Code:           Code{Code: "SAVE10", Type: TypeFixed, Value: dec("10"), IsActive: true},
		DiscountAmount: dec("10"),
	}}
	applier, _ := NewApplier(validator, nil)

	result, err := applier.Apply(context.Background(), " save10 ", OrderContext{Subtotal: dec("130")})
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", validator.got)
	assert.Equal(t, "SAVE10", result.Code)
	assert.True(t, dec("10").Equal(result.Amount))
}

func TestApplyClampsAmountToSubtotal(t *testing.T) {
	validator := &stubValidator{result: Validation{
		Code:           Code{Code: "BIG", Type: TypeFixed, Value: dec("500"), IsActive: true},
		DiscountAmount: dec("500"),
	}}
	applier, _ := NewApplier(validator, nil)

	result, err := applier.Apply(context.Background(), "BIG", OrderContext{Subtotal: dec("40")})
	require.NoError(t, err)
	assert.True(t, dec("40").Equal(result.Amount))
}

func TestApplyComputesAmountWhenStorefrontOmitsIt(t *testing.T) {
	validator := &stubValidator{result: Validation{
		Code: Code{Code: "PCT15", Type: TypePercentage, Value: dec("15"), IsActive: true},
	}}
	applier, _ := NewApplier(validator, nil)

	result, err := applier.Apply(context.Background(), "PCT15", OrderContext{Subtotal: dec("33.33")})
	require.NoError(t, err)
	assert.True(t, dec("5").Equal(result.Amount), "got %s", result.Amount)
}

func TestApplyClassifiesStorefrontRejections(t *testing.T) {
	cases := []struct {
		upstream error
		want     Reason
		code     pkgerrors.Code
	}{
		{pkgerrors.New(pkgerrors.CodeBusinessRule, "Discount code has expired"), ReasonExpired, pkgerrors.CodeBusinessRule},
		{pkgerrors.New(pkgerrors.CodeBusinessRule, "Usage limit reached"), ReasonUsageLimit, pkgerrors.CodeBusinessRule},
		{pkgerrors.New(pkgerrors.CodeBusinessRule, "Minimum order amount is 50"), ReasonNotApplicable, pkgerrors.CodeBusinessRule},
		{pkgerrors.New(pkgerrors.CodeBusinessRule, "Invalid discount code"), ReasonNotFound, pkgerrors.CodeBusinessRule},
		{pkgerrors.New(pkgerrors.CodeNotFound, "not found"), ReasonNotFound, pkgerrors.CodeBusinessRule},
	}
	for _, tc := range cases {
		applier, _ := NewApplier(&stubValidator{err: tc.upstream}, nil)
		_, err := applier.Apply(context.Background(), "CODE1", OrderContext{Subtotal: dec("10")})
		reason, ok := ReasonOf(err)
		require.True(t, ok, tc.upstream.Error())
		assert.Equal(t, tc.want, reason)
		assert.Equal(t, tc.code, pkgerrors.CodeOf(err))
		assert.Equal(t, tc.want.Message(), pkgerrors.As(err).Message())
		assert.ErrorIs(t, err, tc.upstream)
	}
}

func TestApplyPassesThroughTransportFailures(t *testing.T) {
	applier, _ := NewApplier(&stubValidator{err: errors.New("dial tcp: refused")}, nil)
	_, err := applier.Apply(context.Background(), "CODE1", OrderContext{Subtotal: dec("10")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	_, ok := ReasonOf(err)
	assert.False(t, ok)

	auth := pkgerrors.New(pkgerrors.CodeUnauthorized, "token expired")
	applier, _ = NewApplier(&stubValidator{err: auth}, nil)
	_, err = applier.Apply(context.Background(), "CODE1", OrderContext{Subtotal: dec("10")})
	assert.Same(t, auth, pkgerrors.As(err))
}

func TestReasonsHaveDistinctMessages(t *testing.T) {
	seen := map[string]Reason{}
	for _, r := range []Reason{ReasonInvalidFormat, ReasonCartEmpty, ReasonNotApplicable, ReasonExpired, ReasonUsageLimit, ReasonNotFound} {
		msg := r.Message()
		_, dup := seen[msg]
		assert.False(t, dup, "duplicate message for %s", r)
		seen[msg] = r
	}
}

func TestCodeUsable(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	limit := 3

	base := Code{Code: "X10", Type: TypeFixed, Value: dec("10"), MinimumAmount: dec("50"), IsActive: true}
	assert.True(t, base.Usable(now, dec("50")))

	inactive := base
	inactive.IsActive = false
	assert.Equal(t, ReasonNotFound, inactive.Check(now, dec("60")))

	expired := base
	expired.ExpiresAt = &past
	assert.Equal(t, ReasonExpired, expired.Check(now, dec("60")))

	notStarted := base
	notStarted.StartsAt = &future
	assert.False(t, notStarted.Usable(now, dec("60")))

	used := base
	used.UsageLimit = &limit
	used.UsedCount = 3
	assert.Equal(t, ReasonUsageLimit, used.Check(now, dec("60")))

	assert.Equal(t, ReasonNotApplicable, base.Check(now, dec("49.99")))
}

func TestCodeAmountFor(t *testing.T) {
	pct := Code{Type: TypePercentage, Value: dec("10")}
	assert.True(t, dec("13").Equal(pct.AmountFor(dec("130"))))
	assert.True(t, dec("1.23").Equal(pct.AmountFor(dec("12.345"))))

	fixed := Code{Type: TypeFixed, Value: dec("25")}
	assert.True(t, dec("25").Equal(fixed.AmountFor(dec("100"))))
	assert.True(t, dec("20").Equal(fixed.AmountFor(dec("20"))))
	assert.True(t, fixed.AmountFor(decimal.Zero).IsZero())

	capped := dec("5")
	pct.MaxDiscount = &capped
	assert.True(t, dec("5").Equal(pct.AmountFor(dec("130"))))
}

func TestRepriceFollowsTheCart(t *testing.T) {
	cap5 := dec("5")
	applier, _ := NewApplier(&stubValidator{result: Validation{
		Code:           Code{Code: "TENOFF", Type: TypePercentage, Value: dec("10"), MinimumAmount: dec("20"), MaxDiscount: &cap5, IsActive: true},
		DiscountAmount: dec("3"),
	}}, nil)
	applied, err := applier.Apply(context.Background(), "TENOFF", OrderContext{Subtotal: dec("30")})
	require.NoError(t, err)
	require.True(t, dec("3").Equal(applied.Amount))

	grown, ok := applied.Reprice(dec("40"))
	require.True(t, ok)
	assert.True(t, dec("4").Equal(grown.Amount), "got %s", grown.Amount)

	capped, ok := applied.Reprice(dec("200"))
	require.True(t, ok)
	assert.True(t, dec("5").Equal(capped.Amount), "got %s", capped.Amount)

	_, ok = applied.Reprice(dec("19.99"))
	assert.False(t, ok, "minimum no longer met")
	_, ok = applied.Reprice(decimal.Zero)
	assert.False(t, ok)
}

func TestRepriceFixedCodeOnlyClamps(t *testing.T) {
	applier, _ := NewApplier(&stubValidator{result: Validation{
		Code:           Code{Code: "FLAT10", Type: TypeFixed, Value: dec("10"), IsActive: true},
		DiscountAmount: dec("10"),
	}}, nil)
	applied, err := applier.Apply(context.Background(), "FLAT10", OrderContext{Subtotal: dec("50")})
	require.NoError(t, err)

	grown, ok := applied.Reprice(dec("500"))
	require.True(t, ok)
	assert.True(t, dec("10").Equal(grown.Amount))

	shrunk, ok := applied.Reprice(dec("4"))
	require.True(t, ok)
	assert.True(t, dec("4").Equal(shrunk.Amount))

	bare := Result{Code: "X", Amount: dec("10"), Type: TypePercentage}
	kept, ok := bare.Reprice(dec("500"))
	require.True(t, ok)
	assert.True(t, dec("10").Equal(kept.Amount), "no record, nothing to recompute from")
}
