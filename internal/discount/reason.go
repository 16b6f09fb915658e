package discount

import (
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
)

// Reason names why a discount code could not be applied.
type Reason string

const (
	ReasonInvalidFormat Reason = "invalid_format"
	ReasonCartEmpty     Reason = "cart_empty"
	ReasonNotApplicable Reason = "not_applicable"
	ReasonExpired       Reason = "expired"
	ReasonUsageLimit    Reason = "usage_limit_reached"
	ReasonNotFound      Reason = "not_found"
)

var reasonMessages = map[Reason]string{
	ReasonInvalidFormat: "Discount codes are 3 to 50 letters or digits.",
	ReasonCartEmpty:     "Add something to your cart before applying a discount code.",
	ReasonNotApplicable: "This discount code does not apply to your order.",
	ReasonExpired:       "This discount code has expired.",
	ReasonUsageLimit:    "This discount code has reached its usage limit.",
	ReasonNotFound:      "This discount code is not valid.",
}

// Message is the text shown to the shopper.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return reasonMessages[ReasonNotFound]
}

func (r Reason) code() pkgerrors.Code {
	switch r {
	case ReasonInvalidFormat, ReasonCartEmpty:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeBusinessRule
	}
}

// Err builds the typed error for r, carrying the reason as a detail.
func (r Reason) Err() *pkgerrors.Error {
	return pkgerrors.New(r.code(), r.Message()).WithDetails(map[string]any{"reason": string(r)})
}

// ReasonOf extracts the reason from an error produced by this package.
func ReasonOf(err error) (Reason, bool) {
	typed := pkgerrors.As(err)
	if typed == nil {
		return "", false
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return "", false
	}
	raw, ok := details["reason"].(string)
	if !ok {
		return "", false
	}
	return Reason(raw), true
}

// ClassifyMessage maps a storefront rejection message onto a reason. Anything
// unrecognized is treated as an unknown code.
func ClassifyMessage(message string) Reason {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "expired"):
		return ReasonExpired
	case strings.Contains(msg, "usage limit"), strings.Contains(msg, "limit reached"), strings.Contains(msg, "used up"):
		return ReasonUsageLimit
	case strings.Contains(msg, "minimum"), strings.Contains(msg, "not applicable"), strings.Contains(msg, "does not apply"), strings.Contains(msg, "not eligible"):
		return ReasonNotApplicable
	case strings.Contains(msg, "format"):
		return ReasonInvalidFormat
	default:
		return ReasonNotFound
	}
}
