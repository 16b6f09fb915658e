package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-session/api/responses"
	"github.com/angelmondragon/storefront-session/api/validators"
	"github.com/angelmondragon/storefront-session/internal/checkout"
	"github.com/angelmondragon/storefront-session/internal/session"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/pricing"
)

const maxFieldLength = 255

type checkoutView struct {
	State   checkout.State       `json:"state"`
	Step    string               `json:"step"`
	Missing []string             `json:"missing"`
	Summary pricing.OrderSummary `json:"summary"`
}

func newCheckoutView(sess *session.Session) checkoutView {
	state := sess.Checkout().State()
	missing := checkout.MissingFields(state.CurrentStep, state)
	if missing == nil {
		missing = []string{}
	}
	return checkoutView{
		State:   state,
		Step:    state.CurrentStep.String(),
		Missing: missing,
		Summary: sess.Summary(),
	}
}

type shippingRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (r shippingRequest) toShipping() checkout.Shipping {
	clean := func(v string) string { return validators.SanitizeString(v, maxFieldLength) }
	return checkout.Shipping{
		FirstName:  clean(r.FirstName),
		LastName:   clean(r.LastName),
		Email:      clean(r.Email),
		Phone:      clean(r.Phone),
		Address:    clean(r.Address),
		City:       clean(r.City),
		State:      clean(r.State),
		PostalCode: clean(r.PostalCode),
		Country:    clean(r.Country),
	}
}

type paymentRequest struct {
	Method        string `json:"method"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
}

type gotoRequest struct {
	Step int `json:"step" validate:"min=1,max=4"`
}

type orderResponse struct {
	Order    session.Order `json:"order"`
	Checkout checkoutView  `json:"checkout"`
}

// CheckoutGet returns the wizard state, what blocks the current step and
// the order summary.
func CheckoutGet(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFor(r, store)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutView(sess))
	}
}

func CheckoutShipping(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFor(r, store)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload shippingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess.Checkout().UpdateShipping(payload.toShipping())
		responses.WriteSuccess(w, newCheckoutView(sess))
	}
}

func CheckoutPayment(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFor(r, store)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload paymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess.Checkout().UpdatePayment(checkout.Payment{
			Method:        validators.SanitizeString(payload.Method, maxFieldLength),
			CustomerName:  validators.SanitizeString(payload.CustomerName, maxFieldLength),
			CustomerEmail: validators.SanitizeString(payload.CustomerEmail, maxFieldLength),
		})
		responses.WriteSuccess(w, newCheckoutView(sess))
	}
}

// CheckoutNext advances one step. When the current step is incomplete the
// state is left alone and the missing fields come back as a validation error.
func CheckoutNext(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFor(r, store)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, missing := sess.Checkout().Next()
		if len(missing) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "please complete the required fields").
				WithDetails(map[string]any{"step": int(state.CurrentStep), "missing": missing}))
			return
		}
		responses.WriteSuccess(w, newCheckoutView(sess))
	}
}

func CheckoutPrevious(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFor(r, store)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess.Checkout().Previous()
		responses.WriteSuccess(w, newCheckoutView(sess))
	}
}

func CheckoutGoTo(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFor(r, store)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload gotoRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := sess.Checkout().GoTo(checkout.Step(payload.Step)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutView(sess))
	}
}

func CheckoutReset(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFor(r, store)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := sess.Checkout().Reset(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not clear saved checkout"))
			return
		}
		responses.WriteSuccess(w, newCheckoutView(sess))
	}
}

// CheckoutSubmit places the order from the Review step.
func CheckoutSubmit(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFor(r, store)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := sess.PlaceOrder(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, orderResponse{
			Order:    order,
			Checkout: newCheckoutView(sess),
		})
	}
}
