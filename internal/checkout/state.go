package checkout

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Step is a checkout wizard page.
type Step int

const (
	StepShipping     Step = 1
	StepPayment      Step = 2
	StepReview       Step = 3
	StepConfirmation Step = 4
)

func (s Step) Valid() bool {
	return s >= StepShipping && s <= StepConfirmation
}

func (s Step) String() string {
	switch s {
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	case StepReview:
		return "review"
	case StepConfirmation:
		return "confirmation"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

type Shipping struct {
	FirstName  string `json:"first_name" validate:"notblank"`
	LastName   string `json:"last_name" validate:"notblank"`
	Email      string `json:"email" validate:"notblank"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address" validate:"notblank"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Payment struct {
	Method        string `json:"method" validate:"notblank"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// State is everything the wizard auto-saves.
type State struct {
	CurrentStep     Step      `json:"current_step"`
	Shipping        Shipping  `json:"shipping"`
	Payment         Payment   `json:"payment"`
	IsAuthenticated bool      `json:"is_authenticated"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newState() State {
	return State{CurrentStep: StepShipping}
}

var gate = newGateValidator()

func newGateValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// MissingFields lists what blocks leaving step. Review has no gate and
// Confirmation is terminal, so both report nothing.
func MissingFields(step Step, st State) []string {
	var target any
	switch step {
	case StepShipping:
		target = st.Shipping
	case StepPayment:
		target = st.Payment
	default:
		return nil
	}
	err := gate.Struct(target)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	missing := make([]string, 0, len(errs))
	for _, fe := range errs {
		missing = append(missing, fe.Field())
	}
	return missing
}
