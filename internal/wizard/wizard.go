// Package wizard models the two lead pipelines as explicit state machines. Every state
// carries exactly the data gathered so far, so a state such as "quoted without a car"
// cannot be built.
package wizard

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/autolead/internal/pricing"
)

var (
	// ErrIllegalTransition is returned when an event does not apply to the current state.
	ErrIllegalTransition = errors.New("illegal wizard transition")
	// ErrCarPriceTooLow is returned when a selected car is cheaper than pricing.MinCarPrice.
	ErrCarPriceTooLow = fmt.Errorf("car price must be at least %d", pricing.MinCarPrice)
)

// Step is the serialized tag of a state.
type Step string

const (
	StepCarSelection    Step = "car_selection"
	StepBuyerInfo       Step = "buyer_info"
	StepQuoteVerifying  Step = "quote_verifying"
	StepQuoted          Step = "quoted"
	StepVehicleProfile  Step = "vehicle_profile"
	StepSellerInfo      Step = "seller_info"
	StepSellerVerifying Step = "seller_verifying"
	StepPriceEstimate   Step = "price_estimate"
	StepOptionSelected  Step = "option_selected"
	StepFinished        Step = "finished"
)

// CarChoice is the car and financing terms picked on the car selection step.
type CarChoice struct {
	CatalogID             *uuid.UUID `json:"catalog_id,omitempty"`
	Brand                 string     `json:"brand"`
	Model                 string     `json:"model"`
	Year                  int        `json:"year"`
	Price                 int64      `json:"price"`
	DownPaymentPercentage int        `json:"down_payment_percentage"`
	Term                  int        `json:"term"`
}

// Contact is the identity captured on the buyer or seller info step.
type Contact struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
}

// Vehicle is the seller's vehicle profile.
type Vehicle struct {
	Brand     string   `json:"brand"`
	Model     string   `json:"model"`
	Year      int      `json:"year"`
	Version   string   `json:"version"`
	Mileage   int64    `json:"mileage"`
	Condition string   `json:"condition"`
	Location  string   `json:"location"`
	Features  []string `json:"features,omitempty"`
}

// Decision is the seller's choice after picking a tier.
type Decision string

const (
	DecisionContinue    Decision = "continue"
	DecisionSaveAndExit Decision = "save_and_exit"
)

// ParseDecision validates a decision coming from a request.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionContinue, DecisionSaveAndExit:
		return d, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

func illegal(from Step, event any) error {
	return fmt.Errorf("%w: %T in %s", ErrIllegalTransition, event, from)
}

// PricingVehicle projects the attributes the estimator needs.
func (v Vehicle) PricingVehicle() pricing.Vehicle {
	return pricing.Vehicle{Year: v.Year, Mileage: v.Mileage}
}
