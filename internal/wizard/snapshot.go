package wizard

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/autolead/internal/pricing"
)

// ErrIncompleteSnapshot means a stored snapshot lacks data its step requires.
var ErrIncompleteSnapshot = errors.New("incomplete wizard snapshot")

// Snapshot is the flat, JSON-friendly form of either pipeline's state.
type Snapshot struct {
	Step        Step              `json:"step"`
	Car         *CarChoice        `json:"car,omitempty"`
	Contact     *Contact          `json:"contact,omitempty"`
	Vehicle     *Vehicle          `json:"vehicle,omitempty"`
	Estimate    *pricing.Estimate `json:"estimate,omitempty"`
	QuotationID *uuid.UUID        `json:"quotation_id,omitempty"`
	ListingID   *uuid.UUID        `json:"listing_id,omitempty"`
	Tier        pricing.Tier      `json:"tier,omitempty"`
	Decision    Decision          `json:"decision,omitempty"`
}

func incomplete(step Step, missing string) error {
	return fmt.Errorf("%w: %s without %s", ErrIncompleteSnapshot, step, missing)
}

// SnapshotQuote flattens a quote state.
func SnapshotQuote(s QuoteState) Snapshot {
	snap := Snapshot{Step: s.Step()}
	switch st := s.(type) {
	case BuyerInfo:
		snap.Car = &st.Car
	case QuoteVerifying:
		snap.Car, snap.Contact = &st.Car, &st.Buyer
	case Quoted:
		id := st.QuotationID
		snap.Car, snap.Contact, snap.QuotationID = &st.Car, &st.Buyer, &id
	}
	return snap
}

// QuoteState rebuilds the typed quote state.
func (s Snapshot) QuoteState() (QuoteState, error) {
	switch s.Step {
	case StepCarSelection:
		return CarSelection{}, nil
	case StepBuyerInfo:
		if s.Car == nil {
			return nil, incomplete(s.Step, "car")
		}
		return BuyerInfo{Car: *s.Car}, nil
	case StepQuoteVerifying:
		if s.Car == nil || s.Contact == nil {
			return nil, incomplete(s.Step, "car and buyer")
		}
		return QuoteVerifying{Car: *s.Car, Buyer: *s.Contact}, nil
	case StepQuoted:
		if s.Car == nil || s.Contact == nil || s.QuotationID == nil {
			return nil, incomplete(s.Step, "car, buyer and quotation")
		}
		return Quoted{Car: *s.Car, Buyer: *s.Contact, QuotationID: *s.QuotationID}, nil
	}
	return nil, fmt.Errorf("%w: %q is not a quote step", ErrIncompleteSnapshot, s.Step)
}

// SnapshotValuation flattens a valuation state.
func SnapshotValuation(s ValuationState) Snapshot {
	snap := Snapshot{Step: s.Step()}
	switch st := s.(type) {
	case SellerInfo:
		snap.Vehicle = &st.Vehicle
	case SellerVerifying:
		snap.Vehicle, snap.Contact = &st.Vehicle, &st.Seller
	case PriceEstimated:
		snap.Vehicle, snap.Contact, snap.Estimate, snap.ListingID = &st.Vehicle, &st.Seller, &st.Estimate, st.ListingID
	case OptionSelected:
		id := st.ListingID
		snap.Vehicle, snap.Contact, snap.Estimate, snap.ListingID = &st.Vehicle, &st.Seller, &st.Estimate, &id
		snap.Tier = st.Tier
	case Finished:
		id := st.ListingID
		snap.Vehicle, snap.Contact, snap.Estimate, snap.ListingID = &st.Vehicle, &st.Seller, &st.Estimate, &id
		snap.Tier, snap.Decision = st.Tier, st.Decision
	}
	return snap
}

// ValuationState rebuilds the typed valuation state.
func (s Snapshot) ValuationState() (ValuationState, error) {
	switch s.Step {
	case StepVehicleProfile:
		return VehicleProfile{}, nil
	case StepSellerInfo:
		if s.Vehicle == nil {
			return nil, incomplete(s.Step, "vehicle")
		}
		return SellerInfo{Vehicle: *s.Vehicle}, nil
	case StepSellerVerifying:
		if s.Vehicle == nil || s.Contact == nil {
			return nil, incomplete(s.Step, "vehicle and seller")
		}
		return SellerVerifying{Vehicle: *s.Vehicle, Seller: *s.Contact}, nil
	case StepPriceEstimate:
		if s.Vehicle == nil || s.Contact == nil || s.Estimate == nil {
			return nil, incomplete(s.Step, "vehicle, seller and estimate")
		}
		return PriceEstimated{Vehicle: *s.Vehicle, Seller: *s.Contact, Estimate: *s.Estimate, ListingID: s.ListingID}, nil
	case StepOptionSelected, StepFinished:
		if s.Vehicle == nil || s.Contact == nil || s.Estimate == nil || s.ListingID == nil || s.Tier == "" {
			return nil, incomplete(s.Step, "vehicle, seller, estimate, listing and tier")
		}
		sel := OptionSelected{
			Vehicle:   *s.Vehicle,
			Seller:    *s.Contact,
			Estimate:  *s.Estimate,
			ListingID: *s.ListingID,
			Tier:      s.Tier,
		}
		if s.Step == StepOptionSelected {
			return sel, nil
		}
		if s.Decision == "" {
			return nil, incomplete(s.Step, "decision")
		}
		return NextValuation(sel, DecisionMade{Decision: s.Decision})
	}
	return nil, fmt.Errorf("%w: %q is not a valuation step", ErrIncompleteSnapshot, s.Step)
}
