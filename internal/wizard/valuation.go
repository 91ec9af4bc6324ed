package wizard

import (
	"github.com/google/uuid"

	"github.com/example/autolead/internal/pricing"
)

// ValuationState is one of VehicleProfile, SellerInfo, SellerVerifying, PriceEstimated,
// OptionSelected or Finished.
type ValuationState interface {
	Step() Step
	valuationState()
}

type VehicleProfile struct{}

type SellerInfo struct {
	Vehicle Vehicle
}

type SellerVerifying struct {
	Vehicle Vehicle
	Seller  Contact
}

// PriceEstimated holds the tiers. ListingID is nil while the listing only lives in the draft.
type PriceEstimated struct {
	Vehicle   Vehicle
	Seller    Contact
	Estimate  pricing.Estimate
	ListingID *uuid.UUID
}

type OptionSelected struct {
	Vehicle   Vehicle
	Seller    Contact
	Estimate  pricing.Estimate
	ListingID uuid.UUID
	Tier      pricing.Tier
}

type Finished struct {
	Vehicle   Vehicle
	Seller    Contact
	Estimate  pricing.Estimate
	ListingID uuid.UUID
	Tier      pricing.Tier
	Decision  Decision
}

func (VehicleProfile) Step() Step  { return StepVehicleProfile }
func (SellerInfo) Step() Step      { return StepSellerInfo }
func (SellerVerifying) Step() Step { return StepSellerVerifying }
func (PriceEstimated) Step() Step  { return StepPriceEstimate }
func (OptionSelected) Step() Step  { return StepOptionSelected }
func (Finished) Step() Step        { return StepFinished }

func (VehicleProfile) valuationState()  {}
func (SellerInfo) valuationState()      {}
func (SellerVerifying) valuationState() {}
func (PriceEstimated) valuationState()  {}
func (OptionSelected) valuationState()  {}
func (Finished) valuationState()        {}

// ValuationEvent drives NextValuation.
type ValuationEvent interface {
	valuationEvent()
}

type VehicleSubmitted struct{ Vehicle Vehicle }

type SellerSubmitted struct{ Seller Contact }

// PriceCalculated ends verification with the computed tiers and, when persisted, the listing.
type PriceCalculated struct {
	Estimate  pricing.Estimate
	ListingID *uuid.UUID
}

// ListingAttached records the listing row created after the estimate was shown.
type ListingAttached struct{ ListingID uuid.UUID }

// TierSelected requires a persisted listing.
type TierSelected struct{ Tier pricing.Tier }

type DecisionMade struct{ Decision Decision }

func (VehicleSubmitted) valuationEvent() {}
func (SellerSubmitted) valuationEvent()  {}
func (PriceCalculated) valuationEvent()  {}
func (ListingAttached) valuationEvent()  {}
func (TierSelected) valuationEvent()     {}
func (DecisionMade) valuationEvent()     {}

// NextValuation is the transition function of the seller valuation pipeline.
func NextValuation(s ValuationState, e ValuationEvent) (ValuationState, error) {
	switch st := s.(type) {
	case VehicleProfile:
		if ev, ok := e.(VehicleSubmitted); ok {
			return SellerInfo{Vehicle: ev.Vehicle}, nil
		}
	case SellerInfo:
		switch ev := e.(type) {
		case VehicleSubmitted:
			return SellerInfo{Vehicle: ev.Vehicle}, nil
		case SellerSubmitted:
			return SellerVerifying{Vehicle: st.Vehicle, Seller: ev.Seller}, nil
		}
	case SellerVerifying:
		switch ev := e.(type) {
		case SellerSubmitted:
			return SellerVerifying{Vehicle: st.Vehicle, Seller: ev.Seller}, nil
		case PriceCalculated:
			return PriceEstimated{Vehicle: st.Vehicle, Seller: st.Seller, Estimate: ev.Estimate, ListingID: ev.ListingID}, nil
		}
	case PriceEstimated:
		switch ev := e.(type) {
		case ListingAttached:
			id := ev.ListingID
			st.ListingID = &id
			return st, nil
		case TierSelected:
			if st.ListingID == nil {
				break
			}
			return OptionSelected{
				Vehicle:   st.Vehicle,
				Seller:    st.Seller,
				Estimate:  st.Estimate,
				ListingID: *st.ListingID,
				Tier:      ev.Tier,
			}, nil
		}
	case OptionSelected:
		switch ev := e.(type) {
		case TierSelected:
			st.Tier = ev.Tier
			return st, nil
		case DecisionMade:
			return Finished{
				Vehicle:   st.Vehicle,
				Seller:    st.Seller,
				Estimate:  st.Estimate,
				ListingID: st.ListingID,
				Tier:      st.Tier,
				Decision:  ev.Decision,
			}, nil
		}
	}
	return s, illegal(s.Step(), e)
}
