package pricing

import (
	"fmt"
	"math"
	"time"
)

// Currency every estimate is expressed in.
const Currency = "MXN"

// Tier names one of the three price points offered to a seller.
type Tier string

const (
	TierQuick    Tier = "quick"
	TierBalanced Tier = "balanced"
	TierPremium  Tier = "premium"
)

// ParseTier validates a tier coming from a request.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierQuick, TierBalanced, TierPremium:
		return t, nil
	}
	return "", fmt.Errorf("unknown price tier %q", s)
}

// Vehicle holds the attributes the estimator looks at.
type Vehicle struct {
	Year    int
	Mileage int64
}

// Estimate is the three-tier valuation of a vehicle.
type Estimate struct {
	Quick    int64  `json:"quick"`
	Balanced int64  `json:"balanced"`
	Premium  int64  `json:"premium"`
	Currency string `json:"currency"`
}

// Price returns the amount for tier, or 0 for an unknown tier.
func (e Estimate) Price(t Tier) int64 {
	switch t {
	case TierQuick:
		return e.Quick
	case TierBalanced:
		return e.Balanced
	case TierPremium:
		return e.Premium
	}
	return 0
}

// Estimator is the placeholder pricing model: a linear depreciation from BasePrice by
// mileage and age, with fixed spreads around the balanced price.
type Estimator struct {
	BasePrice     float64
	MileageFactor float64
	YearFactor    float64
	ReferenceYear int
	QuickSpread   float64
	PremiumSpread float64
	// MinBalanced floors the balanced price so the tiers keep their strict order for
	// extreme mileage or age.
	MinBalanced float64
}

// NewEstimator returns the production mock policy anchored at referenceYear.
// A referenceYear of 0 means the current calendar year.
func NewEstimator(referenceYear int) Estimator {
	if referenceYear == 0 {
		referenceYear = time.Now().Year()
	}
	return Estimator{
		BasePrice:     350000,
		MileageFactor: -0.05,
		YearFactor:    -10000,
		ReferenceYear: referenceYear,
		QuickSpread:   0.85,
		PremiumSpread: 1.15,
		MinBalanced:   10000,
	}
}

// Estimate prices v. The three tiers satisfy Quick < Balanced < Premium.
func (e Estimator) Estimate(v Vehicle) Estimate {
	balanced := e.BasePrice +
		float64(v.Mileage)*e.MileageFactor +
		float64(e.ReferenceYear-v.Year)*e.YearFactor
	balanced = math.Round(balanced)
	if balanced < e.MinBalanced {
		balanced = e.MinBalanced
	}

	return Estimate{
		Quick:    int64(math.Round(balanced * e.QuickSpread)),
		Balanced: int64(balanced),
		Premium:  int64(math.Round(balanced * e.PremiumSpread)),
		Currency: Currency,
	}
}
