package wizard

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autolead/internal/pricing"
)

var (
	testCar     = CarChoice{Brand: "Mazda", Model: "3", Year: 2022, Price: 300000, DownPaymentPercentage: 20, Term: 36}
	testBuyer   = Contact{Name: "Ana", Email: "ana@example.com", Phone: "5512345678", CountryCode: "+52"}
	testVehicle = Vehicle{Brand: "Honda", Model: "Civic", Year: 2018, Mileage: 80000, Condition: "good"}
)

func TestNextQuote_HappyPath(t *testing.T) {
	qid := uuid.New()

	var s QuoteState = CarSelection{}
	var err error
	for _, ev := range []QuoteEvent{
		CarSelected{Car: testCar},
		TermChanged{Term: 48},
		BuyerSubmitted{Buyer: testBuyer},
		QuoteConfirmed{QuotationID: qid},
		TermChanged{Term: 12},
	} {
		s, err = NextQuote(s, ev)
		require.NoError(t, err)
	}

	want := Quoted{Car: testCar, Buyer: testBuyer, QuotationID: qid}
	want.Car.Term = 12
	if diff := cmp.Diff(QuoteState(want), s); diff != "" {
		t.Errorf("final state mismatch (-want +got):\n%s", diff)
	}
}

func TestNextQuote_IllegalTransitions(t *testing.T) {
	cases := []struct {
		name  string
		state QuoteState
		event QuoteEvent
	}{
		{"confirm before buyer", BuyerInfo{Car: testCar}, QuoteConfirmed{QuotationID: uuid.New()}},
		{"buyer before car", CarSelection{}, BuyerSubmitted{Buyer: testBuyer}},
		{"confirm without quotation", QuoteVerifying{Car: testCar, Buyer: testBuyer}, QuoteConfirmed{}},
		{"unknown term", BuyerInfo{Car: testCar}, TermChanged{Term: 60}},
		{"car change after quote", Quoted{Car: testCar, Buyer: testBuyer, QuotationID: uuid.New()}, CarSelected{Car: testCar}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextQuote(tc.state, tc.event)
			assert.ErrorIs(t, err, ErrIllegalTransition)
			assert.Equal(t, tc.state, got)
		})
	}
}

func TestNextQuote_RejectsCheapCar(t *testing.T) {
	cheap := testCar
	cheap.Price = pricing.MinCarPrice - 1

	got, err := NextQuote(CarSelection{}, CarSelected{Car: cheap})
	assert.ErrorIs(t, err, ErrCarPriceTooLow)
	assert.Equal(t, CarSelection{}, got)

	got, err = NextQuote(BuyerInfo{Car: testCar}, CarSelected{Car: cheap})
	assert.ErrorIs(t, err, ErrCarPriceTooLow)
	assert.Equal(t, BuyerInfo{Car: testCar}, got)

	floor := testCar
	floor.Price = pricing.MinCarPrice
	_, err = NextQuote(CarSelection{}, CarSelected{Car: floor})
	assert.NoError(t, err)
}

func TestNextValuation_HappyPath(t *testing.T) {
	lid := uuid.New()
	est := pricing.NewEstimator(2023).Estimate(testVehicle.PricingVehicle())

	var s ValuationState = VehicleProfile{}
	var err error
	for _, ev := range []ValuationEvent{
		VehicleSubmitted{Vehicle: testVehicle},
		SellerSubmitted{Seller: testBuyer},
		PriceCalculated{Estimate: est},
		ListingAttached{ListingID: lid},
		TierSelected{Tier: pricing.TierQuick},
		TierSelected{Tier: pricing.TierPremium},
		DecisionMade{Decision: DecisionSaveAndExit},
	} {
		s, err = NextValuation(s, ev)
		require.NoError(t, err)
	}

	want := Finished{Vehicle: testVehicle, Seller: testBuyer, Estimate: est, ListingID: lid, Tier: pricing.TierPremium, Decision: DecisionSaveAndExit}
	if diff := cmp.Diff(ValuationState(want), s); diff != "" {
		t.Errorf("final state mismatch (-want +got):\n%s", diff)
	}
}

func TestNextValuation_TierNeedsListing(t *testing.T) {
	s := PriceEstimated{Vehicle: testVehicle, Seller: testBuyer}
	_, err := NextValuation(s, TierSelected{Tier: pricing.TierBalanced})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestSnapshot_RoundTripThroughJSON(t *testing.T) {
	lid := uuid.New()
	states := []ValuationState{
		VehicleProfile{},
		SellerInfo{Vehicle: testVehicle},
		SellerVerifying{Vehicle: testVehicle, Seller: testBuyer},
		OptionSelected{Vehicle: testVehicle, Seller: testBuyer, Estimate: pricing.Estimate{Quick: 1, Balanced: 2, Premium: 3, Currency: "MXN"}, ListingID: lid, Tier: pricing.TierBalanced},
	}
	for _, st := range states {
		raw, err := json.Marshal(SnapshotValuation(st))
		require.NoError(t, err)

		var snap Snapshot
		require.NoError(t, json.Unmarshal(raw, &snap))
		got, err := snap.ValuationState()
		require.NoError(t, err)
		if diff := cmp.Diff(st, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", st.Step(), diff)
		}
	}
}

func TestSnapshot_RejectsIncomplete(t *testing.T) {
	_, err := Snapshot{Step: StepQuoted, Car: &testCar}.QuoteState()
	assert.ErrorIs(t, err, ErrIncompleteSnapshot)

	_, err = Snapshot{Step: StepPriceEstimate, Vehicle: &testVehicle}.ValuationState()
	assert.ErrorIs(t, err, ErrIncompleteSnapshot)

	_, err = Snapshot{Step: StepSellerInfo}.QuoteState()
	assert.ErrorIs(t, err, ErrIncompleteSnapshot)
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("continue")
	require.NoError(t, err)
	assert.Equal(t, DecisionContinue, d)

	_, err = ParseDecision("later")
	assert.Error(t, err)
}
