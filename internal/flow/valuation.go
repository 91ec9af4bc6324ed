package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/autolead/internal/drafts"
	"github.com/example/autolead/internal/models"
	"github.com/example/autolead/internal/notify"
	"github.com/example/autolead/internal/pricing"
	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/wizard"
)

// ValuationView is what every valuation flow call returns.
type ValuationView struct {
	FlowID       uuid.UUID         `json:"flow_id"`
	Step         wizard.Step       `json:"step"`
	Vehicle      *wizard.Vehicle   `json:"vehicle,omitempty"`
	Seller       *wizard.Contact   `json:"seller,omitempty"`
	Estimate     *pricing.Estimate `json:"estimate,omitempty"`
	ListingID    *uuid.UUID        `json:"listing_id,omitempty"`
	Tier         pricing.Tier      `json:"tier,omitempty"`
	Decision     wizard.Decision   `json:"decision,omitempty"`
	Verification *Verification     `json:"verification,omitempty"`
	NextStep     string            `json:"next_step,omitempty"`
	Source       drafts.Source     `json:"source,omitempty"`
	UserID       *uuid.UUID        `json:"-"`
	Warnings     []string          `json:"-"`
}

// StartValuation is the vehicle profile step's input.
type StartValuation struct {
	Vehicle   wizard.Vehicle
	ClientKey string
	Session   Session
}

// ValuationFlow runs the seller valuation wizard.
type ValuationFlow struct {
	Deps
	listings  ListingStore
	estimator pricing.Estimator
	resolver  *drafts.Resolver

	selecting sync.Map
}

func NewValuationFlow(deps Deps, listings ListingStore, estimator pricing.Estimator) *ValuationFlow {
	f := &ValuationFlow{Deps: deps, listings: listings, estimator: estimator}
	f.resolver = drafts.NewResolver(deps.Drafts, f, deps.Log)
	return f
}

// Estimate prices a vehicle without starting a flow.
func (f *ValuationFlow) Estimate(v wizard.Vehicle) pricing.Estimate {
	return f.estimator.Estimate(v.PricingVehicle())
}

func (f *ValuationFlow) view(draft *drafts.Draft, state wizard.ValuationState) *ValuationView {
	snap := wizard.SnapshotValuation(state)
	return &ValuationView{
		FlowID:    draft.FlowID,
		Step:      state.Step(),
		Vehicle:   snap.Vehicle,
		Seller:    snap.Contact,
		Estimate:  snap.Estimate,
		ListingID: snap.ListingID,
		Tier:      snap.Tier,
		Decision:  snap.Decision,
		UserID:    draft.UserID,
	}
}

func (f *ValuationFlow) load(ctx context.Context, flowID uuid.UUID) (*drafts.Draft, wizard.ValuationState, error) {
	draft, err := f.loadDraft(ctx, flowID, drafts.KindValuation)
	if err != nil {
		return nil, nil, err
	}
	state, err := draft.Snapshot.ValuationState()
	if err != nil {
		return nil, nil, err
	}
	return draft, state, nil
}

// Start opens a flow at the seller info step.
func (f *ValuationFlow) Start(ctx context.Context, in StartValuation) (*ValuationView, error) {
	state, err := wizard.NextValuation(wizard.VehicleProfile{}, wizard.VehicleSubmitted{Vehicle: in.Vehicle})
	if err != nil {
		return nil, err
	}
	draft := &drafts.Draft{
		FlowID:    uuid.New(),
		Kind:      drafts.KindValuation,
		ClientKey: in.ClientKey,
		UserID:    in.Session.UserID,
		Snapshot:  wizard.SnapshotValuation(state),
	}
	if err := f.Drafts.Save(ctx, draft); err != nil {
		return nil, err
	}
	return f.view(draft, state), nil
}

// SubmitSeller records the seller and either sends a code or, within the grace window,
// goes straight to the price estimate.
func (f *ValuationFlow) SubmitSeller(ctx context.Context, flowID uuid.UUID, seller wizard.Contact, session Session) (*ValuationView, error) {
	draft, state, err := f.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	seller = normalizeContact(seller)
	next, err := wizard.NextValuation(state, wizard.SellerSubmitted{Seller: seller})
	if err != nil {
		return nil, err
	}
	verifying := next.(wizard.SellerVerifying)

	if f.recentlyVerified(ctx, seller) {
		v, err := f.complete(ctx, draft, verifying, session, false)
		if err != nil {
			return nil, err
		}
		v.Verification.Skipped = true
		return v, nil
	}

	status, err := f.Verifier.Start(ctx, targetOf(seller))
	if err != nil {
		return nil, err
	}

	var warnings []string
	draft.Snapshot = wizard.SnapshotValuation(verifying)
	f.saveDraft(ctx, draft, &warnings)

	v := f.view(draft, verifying)
	v.Verification = &Verification{Status: status}
	v.NextStep = NextVerify
	v.Warnings = warnings
	return v, nil
}

// Verify checks the code. A mismatch writes nothing.
func (f *ValuationFlow) Verify(ctx context.Context, flowID uuid.UUID, code string, session Session) (*ValuationView, error) {
	draft, state, err := f.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	verifying, ok := state.(wizard.SellerVerifying)
	if !ok {
		return nil, fmt.Errorf("%w: verify in %s", wizard.ErrIllegalTransition, state.Step())
	}

	matched, err := f.Verifier.Verify(ctx, targetOf(verifying.Seller), code)
	if err != nil {
		return nil, err
	}
	if !matched {
		v := f.view(draft, verifying)
		v.Verification = &Verification{Verified: false}
		v.NextStep = NextVerify
		return v, nil
	}
	return f.complete(ctx, draft, verifying, session, true)
}

// Resend issues a new code once the cooldown has passed.
func (f *ValuationFlow) Resend(ctx context.Context, flowID uuid.UUID) (*ValuationView, error) {
	draft, state, err := f.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	verifying, ok := state.(wizard.SellerVerifying)
	if !ok {
		return nil, fmt.Errorf("%w: resend in %s", wizard.ErrIllegalTransition, state.Step())
	}
	status, err := f.Verifier.Resend(ctx, targetOf(verifying.Seller))
	if err != nil {
		return nil, err
	}
	v := f.view(draft, verifying)
	v.Verification = &Verification{Status: status}
	v.NextStep = NextVerify
	return v, nil
}

// complete prices the vehicle and opens the draft listing. checked is false when the code
// was skipped inside the grace window; the stored identity is then left alone.
func (f *ValuationFlow) complete(ctx context.Context, draft *drafts.Draft, st wizard.SellerVerifying, session Session, checked bool) (*ValuationView, error) {
	var warnings []string
	var user *models.User
	if checked {
		user = f.recordIdentity(ctx, st.Seller, models.RoleSeller, &warnings)
	}
	if owner := ownerOf(user, session); owner != nil {
		draft.UserID = owner
	}

	estimate := f.Estimate(st.Vehicle)
	listing := &models.VehicleListing{
		UserID:                 draft.UserID,
		Brand:                  st.Vehicle.Brand,
		Model:                  st.Vehicle.Model,
		Year:                   st.Vehicle.Year,
		Version:                st.Vehicle.Version,
		Mileage:                st.Vehicle.Mileage,
		Condition:              st.Vehicle.Condition,
		Location:               st.Vehicle.Location,
		Features:               st.Vehicle.Features,
		EstimatedPriceQuick:    estimate.Quick,
		EstimatedPriceBalanced: estimate.Balanced,
		EstimatedPricePremium:  estimate.Premium,
		Currency:               estimate.Currency,
		Status:                 models.ListingDraft,
	}
	var listingID *uuid.UUID
	if err := f.listings.Create(ctx, listing); err != nil {
		f.Log.Warn("flow: listing insert failed", zap.String("flow_id", draft.FlowID.String()), zap.Error(err))
		warnings = append(warnings, WarnListingNotSaved)
	} else {
		listingID = &listing.ID
	}

	next, err := wizard.NextValuation(st, wizard.PriceCalculated{Estimate: estimate, ListingID: listingID})
	if err != nil {
		return nil, err
	}

	f.dispatch(notify.Event{
		Name:      notify.EventValuationVerified,
		FlowID:    draft.FlowID.String(),
		Contact:   contactOf(st.Seller),
		Valuation: valuationOf(st.Vehicle, estimate, listingID, ""),
	})

	draft.Snapshot = wizard.SnapshotValuation(next)
	f.saveDraft(ctx, draft, &warnings)

	v := f.view(draft, next)
	v.Verification = &Verification{Verified: true}
	if checked {
		v.NextStep = nextAfterVerification(session, user)
	} else {
		v.NextStep = f.nextAfterSkip(ctx, session, st.Seller)
	}
	v.Warnings = warnings
	return v, nil
}

// resolveListing finds the listing behind a price estimate, falling back to the user's
// newest draft row when the insert failed earlier.
func (f *ValuationFlow) resolveListing(ctx context.Context, draft *drafts.Draft, st wizard.ValuationState) (uuid.UUID, wizard.ValuationState, error) {
	switch s := st.(type) {
	case wizard.OptionSelected:
		return s.ListingID, s, nil
	case wizard.PriceEstimated:
		if s.ListingID != nil {
			return *s.ListingID, s, nil
		}
		if draft.UserID != nil {
			l, err := f.listings.LatestDraftForUser(ctx, *draft.UserID)
			if err == nil {
				next, err := wizard.NextValuation(s, wizard.ListingAttached{ListingID: l.ID})
				if err != nil {
					return uuid.Nil, nil, err
				}
				return l.ID, next, nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return uuid.Nil, nil, fmt.Errorf("%w: %v", ErrListingUnresolved, err)
			}
		}
		return uuid.Nil, nil, ErrListingUnresolved
	}
	return uuid.Nil, nil, fmt.Errorf("%w: select tier in %s", wizard.ErrIllegalTransition, st.Step())
}

// SelectTier records the chosen price and publishes the listing. Only one selection per
// flow runs at a time; a concurrent one gets ErrSelectionInProgress. A failed update is
// reported as a warning and leaves the flow where it was so the user can retry.
func (f *ValuationFlow) SelectTier(ctx context.Context, flowID uuid.UUID, tier pricing.Tier) (*ValuationView, error) {
	if _, busy := f.selecting.LoadOrStore(flowID, struct{}{}); busy {
		return nil, ErrSelectionInProgress
	}
	defer f.selecting.Delete(flowID)

	draft, state, err := f.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	listingID, state, err := f.resolveListing(ctx, draft, state)
	if err != nil {
		return nil, err
	}

	if err := f.listings.SelectPriceType(ctx, listingID, string(tier)); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrListingUnresolved
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, err
		}
		f.Log.Warn("flow: select price type failed",
			zap.String("listing_id", listingID.String()), zap.Error(err))
		v := f.view(draft, state)
		v.Warnings = []string{WarnSelectionNotSaved}
		return v, nil
	}

	next, err := wizard.NextValuation(state, wizard.TierSelected{Tier: tier})
	if err != nil {
		return nil, err
	}

	var warnings []string
	draft.Snapshot = wizard.SnapshotValuation(next)
	f.saveDraft(ctx, draft, &warnings)

	sel := next.(wizard.OptionSelected)
	f.dispatch(notify.Event{
		Name:      notify.EventTierSelected,
		FlowID:    draft.FlowID.String(),
		Contact:   contactOf(sel.Seller),
		Valuation: valuationOf(sel.Vehicle, sel.Estimate, &sel.ListingID, tier),
	})

	v := f.view(draft, next)
	v.Warnings = warnings
	return v, nil
}

// Decide finishes the flow with continue (go upload photos) or save_and_exit.
func (f *ValuationFlow) Decide(ctx context.Context, flowID uuid.UUID, decision wizard.Decision) (*ValuationView, error) {
	draft, state, err := f.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	next, err := wizard.NextValuation(state, wizard.DecisionMade{Decision: decision})
	if err != nil {
		return nil, err
	}

	var warnings []string
	draft.Snapshot = wizard.SnapshotValuation(next)
	f.saveDraft(ctx, draft, &warnings)

	v := f.view(draft, next)
	v.NextStep = NextHome
	if decision == wizard.DecisionContinue {
		v.NextStep = NextPhotos
	}
	v.Warnings = warnings
	return v, nil
}

// Resume recovers a valuation draft and re-opens it under its flow id.
func (f *ValuationFlow) Resume(ctx context.Context, req drafts.ResolveRequest) (*ValuationView, error) {
	draft, source, err := f.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if draft.Kind != drafts.KindValuation {
		return nil, drafts.ErrNoDraft
	}
	state, err := draft.Snapshot.ValuationState()
	if err != nil {
		f.Log.Warn("flow: unusable draft", zap.String("source", string(source)), zap.Error(err))
		return nil, drafts.ErrNoDraft
	}
	if req.ClientKey != "" && draft.ClientKey == "" {
		draft.ClientKey = req.ClientKey
	}

	var warnings []string
	if source != drafts.SourceNavigation {
		f.saveDraft(ctx, draft, &warnings)
	}

	v := f.view(draft, state)
	v.Source = source
	v.Warnings = warnings
	return v, nil
}

// LatestDraft rebuilds a draft from the user's newest draft listing.
func (f *ValuationFlow) LatestDraft(ctx context.Context, userID uuid.UUID) (*drafts.Draft, error) {
	l, err := f.listings.LatestDraftForUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, drafts.ErrNoDraft
	}
	if err != nil {
		return nil, err
	}
	user, err := f.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	vehicle := wizard.Vehicle{
		Brand:     l.Brand,
		Model:     l.Model,
		Year:      l.Year,
		Version:   l.Version,
		Mileage:   l.Mileage,
		Condition: l.Condition,
		Location:  l.Location,
		Features:  l.Features,
	}
	listingID := l.ID
	state := wizard.PriceEstimated{
		Vehicle: vehicle,
		Seller:  wizard.Contact{Name: user.Name, Email: user.Email, Phone: user.Phone, CountryCode: user.CountryCode},
		Estimate: pricing.Estimate{
			Quick:    l.EstimatedPriceQuick,
			Balanced: l.EstimatedPriceBalanced,
			Premium:  l.EstimatedPricePremium,
			Currency: l.Currency,
		},
		ListingID: &listingID,
	}
	return &drafts.Draft{
		FlowID:    uuid.New(),
		Kind:      drafts.KindValuation,
		UserID:    &userID,
		Snapshot:  wizard.SnapshotValuation(state),
		UpdatedAt: l.UpdatedAt,
	}, nil
}

// AddPhotos attaches uploaded photo URLs to a listing owned by owner. Someone else's
// listing looks exactly like a missing one.
func (f *ValuationFlow) AddPhotos(ctx context.Context, owner uuid.UUID, listingID uuid.UUID, urls []string) (*models.VehicleListing, error) {
	l, err := f.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.UserID == nil || *l.UserID != owner {
		return nil, repository.ErrNotFound
	}
	return f.listings.AppendPhotos(ctx, listingID, urls)
}

func valuationOf(v wizard.Vehicle, e pricing.Estimate, listingID *uuid.UUID, tier pricing.Tier) *notify.Valuation {
	out := &notify.Valuation{
		Brand:    v.Brand,
		Model:    v.Model,
		Year:     v.Year,
		Mileage:  v.Mileage,
		Quick:    e.Quick,
		Balanced: e.Balanced,
		Premium:  e.Premium,
		Currency: e.Currency,
		Tier:     string(tier),
	}
	if listingID != nil {
		out.ListingID = listingID.String()
	}
	return out
}
