package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/autolead/internal/drafts"
	"github.com/example/autolead/internal/models"
	"github.com/example/autolead/internal/notify"
	"github.com/example/autolead/internal/pricing"
	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/utils"
	"github.com/example/autolead/internal/wizard"
)

// QuoteView is what every quote flow call returns.
type QuoteView struct {
	FlowID       uuid.UUID           `json:"flow_id"`
	Step         wizard.Step         `json:"step"`
	Car          *wizard.CarChoice   `json:"car,omitempty"`
	Buyer        *wizard.Contact     `json:"buyer,omitempty"`
	Quote        *pricing.Breakdown  `json:"quote,omitempty"`
	Terms        []pricing.Breakdown `json:"terms,omitempty"`
	QuotationID  *uuid.UUID          `json:"quotation_id,omitempty"`
	Folio        string              `json:"folio,omitempty"`
	Verification *Verification       `json:"verification,omitempty"`
	NextStep     string              `json:"next_step,omitempty"`
	UserID       *uuid.UUID          `json:"-"`
	Warnings     []string            `json:"-"`
}

// StartQuote is the car selection step's input.
type StartQuote struct {
	Car       wizard.CarChoice
	ClientKey string
	Session   Session
}

// QuoteFlow runs the loan quote wizard.
type QuoteFlow struct {
	Deps
	quotes     QuotationStore
	annualRate float64
}

func NewQuoteFlow(deps Deps, quotes QuotationStore, annualRate float64) *QuoteFlow {
	if annualRate <= 0 {
		annualRate = pricing.DefaultAnnualRate
	}
	return &QuoteFlow{Deps: deps, quotes: quotes, annualRate: annualRate}
}

// AnnualRate is the rate every quote is computed with.
func (f *QuoteFlow) AnnualRate() float64 { return f.annualRate }

func (f *QuoteFlow) breakdown(car wizard.CarChoice) pricing.Breakdown {
	return pricing.Calculate(pricing.QuoteInput{
		CarPrice:              car.Price,
		DownPaymentPercentage: car.DownPaymentPercentage,
		TermMonths:            car.Term,
		AnnualRate:            f.annualRate,
	})
}

// Calculate prices a car without starting a flow.
func (f *QuoteFlow) Calculate(car wizard.CarChoice) (pricing.Breakdown, []pricing.Breakdown) {
	in := pricing.QuoteInput{
		CarPrice:              car.Price,
		DownPaymentPercentage: car.DownPaymentPercentage,
		TermMonths:            car.Term,
		AnnualRate:            f.annualRate,
	}
	return pricing.Calculate(in), pricing.CalculateTerms(in)
}

func (f *QuoteFlow) view(draft *drafts.Draft, state wizard.QuoteState) *QuoteView {
	v := &QuoteView{FlowID: draft.FlowID, Step: state.Step(), UserID: draft.UserID}
	snap := wizard.SnapshotQuote(state)
	v.Car, v.Buyer, v.QuotationID = snap.Car, snap.Contact, snap.QuotationID
	if v.Car != nil {
		b, terms := f.Calculate(*v.Car)
		v.Quote, v.Terms = &b, terms
	}
	return v
}

func (f *QuoteFlow) load(ctx context.Context, flowID uuid.UUID) (*drafts.Draft, wizard.QuoteState, error) {
	draft, err := f.loadDraft(ctx, flowID, drafts.KindQuote)
	if err != nil {
		return nil, nil, err
	}
	state, err := draft.Snapshot.QuoteState()
	if err != nil {
		return nil, nil, err
	}
	return draft, state, nil
}

// Start opens a flow at the buyer info step.
func (f *QuoteFlow) Start(ctx context.Context, in StartQuote) (*QuoteView, error) {
	state, err := wizard.NextQuote(wizard.CarSelection{}, wizard.CarSelected{Car: in.Car})
	if err != nil {
		return nil, err
	}
	draft := &drafts.Draft{
		FlowID:    uuid.New(),
		Kind:      drafts.KindQuote,
		ClientKey: in.ClientKey,
		UserID:    in.Session.UserID,
		Snapshot:  wizard.SnapshotQuote(state),
	}
	if err := f.Drafts.Save(ctx, draft); err != nil {
		return nil, err
	}
	return f.view(draft, state), nil
}

// SubmitBuyer records the buyer and either sends a code or, for a phone verified within
// the grace window, skips straight to the quote.
func (f *QuoteFlow) SubmitBuyer(ctx context.Context, flowID uuid.UUID, buyer wizard.Contact, session Session) (*QuoteView, error) {
	draft, state, err := f.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	buyer = normalizeContact(buyer)
	next, err := wizard.NextQuote(state, wizard.BuyerSubmitted{Buyer: buyer})
	if err != nil {
		return nil, err
	}
	verifying := next.(wizard.QuoteVerifying)

	if f.recentlyVerified(ctx, buyer) {
		v, err := f.complete(ctx, draft, verifying, session, false)
		if err != nil {
			return nil, err
		}
		v.Verification.Skipped = true
		return v, nil
	}

	status, err := f.Verifier.Start(ctx, targetOf(buyer))
	if err != nil {
		return nil, err
	}

	var warnings []string
	draft.Snapshot = wizard.SnapshotQuote(verifying)
	f.saveDraft(ctx, draft, &warnings)

	v := f.view(draft, verifying)
	v.Verification = &Verification{Status: status}
	v.NextStep = NextVerify
	v.Warnings = warnings
	return v, nil
}

// Verify checks the code. A mismatch returns a view with Verified=false and writes nothing.
func (f *QuoteFlow) Verify(ctx context.Context, flowID uuid.UUID, code string, session Session) (*QuoteView, error) {
	draft, state, err := f.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	verifying, ok := state.(wizard.QuoteVerifying)
	if !ok {
		return nil, fmt.Errorf("%w: verify in %s", wizard.ErrIllegalTransition, state.Step())
	}

	matched, err := f.Verifier.Verify(ctx, targetOf(verifying.Buyer), code)
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
func (f *QuoteFlow) Resend(ctx context.Context, flowID uuid.UUID) (*QuoteView, error) {
	draft, state, err := f.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	verifying, ok := state.(wizard.QuoteVerifying)
	if !ok {
		return nil, fmt.Errorf("%w: resend in %s", wizard.ErrIllegalTransition, state.Step())
	}
	status, err := f.Verifier.Resend(ctx, targetOf(verifying.Buyer))
	if err != nil {
		return nil, err
	}
	v := f.view(draft, verifying)
	v.Verification = &Verification{Status: status}
	v.NextStep = NextVerify
	return v, nil
}

// complete confirms the quote. checked is false when the code was skipped inside the grace
// window; the stored identity is then left alone.
func (f *QuoteFlow) complete(ctx context.Context, draft *drafts.Draft, st wizard.QuoteVerifying, session Session, checked bool) (*QuoteView, error) {
	var warnings []string
	var user *models.User
	if checked {
		user = f.recordIdentity(ctx, st.Buyer, models.RoleBuyer, &warnings)
	}

	b := f.breakdown(st.Car)
	target := targetOf(st.Buyer)
	q := &models.Quotation{
		Folio:                 utils.NewFolio(),
		UserName:              st.Buyer.Name,
		UserEmail:             st.Buyer.Email,
		UserPhone:             target.Phone,
		UserCountryCode:       target.CountryCode,
		CarID:                 st.Car.CatalogID,
		CarBrand:              st.Car.Brand,
		CarModel:              st.Car.Model,
		CarYear:               st.Car.Year,
		CarPrice:              st.Car.Price,
		DownPaymentPercentage: st.Car.DownPaymentPercentage,
		SelectedTerm:          st.Car.Term,
		AnnualRate:            f.annualRate,
		MonthlyPayment:        b.MonthlyPayment,
		IsVerified:            true,
	}
	q.ID = uuid.New()
	if owner := ownerOf(user, session); owner != nil {
		q.UserID = owner
		draft.UserID = owner
	}
	if err := f.quotes.Create(ctx, q); err != nil {
		f.Log.Warn("flow: quotation insert failed", zap.String("flow_id", draft.FlowID.String()), zap.Error(err))
		warnings = append(warnings, WarnQuotationNotSaved)
	}

	next, err := wizard.NextQuote(st, wizard.QuoteConfirmed{QuotationID: q.ID})
	if err != nil {
		return nil, err
	}

	f.dispatch(notify.Event{
		Name:    notify.EventQuoteVerified,
		FlowID:  draft.FlowID.String(),
		Contact: contactOf(st.Buyer),
		Car:     carOf(st.Car),
		Quote:   quoteOf(q, b),
	})

	draft.Snapshot = wizard.SnapshotQuote(next)
	f.saveDraft(ctx, draft, &warnings)

	v := f.view(draft, next)
	v.Folio = q.Folio
	v.Verification = &Verification{Verified: true}
	if checked {
		v.NextStep = nextAfterVerification(session, user)
	} else {
		v.NextStep = f.nextAfterSkip(ctx, session, st.Buyer)
	}
	v.Warnings = warnings
	return v, nil
}

// ChangeTerm switches the selected term before or after the quote was confirmed.
func (f *QuoteFlow) ChangeTerm(ctx context.Context, flowID uuid.UUID, term int) (*QuoteView, error) {
	draft, state, err := f.load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	next, err := wizard.NextQuote(state, wizard.TermChanged{Term: term})
	if err != nil {
		return nil, err
	}

	var warnings []string
	if quoted, ok := next.(wizard.Quoted); ok {
		b := f.breakdown(quoted.Car)
		if err := f.quotes.UpdateSelectedTerm(ctx, quoted.QuotationID, term, b.MonthlyPayment); err != nil {
			f.Log.Warn("flow: term update failed",
				zap.String("quotation_id", quoted.QuotationID.String()), zap.Error(err))
			warnings = append(warnings, WarnTermNotSaved)
		}
	}

	draft.Snapshot = wizard.SnapshotQuote(next)
	f.saveDraft(ctx, draft, &warnings)

	v := f.view(draft, next)
	v.Warnings = warnings
	return v, nil
}

// SavedQuote is a persisted quotation with its recomputed breakdown.
type SavedQuote struct {
	Quotation *models.Quotation   `json:"quotation"`
	Quote     pricing.Breakdown   `json:"quote"`
	Terms     []pricing.Breakdown `json:"terms"`
}

func savedQuote(q *models.Quotation) *SavedQuote {
	in := pricing.QuoteInput{
		CarPrice:              q.CarPrice,
		DownPaymentPercentage: q.DownPaymentPercentage,
		TermMonths:            q.SelectedTerm,
		AnnualRate:            q.AnnualRate,
	}
	return &SavedQuote{Quotation: q, Quote: pricing.Calculate(in), Terms: pricing.CalculateTerms(in)}
}

// Get loads a quotation for the shared results link and fires quote_viewed.
func (f *QuoteFlow) Get(ctx context.Context, id uuid.UUID) (*SavedQuote, error) {
	q, err := f.quotes.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sq := savedQuote(q)
	f.dispatch(notify.Event{
		Name:    notify.EventQuoteViewed,
		Contact: &notify.Contact{Name: q.UserName, Email: q.UserEmail, Phone: q.UserPhone, CountryCode: q.UserCountryCode},
		Car:     &notify.Car{Brand: q.CarBrand, Model: q.CarModel, Year: q.CarYear, Price: q.CarPrice},
		Quote:   quoteOf(q, sq.Quote),
	})
	return sq, nil
}

// EmailQuote queues the quote summary mail. to overrides the address on the quotation.
func (f *QuoteFlow) EmailQuote(ctx context.Context, id uuid.UUID, to string) error {
	q, err := f.quotes.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if to == "" {
		to = q.UserEmail
	}
	if to == "" {
		return ErrNoEmail
	}
	sq := savedQuote(q)
	f.dispatch(notify.Event{
		Name:    notify.EventQuoteEmailed,
		Contact: &notify.Contact{Name: q.UserName, Email: to, Phone: q.UserPhone, CountryCode: q.UserCountryCode},
		Car:     &notify.Car{Brand: q.CarBrand, Model: q.CarModel, Year: q.CarYear, Price: q.CarPrice},
		Quote:   quoteOf(q, sq.Quote),
	})
	return nil
}

// IsNotFound reports whether err means the requested row or draft does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, drafts.ErrNoDraft)
}

func normalizeContact(c wizard.Contact) wizard.Contact {
	t := targetOf(c)
	c.Phone, c.CountryCode = t.Phone, t.CountryCode
	return c
}

func carOf(c wizard.CarChoice) *notify.Car {
	return &notify.Car{Brand: c.Brand, Model: c.Model, Year: c.Year, Price: c.Price}
}

func quoteOf(q *models.Quotation, b pricing.Breakdown) *notify.Quote {
	return &notify.Quote{
		QuotationID:           q.ID.String(),
		Folio:                 q.Folio,
		DownPaymentPercentage: b.DownPaymentPercentage,
		DownPayment:           b.DownPayment,
		LoanAmount:            b.LoanAmount,
		Term:                  b.TermMonths,
		AnnualRate:            b.AnnualRate,
		MonthlyPayment:        b.MonthlyPayment,
		TotalCost:             b.TotalCost,
	}
}
