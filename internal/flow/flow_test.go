package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/autolead/internal/database"
	"github.com/example/autolead/internal/drafts"
	"github.com/example/autolead/internal/models"
	"github.com/example/autolead/internal/notify"
	"github.com/example/autolead/internal/pricing"
	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/verification"
	"github.com/example/autolead/internal/wizard"
)

type capturedSMS struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func (c *capturedSMS) SendVerificationCode(_ context.Context, phone, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = make(map[string]string)
	}
	c.codes[phone] = code
	c.sent++
	return nil
}

func (c *capturedSMS) code(phone string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[phone]
}

type recordedEvents struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordedEvents) Dispatch(e notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordedEvents) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

type harness struct {
	db        *gorm.DB
	users     *repository.UserRepository
	quotes    *repository.QuotationRepository
	listings  *repository.ListingRepository
	sms       *capturedSMS
	events    *recordedEvents
	store     *drafts.Store
	quote     *QuoteFlow
	valuation *ValuationFlow
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newHarness(t *testing.T, listings ListingStore) *harness {
	t.Helper()
	h := &harness{db: openTestDB(t), sms: &capturedSMS{}, events: &recordedEvents{}}
	h.users = repository.NewUserRepository(h.db)
	h.quotes = repository.NewQuotationRepository(h.db)
	h.listings = repository.NewListingRepository(h.db)
	if listings == nil {
		listings = h.listings
	}

	log := zap.NewNop()
	manager := verification.NewManager(verification.NewMemoryStore(), h.sms, h.users, verification.DefaultSettings(), log)
	h.store = drafts.NewStore(drafts.NewMemoryCache(), drafts.NewMemoryCache(), time.Hour, 30*24*time.Hour, log)

	deps := Deps{Users: h.users, Verifier: manager, Drafts: h.store, Notifier: h.events, Log: log}
	h.quote = NewQuoteFlow(deps, h.quotes, pricing.DefaultAnnualRate)
	h.valuation = NewValuationFlow(deps, listings, pricing.NewEstimator(2023))
	return h
}

var (
	ana  = wizard.Contact{Name: "Ana", Email: "ana@example.com", Phone: "55 1234 5678", CountryCode: "+52"}
	luis = wizard.Contact{Name: "Luis", Email: "luis@example.com", Phone: "5598765432", CountryCode: "+52"}
)

func mazda() wizard.CarChoice {
	return wizard.CarChoice{Brand: "Mazda", Model: "3", Year: 2020, Price: 300000, DownPaymentPercentage: 20, Term: 36}
}

func sellerVehicle() wizard.Vehicle {
	return wizard.Vehicle{Brand: "Honda", Model: "Civic", Year: 2018, Mileage: 80000, Condition: "good", Location: "CDMX"}
}

func TestQuoteFlow_VerifiedQuote(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	started, err := h.quote.Start(ctx, StartQuote{Car: mazda()})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepBuyerInfo, started.Step)
	require.NotNil(t, started.Quote)
	assert.EqualValues(t, 60000, started.Quote.DownPayment)
	assert.EqualValues(t, 240000, started.Quote.LoanAmount)
	assert.EqualValues(t, 8085, started.Quote.MonthlyPayment)
	assert.EqualValues(t, 351060, started.Quote.TotalCost)
	assert.Len(t, started.Terms, 4)

	pending, err := h.quote.SubmitBuyer(ctx, started.FlowID, ana, Session{})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepQuoteVerifying, pending.Step)
	assert.Equal(t, NextVerify, pending.NextStep)
	require.NotNil(t, pending.Verification.Status)
	assert.Equal(t, 60, pending.Verification.Status.ResendIn)
	assert.Equal(t, "5512345678", pending.Buyer.Phone)

	code := h.sms.code("+525512345678")
	require.Len(t, code, 6)

	done, err := h.quote.Verify(ctx, started.FlowID, code, Session{})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepQuoted, done.Step)
	assert.True(t, done.Verification.Verified)
	assert.Equal(t, NextPasswordSetup, done.NextStep)
	assert.Empty(t, done.Warnings)
	require.NotNil(t, done.QuotationID)
	assert.NotEmpty(t, done.Folio)

	q, err := h.quotes.FindByID(ctx, *done.QuotationID)
	require.NoError(t, err)
	assert.True(t, q.IsVerified)
	assert.EqualValues(t, 8085, q.MonthlyPayment)
	assert.Equal(t, 36, q.SelectedTerm)
	require.NotNil(t, q.UserID)

	user, err := h.users.FindByPhone(ctx, "5512345678", "+52")
	require.NoError(t, err)
	assert.Equal(t, models.RoleBuyer, user.Role)
	require.NotNil(t, user.LastVerified)

	assert.Equal(t, []string{notify.EventQuoteVerified}, h.events.names())

	changed, err := h.quote.ChangeTerm(ctx, started.FlowID, 48)
	require.NoError(t, err)
	assert.EqualValues(t, 6437, changed.Quote.MonthlyPayment)
	q, err = h.quotes.FindByID(ctx, *done.QuotationID)
	require.NoError(t, err)
	assert.Equal(t, 48, q.SelectedTerm)
	assert.EqualValues(t, 6437, q.MonthlyPayment)

	_, err = h.quote.ChangeTerm(ctx, started.FlowID, 60)
	assert.ErrorIs(t, err, wizard.ErrIllegalTransition)
}

func TestQuoteFlow_StartRejectsCheapCar(t *testing.T) {
	h := newHarness(t, nil)
	car := mazda()
	car.Price = 30000

	_, err := h.quote.Start(context.Background(), StartQuote{Car: car})
	assert.ErrorIs(t, err, wizard.ErrCarPriceTooLow)
}

func TestQuoteFlow_MismatchWritesNothing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	started, err := h.quote.Start(ctx, StartQuote{Car: mazda()})
	require.NoError(t, err)
	_, err = h.quote.SubmitBuyer(ctx, started.FlowID, ana, Session{})
	require.NoError(t, err)

	wrong := "000001"
	if h.sms.code("+525512345678") == wrong {
		wrong = "000002"
	}
	v, err := h.quote.Verify(ctx, started.FlowID, wrong, Session{})
	require.NoError(t, err)
	assert.False(t, v.Verification.Verified)
	assert.Equal(t, wizard.StepQuoteVerifying, v.Step)

	users, err := h.users.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, users)
	total, _, err := h.quotes.CountVerified(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, h.events.names())
}

func TestQuoteFlow_RecentlyVerifiedSkipsCode(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.users.UpsertVerified(ctx, repository.Identity{
		Name: "Ana", Phone: "5512345678", CountryCode: "+52", Role: models.RoleBuyer,
	}, time.Now().UTC().AddDate(0, 0, -10))
	require.NoError(t, err)

	started, err := h.quote.Start(ctx, StartQuote{Car: mazda()})
	require.NoError(t, err)

	me := uuid.New()
	v, err := h.quote.SubmitBuyer(ctx, started.FlowID, ana, Session{UserID: &me})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepQuoted, v.Step)
	assert.True(t, v.Verification.Skipped)
	assert.Equal(t, NextResults, v.NextStep)
	assert.Zero(t, h.sms.sent)
}

func TestQuoteFlow_SkippedCodeLeavesIdentityAlone(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	verifiedAt := time.Now().UTC().AddDate(0, 0, -10)
	owner, err := h.users.UpsertVerified(ctx, repository.Identity{
		Name: "Ana", Email: "ana@example.com", Phone: "5512345678", CountryCode: "+52", Role: models.RoleBuyer,
	}, verifiedAt)
	require.NoError(t, err)

	started, err := h.quote.Start(ctx, StartQuote{Car: mazda()})
	require.NoError(t, err)

	other := wizard.Contact{Name: "Other", Email: "other@example.com", Phone: ana.Phone, CountryCode: ana.CountryCode}
	v, err := h.quote.SubmitBuyer(ctx, started.FlowID, other, Session{})
	require.NoError(t, err)
	assert.True(t, v.Verification.Skipped)
	assert.Equal(t, NextResults, v.NextStep)
	assert.Nil(t, v.UserID)
	assert.Zero(t, h.sms.sent)

	stored, err := h.users.FindByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored.Name)
	assert.Equal(t, "ana@example.com", stored.Email)
	require.NotNil(t, stored.LastVerified)
	assert.WithinDuration(t, verifiedAt, *stored.LastVerified, time.Second)

	require.NotNil(t, v.QuotationID)
	q, err := h.quotes.FindByID(ctx, *v.QuotationID)
	require.NoError(t, err)
	assert.Nil(t, q.UserID)
}

func TestQuoteFlow_SkippedCodeWithPasswordSignsIn(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	owner, err := h.users.UpsertVerified(ctx, repository.Identity{
		Name: "Ana", Phone: "5512345678", CountryCode: "+52", Role: models.RoleBuyer,
	}, time.Now().UTC().AddDate(0, 0, -3))
	require.NoError(t, err)
	require.NoError(t, h.users.SetPasswordHash(ctx, owner.ID, "$2a$10$hash"))

	started, err := h.quote.Start(ctx, StartQuote{Car: mazda()})
	require.NoError(t, err)
	v, err := h.quote.SubmitBuyer(ctx, started.FlowID, ana, Session{})
	require.NoError(t, err)
	assert.True(t, v.Verification.Skipped)
	assert.Equal(t, NextSignIn, v.NextStep)
}

func TestValuationFlow_SkippedCodeLeavesIdentityAlone(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	verifiedAt := time.Now().UTC().AddDate(0, 0, -10)
	owner, err := h.users.UpsertVerified(ctx, repository.Identity{
		Name: "Luis", Phone: "5598765432", CountryCode: "+52", Role: models.RoleSeller,
	}, verifiedAt)
	require.NoError(t, err)

	started, err := h.valuation.Start(ctx, StartValuation{Vehicle: sellerVehicle()})
	require.NoError(t, err)
	other := wizard.Contact{Name: "Other", Phone: luis.Phone, CountryCode: luis.CountryCode}
	v, err := h.valuation.SubmitSeller(ctx, started.FlowID, other, Session{})
	require.NoError(t, err)
	assert.True(t, v.Verification.Skipped)
	assert.Equal(t, NextResults, v.NextStep)
	assert.Nil(t, v.UserID)
	assert.Zero(t, h.sms.sent)

	stored, err := h.users.FindByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "Luis", stored.Name)
	require.NotNil(t, stored.LastVerified)
	assert.WithinDuration(t, verifiedAt, *stored.LastVerified, time.Second)
}

func TestQuoteFlow_ResendCooldown(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	started, err := h.quote.Start(ctx, StartQuote{Car: mazda()})
	require.NoError(t, err)
	_, err = h.quote.SubmitBuyer(ctx, started.FlowID, ana, Session{})
	require.NoError(t, err)

	_, err = h.quote.Resend(ctx, started.FlowID)
	assert.ErrorIs(t, err, verification.ErrResendCooldown)
}

func TestQuoteFlow_GetAndEmail(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	started, err := h.quote.Start(ctx, StartQuote{Car: mazda()})
	require.NoError(t, err)
	_, err = h.quote.SubmitBuyer(ctx, started.FlowID, ana, Session{})
	require.NoError(t, err)
	done, err := h.quote.Verify(ctx, started.FlowID, h.sms.code("+525512345678"), Session{})
	require.NoError(t, err)

	saved, err := h.quote.Get(ctx, *done.QuotationID)
	require.NoError(t, err)
	assert.EqualValues(t, 51060, saved.Quote.TotalInterest)
	require.NoError(t, h.quote.EmailQuote(ctx, *done.QuotationID, ""))

	assert.Equal(t, []string{notify.EventQuoteVerified, notify.EventQuoteViewed, notify.EventQuoteEmailed}, h.events.names())

	_, err = h.quote.Get(ctx, uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestFlows_RejectOtherKind(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	started, err := h.quote.Start(ctx, StartQuote{Car: mazda()})
	require.NoError(t, err)
	_, err = h.valuation.SubmitSeller(ctx, started.FlowID, luis, Session{})
	assert.ErrorIs(t, err, ErrWrongKind)

	_, err = h.quote.SubmitBuyer(ctx, uuid.New(), ana, Session{})
	assert.ErrorIs(t, err, drafts.ErrNoDraft)
}

func verifiedValuation(t *testing.T, h *harness, clientKey string) *ValuationView {
	t.Helper()
	ctx := context.Background()
	started, err := h.valuation.Start(ctx, StartValuation{Vehicle: sellerVehicle(), ClientKey: clientKey})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepSellerInfo, started.Step)

	_, err = h.valuation.SubmitSeller(ctx, started.FlowID, luis, Session{})
	require.NoError(t, err)

	done, err := h.valuation.Verify(ctx, started.FlowID, h.sms.code("+525598765432"), Session{})
	require.NoError(t, err)
	return done
}

func TestValuationFlow_EstimateSelectDecide(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	done := verifiedValuation(t, h, "device-1")
	assert.Equal(t, wizard.StepPriceEstimate, done.Step)
	require.NotNil(t, done.Estimate)
	assert.Equal(t, pricing.Estimate{Quick: 251600, Balanced: 296000, Premium: 340400, Currency: "MXN"}, *done.Estimate)
	require.NotNil(t, done.ListingID)

	listing, err := h.listings.FindByID(ctx, *done.ListingID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingDraft, listing.Status)
	assert.EqualValues(t, 296000, listing.EstimatedPriceBalanced)

	selected, err := h.valuation.SelectTier(ctx, done.FlowID, pricing.TierPremium)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepOptionSelected, selected.Step)

	listing, err = h.listings.FindByID(ctx, *done.ListingID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingPublished, listing.Status)
	assert.Equal(t, "premium", listing.SelectedPriceType)

	finished, err := h.valuation.Decide(ctx, done.FlowID, wizard.DecisionContinue)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepFinished, finished.Step)
	assert.Equal(t, NextPhotos, finished.NextStep)

	require.NotNil(t, listing.UserID)
	updated, err := h.valuation.AddPhotos(ctx, *listing.UserID, *done.ListingID, []string{"https://cdn.example.com/1.jpg"})
	require.NoError(t, err)
	assert.Len(t, updated.Photos, 1)

	_, err = h.valuation.AddPhotos(ctx, uuid.New(), *done.ListingID, []string{"https://cdn.example.com/2.jpg"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.Equal(t, []string{notify.EventValuationVerified, notify.EventTierSelected}, h.events.names())
}

func TestValuationFlow_SelectionInProgress(t *testing.T) {
	h := newHarness(t, nil)
	done := verifiedValuation(t, h, "")

	h.valuation.selecting.Store(done.FlowID, struct{}{})
	_, err := h.valuation.SelectTier(context.Background(), done.FlowID, pricing.TierQuick)
	assert.ErrorIs(t, err, ErrSelectionInProgress)

	h.valuation.selecting.Delete(done.FlowID)
	_, err = h.valuation.SelectTier(context.Background(), done.FlowID, pricing.TierQuick)
	assert.NoError(t, err)
}

type failingListings struct {
	*repository.ListingRepository
}

func (failingListings) Create(context.Context, *models.VehicleListing) error {
	return errors.New("insert failed")
}

func TestValuationFlow_UnsavedListingIsUnresolved(t *testing.T) {
	db := openTestDB(t)
	h := newHarness(t, failingListings{repository.NewListingRepository(db)})

	done := verifiedValuation(t, h, "")
	assert.Nil(t, done.ListingID)
	assert.Contains(t, done.Warnings, WarnListingNotSaved)
	require.NotNil(t, done.Estimate)

	_, err := h.valuation.SelectTier(context.Background(), done.FlowID, pricing.TierBalanced)
	assert.ErrorIs(t, err, ErrListingUnresolved)
}

func TestValuationFlow_ResumePrecedence(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	done := verifiedValuation(t, h, "device-7")

	nav, err := h.valuation.Resume(ctx, drafts.ResolveRequest{FlowID: &done.FlowID})
	require.NoError(t, err)
	assert.Equal(t, drafts.SourceNavigation, nav.Source)
	assert.Equal(t, done.FlowID, nav.FlowID)

	device, err := h.valuation.Resume(ctx, drafts.ResolveRequest{ClientKey: "device-7"})
	require.NoError(t, err)
	assert.Equal(t, drafts.SourceDevice, device.Source)
	assert.Equal(t, wizard.StepPriceEstimate, device.Step)

	user, err := h.users.FindByPhone(ctx, "5598765432", "+52")
	require.NoError(t, err)
	account, err := h.valuation.Resume(ctx, drafts.ResolveRequest{UserID: &user.ID})
	require.NoError(t, err)
	assert.Equal(t, drafts.SourceAccount, account.Source)
	assert.Equal(t, done.ListingID, account.ListingID)
	assert.Equal(t, "Luis", account.Seller.Name)

	// The recovered draft is usable under its new flow id.
	_, err = h.valuation.SelectTier(ctx, account.FlowID, pricing.TierBalanced)
	require.NoError(t, err)

	_, err = h.valuation.Resume(ctx, drafts.ResolveRequest{ClientKey: "unknown"})
	assert.ErrorIs(t, err, drafts.ErrNoDraft)
}
