// Package flow orchestrates the quote and valuation wizards: it advances the wizard state
// machines, persists rows and drafts, drives phone verification and fires notifications.
package flow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/autolead/internal/drafts"
	"github.com/example/autolead/internal/models"
	"github.com/example/autolead/internal/notify"
	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/verification"
	"github.com/example/autolead/internal/wizard"
)

var (
	// ErrListingUnresolved means the listing row behind a valuation draft cannot be found.
	ErrListingUnresolved = errors.New("listing could not be resolved")
	// ErrSelectionInProgress means a tier selection for the same flow is still running.
	ErrSelectionInProgress = errors.New("a price selection is already in progress")
	// ErrWrongKind means the flow id belongs to the other wizard.
	ErrWrongKind = errors.New("flow belongs to a different wizard")
	// ErrNoEmail means a quote email was requested without any address to send it to.
	ErrNoEmail = errors.New("no email address to send the quote to")
)

// Next steps returned to the client.
const (
	NextVerify        = "verify"
	NextResults       = "results"
	NextPasswordSetup = "password_setup"
	NextSignIn        = "sign_in"
	NextPhotos        = "photos"
	NextHome          = "home"
)

// Soft-failure warnings; the client shows them as toasts.
const (
	WarnIdentityNotSaved  = "identity_not_saved"
	WarnQuotationNotSaved = "quotation_not_saved"
	WarnTermNotSaved      = "term_not_saved"
	WarnListingNotSaved   = "listing_not_saved"
	WarnSelectionNotSaved = "selection_not_saved"
	WarnDraftNotSaved     = "draft_not_saved"
)

type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByPhone(ctx context.Context, phone, countryCode string) (*models.User, error)
	UpsertVerified(ctx context.Context, id repository.Identity, at time.Time) (*models.User, error)
}

type QuotationStore interface {
	Create(ctx context.Context, q *models.Quotation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Quotation, error)
	UpdateSelectedTerm(ctx context.Context, id uuid.UUID, term int, monthlyPayment int64) error
}

type ListingStore interface {
	Create(ctx context.Context, l *models.VehicleListing) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.VehicleListing, error)
	LatestDraftForUser(ctx context.Context, userID uuid.UUID) (*models.VehicleListing, error)
	SelectPriceType(ctx context.Context, id uuid.UUID, tier string) error
	AppendPhotos(ctx context.Context, id uuid.UUID, urls []string) (*models.VehicleListing, error)
}

// Verifier is satisfied by *verification.Manager.
type Verifier interface {
	RecentlyVerified(ctx context.Context, t verification.Target) (bool, error)
	Start(ctx context.Context, t verification.Target) (*verification.Status, error)
	Resend(ctx context.Context, t verification.Target) (*verification.Status, error)
	Verify(ctx context.Context, t verification.Target, input string) (bool, error)
}

// Deps are the collaborators shared by both flows.
type Deps struct {
	Users    UserStore
	Verifier Verifier
	Drafts   *drafts.Store
	Notifier notify.Dispatcher
	Log      *zap.Logger
	Now      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// Session is the authenticated user making the request, if any.
type Session struct {
	UserID *uuid.UUID
}

func (s Session) Authenticated() bool { return s.UserID != nil }

// Verification is the part of a view describing the phone check.
type Verification struct {
	Verified bool                 `json:"verified"`
	Skipped  bool                 `json:"skipped,omitempty"`
	Status   *verification.Status `json:"status,omitempty"`
}

func targetOf(c wizard.Contact) verification.Target {
	return verification.NewTarget(c.Phone, c.CountryCode)
}

func contactOf(c wizard.Contact) *notify.Contact {
	return &notify.Contact{Name: c.Name, Email: c.Email, Phone: c.Phone, CountryCode: c.CountryCode}
}

func (d Deps) loadDraft(ctx context.Context, flowID uuid.UUID, kind drafts.Kind) (*drafts.Draft, error) {
	draft, err := d.Drafts.Load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if draft.Kind != kind {
		return nil, ErrWrongKind
	}
	return draft, nil
}

// recentlyVerified treats a failed lookup as "not recent" so the user is asked for a code.
func (d Deps) recentlyVerified(ctx context.Context, c wizard.Contact) bool {
	ok, err := d.Verifier.RecentlyVerified(ctx, targetOf(c))
	if err != nil {
		d.Log.Warn("flow: recently verified lookup failed", zap.Error(err))
		return false
	}
	return ok
}

// recordIdentity upserts the verified user. Failure is soft: the flow continues anonymously.
func (d Deps) recordIdentity(ctx context.Context, c wizard.Contact, role string, warnings *[]string) *models.User {
	target := targetOf(c)
	user, err := d.Users.UpsertVerified(ctx, repository.Identity{
		Name:        c.Name,
		Email:       c.Email,
		Phone:       target.Phone,
		CountryCode: target.CountryCode,
		Role:        role,
	}, d.now())
	if err != nil {
		d.Log.Warn("flow: identity upsert failed", zap.String("target", target.E164()), zap.Error(err))
		*warnings = append(*warnings, WarnIdentityNotSaved)
		return nil
	}
	return user
}

// ownerOf picks the account rows are linked to: the verified user, else the session user.
func ownerOf(user *models.User, session Session) *uuid.UUID {
	if user != nil {
		return &user.ID
	}
	return session.UserID
}

// nextAfterVerification routes a freshly verified user.
func nextAfterVerification(session Session, user *models.User) string {
	switch {
	case session.Authenticated(), user == nil:
		return NextResults
	case user.HasPassword():
		return NextSignIn
	default:
		return NextPasswordSetup
	}
}

// nextAfterSkip routes a user whose code was skipped inside the grace window. No code was
// checked, so password setup is never offered.
func (d Deps) nextAfterSkip(ctx context.Context, session Session, c wizard.Contact) string {
	if session.Authenticated() {
		return NextResults
	}
	target := targetOf(c)
	user, err := d.Users.FindByPhone(ctx, target.Phone, target.CountryCode)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			d.Log.Warn("flow: user lookup failed", zap.String("target", target.E164()), zap.Error(err))
		}
		return NextResults
	}
	if user.HasPassword() {
		return NextSignIn
	}
	return NextResults
}

func (d Deps) saveDraft(ctx context.Context, draft *drafts.Draft, warnings *[]string) {
	if err := d.Drafts.Save(ctx, draft); err != nil {
		d.Log.Warn("flow: draft save failed", zap.String("flow_id", draft.FlowID.String()), zap.Error(err))
		*warnings = append(*warnings, WarnDraftNotSaved)
	}
}

func (d Deps) dispatch(e notify.Event) {
	if d.Notifier != nil {
		d.Notifier.Dispatch(e)
	}
}
