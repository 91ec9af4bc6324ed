// Package verification issues, dispatches and checks the 6-digit SMS codes that prove phone
// ownership in both wizards.
package verification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNoActiveChallenge means no code was issued for the target, or it expired.
	ErrNoActiveChallenge = errors.New("no active verification code")
	// ErrDispatchFailed means the SMS collaborator did not accept the code.
	ErrDispatchFailed = errors.New("verification code could not be sent")
	// ErrResendCooldown is matched by *CooldownError.
	ErrResendCooldown = errors.New("verification code resend not available yet")
)

// CooldownError carries the remaining resend cooldown.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %ds", ErrResendCooldown, secondsCeil(e.Remaining))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrResendCooldown
}

// Dispatcher delivers a code to a phone in E.164 form.
type Dispatcher interface {
	SendVerificationCode(ctx context.Context, phone, code string) error
}

// VerificationLookup reports when a phone last passed a check; nil when never.
type VerificationLookup interface {
	LastVerified(ctx context.Context, phone, countryCode string) (*time.Time, error)
}

// Settings tunes the manager.
type Settings struct {
	CodeTTL        time.Duration
	ResendCooldown time.Duration
	GraceWindow    time.Duration
	// TestBypass makes TestPhone receive TestCode without an SMS. Development only.
	TestBypass bool
	TestPhone  string
}

// DefaultSettings mirrors the production timings.
func DefaultSettings() Settings {
	return Settings{
		CodeTTL:        10 * time.Minute,
		ResendCooldown: 60 * time.Second,
		GraceWindow:    30 * 24 * time.Hour,
		TestPhone:      "+521234567890",
	}
}

// Status is what the verification step renders.
type Status struct {
	Target            Target    `json:"target"`
	SentAt            time.Time `json:"sent_at"`
	ResendAvailableAt time.Time `json:"resend_available_at"`
	ResendIn          int       `json:"resend_in"`
}

// Manager runs the Idle -> CodeSent -> Verified machine for each target.
type Manager struct {
	store    ChallengeStore
	sms      Dispatcher
	lookup   VerificationLookup
	settings Settings
	log      *zap.Logger
	now      func() time.Time
}

// NewManager wires a Manager.
func NewManager(store ChallengeStore, sms Dispatcher, lookup VerificationLookup, settings Settings, log *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		sms:      sms,
		lookup:   lookup,
		settings: settings,
		log:      log,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// CodeFor picks the code for t. bypass is true only for the test phone with TestBypass on.
func (m *Manager) CodeFor(t Target) (code string, bypass bool, err error) {
	if m.settings.TestBypass && t.E164() == m.settings.TestPhone {
		return TestCode, true, nil
	}
	code, err = GenerateCode()
	return code, false, err
}

// RecentlyVerified is true when the phone passed a check within the grace window,
// inclusive of its boundary.
func (m *Manager) RecentlyVerified(ctx context.Context, t Target) (bool, error) {
	last, err := m.lookup.LastVerified(ctx, t.Phone, t.CountryCode)
	if err != nil {
		return false, fmt.Errorf("lookup last verification: %w", err)
	}
	if last == nil {
		return false, nil
	}
	return !last.Before(m.now().Add(-m.settings.GraceWindow)), nil
}

// Start issues a code when the verification step opens. While a previous code is still
// inside its resend cooldown, that code stays active and no new SMS goes out.
func (m *Manager) Start(ctx context.Context, t Target) (*Status, error) {
	existing, err := m.store.Get(ctx, t)
	switch {
	case err == nil && m.now().Before(existing.ResendAvailableAt):
		return m.status(existing), nil
	case err != nil && !errors.Is(err, ErrNoActiveChallenge):
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	return m.issue(ctx, t)
}

// Resend replaces the active code once the cooldown elapsed.
func (m *Manager) Resend(ctx context.Context, t Target) (*Status, error) {
	existing, err := m.store.Get(ctx, t)
	if err != nil && !errors.Is(err, ErrNoActiveChallenge) {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if err == nil {
		if remaining := existing.ResendAvailableAt.Sub(m.now()); remaining > 0 {
			return nil, &CooldownError{Remaining: remaining}
		}
	}
	return m.issue(ctx, t)
}

// Verify compares input against the most recent code. A mismatch is (false, nil) and keeps
// the challenge; a match consumes it. Attempts are not counted.
func (m *Manager) Verify(ctx context.Context, t Target, input string) (bool, error) {
	ch, err := m.store.Get(ctx, t)
	if err != nil {
		return false, err
	}
	if !codeMatches(input, ch.CodeHash) {
		return false, nil
	}
	if err := m.store.Delete(ctx, t); err != nil {
		m.log.Warn("verification: consume challenge failed", zap.String("target", t.E164()), zap.Error(err))
	}
	return true, nil
}

func (m *Manager) issue(ctx context.Context, t Target) (*Status, error) {
	code, bypass, err := m.CodeFor(t)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	now := m.now()
	ch := Challenge{
		Target:            t,
		CodeHash:          hashCode(code),
		CreatedAt:         now,
		ResendAvailableAt: now.Add(m.settings.ResendCooldown),
		Dispatched:        !bypass,
	}
	if err := m.store.Save(ctx, ch, m.settings.CodeTTL); err != nil {
		return nil, fmt.Errorf("save challenge: %w", err)
	}

	if bypass {
		m.log.Warn("verification: test phone bypass used, SMS skipped", zap.String("target", t.E164()))
		return m.status(&ch), nil
	}

	if err := m.sms.SendVerificationCode(ctx, t.E164(), code); err != nil {
		if delErr := m.store.Delete(ctx, t); delErr != nil {
			m.log.Warn("verification: drop undelivered challenge failed", zap.Error(delErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	m.log.Info("verification: code sent", zap.String("target", t.E164()))
	return m.status(&ch), nil
}

func (m *Manager) status(ch *Challenge) *Status {
	remaining := ch.ResendAvailableAt.Sub(m.now())
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		Target:            ch.Target,
		SentAt:            ch.CreatedAt,
		ResendAvailableAt: ch.ResendAvailableAt,
		ResendIn:          secondsCeil(remaining),
	}
}

func secondsCeil(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
