// Package notify fans lead events out to the webhook, email and Telegram collaborators.
// Delivery is best effort: failures are logged and recorded, never returned to the flow.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/autolead/internal/diagnostics"
)

// Event names.
const (
	EventQuoteVerified     = "quote_verified"
	EventQuoteViewed       = "quote_viewed"
	EventQuoteEmailed      = "quote_emailed"
	EventValuationVerified = "valuation_verified"
	EventTierSelected      = "tier_selected"
)

// ErrSkip is returned by a Notifier that has nothing to send for an event.
var ErrSkip = errors.New("notifier skipped event")

type Contact struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
}

type Car struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
	Year  int    `json:"year"`
	Price int64  `json:"price"`
}

type Quote struct {
	QuotationID           string  `json:"quotation_id,omitempty"`
	Folio                 string  `json:"folio,omitempty"`
	DownPaymentPercentage int     `json:"down_payment_percentage"`
	DownPayment           int64   `json:"down_payment"`
	LoanAmount            int64   `json:"loan_amount"`
	Term                  int     `json:"term"`
	AnnualRate            float64 `json:"annual_rate"`
	MonthlyPayment        int64   `json:"monthly_payment"`
	TotalCost             int64   `json:"total_cost"`
}

type Valuation struct {
	ListingID string `json:"listing_id,omitempty"`
	Brand     string `json:"brand"`
	Model     string `json:"model"`
	Year      int    `json:"year"`
	Mileage   int64  `json:"mileage"`
	Quick     int64  `json:"quick"`
	Balanced  int64  `json:"balanced"`
	Premium   int64  `json:"premium"`
	Currency  string `json:"currency"`
	Tier      string `json:"tier,omitempty"`
}

// Event is one notification-worthy moment in a flow.
type Event struct {
	Name       string     `json:"event"`
	FlowID     string     `json:"flow_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
	Contact    *Contact   `json:"user,omitempty"`
	Car        *Car       `json:"car,omitempty"`
	Quote      *Quote     `json:"quote,omitempty"`
	Valuation  *Valuation `json:"valuation,omitempty"`
}

// Notifier delivers an event to one collaborator.
type Notifier interface {
	Name() string
	Target() string
	Notify(ctx context.Context, e Event) error
}

// Dispatcher is what flows depend on.
type Dispatcher interface {
	Dispatch(e Event)
}

// FanOut runs every notifier in its own goroutine with its own timeout.
type FanOut struct {
	notifiers []Notifier
	timeout   time.Duration
	rec       diagnostics.Recorder
	log       *zap.Logger
	wg        sync.WaitGroup
}

func NewFanOut(timeout time.Duration, rec diagnostics.Recorder, log *zap.Logger, notifiers ...Notifier) *FanOut {
	if rec == nil {
		rec = diagnostics.Discard{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FanOut{notifiers: notifiers, timeout: timeout, rec: rec, log: log}
}

// Dispatch returns immediately.
func (f *FanOut) Dispatch(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	for _, n := range f.notifiers {
		f.wg.Add(1)
		go f.deliver(n, e)
	}
}

func (f *FanOut) deliver(n Notifier, e Event) {
	defer f.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	start := time.Now()
	err := safeNotify(ctx, n, e)
	if errors.Is(err, ErrSkip) {
		return
	}

	entry := diagnostics.Entry{
		Kind:     n.Name(),
		Target:   n.Target(),
		Event:    e.Name,
		OK:       err == nil,
		Duration: time.Since(start),
	}
	if err != nil {
		entry.Error = err.Error()
		f.log.Warn("notify: delivery failed",
			zap.String("notifier", n.Name()),
			zap.String("event", e.Name),
			zap.String("flow_id", e.FlowID),
			zap.Error(err))
	}
	f.rec.Record(entry)
}

func safeNotify(ctx context.Context, n Notifier, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return n.Notify(ctx, e)
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (f *FanOut) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
