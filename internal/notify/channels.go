package notify

import (
	"context"
	"fmt"

	"github.com/example/autolead/internal/services"
)

// EmailSender is satisfied by services.EmailService.
type EmailSender interface {
	Send(ctx context.Context, msg services.EmailMessage) error
}

// Email mails the quote summary to the buyer on verification and on explicit request.
type Email struct {
	sender EmailSender
}

func NewEmail(sender EmailSender) *Email {
	return &Email{sender: sender}
}

func (n *Email) Name() string   { return "email" }
func (n *Email) Target() string { return "email-api" }

func (n *Email) Notify(ctx context.Context, e Event) error {
	if e.Name != EventQuoteVerified && e.Name != EventQuoteEmailed {
		return ErrSkip
	}
	if e.Contact == nil || e.Contact.Email == "" || e.Car == nil || e.Quote == nil {
		return ErrSkip
	}

	subject, body, err := services.RenderQuoteEmail(services.QuoteSummary{
		Name:           e.Contact.Name,
		Folio:          e.Quote.Folio,
		Car:            fmt.Sprintf("%s %s %d", e.Car.Brand, e.Car.Model, e.Car.Year),
		CarPrice:       e.Car.Price,
		DownPayment:    e.Quote.DownPayment,
		LoanAmount:     e.Quote.LoanAmount,
		Term:           e.Quote.Term,
		AnnualRate:     e.Quote.AnnualRate,
		MonthlyPayment: e.Quote.MonthlyPayment,
		TotalCost:      e.Quote.TotalCost,
	})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, services.EmailMessage{
		To:          e.Contact.Email,
		ToName:      e.Contact.Name,
		Subject:     subject,
		HTMLContent: body,
	})
}

// LeadSender is satisfied by services.TelegramService.
type LeadSender interface {
	Enabled() bool
	NotifyLead(ctx context.Context, lead services.LeadNotification) error
}

// Telegram alerts the sales chat about freshly verified leads.
type Telegram struct {
	sender LeadSender
}

func NewTelegram(sender LeadSender) *Telegram {
	return &Telegram{sender: sender}
}

func (n *Telegram) Name() string   { return "telegram" }
func (n *Telegram) Target() string { return "telegram-admin" }

func (n *Telegram) Notify(ctx context.Context, e Event) error {
	if !n.sender.Enabled() || e.Contact == nil {
		return ErrSkip
	}

	lead := services.LeadNotification{
		Name:  e.Contact.Name,
		Phone: e.Contact.CountryCode + e.Contact.Phone,
		Email: e.Contact.Email,
	}
	switch {
	case e.Name == EventQuoteVerified && e.Car != nil && e.Quote != nil:
		lead.Kind = "quote"
		lead.Vehicle = fmt.Sprintf("%s %s %d", e.Car.Brand, e.Car.Model, e.Car.Year)
		lead.Amount = e.Quote.MonthlyPayment
		lead.Detail = fmt.Sprintf("%d meses, enganche %d%%", e.Quote.Term, e.Quote.DownPaymentPercentage)
	case (e.Name == EventValuationVerified || e.Name == EventTierSelected) && e.Valuation != nil:
		lead.Kind = "valuation"
		lead.Vehicle = fmt.Sprintf("%s %s %d, %d km", e.Valuation.Brand, e.Valuation.Model, e.Valuation.Year, e.Valuation.Mileage)
		lead.Amount = e.Valuation.Balanced
		lead.Detail = "Valuación estimada"
		switch e.Valuation.Tier {
		case "quick":
			lead.Amount, lead.Detail = e.Valuation.Quick, "Opción elegida: quick"
		case "premium":
			lead.Amount, lead.Detail = e.Valuation.Premium, "Opción elegida: premium"
		case "balanced":
			lead.Detail = "Opción elegida: balanced"
		}
	default:
		return ErrSkip
	}
	return n.sender.NotifyLead(ctx, lead)
}
