package wizard

import (
	"github.com/google/uuid"

	"github.com/example/autolead/internal/pricing"
)

// QuoteState is one of CarSelection, BuyerInfo, QuoteVerifying or Quoted.
type QuoteState interface {
	Step() Step
	quoteState()
}

type CarSelection struct{}

type BuyerInfo struct {
	Car CarChoice
}

type QuoteVerifying struct {
	Car   CarChoice
	Buyer Contact
}

// Quoted is terminal apart from term changes.
type Quoted struct {
	Car         CarChoice
	Buyer       Contact
	QuotationID uuid.UUID
}

func (CarSelection) Step() Step   { return StepCarSelection }
func (BuyerInfo) Step() Step      { return StepBuyerInfo }
func (QuoteVerifying) Step() Step { return StepQuoteVerifying }
func (Quoted) Step() Step         { return StepQuoted }

func (CarSelection) quoteState()   {}
func (BuyerInfo) quoteState()      {}
func (QuoteVerifying) quoteState() {}
func (Quoted) quoteState()         {}

// QuoteEvent drives NextQuote.
type QuoteEvent interface {
	quoteEvent()
}

// CarSelected submits (or re-submits) the car selection step.
type CarSelected struct{ Car CarChoice }

// BuyerSubmitted submits the buyer info step.
type BuyerSubmitted struct{ Buyer Contact }

// QuoteConfirmed ends verification, either by a correct code or because the phone was
// verified recently, once the quotation row exists.
type QuoteConfirmed struct{ QuotationID uuid.UUID }

// TermChanged switches the loan term tab.
type TermChanged struct{ Term int }

func (CarSelected) quoteEvent()    {}
func (BuyerSubmitted) quoteEvent() {}
func (QuoteConfirmed) quoteEvent() {}
func (TermChanged) quoteEvent()    {}

// NextQuote is the transition function of the loan quote pipeline.
func NextQuote(s QuoteState, e QuoteEvent) (QuoteState, error) {
	switch st := s.(type) {
	case CarSelection:
		if ev, ok := e.(CarSelected); ok {
			if ev.Car.Price < pricing.MinCarPrice {
				return s, ErrCarPriceTooLow
			}
			return BuyerInfo{Car: ev.Car}, nil
		}
	case BuyerInfo:
		switch ev := e.(type) {
		case CarSelected:
			if ev.Car.Price < pricing.MinCarPrice {
				return s, ErrCarPriceTooLow
			}
			return BuyerInfo{Car: ev.Car}, nil
		case TermChanged:
			if !pricing.IsAllowedTerm(ev.Term) {
				break
			}
			st.Car.Term = ev.Term
			return st, nil
		case BuyerSubmitted:
			return QuoteVerifying{Car: st.Car, Buyer: ev.Buyer}, nil
		}
	case QuoteVerifying:
		switch ev := e.(type) {
		case BuyerSubmitted:
			return QuoteVerifying{Car: st.Car, Buyer: ev.Buyer}, nil
		case QuoteConfirmed:
			if ev.QuotationID == uuid.Nil {
				break
			}
			return Quoted{Car: st.Car, Buyer: st.Buyer, QuotationID: ev.QuotationID}, nil
		}
	case Quoted:
		if ev, ok := e.(TermChanged); ok && pricing.IsAllowedTerm(ev.Term) {
			st.Car.Term = ev.Term
			return st, nil
		}
	}
	return s, illegal(s.Step(), e)
}
