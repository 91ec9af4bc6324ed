// Package pricing holds the pure loan and valuation arithmetic behind the quote and
// seller wizards. Nothing here performs I/O or validates business input.
package pricing

import "math"

// DefaultAnnualRate is the fixed nominal annual rate, in percent, offered on every loan.
const DefaultAnnualRate = 12.99

// Down payment bounds in percent of the car price.
const (
	MinDownPaymentPercentage  = 10
	MaxDownPaymentPercentage  = 50
	DownPaymentPercentageStep = 5
)

// MinCarPrice is the lowest car price a quote may be computed for, in MXN.
const MinCarPrice = 50000

// Terms lists the loan terms in months, in the order the quote tabs show them.
var Terms = []int{12, 24, 36, 48}

// IsAllowedTerm reports whether months is one of Terms.
func IsAllowedTerm(months int) bool {
	for _, t := range Terms {
		if t == months {
			return true
		}
	}
	return false
}

// MonthlyPayment returns the fixed-rate amortized payment rounded to the nearest peso.
//
// A zero rate degenerates the annuity factor to 0/0; it is answered with straight-line
// principal/term so the result stays finite. termMonths <= 0 yields 0.
func MonthlyPayment(principal, annualRatePercent float64, termMonths int) int64 {
	if termMonths <= 0 {
		return 0
	}
	r := annualRatePercent / 100 / 12
	n := float64(termMonths)
	if r == 0 {
		return int64(math.Round(principal / n))
	}
	growth := math.Pow(1+r, n)
	return int64(math.Round(principal * r * growth / (growth - 1)))
}

// DownPaymentAmount is price*pct/100 computed in float64 and rounded half away from zero.
func DownPaymentAmount(price int64, pct int) int64 {
	return int64(math.Round(float64(price) * float64(pct) / 100))
}

// QuoteInput is what the car selection step collects.
type QuoteInput struct {
	CarPrice              int64
	DownPaymentPercentage int
	TermMonths            int
	AnnualRate            float64
}

// Breakdown is everything the quote view renders for one term.
type Breakdown struct {
	CarPrice              int64   `json:"car_price"`
	DownPaymentPercentage int     `json:"down_payment_percentage"`
	DownPayment           int64   `json:"down_payment"`
	LoanAmount            int64   `json:"loan_amount"`
	TermMonths            int     `json:"term_months"`
	AnnualRate            float64 `json:"annual_rate"`
	MonthlyPayment        int64   `json:"monthly_payment"`
	TotalCost             int64   `json:"total_cost"`
	TotalInterest         int64   `json:"total_interest"`
}

// Calculate derives the full breakdown. TotalCost is monthly*term + down payment and
// TotalInterest is TotalCost - CarPrice, both exact in integer pesos.
func Calculate(in QuoteInput) Breakdown {
	down := DownPaymentAmount(in.CarPrice, in.DownPaymentPercentage)
	loan := in.CarPrice - down
	monthly := MonthlyPayment(float64(loan), in.AnnualRate, in.TermMonths)
	total := monthly*int64(in.TermMonths) + down

	return Breakdown{
		CarPrice:              in.CarPrice,
		DownPaymentPercentage: in.DownPaymentPercentage,
		DownPayment:           down,
		LoanAmount:            loan,
		TermMonths:            in.TermMonths,
		AnnualRate:            in.AnnualRate,
		MonthlyPayment:        monthly,
		TotalCost:             total,
		TotalInterest:         total - in.CarPrice,
	}
}

// CalculateTerms computes a breakdown for every allowed term, ignoring in.TermMonths.
func CalculateTerms(in QuoteInput) []Breakdown {
	out := make([]Breakdown, 0, len(Terms))
	for _, term := range Terms {
		in.TermMonths = term
		out = append(out, Calculate(in))
	}
	return out
}
