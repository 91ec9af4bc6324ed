package models

import "github.com/google/uuid"

// Quotation is the persisted loan quote written after the buyer proves phone ownership.
// Only SelectedTerm changes after creation.
type Quotation struct {
	BaseModel
	Folio                 string     `gorm:"uniqueIndex" json:"folio"`
	UserID                *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	UserName              string     `json:"user_name"`
	UserEmail             string     `json:"user_email"`
	UserPhone             string     `json:"user_phone"`
	UserCountryCode       string     `json:"user_country_code"`
	CarID                 *uuid.UUID `gorm:"type:uuid" json:"car_id"`
	CarBrand              string     `json:"car_brand"`
	CarModel              string     `json:"car_model"`
	CarYear               int        `json:"car_year"`
	CarPrice              int64      `json:"car_price"`
	DownPaymentPercentage int        `json:"down_payment_percentage"`
	SelectedTerm          int        `json:"selected_term"`
	AnnualRate            float64    `json:"annual_rate"`
	MonthlyPayment        int64      `json:"monthly_payment"`
	IsVerified            bool       `json:"is_verified"`
}
