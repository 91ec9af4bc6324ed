package models

import "github.com/google/uuid"

// Listing lifecycle states. Only draft -> published is exposed.
const (
	ListingDraft     = "draft"
	ListingPublished = "published"
	ListingSold      = "sold"
)

// VehicleListing is a seller's valuation draft and, once a tier is picked, the published listing.
type VehicleListing struct {
	BaseModel
	UserID                 *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Brand                  string     `json:"brand"`
	Model                  string     `json:"model"`
	Year                   int        `json:"year"`
	Version                string     `json:"version"`
	Mileage                int64      `json:"mileage"`
	Condition              string     `json:"condition"`
	Location               string     `json:"location"`
	Features               []string   `gorm:"serializer:json" json:"features"`
	EstimatedPriceQuick    int64      `json:"estimated_price_quick"`
	EstimatedPriceBalanced int64      `json:"estimated_price_balanced"`
	EstimatedPricePremium  int64      `json:"estimated_price_premium"`
	Currency               string     `gorm:"size:3" json:"currency"`
	SelectedPriceType      string     `json:"selected_price_type"`
	Status                 string     `gorm:"index" json:"status"`
	Photos                 []string   `gorm:"serializer:json" json:"photos"`
}
