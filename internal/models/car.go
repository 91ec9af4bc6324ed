package models

import "time"

// Car is a catalog entry mirrored from the third-party listing feed. The quoting flow only reads it.
type Car struct {
	BaseModel
	ExternalID       string    `gorm:"uniqueIndex" json:"external_id"`
	Brand            string    `gorm:"index" json:"brand"`
	Model            string    `json:"model"`
	Version          string    `json:"version"`
	Year             int       `gorm:"index" json:"year"`
	Price            int64     `json:"price"`
	ImageURL         string    `json:"image_url"`
	Title            string    `json:"title"`
	RegistrationType string    `json:"registration_type"`
	URL              string    `json:"url"`
	LastChecked      time.Time `json:"last_checked"`
}
