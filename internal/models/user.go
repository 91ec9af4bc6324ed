package models

import (
	"time"
)

// User roles.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleBoth   = "both"
)

// User is a verified contact. Identity is the (phone, country_code) pair, not the email.
type User struct {
	BaseModel
	Name         string     `json:"name"`
	Email        string     `gorm:"index" json:"email"`
	Phone        string     `gorm:"size:10;uniqueIndex:idx_users_phone_country" json:"phone"`
	CountryCode  string     `gorm:"size:5;uniqueIndex:idx_users_phone_country" json:"country_code"`
	Role         string     `gorm:"size:10" json:"role"`
	PasswordHash string     `json:"-"`
	LastVerified *time.Time `json:"last_verified"`
}

// HasPassword reports whether the user finished the password setup step.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// MergeRole widens the stored role when a buyer starts selling or vice versa.
func MergeRole(current, incoming string) string {
	switch {
	case current == "":
		return incoming
	case incoming == "" || current == incoming:
		return current
	default:
		return RoleBoth
	}
}
