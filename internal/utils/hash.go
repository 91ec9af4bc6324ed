package utils

import "golang.org/x/crypto/bcrypt"

// MinPasswordLength is enforced by the password setup and registration endpoints.
const MinPasswordLength = 8

// HashPassword returns a bcrypt hash of the account password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hashedPassword, password string) bool {
	if hashedPassword == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}
