package verification

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/example/autolead/internal/utils"
)

const (
	codeMin = 100000
	codeMax = 999999

	// TestCode is what the reserved test phone receives when the bypass is enabled.
	TestCode = "000000"
)

// GenerateCode returns a uniformly random code in [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

// Challenge purposes. A code only verifies the purpose it was sent for.
const (
	PurposeLead  = "lead"
	PurposeReset = "reset"
)

// Target is the phone a challenge is sent to and what the code is for.
type Target struct {
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
	Purpose     string `json:"purpose"`
}

// NewTarget normalizes raw form input into a lead verification target.
func NewTarget(phone, countryCode string) Target {
	return Target{
		Phone:       utils.NormalizePhone(phone),
		CountryCode: utils.NormalizeCountryCode(countryCode),
		Purpose:     PurposeLead,
	}
}

// For returns the same phone under another purpose.
func (t Target) For(purpose string) Target {
	t.Purpose = purpose
	return t
}

// E164 returns the dialable form, e.g. "+525512345678".
func (t Target) E164() string {
	return t.CountryCode + t.Phone
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func codeMatches(input, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(hashCode(input)), []byte(storedHash)) == 1
}
