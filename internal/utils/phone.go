package utils

import (
	"strings"
	"unicode"
)

// DefaultCountryCode is used when the form leaves the dial code empty.
const DefaultCountryCode = "+52"

// CountryCodes are the dial codes the contact forms offer.
var CountryCodes = []string{"+52", "+1", "+34", "+57", "+54", "+56", "+51", "+502", "+503", "+593"}

// IsCountryCode reports whether code is one of CountryCodes.
func IsCountryCode(code string) bool {
	for _, c := range CountryCodes {
		if c == code {
			return true
		}
	}
	return false
}

// NormalizePhone strips everything but digits. Phones are stored and compared in this form.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeCountryCode trims the code, adds the leading plus and falls back to the default.
func NormalizeCountryCode(raw string) string {
	code := strings.TrimSpace(raw)
	if code == "" {
		return DefaultCountryCode
	}
	if !strings.HasPrefix(code, "+") {
		code = "+" + code
	}
	return code
}

// E164 joins the dial code and the 10-digit number, e.g. "+525512345678".
func E164(countryCode, phone string) string {
	return NormalizeCountryCode(countryCode) + NormalizePhone(phone)
}
