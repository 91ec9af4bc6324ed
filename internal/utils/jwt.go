package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	purposeSession    = "session"
	purposePhoneProof = "phone_verified"
	purposeReset      = "password_reset"
)

type jwtCustomClaims struct {
	UserID  string `json:"user_id"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed session JWT for the provided user ID.
func GenerateToken(secret string, userID uuid.UUID, ttl time.Duration) (string, error) {
	return sign(secret, userID, purposeSession, ttl)
}

// ParseToken validates a session token and returns the embedded user ID.
func ParseToken(secret, tokenString string) (uuid.UUID, error) {
	return parse(secret, tokenString, purposeSession)
}

// GenerateVerificationToken proves a just-completed phone verification. The password setup
// step exchanges it for a session.
func GenerateVerificationToken(secret string, userID uuid.UUID, ttl time.Duration) (string, error) {
	return sign(secret, userID, purposePhoneProof, ttl)
}

// ParseVerificationToken validates a phone verification proof.
func ParseVerificationToken(secret, tokenString string) (uuid.UUID, error) {
	return parse(secret, tokenString, purposePhoneProof)
}

// GeneratePasswordResetToken proves the phone of an existing account for a password reset.
func GeneratePasswordResetToken(secret string, userID uuid.UUID, ttl time.Duration) (string, error) {
	return sign(secret, userID, purposeReset, ttl)
}

// ParsePasswordResetToken validates a password reset proof.
func ParsePasswordResetToken(secret, tokenString string) (uuid.UUID, error) {
	return parse(secret, tokenString, purposeReset)
}

func sign(secret string, userID uuid.UUID, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &jwtCustomClaims{
		UserID:  userID.String(),
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parse(secret, tokenString, purpose string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, err
	}

	claims, ok := token.Claims.(*jwtCustomClaims)
	if !ok || !token.Valid {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Purpose != purpose {
		return uuid.Nil, errors.New("token issued for a different purpose")
	}
	return uuid.Parse(claims.UserID)
}
