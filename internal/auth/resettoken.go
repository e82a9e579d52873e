package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ResetTokenTTL is how long a password reset link stays valid.
const ResetTokenTTL = time.Hour

var ErrInvalidResetToken = errors.New("invalid or expired reset token")

type resetClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// NewResetToken signs a short-lived password reset token for the user.
func NewResetToken(secret []byte, userID int64) (string, error) {
	now := time.Now().UTC()
	claims := resetClaims{
		Purpose: "password_reset",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    "unbuilt",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ResetTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return signed, nil
}

// ParseResetToken verifies the token and returns the user it was issued for.
func ParseResetToken(secret []byte, tokenString string) (int64, error) {
	var claims resetClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidResetToken
	}
	if claims.Purpose != "password_reset" {
		return 0, ErrInvalidResetToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidResetToken
	}
	return userID, nil
}
