// Package token issues and verifies the HS256 session tokens handed out by /api/login.
//
// Secrets are standard base64. Timestamps are whole epoch seconds and comparisons carry no
// leeway: a token is valid only while now < exp and its issuer equals Issuer.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped into every token and is the only issuer Verify accepts.
const Issuer = "weather-gateway.kjstillabower.com"

var (
	ErrInvalidTTL = errors.New("invalid token ttl")
	ErrSigning    = errors.New("token signing failed")
	ErrValidation = errors.New("token validation failed")
)

// Claims is the verified payload of a token.
type Claims struct {
	Subject   string
	IssuedAt  int64
	ExpiresAt int64
	Issuer    string
}

// Generate signs a token for subject valid for ttlMinutes from now.
func Generate(subject string, ttlMinutes int64, secret, issuer string) (string, error) {
	return generateAt(time.Now(), subject, ttlMinutes, secret, issuer)
}

// Verify checks signature, issuer and expiry of raw against secret.
func Verify(raw, secret string) (Claims, error) {
	return verifyAt(time.Now(), raw, secret)
}

func generateAt(now time.Time, subject string, ttlMinutes int64, secret, issuer string) (string, error) {
	if ttlMinutes <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidTTL, ttlMinutes)
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}

	issued := now.Truncate(time.Second)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(time.Duration(ttlMinutes) * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

func verifyAt(now time.Time, raw, secret string) (Claims, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	rc := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(raw, rc,
		func(_ *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Checked again here so expiry does not depend on the library's defaults.
	if now.Unix() >= rc.ExpiresAt.Unix() {
		return Claims{}, fmt.Errorf("%w: token has expired", ErrValidation)
	}

	c := Claims{
		Subject:   rc.Subject,
		ExpiresAt: rc.ExpiresAt.Unix(),
		Issuer:    rc.Issuer,
	}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Unix()
	}
	return c, nil
}

func decodeSecret(secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("empty secret")
	}
	return key, nil
}
