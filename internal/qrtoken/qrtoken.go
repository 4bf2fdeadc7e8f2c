// Package qrtoken encodes the QR check-in payload as a compact HS256-signed
// token. Signing makes a scanned payload tamper-evident; both sides of the
// protocol share the secret, so no network access is needed to decode.
package qrtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned when a scanned string is not a valid token or is
// missing required fields.
var ErrMalformed = errors.New("malformed check-in token")

// Payload is the content of a session QR code.
type Payload struct {
	SessionID string
	EventType string
	EventName string
	Word      string
	ExpiresAt time.Time
}

// Encode signs the payload into the string rendered as a QR code.
func Encode(p Payload, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sid":   p.SessionID,
		"etype": p.EventType,
		"ename": p.EventName,
		"word":  p.Word,
		"exp":   p.ExpiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign check-in token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and extracts the payload. Expiry is NOT
// judged here: the validator owns the clock, so claim validation is disabled
// and exp rides through as data.
func Decode(tokenString string, secret []byte) (*Payload, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrMalformed
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}

	sessionID, ok := claims["sid"].(string)
	if !ok || sessionID == "" {
		return nil, ErrMalformed
	}
	word, ok := claims["word"].(string)
	if !ok || word == "" {
		return nil, ErrMalformed
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrMalformed
	}
	// Optional descriptive fields.
	eventType, _ := claims["etype"].(string)
	eventName, _ := claims["ename"].(string)

	return &Payload{
		SessionID: sessionID,
		EventType: eventType,
		EventName: eventName,
		Word:      word,
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}
