// Package token mints and parses the rotating QR check-in credential.
//
// The wire shape is a colon-delimited string:
//
//	ATTEND:<session_id>:<mint_epoch_millis>:<random_suffix>
//
// The random suffix bounds guessability; the embedded mint time bounds the
// validity window even when the persisted current token lags behind rotation.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Prefix identifies a roll-call payload.
const Prefix = "ATTEND"

// SuffixBytes is the random entropy per token; hex-encoded it yields 12 chars.
const SuffixBytes = 6

// ErrMalformed is returned when a payload does not match the wire shape.
var ErrMalformed = errors.New("malformed check-in token")

// Payload is a decoded check-in token.
type Payload struct {
	SessionID string
	MintedAt  time.Time
	Suffix    string
}

// Mint produces a fresh token string for the session at the given time.
func Mint(sessionID string, now time.Time) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id required")
	}
	buf := make([]byte, SuffixBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token entropy: %w", err)
	}
	return fmt.Sprintf("%s:%s:%d:%s", Prefix, sessionID, now.UnixMilli(), hex.EncodeToString(buf)), nil
}

// Parse decodes a payload, rejecting anything that does not match the shape.
func Parse(raw string) (Payload, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 4 || parts[0] != Prefix {
		return Payload{}, ErrMalformed
	}
	if parts[1] == "" || parts[3] == "" {
		return Payload{}, ErrMalformed
	}
	millis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || millis <= 0 {
		return Payload{}, ErrMalformed
	}
	return Payload{
		SessionID: parts[1],
		MintedAt:  time.UnixMilli(millis),
		Suffix:    parts[3],
	}, nil
}

// Age reports how long ago the payload was minted relative to now.
func (p Payload) Age(now time.Time) time.Duration {
	return now.Sub(p.MintedAt)
}

// Fresh reports whether the payload was minted within the window, boundary
// inclusive: a token exactly window old is still accepted.
func (p Payload) Fresh(now time.Time, window time.Duration) bool {
	age := p.Age(now)
	return age >= 0 && age <= window
}
