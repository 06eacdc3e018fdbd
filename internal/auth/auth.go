// Package auth implements the shared-secret credential gate.
//
// Every chat request carries an Authorization header. The expected value is
// derived once from the configured identifier/passphrase pair; requests are
// checked with a constant-time comparison. A failed check produces no output
// and no side effects — the caller only observes an empty, closed stream.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidCredential is returned when the presented credential does not
// match the configured secret pair.
var ErrInvalidCredential = errors.New("invalid credential")

// Gate validates inbound request credentials.
type Gate struct {
	expected string
}

// NewGate builds a gate from the configured identifier and passphrase.
// The expected header is "Basic " + base64(identifier + ":" + passphrase).
func NewGate(identifier, passphrase string) *Gate {
	token := base64.StdEncoding.EncodeToString([]byte(identifier + ":" + passphrase))
	return &Gate{expected: "Basic " + token}
}

// Check compares the presented Authorization header against the expected
// credential. Comparison is constant-time to avoid leaking prefix matches.
func (g *Gate) Check(authorization string) error {
	presented := strings.TrimSpace(authorization)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(g.expected)) != 1 {
		return ErrInvalidCredential
	}
	return nil
}
