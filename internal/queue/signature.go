// Package queue integrates with the delayed-job queue that drives the
// sourcing pipeline. Jobs are published fire-and-forget with an optional
// delay and delivered back to this service as HMAC-signed HTTP callbacks,
// at least once; all handlers must therefore be idempotent.
package queue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the hex HMAC-SHA256 of the callback body.
const SignatureHeader = "X-Queue-Signature"

// Signer verifies queue callback signatures against a rotating key pair.
// During rotation the queue may still sign with the outgoing key while new
// deliveries use the incoming one, so both the current and next key are
// accepted.
type Signer struct {
	current []byte
	next    []byte
}

// NewSigner creates a Signer. nextKey may be empty outside rotation windows.
func NewSigner(currentKey, nextKey string) *Signer {
	s := &Signer{current: []byte(currentKey)}
	if nextKey != "" {
		s.next = []byte(nextKey)
	}
	return s
}

// Sign computes the hex HMAC-SHA256 of body with the current key.
func (s *Signer) Sign(body []byte) string {
	return signWith(s.current, body)
}

// Verify reports whether signature matches body under the current or next
// key. Comparison is constant time.
func (s *Signer) Verify(body []byte, signature string) bool {
	if hmac.Equal([]byte(signWith(s.current, body)), []byte(signature)) {
		return true
	}
	if len(s.next) > 0 {
		return hmac.Equal([]byte(signWith(s.next, body)), []byte(signature))
	}
	return false
}

func signWith(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
