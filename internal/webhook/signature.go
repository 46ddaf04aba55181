// Package webhook verifies the HMAC signatures on broker callbacks.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Headers carried on signed broker callbacks.
const (
	// SignatureHeader holds the lowercase hex HMAC-SHA256 of the raw body.
	SignatureHeader = "X-Broker-Signature"
	// AlgorithmHeader is optional; when present it must equal Algorithm.
	AlgorithmHeader = "X-Broker-Signature-Alg"
	// Algorithm is the only accepted signature scheme.
	Algorithm = "HMAC-SHA256"
)

// Verifier checks signatures against an ordered key list: the primary
// secret first, then rotated legacy secrets. Any match accepts, so a
// sender can keep signing with an old key during rotation.
type Verifier struct {
	secrets []string
}

// NewVerifier creates a verifier over the accepted secrets, primary first.
func NewVerifier(secrets []string) *Verifier {
	return &Verifier{secrets: secrets}
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of body under
// secret. Exposed for outbound signing with the primary key.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature over the raw request body. The raw bytes
// are the signed payload: re-serializing a parsed body would not
// round-trip. Comparison is constant-time, and every candidate secret is
// tried even after a match so rejection latency does not leak which key
// (if any) was close.
func (v *Verifier) Verify(body []byte, signature, algorithm string) bool {
	if signature == "" || len(v.secrets) == 0 {
		return false
	}
	if algorithm != "" && !strings.EqualFold(algorithm, Algorithm) {
		return false
	}

	provided := []byte(strings.ToLower(signature))
	matched := false
	for _, secret := range v.secrets {
		expected := []byte(ComputeSignature(body, secret))
		if hmac.Equal(provided, expected) {
			matched = true
		}
	}
	return matched
}
