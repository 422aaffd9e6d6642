package enkap

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"go.uber.org/zap"
)

// SignatureHeader is the request header carrying the webhook signature
const SignatureHeader = "X-Enkap-Signature"

// SignatureVerifier checks the authenticity of webhook payloads.
//
// Accounts without a configured webhook secret run in permissive mode:
// every payload is accepted and a warning is logged on each check, so
// operators can see they are deployed without a secret.
type SignatureVerifier struct {
	secret string
	log    *zap.Logger
}

// NewSignatureVerifier creates a verifier for the given webhook secret.
// An empty secret enables permissive mode.
func NewSignatureVerifier(secret string, log *zap.Logger) *SignatureVerifier {
	if secret == "" {
		log.Warn("no webhook secret configured, signature verification is disabled")
	}
	return &SignatureVerifier{secret: secret, log: log}
}

// Verify compares the supplied signature against the HMAC-SHA256 hex
// digest of the exact raw request body. Comparison is constant time.
func (v *SignatureVerifier) Verify(rawBody []byte, signature string) bool {
	if v.secret == "" {
		v.log.Warn("webhook accepted without signature verification, no secret configured")
		return true
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}
