// Package sync reconciles inbound provider events onto local tasks. Every
// event walks the same path: signature-verified, routed by event tag,
// idempotently reconciled by external id, then mirrored outward.
package sync

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	shared "github.com/felixgeelhaar/taskbrain/internal/shared/domain"
)

// VerifySignature checks an HMAC-SHA256 webhook signature over the raw
// request body. The signature header carries "sha256=" plus the hex
// digest. A missing secret or missing signature is always a verification
// failure; there is no "no signature required" mode.
func VerifySignature(provider, secret string, body []byte, signature string) error {
	if secret == "" || signature == "" {
		return &shared.WebhookVerificationError{Provider: provider}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return &shared.WebhookVerificationError{Provider: provider}
	}
	return nil
}
