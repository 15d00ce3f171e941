package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
)

// SignaturePrefix is the optional prefix of the x-signature header
const SignaturePrefix = "sha256="

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an HMAC-SHA256 webhook signature given as bare hex
// or with a "sha256=" prefix. The comparison is constant time. Error messages
// never include the expected digest.
func VerifySignature(secret, body []byte, signature string) error {
	if len(secret) == 0 {
		return fmt.Errorf("%w: webhook secret is not configured", domain.ErrServerMisconfiguration)
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("%w: missing signature", domain.ErrUnauthorized)
	}

	given, err := hex.DecodeString(strings.TrimPrefix(signature, SignaturePrefix))
	if err != nil {
		return fmt.Errorf("%w: malformed signature", domain.ErrUnauthorized)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), given) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrUnauthorized)
	}
	return nil
}

// VerifyAPIKey compares a shared-secret header in constant time
func VerifyAPIKey(expected, provided string) error {
	if expected == "" {
		return fmt.Errorf("%w: api key is not configured", domain.ErrServerMisconfiguration)
	}
	if provided == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return fmt.Errorf("%w: invalid api key", domain.ErrUnauthorized)
	}
	return nil
}
