package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	apperrors "examgate/internal/errors"
)

const (
	// TokenPrefix marks the canonical versioned token format:
	// EG1.<YYYYMMDD>.<truncated hex digest>
	TokenPrefix = "EG1"

	// CanonicalSignatureLen is the truncated digest length in hex characters
	CanonicalSignatureLen = 32

	// legacySignatureLen is the full digest length used by the legacy
	// <YYYYMMDD>-<hex> format. Legacy tokens are parsed but never issued.
	legacySignatureLen = 64

	// ExpiryLayout is the fixed-width date format carried in tokens.
	// Fixed width keeps string comparison equivalent to date comparison.
	ExpiryLayout = "20060102"
)

// pbkdf2 parameters for deriving the signing key from the configured secret
const (
	keySalt       = "examgate-license-v1"
	keyIterations = 4096
	keyLength     = 32
)

// Signer computes and verifies license token signatures
type Signer struct {
	key []byte
}

// NewSigner derives the HMAC signing key from the configured passphrase
func NewSigner(secret string) *Signer {
	return &Signer{
		key: pbkdf2.Key([]byte(secret), []byte(keySalt), keyIterations, keyLength, sha256.New),
	}
}

// Token is a parsed license string
type Token struct {
	Expiry    string
	Signature string
	Legacy    bool
}

// Sign issues a canonical token for the given device and expiry date
func (s *Signer) Sign(deviceID, expiry string) string {
	return fmt.Sprintf("%s.%s.%s", TokenPrefix, expiry, s.signature(deviceID, expiry)[:CanonicalSignatureLen])
}

// signature computes the full hex HMAC-SHA256 over deviceID and expiry
func (s *Signer) signature(deviceID, expiry string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(deviceID + "|" + expiry))
	return hex.EncodeToString(mac.Sum(nil))
}

// Parse splits a license string into expiry and signature. It accepts the
// canonical format and, for backward compatibility, the legacy
// <YYYYMMDD>-<64 hex> format.
func (s *Signer) Parse(license string) (Token, error) {
	license = strings.TrimSpace(license)

	if strings.HasPrefix(license, TokenPrefix+".") {
		parts := strings.Split(license, ".")
		if len(parts) != 3 {
			return Token{}, apperrors.ErrMalformedLicense
		}
		tok := Token{Expiry: parts[1], Signature: parts[2]}
		if !validExpiry(tok.Expiry) || !validHex(tok.Signature, CanonicalSignatureLen) {
			return Token{}, apperrors.ErrMalformedLicense
		}
		return tok, nil
	}

	// Legacy grammar: fixed-width date, dash, full digest
	if idx := strings.IndexByte(license, '-'); idx == len(ExpiryLayout) {
		tok := Token{Expiry: license[:idx], Signature: license[idx+1:], Legacy: true}
		if !validExpiry(tok.Expiry) || !validHex(tok.Signature, legacySignatureLen) {
			return Token{}, apperrors.ErrMalformedLicense
		}
		return tok, nil
	}

	return Token{}, apperrors.ErrMalformedLicense
}

// VerifySignature recomputes the expected signature for the device carried
// in the request. A license copied to another device fails here because the
// device id is part of the signed material.
func (s *Signer) VerifySignature(deviceID string, tok Token) bool {
	full := s.signature(deviceID, tok.Expiry)
	expected := full[:CanonicalSignatureLen]
	if tok.Legacy {
		expected = full
	}
	return hmac.Equal([]byte(expected), []byte(tok.Signature))
}

// validExpiry reports whether the expiry is a real date in fixed-width form
func validExpiry(expiry string) bool {
	if len(expiry) != len(ExpiryLayout) {
		return false
	}
	t, err := time.Parse(ExpiryLayout, expiry)
	if err != nil {
		return false
	}
	return t.Format(ExpiryLayout) == expiry
}

// validHex reports whether s is a lowercase hex string of length n
func validHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
