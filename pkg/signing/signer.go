package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Signer produces and checks HMAC-SHA256 signatures over sync envelopes.
type Signer struct {
	secret []byte
	maxAge time.Duration
}

// NewSigner constructs a signer. maxAge bounds how old a verified signature may be; zero disables the check.
func NewSigner(secret string, maxAge time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret missing")
	}
	return &Signer{secret: []byte(secret), maxAge: maxAge}, nil
}

// Sign returns the hex signature of body issued at the given time.
func (s *Signer) Sign(body []byte, issuedAt time.Time) string {
	return hex.EncodeToString(s.mac(body, issuedAt.Unix()))
}

// Verify checks signature against body and issuedAt, rejecting stale envelopes.
func (s *Signer) Verify(body []byte, issuedAt time.Time, signature string, now time.Time) error {
	raw, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if !hmac.Equal(raw, s.mac(body, issuedAt.Unix())) {
		return fmt.Errorf("invalid signature")
	}
	if s.maxAge > 0 && now.Sub(issuedAt) > s.maxAge {
		return fmt.Errorf("signature expired")
	}
	return nil
}

func (s *Signer) mac(body []byte, issuedAt int64) []byte {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(fmt.Sprintf("%d|", issuedAt)))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}
