package utils

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// Errors surfaced by webhook verification. Any of these must hard-fail the
// request: there is no degraded mode for unauthenticated event ingestion.
var (
	ErrNoVerificationKey = errors.New("webhook verification key is not configured")
	ErrMissingSignature  = errors.New("missing webhook signature headers")
	ErrBadSignature      = errors.New("webhook signature verification failed")
)

// ParseWebhookPublicKey decodes the provider's published base64 DER public
// key into an ECDSA public key.
func ParseWebhookPublicKey(encoded string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want *ecdsa.PublicKey", parsed)
	}
	return key, nil
}

// derSignature is the ASN.1 structure the provider wraps signatures in.
type derSignature struct {
	R, S *big.Int
}

// parseDERSignature converts a base64 DER-encoded signature into the raw
// (r, s) pair the verification primitive expects.
func parseDERSignature(encoded string) (r, s *big.Int, err error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding signature: %w", err)
	}
	var sig derSignature
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing signature: %w", err)
	}
	if len(rest) != 0 {
		return nil, nil, errors.New("trailing bytes after signature")
	}
	return sig.R, sig.S, nil
}

// VerifyWebhookSignature authenticates a webhook payload: the signature is an
// ECDSA signature over timestamp || body. Returns ErrMissingSignature when
// either header is absent and ErrBadSignature when verification fails.
func VerifyWebhookSignature(key *ecdsa.PublicKey, signature, timestamp string, body []byte) error {
	if key == nil {
		return ErrNoVerificationKey
	}
	if signature == "" || timestamp == "" {
		return ErrMissingSignature
	}
	r, s, err := parseDERSignature(signature)
	if err != nil {
		return ErrBadSignature
	}
	payload := make([]byte, 0, len(timestamp)+len(body))
	payload = append(payload, timestamp...)
	payload = append(payload, body...)
	digest := sha256.Sum256(payload)
	if !ecdsa.Verify(key, digest[:], r, s) {
		return ErrBadSignature
	}
	return nil
}
