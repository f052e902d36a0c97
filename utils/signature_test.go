package utils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"testing"
)

func newSignedPayload(t *testing.T, key *ecdsa.PrivateKey, timestamp string, body []byte) string {
	t.Helper()
	digest := sha256.Sum256(append([]byte(timestamp), body...))
	der, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		t.Fatalf("signing payload: %v", err)
	}
	return base64.StdEncoding.EncodeToString(der)
}

func TestVerifyWebhookSignature(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	timestamp := "1718000000"
	body := []byte(`[{"event":"delivered","sg_message_id":"abc123.filter001"}]`)
	signature := newSignedPayload(t, key, timestamp, body)

	if err := VerifyWebhookSignature(&key.PublicKey, signature, timestamp, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	if err := VerifyWebhookSignature(nil, signature, timestamp, body); !errors.Is(err, ErrNoVerificationKey) {
		t.Fatalf("nil key: got %v, want ErrNoVerificationKey", err)
	}
	if err := VerifyWebhookSignature(&key.PublicKey, "", timestamp, body); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("missing signature: got %v, want ErrMissingSignature", err)
	}
	if err := VerifyWebhookSignature(&key.PublicKey, signature, "", body); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("missing timestamp: got %v, want ErrMissingSignature", err)
	}

	// Tampered body
	tampered := append([]byte{}, body...)
	tampered[0] = '{'
	if err := VerifyWebhookSignature(&key.PublicKey, signature, timestamp, tampered); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered body: got %v, want ErrBadSignature", err)
	}

	// Wrong timestamp binds the signature to the payload
	if err := VerifyWebhookSignature(&key.PublicKey, signature, "1718000001", body); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("wrong timestamp: got %v, want ErrBadSignature", err)
	}

	// Signature from a different key
	otherKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	otherSig := newSignedPayload(t, otherKey, timestamp, body)
	if err := VerifyWebhookSignature(&key.PublicKey, otherSig, timestamp, body); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("foreign signature: got %v, want ErrBadSignature", err)
	}

	if err := VerifyWebhookSignature(&key.PublicKey, "not-base64!!!", timestamp, body); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("garbage signature: got %v, want ErrBadSignature", err)
	}
}

func TestParseWebhookPublicKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}

	parsed, err := ParseWebhookPublicKey(base64.StdEncoding.EncodeToString(der))
	if err != nil {
		t.Fatalf("parsing valid key: %v", err)
	}
	if !parsed.Equal(&key.PublicKey) {
		t.Fatalf("parsed key does not match original")
	}

	if _, err := ParseWebhookPublicKey("%%%not base64%%%"); err == nil {
		t.Fatalf("invalid base64 should fail")
	}
	if _, err := ParseWebhookPublicKey(base64.StdEncoding.EncodeToString([]byte("junk"))); err == nil {
		t.Fatalf("non-DER bytes should fail")
	}
}
