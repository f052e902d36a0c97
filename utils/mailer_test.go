package utils

import (
	"strings"
	"testing"
)

func TestNewMessageID(t *testing.T) {
	id := NewMessageID("service@agency.example.com")
	if !strings.HasPrefix(id, "<") || !strings.HasSuffix(id, "@agency.example.com>") {
		t.Fatalf("message id should use the sending domain, got %q", id)
	}

	if NewMessageID("service@agency.example.com") == id {
		t.Fatalf("message ids must be unique per send")
	}

	// An unusable from address still yields a well-formed id
	fallback := NewMessageID("")
	if !strings.HasSuffix(fallback, "@localhost>") {
		t.Fatalf("fallback domain: got %q", fallback)
	}
	if !strings.HasSuffix(NewMessageID("trailing@"), "@localhost>") {
		t.Fatalf("address ending in @ should fall back to localhost")
	}
}
