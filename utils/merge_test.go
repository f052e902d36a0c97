package utils

import (
	"strings"
	"testing"
)

func TestRenderMerge(t *testing.T) {
	data := MergeData{
		FirstName:  "Dana",
		AgentName:  "Chris Alvarez",
		ReviewLink: "https://g.page/r/agency-review",
	}

	out := RenderMerge("Hi {{first_name}}, {{agent_name}} here. Leave us a review: {{review_link}}", data)
	want := "Hi Dana, Chris Alvarez here. Leave us a review: https://g.page/r/agency-review"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestRenderMergeLeavesUnresolvedTokens(t *testing.T) {
	out := RenderMerge("Hi {{first_name}}, your policy with {{business_name}} renews soon.", MergeData{FirstName: "Sam"})
	if !strings.Contains(out, "{{business_name}}") {
		t.Fatalf("empty value should leave token literal, got %q", out)
	}
	if strings.Contains(out, "{{first_name}}") {
		t.Fatalf("populated token should be substituted, got %q", out)
	}
}

func TestAppendUnsubscribeFooter(t *testing.T) {
	link := "https://mail.example.com/unsubscribe/abc"

	out := AppendUnsubscribeFooter("<p>Hello</p>", link)
	if !strings.Contains(out, link) {
		t.Fatalf("footer link missing: %q", out)
	}

	// Bodies already carrying the link do not get a second footer
	again := AppendUnsubscribeFooter(out, link)
	if strings.Count(again, link) != 1 {
		t.Fatalf("footer appended twice: %q", again)
	}
}

func TestUnsubscribeTokenRoundTrip(t *testing.T) {
	const secret = "test-secret"

	token := MakeUnsubscribeToken("customer@example.com", 42, secret)
	email, automationID, err := ParseUnsubscribeToken(token, secret)
	if err != nil {
		t.Fatalf("parsing own token: %v", err)
	}
	if email != "customer@example.com" || automationID != 42 {
		t.Fatalf("got (%q, %d), want (customer@example.com, 42)", email, automationID)
	}

	// Global opt-out uses automation id zero
	global := MakeUnsubscribeToken("customer@example.com", 0, secret)
	_, id, err := ParseUnsubscribeToken(global, secret)
	if err != nil || id != 0 {
		t.Fatalf("global token: id=%d err=%v", id, err)
	}
}

func TestUnsubscribeTokenCasefoldsEmail(t *testing.T) {
	const secret = "test-secret"

	// Stored addresses may carry whatever casing the import had; the
	// parsed address must still match a lowercased lookup.
	token := MakeUnsubscribeToken("John.Doe@Example.COM", 7, secret)
	email, automationID, err := ParseUnsubscribeToken(token, secret)
	if err != nil {
		t.Fatalf("parsing own token: %v", err)
	}
	if email != "john.doe@example.com" {
		t.Fatalf("parsed email should be casefolded, got %q", email)
	}
	if automationID != 7 {
		t.Fatalf("automation id: got %d, want 7", automationID)
	}
}

func TestUnsubscribeTokenRejectsTampering(t *testing.T) {
	const secret = "test-secret"
	token := MakeUnsubscribeToken("customer@example.com", 42, secret)

	if _, _, err := ParseUnsubscribeToken(token, "other-secret"); err == nil {
		t.Fatalf("wrong secret should fail verification")
	}
	if _, _, err := ParseUnsubscribeToken("!!not-base64!!", secret); err == nil {
		t.Fatalf("malformed token should fail")
	}

	forged := MakeUnsubscribeToken("victim@example.com", 42, "attacker-guess")
	if _, _, err := ParseUnsubscribeToken(forged, secret); err == nil {
		t.Fatalf("token signed with wrong secret should fail")
	}
}
