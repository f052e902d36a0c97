package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// MergeData carries the values substituted into a send_email node's subject
// and body at dispatch time.
type MergeData struct {
	FirstName    string
	LastName     string
	BusinessName string
	AgentName    string
	ReviewLink   string
	RatingLink   string
	Signature    string
	UnsubLink    string
}

// RenderMerge substitutes merge tokens into content. Unresolved tokens are
// left as literal text rather than silently dropped: a visibly broken token
// gets reported, a silently blanked one does not.
func RenderMerge(content string, data MergeData) string {
	replacements := map[string]string{
		"{{first_name}}":       data.FirstName,
		"{{last_name}}":        data.LastName,
		"{{business_name}}":    data.BusinessName,
		"{{agent_name}}":       data.AgentName,
		"{{review_link}}":      data.ReviewLink,
		"{{rating_link}}":      data.RatingLink,
		"{{signature}}":        data.Signature,
		"{{unsubscribe_link}}": data.UnsubLink,
	}
	for token, value := range replacements {
		if value == "" {
			continue
		}
		content = strings.ReplaceAll(content, token, value)
	}
	return content
}

// AppendUnsubscribeFooter adds an opt-out footer when the body does not
// already carry an unsubscribe link.
func AppendUnsubscribeFooter(html, unsubLink string) string {
	if strings.Contains(html, unsubLink) {
		return html
	}
	footer := fmt.Sprintf(
		`<p style="font-size:12px;color:#7f8c8d">If you'd rather not receive these emails, <a href="%s">unsubscribe here</a>.</p>`,
		unsubLink)
	return html + footer
}

// UnsubscribeURL builds the one-click opt-out link embedded in every send.
func UnsubscribeURL(baseURL, email string, automationID uint, secret string) string {
	return fmt.Sprintf("%s/unsubscribe/%s", baseURL, MakeUnsubscribeToken(email, automationID, secret))
}

// MakeUnsubscribeToken packs the address and automation scope into a signed,
// URL-safe token so the opt-out endpoint needs no stored state.
func MakeUnsubscribeToken(email string, automationID uint, secret string) string {
	payload := fmt.Sprintf("%s|%d", email, automationID)
	return base64.URLEncoding.EncodeToString([]byte(payload + "|" + signToken(payload, secret)))
}

// ParseUnsubscribeToken validates and unpacks an opt-out token. The address
// comes back casefolded so lookups against stored emails match regardless of
// how the account was captured.
func ParseUnsubscribeToken(token, secret string) (email string, automationID uint, err error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", 0, fmt.Errorf("malformed token")
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return "", 0, fmt.Errorf("malformed token")
	}
	payload := parts[0] + "|" + parts[1]
	if signToken(payload, secret) != parts[2] {
		return "", 0, fmt.Errorf("invalid token signature")
	}
	id, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("malformed token")
	}
	return strings.ToLower(parts[0]), uint(id), nil
}

func signToken(payload, secret string) string {
	sum := sha256.Sum256([]byte(secret + "|" + payload))
	return hex.EncodeToString(sum[:])[:20]
}
