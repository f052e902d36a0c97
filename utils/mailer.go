package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// OutboundEmail is one fully rendered message handed to a Mailer.
type OutboundEmail struct {
	To         string
	ToName     string
	FromEmail  string
	FromName   string
	ReplyTo    string
	Subject    string
	BodyHTML   string
	BodyText   string
	EmailLogID uint   // correlation id embedded in provider custom args
	MessageID  string // custom Message-ID header for reply threading
}

// Mailer delivers one outbound email and returns the provider message id
// used later to correlate webhook events.
type Mailer interface {
	Send(email OutboundEmail) (string, error)
}

// NewMessageID builds an RFC 5322 Message-ID on the sending domain so
// replies thread correctly in recipients' mail clients.
func NewMessageID(fromEmail string) string {
	domain := "localhost"
	if i := strings.LastIndex(fromEmail, "@"); i >= 0 && i < len(fromEmail)-1 {
		domain = fromEmail[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}

// SendGridMailer posts to the provider's v3 mail-send endpoint.
type SendGridMailer struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewSendGridMailer builds a provider client with sane timeouts.
func NewSendGridMailer(apiKey string) *SendGridMailer {
	return &SendGridMailer{
		APIKey:  apiKey,
		BaseURL: "https://api.sendgrid.com",
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPersonalization struct {
	To         []sendGridAddress `json:"to"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridTracking struct {
	ClickTracking struct {
		Enable bool `json:"enable"`
	} `json:"click_tracking"`
	OpenTracking struct {
		Enable bool `json:"enable"`
	} `json:"open_tracking"`
}

type sendGridPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	ReplyTo          *sendGridAddress          `json:"reply_to,omitempty"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	Headers          map[string]string         `json:"headers,omitempty"`
	TrackingSettings sendGridTracking          `json:"tracking_settings"`
}

// Send posts the message to the provider. An HTTP 2xx is acceptance; the
// returned X-Message-Id becomes the webhook correlation key.
func (m *SendGridMailer) Send(email OutboundEmail) (string, error) {
	payload := sendGridPayload{
		Personalizations: []sendGridPersonalization{{
			To: []sendGridAddress{{Email: email.To, Name: email.ToName}},
			CustomArgs: map[string]string{
				"email_log_id": fmt.Sprintf("%d", email.EmailLogID),
			},
		}},
		From:    sendGridAddress{Email: email.FromEmail, Name: email.FromName},
		Subject: email.Subject,
	}
	if email.ReplyTo != "" {
		payload.ReplyTo = &sendGridAddress{Email: email.ReplyTo}
	}
	// Plain text part must precede HTML per the provider's content ordering.
	if email.BodyText != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/plain", Value: email.BodyText})
	}
	if email.BodyHTML != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/html", Value: email.BodyHTML})
	}
	if email.MessageID != "" {
		payload.Headers = map[string]string{"Message-ID": email.MessageID}
	}
	payload.TrackingSettings.ClickTracking.Enable = true
	payload.TrackingSettings.OpenTracking.Enable = true

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding send payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, m.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("provider rejected send (%d): %s", resp.StatusCode, string(detail))
	}

	messageID := resp.Header.Get("X-Message-Id")
	if messageID == "" {
		messageID = uuid.New().String()
	}
	return messageID, nil
}

// SMTPMailer is the fallback transport for deployments without a provider
// API key but with SMTP credentials. Webhook feedback is unavailable on this
// path, so logs stay at Sent.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (m *SMTPMailer) Send(email OutboundEmail) (string, error) {
	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", email.FromName, email.FromEmail))
	msg.SetHeader("To", email.To)
	if email.ReplyTo != "" {
		msg.SetHeader("Reply-To", email.ReplyTo)
	}
	msg.SetHeader("Subject", email.Subject)
	if email.MessageID != "" {
		msg.SetHeader("Message-ID", email.MessageID)
	}
	if email.BodyText != "" {
		msg.SetBody("text/plain", email.BodyText)
		if email.BodyHTML != "" {
			msg.AddAlternative("text/html", email.BodyHTML)
		}
	} else {
		msg.SetBody("text/html", email.BodyHTML)
	}

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}
	return uuid.New().String(), nil
}

// DryRunMailer performs every dispatch step except the network call. It keeps
// the state machine fully exercisable with no provider credential configured.
type DryRunMailer struct{}

func (m *DryRunMailer) Send(email OutboundEmail) (string, error) {
	return "dryrun-" + uuid.New().String(), nil
}
