package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBrevoEndpoint = "https://api.brevo.com/v3/smtp/email"

type Recipient struct {
	Email string
	Name  string
}

type BrevoClient struct {
	apiKey      string
	senderEmail string
	senderName  string
	sandbox     bool
	endpoint    string
	client      *resty.Client
}

// NewBrevoClient returns nil when the API key or sender is missing so callers
// can treat email as disabled.
func NewBrevoClient(apiKey, senderEmail, senderName string, sandbox bool) *BrevoClient {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(senderEmail) == "" {
		return nil
	}
	if strings.TrimSpace(senderName) == "" {
		senderName = senderEmail
	}
	client := resty.New().
		SetTimeout(8*time.Second).
		SetHeader("accept", "application/json").
		SetHeader("content-type", "application/json")
	return &BrevoClient{
		apiKey:      apiKey,
		senderEmail: senderEmail,
		senderName:  senderName,
		sandbox:     sandbox,
		endpoint:    defaultBrevoEndpoint,
		client:      client,
	}
}

func (c *BrevoClient) SendTransferRequested(ctx context.Context, to Recipient, msg TransferMessage) (string, error) {
	if c == nil {
		return "", errors.New("brevo client is nil")
	}
	htmlBody, err := buildTransferRequestedHTML(msg)
	if err != nil {
		return "", err
	}
	subject := fmt.Sprintf("Transfer request - %s", msg.PatientName)
	return c.sendHTML(ctx, to, subject, htmlBody)
}

func (c *BrevoClient) SendTransferDecided(ctx context.Context, to Recipient, msg TransferMessage) (string, error) {
	if c == nil {
		return "", errors.New("brevo client is nil")
	}
	htmlBody, err := buildTransferDecidedHTML(msg)
	if err != nil {
		return "", err
	}
	subject := fmt.Sprintf("Transfer %s - %s", msg.Status, msg.PatientName)
	return c.sendHTML(ctx, to, subject, htmlBody)
}

func (c *BrevoClient) sendHTML(ctx context.Context, to Recipient, subject, htmlBody string) (string, error) {
	if strings.TrimSpace(to.Email) == "" {
		return "", errors.New("missing recipient email")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("missing subject")
	}
	if strings.TrimSpace(htmlBody) == "" {
		return "", errors.New("missing html body")
	}

	payload := brevoSendRequest{
		Sender: brevoSender{
			Name:  c.senderName,
			Email: c.senderEmail,
		},
		To: []brevoRecipient{
			{
				Email: to.Email,
				Name:  to.Name,
			},
		},
		Subject:     subject,
		HtmlContent: htmlBody,
	}
	if c.sandbox {
		payload.Headers = map[string]string{
			"X-Sib-Sandbox": "drop",
		}
	}

	var out brevoSendResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("api-key", c.apiKey).
		SetBody(payload).
		SetResult(&out).
		Post(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("brevo request failed: %w", err)
	}
	if resp.IsError() {
		body := resp.String()
		if len(body) > 4096 {
			body = body[:4096]
		}
		return "", fmt.Errorf("brevo send failed: status=%d body=%s", resp.StatusCode(), strings.TrimSpace(body))
	}
	if strings.TrimSpace(out.MessageID) == "" {
		return "", errors.New("brevo response missing messageId")
	}
	return out.MessageID, nil
}

type brevoSendRequest struct {
	Sender      brevoSender       `json:"sender"`
	To          []brevoRecipient  `json:"to"`
	Subject     string            `json:"subject"`
	HtmlContent string            `json:"htmlContent,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

type brevoSender struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type brevoRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoSendResponse struct {
	MessageID string `json:"messageId"`
}
