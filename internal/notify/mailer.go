package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const mailerTimeout = 10 * time.Second

// Mailer sends a single email. Implementations are fire-and-forget from the
// dispatcher's perspective.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// RelayMailer sends mail through an HTTP relay API.
type RelayMailer struct {
	client  *http.Client
	baseURL string
	apiKey  string
	from    string
}

// NewRelayMailer creates new RelayMailer instance
func NewRelayMailer(baseURL, apiKey, from string) *RelayMailer {
	return &RelayMailer{
		client: &http.Client{
			Timeout: mailerTimeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		from:    from,
	}
}

type mailAddress struct {
	Email string `json:"email"`
}

type mailRequest struct {
	Personalizations []struct {
		To []mailAddress `json:"to"`
	} `json:"personalizations"`
	From    mailAddress `json:"from"`
	Subject string      `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

// Send posts a single message to the relay.
func (m *RelayMailer) Send(ctx context.Context, to, subject, html string) error {
	payload := mailRequest{
		From:    mailAddress{Email: m.from},
		Subject: subject,
	}
	payload.Personalizations = append(payload.Personalizations, struct {
		To []mailAddress `json:"to"`
	}{To: []mailAddress{{Email: to}}})
	payload.Content = append(payload.Content, struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{Type: "text/html", Value: html})

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v3/mail/send", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("mail relay returned status %d", resp.StatusCode)
	}

	return nil
}
