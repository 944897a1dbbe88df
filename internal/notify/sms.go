package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMSClient posts form encoded messages to an SMS gateway
type SMSClient struct {
	URL    string
	APIKey string
	Client *http.Client
}

// NewSMSClient creates an SMS client with a bounded HTTP timeout
func NewSMSClient(url, apiKey string, timeout time.Duration) *SMSClient {
	return &SMSClient{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: timeout},
	}
}

// Send delivers one message
func (c *SMSClient) Send(ctx context.Context, from, to, message string) error {
	if c.Client == nil {
		return errors.New("sms: http client is nil")
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("sms: recipient number is required")
	}

	form := url.Values{}
	form.Set("from", from)
	form.Set("to", to)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("sms: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
