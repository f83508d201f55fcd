package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig configures the WhatsApp sender.
type TwilioConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	// From is the WhatsApp-enabled sender number in E.164.
	From       string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// TwilioWhatsApp sends WhatsApp messages through the Twilio Messages API.
type TwilioWhatsApp struct {
	endpoint   string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
	timeout    time.Duration
}

var _ WhatsAppSender = (*TwilioWhatsApp)(nil)

// TwilioError is the error document returned by the Twilio API.
type TwilioError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *TwilioError) Error() string {
	return fmt.Sprintf("twilio: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

// NewTwilioWhatsApp validates cfg and constructs the sender.
func NewTwilioWhatsApp(cfg TwilioConfig) (*TwilioWhatsApp, error) {
	sid := strings.TrimSpace(cfg.AccountSID)
	token := strings.TrimSpace(cfg.AuthToken)
	from := strings.TrimPrefix(strings.TrimSpace(cfg.From), "whatsapp:")
	if !strings.HasPrefix(from, "+") {
		from = FormatPhone(from)
	}
	if sid == "" || token == "" || from == "" {
		return nil, errors.New("twilio: account sid, auth token and sender number are required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultTwilioBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TwilioWhatsApp{
		endpoint:   fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", base, url.PathEscape(sid)),
		accountSID: sid,
		authToken:  token,
		from:       from,
		client:     client,
		timeout:    timeout,
	}, nil
}

func (t *TwilioWhatsApp) Configured() bool { return t != nil }

// SendWhatsApp posts the message and returns the Twilio message sid.
func (t *TwilioWhatsApp) SendWhatsApp(ctx context.Context, phone, body string) (string, error) {
	to := FormatPhone(phone)
	if to == "" {
		return "", ErrInvalidRecipient
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("From", "whatsapp:"+t.from)
	form.Set("To", "whatsapp:"+to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio: send: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("twilio: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &TwilioError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(payload, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return "", apiErr
	}
	var created struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &created); err != nil {
		return "", fmt.Errorf("twilio: decode response: %w", err)
	}
	return created.SID, nil
}
