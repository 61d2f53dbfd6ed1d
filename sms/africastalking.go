// Package sms provides phoneauth.SMSGateway implementations.
package sms

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

const (
	africasTalkingURL        = "https://api.africastalking.com/version1/messaging"
	africasTalkingSandboxURL = "https://api.sandbox.africastalking.com/version1/messaging"
)

// ErrRejected is returned when the provider accepted the request but did not
// queue the message.
var ErrRejected = errors.New("sms: message rejected")

// AfricasTalkingConfig configures [AfricasTalking].
type AfricasTalkingConfig struct {
	Username string
	APIKey   string
	// SenderID is the optional alphanumeric sender. Empty uses the account default.
	SenderID string
	Sandbox  bool
	// Endpoint overrides the API URL.
	Endpoint string
	Timeout  time.Duration
}

// AfricasTalking sends messages through the Africa's Talking bulk SMS API.
type AfricasTalking struct {
	config     AfricasTalkingConfig
	endpoint   string
	httpClient *http.Client
}

// NewAfricasTalking returns a gateway for cfg. Username and APIKey are
// required.
func NewAfricasTalking(cfg AfricasTalkingConfig) (*AfricasTalking, error) {
	if cfg.Username == "" || cfg.APIKey == "" {
		return nil, errors.New("sms: africastalking username and api key are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	endpoint := cfg.Endpoint
	switch {
	case endpoint != "":
	case cfg.Sandbox:
		endpoint = africasTalkingSandboxURL
	default:
		endpoint = africasTalkingURL
	}

	return &AfricasTalking{
		config:     cfg,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type atResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			StatusCode int    `json:"statusCode"`
			Number     string `json:"number"`
			Status     string `json:"status"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// Send delivers message to one E.164 number.
func (g *AfricasTalking) Send(ctx context.Context, to, message string) error {
	form := url.Values{
		"username": {g.config.Username},
		"to":       {to},
		"message":  {message},
	}
	if g.config.SenderID != "" {
		form.Set("from", g.config.SenderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sms: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", g.config.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result atResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("sms: decoding response: %w", err)
	}
	if len(result.SMSMessageData.Recipients) == 0 {
		return fmt.Errorf("%w: %s", ErrRejected, result.SMSMessageData.Message)
	}

	// 100 processed, 101 sent, 102 queued.
	for _, r := range result.SMSMessageData.Recipients {
		if r.StatusCode < 100 || r.StatusCode > 102 {
			return fmt.Errorf("%w: %s (%d)", ErrRejected, r.Status, r.StatusCode)
		}
	}
	return nil
}
