// Package whatsapp sends text messages through the WhatsApp Cloud (Graph)
// API and carries the webhook credentials the inbound pipeline verifies
// against.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	phonex "github.com/relayne/crmagent/pkg/phone"
)

const defaultGraphURL = "https://graph.facebook.com/v19.0"

type Config struct {
	APIToken      string        `envconfig:"API_TOKEN"`
	PhoneNumberID string        `split_words:"true"`
	VerifyToken   string        `split_words:"true"`
	AppSecret     string        `split_words:"true"`
	GraphURL      string        `split_words:"true" default:"https://graph.facebook.com/v19.0"`
	Timeout       time.Duration `split_words:"true" default:"15s"`
}

type Client struct {
	baseURL       string
	apiToken      string
	phoneNumberID string
	httpClient    *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("whatsapp api token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsapp phone number id is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.GraphURL), "/")
	if baseURL == "" {
		baseURL = defaultGraphURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := &Client{
		baseURL:       baseURL,
		apiToken:      strings.TrimSpace(cfg.APIToken),
		phoneNumberID: strings.TrimSpace(cfg.PhoneNumberID),
		httpClient:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func MustNew(cfg Config, opts ...Option) *Client {
	client, err := NewClient(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return client
}

type textPayload struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText delivers a plain text message to the given wa_id.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	payload := textPayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
	}
	payload.Text.Body = text

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send to %s: %w", phonex.Mask(to), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("whatsapp: send to %s: status %d: %s", phonex.Mask(to), resp.StatusCode, detail)
	}

	log.Debug().Str("to", phonex.Mask(to)).Msg("whatsapp message delivered")
	return nil
}
