package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultMyMemoryURL is the public MyMemory endpoint.
const DefaultMyMemoryURL = "https://api.mymemory.translated.net"

// MyMemoryConfig configures the MyMemory client.
type MyMemoryConfig struct {
	BaseURL string        // defaults to DefaultMyMemoryURL
	Email   string        // optional; raises the anonymous daily quota
	Timeout time.Duration // per request; defaults to 30s
}

// MyMemory translates through the free MyMemory REST API.
type MyMemory struct {
	email string
	http  *resty.Client
}

// NewMyMemory creates a MyMemory client.
func NewMyMemory(cfg MyMemoryConfig) *MyMemory {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMyMemoryURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &MyMemory{email: cfg.Email, http: c}
}

// Name implements Engine.
func (m *MyMemory) Name() string { return "mymemory" }

// EnsureModel implements Engine. MyMemory is server-side; only the codes are
// checked.
func (m *MyMemory) EnsureModel(_ context.Context, src, tgt string) error {
	_, _, err := parsePair(src, tgt)
	return err
}

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText string  `json:"translatedText"`
		Match          float64 `json:"match"`
	} `json:"responseData"`
	ResponseStatus  int    `json:"responseStatus"`
	ResponseDetails string `json:"responseDetails"`
}

// Translate implements Engine.
func (m *MyMemory) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	if _, _, err := parsePair(src, tgt); err != nil {
		return "", err
	}

	params := map[string]string{
		"q":        text,
		"langpair": src + "|" + tgt,
	}
	if m.email != "" {
		params["de"] = m.email
	}

	var out myMemoryResponse
	resp, err := m.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get("/get")
	if err != nil {
		return "", fmt.Errorf("mymemory request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("mymemory: %s", resp.Status())
	}
	if out.ResponseStatus != http.StatusOK {
		return "", fmt.Errorf("mymemory API error: %s (%d)", out.ResponseDetails, out.ResponseStatus)
	}
	return out.ResponseData.TranslatedText, nil
}
