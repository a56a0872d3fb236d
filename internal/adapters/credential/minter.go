// Package credential mints short-lived session credentials from the
// long-lived API key, which never leaves the server.
package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
)

var (
	ErrNoAPIKey      = errors.New("realtime API key is not configured")
	ErrNoSessionsURL = errors.New("realtime sessions URL is not configured")
	ErrMint          = errors.New("mint session credential")
)

// Minter creates a realtime session upstream and returns the SessionConfig
// carrying its ephemeral key.
type Minter struct {
	SessionsURL    string
	WebRTCEndpoint string
	Deployment     string
	Voice          string
	APIKey         string
	Client         *http.Client
}

var _ core.ConfigProvider = (*Minter)(nil)

type mintRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice,omitempty"`
}

type mintResponse struct {
	ID           string `json:"id"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

func (m *Minter) client() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Fetch implements core.ConfigProvider.
func (m *Minter) Fetch(ctx context.Context) (domain.SessionConfig, error) {
	return m.Mint(ctx)
}

func (m *Minter) Mint(ctx context.Context) (domain.SessionConfig, error) {
	var cfg domain.SessionConfig
	if m.APIKey == "" {
		return cfg, ErrNoAPIKey
	}
	if m.SessionsURL == "" {
		return cfg, ErrNoSessionsURL
	}

	body, err := json.Marshal(mintRequest{Model: m.Deployment, Voice: m.Voice})
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrMint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.SessionsURL, bytes.NewReader(body))
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrMint, err)
	}
	req.Header.Set("api-key", m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client().Do(req)
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrMint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return cfg, fmt.Errorf("%w: read response: %w", ErrMint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return cfg, fmt.Errorf("%w: %d - %s", ErrMint, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out mintResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return cfg, fmt.Errorf("%w: decode response: %w", ErrMint, err)
	}
	if out.ClientSecret.Value == "" {
		return cfg, fmt.Errorf("%w: response has no client secret", ErrMint)
	}

	log.Info().
		Str("module", "credential").
		Str("session_id", out.ID).
		Int64("expires_at", out.ClientSecret.ExpiresAt).
		Msg("minted session credential")

	return domain.SessionConfig{
		SignalingEndpoint: m.WebRTCEndpoint,
		Model:             m.Deployment,
		Credential:        out.ClientSecret.Value,
	}, nil
}
