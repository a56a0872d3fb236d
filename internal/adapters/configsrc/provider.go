// Package configsrc supplies the SessionConfig used by Initialize.
package configsrc

import (
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

// HTTPProvider fetches the session configuration from a local endpoint that
// answers GET with {webrtcEndpoint, deployment, ephemeralKey}, or with
// {error} and a non-2xx status.
type HTTPProvider struct {
	URL    string
	Client *http.Client
}

var _ core.ConfigProvider = (*HTTPProvider)(nil)

func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProvider) Fetch(ctx context.Context) (domain.SessionConfig, error) {
	var cfg domain.SessionConfig
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return cfg, fmt.Errorf("build config request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return cfg, fmt.Errorf("fetch config: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return cfg, errors.New(e.Error)
		}
		return cfg, fmt.Errorf("failed to fetch configuration: %s", resp.Status)
	}
	if err := json.Unmarshal(body, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	log.Info().Str("module", "configsrc").Str("deployment", cfg.Model).Msg("configuration loaded")
	return cfg, nil
}

// StaticProvider returns a fixed configuration.
type StaticProvider struct {
	Config domain.SessionConfig
}

func (p StaticProvider) Fetch(ctx context.Context) (domain.SessionConfig, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionConfig{}, err
	}
	return p.Config, nil
}
