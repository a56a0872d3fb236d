package signal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
)

const maxAnswerSize = 1 << 20

var _ core.Signaler = (*HTTPSignaler)(nil)

// HTTPSignaler posts the local offer to the service's WebRTC endpoint and
// returns the SDP answer from the response body.
type HTTPSignaler struct {
	Client *http.Client
}

func NewHTTPSignaler(timeout time.Duration) *HTTPSignaler {
	return &HTTPSignaler{Client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSignaler) Exchange(ctx context.Context, cfg domain.SessionConfig, offerSDP string) (string, error) {
	u, err := url.Parse(cfg.SignalingEndpoint)
	if err != nil {
		return "", fmt.Errorf("%w: endpoint: %w", core.ErrSignaling, err)
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrSignaling, err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Credential)
	req.Header.Set("Content-Type", "application/sdp")

	log.Info().Str("module", "signal").Str("url", u.Redacted()).Msg("posting offer")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrSignaling, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerSize))
	if err != nil {
		return "", fmt.Errorf("%w: read answer: %w", core.ErrSignaling, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %d - %s", core.ErrSignaling, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	answer := string(body)
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: empty answer", core.ErrSignaling)
	}
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return "", fmt.Errorf("%w: malformed answer: %w", core.ErrSignaling, err)
	}
	log.Info().Str("module", "signal").Int("media", len(desc.MediaDescriptions)).Msg("answer received")
	return answer, nil
}
