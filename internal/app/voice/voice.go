// Package voice assembles a complete realtime voice session from config.
package voice

import (
	"fmt"

	"github.com/dkeye/rtvoice/internal/adapters/configsrc"
	"github.com/dkeye/rtvoice/internal/adapters/credential"
	"github.com/dkeye/rtvoice/internal/adapters/rtc"
	"github.com/dkeye/rtvoice/internal/adapters/signal"
	"github.com/dkeye/rtvoice/internal/app/orch"
	"github.com/dkeye/rtvoice/internal/app/playback"
	"github.com/dkeye/rtvoice/internal/config"
	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
)

// Session is a lifecycle manager together with the playback of its
// remote audio.
type Session struct {
	*orch.Orchestrator
	*playback.Player
}

// Disconnect ends the session and stops playback.
func (s *Session) Disconnect() {
	s.Orchestrator.Disconnect()
	s.Player.Stop()
}

func New(cfg *config.Config, cp core.ConfigProvider, obs core.Observer) (*Session, error) {
	var src core.MediaSource = rtc.SilenceSource{}
	if cfg.Media.CaptureFile != "" {
		src = rtc.FileSource{Path: cfg.Media.CaptureFile}
	}

	outputs := playback.DiscardOutputs
	if cfg.Media.RecordDir != "" {
		outputs = playback.OggRecorder(cfg.Media.RecordDir)
	}
	player := playback.NewPlayer(outputs)

	tr, err := rtc.NewTransport(src, player, signal.NewHTTPSignaler(cfg.NegotiationTimeout), rtc.DefaultWebRTCConfig(cfg.ICEServers...))
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	tr.Constraints = cfg.Constraints()

	o := orch.New(cp, tr, obs, cfg.SessionOptions())
	o.Timeout = cfg.NegotiationTimeout
	return &Session{Orchestrator: o, Player: player}, nil
}

// Minter builds the credential minter described by cfg.Realtime.
func Minter(cfg *config.Config) *credential.Minter {
	return &credential.Minter{
		SessionsURL:    cfg.Realtime.SessionsURL,
		WebRTCEndpoint: cfg.Realtime.WebRTCEndpoint,
		Deployment:     cfg.Realtime.Deployment,
		Voice:          cfg.Realtime.Voice,
		APIKey:         cfg.Realtime.APIKey,
	}
}

// Provider picks where a headless session gets its configuration: a config
// endpoint, a fixed ephemeral key, or minting with the API key.
func Provider(cfg *config.Config) core.ConfigProvider {
	switch {
	case cfg.ConfigURL != "":
		return configsrc.NewHTTPProvider(cfg.ConfigURL, cfg.NegotiationTimeout)
	case cfg.Realtime.EphemeralKey != "":
		return configsrc.StaticProvider{Config: domain.SessionConfig{
			SignalingEndpoint: cfg.Realtime.WebRTCEndpoint,
			Model:             cfg.Realtime.Deployment,
			Credential:        cfg.Realtime.EphemeralKey,
		}}
	default:
		return Minter(cfg)
	}
}
