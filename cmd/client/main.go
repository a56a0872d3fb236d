package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/rtvoice/internal/app/session"
	"github.com/dkeye/rtvoice/internal/app/voice"
	"github.com/dkeye/rtvoice/internal/config"
	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
)

// logObserver prints status changes and finished messages. ended is closed
// on the first terminal status.
type logObserver struct {
	ended chan struct{}
	once  sync.Once
}

func (o *logObserver) OnStatus(s domain.Status) {
	if s.State.Terminal() {
		o.once.Do(func() { close(o.ended) })
	}
	log.Info().Str("module", "client").Str("state", s.State.String()).Str("turn", s.Turn.String()).Str("detail", s.Detail).Msg(s.Text)
}

func (o *logObserver) OnMessage(m domain.Message) {
	if m.Mode != domain.ModeComplete {
		return
	}
	log.Info().Str("module", "client").Str("role", string(m.Role)).Msg(m.Content)
}

type fanout []core.Observer

func (f fanout) OnStatus(s domain.Status) {
	for _, o := range f {
		o.OnStatus(s)
	}
}

func (f fanout) OnMessage(m domain.Message) {
	for _, o := range f {
		o.OnMessage(m)
	}
}

func main() {
	fs := pflag.NewFlagSet("rtvoice-client", pflag.ExitOnError)
	file := fs.String("config", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	fs.String("config_url", "", "fetch the session config from this endpoint")
	fs.String("media.capture_file", "", "Ogg/Opus file streamed as microphone input")
	fs.String("media.record_dir", "", "record the assistant's audio into this directory")
	fs.String("log_level", "info", "log level")
	_ = fs.Parse(os.Args[1:])

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *file == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		*file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	cfg, err := config.LoadFile(*file, fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rec := session.NewRecorder()
	obs := &logObserver{ended: make(chan struct{})}
	s, err := voice.New(cfg, voice.Provider(cfg), fanout{rec, obs})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build session")
	}

	if err := s.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("initialize failed")
	}
	if err := s.Connect(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Fatal().Err(err).Msg("connect failed")
	}

	select {
	case <-ctx.Done():
	case <-obs.ended:
		log.Warn().Err(s.Err()).Msg("session ended by the service")
	}
	s.Disconnect()
	log.Info().Int("messages", len(rec.Messages(domain.RoleUser, domain.RoleAssistant))).Msg("session ended")
}
