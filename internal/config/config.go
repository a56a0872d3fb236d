package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/protocol"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	// ConfigURL is where the headless client fetches its SessionConfig.
	// Empty means mint locally with Realtime.APIKey.
	ConfigURL          string        `mapstructure:"config_url"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	ICEServers         []string      `mapstructure:"ice_servers"`

	Realtime Realtime `mapstructure:"realtime"`
	Session  Session  `mapstructure:"session"`
	Media    Media    `mapstructure:"media"`
	Limits   Limits   `mapstructure:"limits"`
}

type Realtime struct {
	WebRTCEndpoint string `mapstructure:"webrtc_endpoint"`
	SessionsURL    string `mapstructure:"sessions_url"`
	Deployment     string `mapstructure:"deployment"`
	APIKey         string `mapstructure:"api_key"`
	Voice          string `mapstructure:"voice"`
	// EphemeralKey skips minting when set (headless client only).
	EphemeralKey string `mapstructure:"ephemeral_key"`
}

type TurnDetection struct {
	Type            string        `mapstructure:"type"`
	Threshold       float64       `mapstructure:"threshold"`
	PrefixPadding   time.Duration `mapstructure:"prefix_padding"`
	SilenceDuration time.Duration `mapstructure:"silence_duration"`
}

type Session struct {
	Instructions       string        `mapstructure:"instructions"`
	Voice              string        `mapstructure:"voice"`
	InputAudioFormat   string        `mapstructure:"input_audio_format"`
	OutputAudioFormat  string        `mapstructure:"output_audio_format"`
	TranscriptionModel string        `mapstructure:"transcription_model"`
	TurnDetection      TurnDetection `mapstructure:"turn_detection"`
}

type Media struct {
	CaptureFile      string `mapstructure:"capture_file"`
	RecordDir        string `mapstructure:"record_dir"`
	EchoCancellation bool   `mapstructure:"echo_cancellation"`
	NoiseSuppression bool   `mapstructure:"noise_suppression"`
	AutoGainControl  bool   `mapstructure:"auto_gain_control"`
}

type Limits struct {
	ConfigPerMinute int `mapstructure:"config_per_minute"`
	SendBuffer      int `mapstructure:"send_buffer"`
	MaxDropped      int `mapstructure:"max_dropped"`
}

func setDefaults(v *viper.Viper) {
	d := protocol.DefaultSessionOptions()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("config_url", "")
	v.SetDefault("negotiation_timeout", "30s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("realtime.webrtc_endpoint", "")
	v.SetDefault("realtime.sessions_url", "")
	v.SetDefault("realtime.deployment", "gpt-4o-realtime-preview")
	v.SetDefault("realtime.api_key", "")
	v.SetDefault("realtime.voice", "verse")
	v.SetDefault("realtime.ephemeral_key", "")

	v.SetDefault("session.instructions", d.Instructions)
	v.SetDefault("session.voice", d.Voice)
	v.SetDefault("session.input_audio_format", d.InputAudioFormat)
	v.SetDefault("session.output_audio_format", d.OutputAudioFormat)
	v.SetDefault("session.transcription_model", "")
	v.SetDefault("session.turn_detection.type", d.TurnDetectionType)
	v.SetDefault("session.turn_detection.threshold", d.Threshold)
	v.SetDefault("session.turn_detection.prefix_padding", d.PrefixPadding)
	v.SetDefault("session.turn_detection.silence_duration", d.SilenceDuration)

	v.SetDefault("media.capture_file", "")
	v.SetDefault("media.record_dir", "")
	v.SetDefault("media.echo_cancellation", true)
	v.SetDefault("media.noise_suppression", true)
	v.SetDefault("media.auto_gain_control", true)

	v.SetDefault("limits.config_per_minute", 10)
	v.SetDefault("limits.send_buffer", 256)
	v.SetDefault("limits.max_dropped", 64)
}

// Load reads config/config.<CONFIG_ENV>.yaml (CONFIG_ENV defaults to dev).
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env), nil)
}

// LoadFile reads fileName, then applies RTVOICE_* environment variables and
// any flags changed in fs. A missing file means defaults.
func LoadFile(fileName string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	setDefaults(v)

	v.SetEnvPrefix("RTVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("realtime.api_key", "RTVOICE_REALTIME_API_KEY", "AZURE_OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("deployment", cfg.Realtime.Deployment).
		Bool("api_key_set", cfg.Realtime.APIKey != "").
		Msg("config ready")
	return &cfg, nil
}

// SessionOptions are the tunables of the session.update sent on open.
func (c *Config) SessionOptions() protocol.SessionOptions {
	return protocol.SessionOptions{
		Instructions:       c.Session.Instructions,
		Voice:              c.Session.Voice,
		InputAudioFormat:   c.Session.InputAudioFormat,
		OutputAudioFormat:  c.Session.OutputAudioFormat,
		TranscriptionModel: c.Session.TranscriptionModel,
		TurnDetectionType:  c.Session.TurnDetection.Type,
		Threshold:          c.Session.TurnDetection.Threshold,
		PrefixPadding:      c.Session.TurnDetection.PrefixPadding,
		SilenceDuration:    c.Session.TurnDetection.SilenceDuration,
	}
}

func (c *Config) Constraints() core.Constraints {
	return core.Constraints{
		EchoCancellation: c.Media.EchoCancellation,
		NoiseSuppression: c.Media.NoiseSuppression,
		AutoGainControl:  c.Media.AutoGainControl,
	}
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
