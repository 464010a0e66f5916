package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/discord"
	"golang.org/x/time/rate"
)

const defaultConfigPath = "relay.toml"

// config is the on-disk configuration. Secrets may be left empty and
// supplied through the environment instead.
type config struct {
	Backend      string `toml:"backend"` // ollama, gemini or anthropic
	Model        string `toml:"model"`
	SystemPrompt string `toml:"system_prompt"`
	Mode         string `toml:"mode"` // stream or block

	History   historyConfig `toml:"history"`
	Relay     relayConfig   `toml:"relay"`
	Discord   discordConfig `toml:"discord"`
	Ollama    ollamaConfig  `toml:"ollama"`
	Gemini    keyConfig     `toml:"gemini"`
	Anthropic keyConfig     `toml:"anthropic"`
}

type historyConfig struct {
	Dir      string `toml:"dir"`
	Capacity int    `toml:"capacity"`
}

type relayConfig struct {
	ChunkLength         int           `toml:"chunk_length"`
	HardLimit           int           `toml:"hard_limit"`
	MinEditLength       int           `toml:"min_edit_length"`
	LengthUnit          string        `toml:"length_unit"` // runes, bytes or graphemes
	Placeholder         string        `toml:"placeholder"`
	RolloverPlaceholder string        `toml:"rollover_placeholder"`
	ReleaseTimeout      time.Duration `toml:"release_timeout"`
}

type discordConfig struct {
	Token        string        `toml:"token"`
	EditInterval time.Duration `toml:"edit_interval"`
	EditBurst    int           `toml:"edit_burst"`
}

type ollamaConfig struct {
	Host string `toml:"host"`
}

type keyConfig struct {
	APIKey string `toml:"api_key"`
}

// environment holds the variables main reads from the process environment.
type environment struct {
	DiscordToken    string
	OllamaHost      string
	GeminiAPIKey    string
	AnthropicAPIKey string
}

func defaultConfig() config {
	return config{
		Backend: "ollama",
		Mode:    "stream",
		History: historyConfig{
			Dir:      "history",
			Capacity: relay.DefaultHistoryCapacity,
		},
		Discord: discordConfig{
			EditInterval: discord.DefaultEditInterval,
			EditBurst:    discord.DefaultEditBurst,
		},
	}
}

// loadConfig reads path over the defaults and applies env. A missing file is
// only an error when the path was given explicitly.
func loadConfig(path string, explicit bool, env environment) (config, error) {
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return config{}, fmt.Errorf("load config: %w", err)
		}
	}
	if env.DiscordToken != "" {
		cfg.Discord.Token = env.DiscordToken
	}
	if env.OllamaHost != "" {
		cfg.Ollama.Host = env.OllamaHost
	}
	if env.GeminiAPIKey != "" {
		cfg.Gemini.APIKey = env.GeminiAPIKey
	}
	if env.AnthropicAPIKey != "" {
		cfg.Anthropic.APIKey = env.AnthropicAPIKey
	}
	return cfg, nil
}

// relayOptions converts the relay section into relay options. Zero values
// keep the relay defaults.
func (c config) relayOptions() ([]relay.Option, error) {
	var opts []relay.Option
	r := c.Relay
	if r.ChunkLength < 0 || r.HardLimit < 0 || r.MinEditLength < 0 {
		return nil, fmt.Errorf("relay limits must be non-negative: %w", relay.ErrValidation)
	}
	if r.ChunkLength > 0 {
		opts = append(opts, relay.WithChunkLength(r.ChunkLength))
	}
	if r.HardLimit > 0 {
		opts = append(opts, relay.WithHardLimit(r.HardLimit))
	}
	if r.MinEditLength > 0 {
		opts = append(opts, relay.WithMinEditLength(r.MinEditLength))
	}
	if r.LengthUnit != "" {
		f, err := relay.ParseLenFunc(r.LengthUnit)
		if err != nil {
			return nil, err
		}
		opts = append(opts, relay.WithLenFunc(f))
	}
	if r.Placeholder != "" || r.RolloverPlaceholder != "" {
		initial, rollover := relay.DefaultPlaceholder, relay.DefaultRolloverPlaceholder
		if r.Placeholder != "" {
			initial = r.Placeholder
		}
		if r.RolloverPlaceholder != "" {
			rollover = r.RolloverPlaceholder
		}
		opts = append(opts, relay.WithPlaceholders(initial, rollover))
	}
	if r.ReleaseTimeout > 0 {
		opts = append(opts, relay.WithReleaseTimeout(r.ReleaseTimeout))
	}
	return opts, nil
}

func (c config) mode() (relay.Mode, error) {
	switch c.Mode {
	case "", "stream":
		return relay.ModeStream, nil
	case "block":
		return relay.ModeBlock, nil
	default:
		return 0, fmt.Errorf("unknown mode %q: %w", c.Mode, relay.ErrValidation)
	}
}

// editLimiter returns the Discord edit limiter. A non-positive interval
// disables pacing.
func (c config) editLimiter() *rate.Limiter {
	if c.Discord.EditInterval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(c.Discord.EditInterval), max(c.Discord.EditBurst, 1))
}
