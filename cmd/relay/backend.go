package main

import (
	"context"
	"fmt"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/anthropic"
	"github.com/fwojciec/relay/gemini"
	"github.com/fwojciec/relay/ollama"
)

// resolveBackend constructs the backend named in cfg. Secrets come from cfg,
// which already carries the environment overrides.
func resolveBackend(ctx context.Context, cfg config) (relay.Backend, error) {
	switch cfg.Backend {
	case "", "ollama":
		var opts []ollama.Option
		if cfg.Ollama.Host != "" {
			opts = append(opts, ollama.WithBaseURL(cfg.Ollama.Host))
		}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Model))
		}
		return ollama.New(opts...), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not set (use the environment or [gemini] api_key)")
		}
		var opts []gemini.Option
		if cfg.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Model))
		}
		client, err := gemini.New(ctx, cfg.Gemini.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		return client, nil
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set (use the environment or [anthropic] api_key)")
		}
		var opts []anthropic.Option
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		return anthropic.New(cfg.Anthropic.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown backend %q: must be \"ollama\", \"gemini\" or \"anthropic\"", cfg.Backend)
	}
}
