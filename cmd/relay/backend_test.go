package main

import (
	"context"
	"testing"

	"github.com/fwojciec/relay/anthropic"
	"github.com/fwojciec/relay/gemini"
	"github.com/fwojciec/relay/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBackend_DefaultOllama(t *testing.T) {
	t.Parallel()
	b, err := resolveBackend(context.Background(), config{})
	require.NoError(t, err)
	assert.IsType(t, &ollama.Client{}, b)
}

func TestResolveBackend_Ollama(t *testing.T) {
	t.Parallel()
	b, err := resolveBackend(context.Background(), config{
		Backend: "ollama",
		Model:   "mistral",
		Ollama:  ollamaConfig{Host: "http://10.0.0.2:11434"},
	})
	require.NoError(t, err)
	assert.IsType(t, &ollama.Client{}, b)
}

func TestResolveBackend_Gemini(t *testing.T) {
	t.Parallel()
	b, err := resolveBackend(context.Background(), config{Backend: "gemini", Gemini: keyConfig{APIKey: "gk-test"}})
	require.NoError(t, err)
	assert.IsType(t, &gemini.Client{}, b)
}

func TestResolveBackend_Anthropic(t *testing.T) {
	t.Parallel()
	b, err := resolveBackend(context.Background(), config{Backend: "anthropic", Model: "claude-x", Anthropic: keyConfig{APIKey: "sk-test"}})
	require.NoError(t, err)
	assert.IsType(t, &anthropic.Client{}, b)
}

func TestResolveBackend_MissingKey(t *testing.T) {
	t.Parallel()
	_, err := resolveBackend(context.Background(), config{Backend: "gemini"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY not set")

	_, err = resolveBackend(context.Background(), config{Backend: "anthropic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY not set")
}

func TestResolveBackend_Unknown(t *testing.T) {
	t.Parallel()
	_, err := resolveBackend(context.Background(), config{Backend: "openai"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}
