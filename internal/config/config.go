// Package config provides configuration helpers for voicebridge commands.
package config

import (
	"fmt"
	"os"
)

// Defaults for the Realtime session.
const (
	DefaultModel = "gpt-4o-realtime-preview-2025-06-03"
	DefaultVoice = "verse"
	DefaultPort  = "8000"
)

// OpenAIKey returns the API key from OPENAI_API_KEY.
// Exits with a usage hint if not set.
func OpenAIKey() string {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		fmt.Fprintln(os.Stderr, "Error: OPENAI_API_KEY environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: OPENAI_API_KEY=sk-... go run ./cmd/...")
		os.Exit(1)
	}
	return key
}

// Port returns the listen port from PORT, falling back to the default.
func Port() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return DefaultPort
}

// Model returns the Realtime model from REALTIME_MODEL or the default.
func Model() string {
	if m := os.Getenv("REALTIME_MODEL"); m != "" {
		return m
	}
	return DefaultModel
}

// Voice returns the TTS voice from REALTIME_VOICE or the default.
func Voice() string {
	if v := os.Getenv("REALTIME_VOICE"); v != "" {
		return v
	}
	return DefaultVoice
}
