// Package config provides configuration helpers for voicebridge commands.
package config

import (
	"fmt"
	"os"
)

// Default server configuration.
const (
	DefaultPort      = "3000"
	DefaultStaticDir = "./web"
)

// Env returns the value of an environment variable or a default.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvRequired returns the value of an environment variable.
// Exits with a usage hint if not set.
func EnvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "Error: %s environment variable is required\n", key)
		fmt.Fprintf(os.Stderr, "Usage: %s=... go run ./cmd/voicebridged\n", key)
		os.Exit(1)
	}
	return v
}

// OpenAIKey returns the OpenAI API key from OPENAI_API_KEY.
// Falls back to empty, in which case the speech engines are unconfigured
// and the /api/status surface reports them as such.
func OpenAIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// Port returns the HTTP listen port from PORT or the default.
func Port() string {
	return Env("PORT", DefaultPort)
}
