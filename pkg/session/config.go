package session

import (
	"errors"
	"log/slog"
	"time"
)

// BoundaryPolicy decides when buffered chunks become one utterance.
type BoundaryPolicy int

const (
	// BoundaryDebounce runs the pipeline when no chunk has arrived for
	// DebounceInterval. This is the default: the client's fixed-interval
	// chunking means a pause marks the end of an utterance.
	BoundaryDebounce BoundaryPolicy = iota

	// BoundaryEveryChunk runs the pipeline on every chunk, treating each
	// transport chunk as a whole utterance. Kept for parity with clients
	// that send one complete recording per message.
	BoundaryEveryChunk
)

// Config holds per-session behavior settings.
type Config struct {
	// SystemPrompt is the immutable persona turn seeding every conversation.
	SystemPrompt string

	// FallbackReply is spoken when the chat engine returns empty content.
	FallbackReply string

	// Boundary selects the utterance boundary policy.
	Boundary BoundaryPolicy

	// DebounceInterval is the quiet period that closes an utterance
	// under BoundaryDebounce.
	DebounceInterval time.Duration

	// DropWhileRunning drops chunks that arrive while a pipeline is in
	// flight instead of buffering them for the next run.
	DropWhileRunning bool

	// RollbackOnFailure rolls conversation turns appended during a failed
	// run back out of the history. Off by default: partial progress is kept
	// so a later utterance continues the conversation.
	RollbackOnFailure bool

	// PingInterval is the keep-alive probe period.
	PingInterval time.Duration

	// MaxMissedPongs is how many unanswered probes mark the connection
	// stale. Staleness is logged, not enforced as a disconnect.
	MaxMissedPongs int

	// MaxUtteranceBytes caps the utterance buffer. Chunks past the cap
	// are dropped to bound memory per connection.
	MaxUtteranceBytes int

	// Logger is the structured logger for session events.
	Logger *slog.Logger
}

// DefaultConfig returns sensible session defaults.
func DefaultConfig() Config {
	return Config{
		SystemPrompt: "You are a friendly voice assistant. Keep replies short and " +
			"conversational, at most a couple of sentences, and never use markdown.",
		FallbackReply:     "Sorry, I didn't catch that. Could you say it again?",
		Boundary:          BoundaryDebounce,
		DebounceInterval:  700 * time.Millisecond,
		PingInterval:      30 * time.Second,
		MaxMissedPongs:    3,
		MaxUtteranceBytes: 10 << 20, // 10MB of compressed audio
		Logger:            slog.Default(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SystemPrompt == "" {
		return errors.New("session: system prompt required")
	}
	if c.Boundary == BoundaryDebounce && c.DebounceInterval <= 0 {
		return errors.New("session: debounce interval must be positive")
	}
	if c.PingInterval <= 0 {
		return errors.New("session: ping interval must be positive")
	}
	return nil
}
