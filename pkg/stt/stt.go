// Package stt provides a unified interface for speech-to-text providers.
//
// All providers implement the Provider interface, enabling seamless switching
// without changing caller code. The pipeline uses a whole-utterance model:
// one finished audio buffer in, one transcript out.
//
// Example usage:
//
//	provider, _ := stt.NewOpenAI(
//	    stt.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Transcribe(ctx, wavBytes, "audio.wav")
//	// result.Text contains the transcript
package stt

import "context"

// Provider defines the STT provider interface.
type Provider interface {
	// Transcribe converts a complete audio buffer to text.
	// filename hints the container format to the provider (e.g. "utterance.wav").
	Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Result represents a completed transcription.
type Result struct {
	// Text is the transcribed text. May be empty for silence.
	Text string

	// Language is the detected language code, if the provider reports it.
	Language string

	// DurationSec is the audio duration as reported by the provider.
	DurationSec float64

	// LatencyMs is the request round-trip time in milliseconds.
	LatencyMs int64
}
