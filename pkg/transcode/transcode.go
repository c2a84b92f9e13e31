// Package transcode converts compressed browser audio (webm/ogg/mp4) into
// linear PCM WAV suitable for transcription.
//
// The conversion itself is delegated to an external ffmpeg binary invoked
// per utterance. The filter is treated as a black box: bytes in, WAV bytes
// out, with temp files cleaned up on every exit path.
package transcode

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrEmptyInput is returned when the input buffer is empty.
	ErrEmptyInput = errors.New("transcode: empty input")

	// ErrBinaryNotFound is returned when the ffmpeg binary is not on PATH.
	ErrBinaryNotFound = errors.New("transcode: ffmpeg binary not found")
)

// Transcoder converts one compressed audio buffer into canonical PCM WAV.
type Transcoder interface {
	// Transcode converts audio to 16kHz mono PCM16 WAV.
	Transcode(ctx context.Context, audio []byte) ([]byte, error)

	// Health reports whether the external tool is usable.
	Health(ctx context.Context) error
}

// FilterError is returned when the external filter fails.
// Stderr carries the tool's diagnostic output for the error detail string.
type FilterError struct {
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *FilterError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("transcode: filter failed: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("transcode: filter failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *FilterError) Unwrap() error {
	return e.Err
}
