package session

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by a Conn once the underlying channel is gone.
// The pipeline treats it as "nobody is listening" and drops the emission.
var ErrClosed = errors.New("session: connection closed")

// ErrKind classifies a pipeline failure for the client.
type ErrKind string

const (
	// ErrKindTranscode means the compressed-audio-to-PCM conversion failed.
	ErrKindTranscode ErrKind = "transcode_failed"

	// ErrKindTranscription means the speech-to-text call failed.
	ErrKindTranscription ErrKind = "transcription_failed"

	// ErrKindCompletion means the chat engine call failed.
	ErrKindCompletion ErrKind = "completion_failed"

	// ErrKindSynthesis means the text-to-speech call failed.
	ErrKindSynthesis ErrKind = "synthesis_failed"
)

// Message returns the short human-readable text sent to the client.
func (k ErrKind) Message() string {
	switch k {
	case ErrKindTranscode, ErrKindTranscription:
		return "Error processing audio."
	case ErrKindCompletion:
		return "Error generating response."
	case ErrKindSynthesis:
		return "Error synthesizing speech."
	default:
		return "Error processing audio."
	}
}

// PipelineError is a classified failure from one pipeline run.
type PipelineError struct {
	// Kind is the failure category reported to the client.
	Kind ErrKind

	// Err is the underlying engine error.
	Err error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("session: pipeline %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Detail returns the human-readable detail string for the wire.
func (e *PipelineError) Detail() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// pipelineErr builds a PipelineError.
func pipelineErr(kind ErrKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}
