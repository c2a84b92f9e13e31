package transcode

import (
	"context"
	"sync"
)

// Mock implements Transcoder for testing.
type Mock struct {
	// TranscodeFunc is called when Transcode is invoked.
	// If nil, echoes the input back with a WAV-ish prefix.
	TranscodeFunc func(ctx context.Context, audio []byte) ([]byte, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	count int
}

// NewMock creates a new mock transcoder that passes audio through.
func NewMock() *Mock {
	return &Mock{
		TranscodeFunc: func(ctx context.Context, audio []byte) ([]byte, error) {
			if len(audio) == 0 {
				return nil, ErrEmptyInput
			}
			out := append([]byte("RIFF"), audio...)
			return out, nil
		},
	}
}

// WithError returns a mock that always fails with the given error.
func WithError(err error) *Mock {
	return &Mock{
		TranscodeFunc: func(ctx context.Context, audio []byte) ([]byte, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// Transcode calls TranscodeFunc and counts the call.
func (m *Mock) Transcode(ctx context.Context, audio []byte) ([]byte, error) {
	m.mu.Lock()
	m.count++
	m.mu.Unlock()
	if m.TranscodeFunc != nil {
		return m.TranscodeFunc(ctx, audio)
	}
	return audio, nil
}

// Health calls HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// CallCount returns how many times Transcode was invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Verify Mock implements Transcoder at compile time.
var _ Transcoder = (*Mock)(nil)
