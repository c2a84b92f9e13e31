package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Default conversion parameters. 16kHz mono PCM16 is what the
// transcription engines expect.
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultTimeout    = 15 * time.Second
)

// FFmpeg implements Transcoder by shelling out to the ffmpeg binary.
type FFmpeg struct {
	binary     string
	sampleRate int
	channels   int
	timeout    time.Duration
	tempDir    string
	logger     *slog.Logger
}

// FFmpegOption configures the FFmpeg transcoder.
type FFmpegOption func(*FFmpeg)

// WithBinary overrides the ffmpeg binary path.
func WithBinary(path string) FFmpegOption {
	return func(f *FFmpeg) { f.binary = path }
}

// WithSampleRate sets the output sample rate in Hz.
func WithSampleRate(rate int) FFmpegOption {
	return func(f *FFmpeg) { f.sampleRate = rate }
}

// WithChannels sets the output channel count.
func WithChannels(n int) FFmpegOption {
	return func(f *FFmpeg) { f.channels = n }
}

// WithTimeout bounds a single conversion.
func WithTimeout(d time.Duration) FFmpegOption {
	return func(f *FFmpeg) { f.timeout = d }
}

// WithTempDir sets the directory for scratch files.
func WithTempDir(dir string) FFmpegOption {
	return func(f *FFmpeg) { f.tempDir = dir }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) FFmpegOption {
	return func(f *FFmpeg) { f.logger = l }
}

// NewFFmpeg creates a new ffmpeg-backed transcoder.
func NewFFmpeg(opts ...FFmpegOption) *FFmpeg {
	f := &FFmpeg{
		binary:     "ffmpeg",
		sampleRate: DefaultSampleRate,
		channels:   DefaultChannels,
		timeout:    DefaultTimeout,
		tempDir:    os.TempDir(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Transcode converts audio to 16kHz mono PCM16 WAV via a scratch-file
// round trip. Both scratch files are removed on every exit path.
func (f *FFmpeg) Transcode(ctx context.Context, audio []byte) ([]byte, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyInput
	}

	id := uuid.NewString()
	inPath := filepath.Join(f.tempDir, "voicebridge-"+id+".in")
	outPath := filepath.Join(f.tempDir, "voicebridge-"+id+".wav")
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	if err := os.WriteFile(inPath, audio, 0o600); err != nil {
		return nil, fmt.Errorf("transcode: write input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", inPath,
		"-ar", strconv.Itoa(f.sampleRate),
		"-ac", strconv.Itoa(f.channels),
		"-f", "wav",
		outPath,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &FilterError{Stderr: lastLine(stderr.Bytes()), Err: err}
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("transcode: read output: %w", err)
	}

	f.logger.Debug("transcoded audio",
		"in_bytes", len(audio),
		"out_bytes", len(out),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return out, nil
}

// Health reports whether the ffmpeg binary is resolvable.
func (f *FFmpeg) Health(ctx context.Context) error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return ErrBinaryNotFound
	}
	return nil
}

// lastLine extracts the final non-empty stderr line, which is where
// ffmpeg puts its actual complaint.
func lastLine(b []byte) string {
	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if line := bytes.TrimSpace(lines[i]); len(line) > 0 {
			return string(line)
		}
	}
	return ""
}

// Verify FFmpeg implements Transcoder at compile time.
var _ Transcoder = (*FFmpeg)(nil)
