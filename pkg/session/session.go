// Package session implements the per-connection voice pipeline state machine.
//
// One Session owns one live client connection: it buffers inbound audio
// chunks, decides utterance boundaries, drives the transcode → transcribe →
// complete → synthesize pipeline, and streams the reply audio back. At most
// one pipeline run is in flight per session; sessions run independently of
// each other.
package session

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicebridge/voicebridge/pkg/chat"
	"github.com/voicebridge/voicebridge/pkg/convo"
)

// State is the session lifecycle state.
type State int

const (
	// StateIdle means the session is accepting chunks with no run in flight.
	StateIdle State = iota

	// StateRunning means a pipeline run is in flight.
	StateRunning

	// StateClosed means the session is torn down. Terminal.
	StateClosed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session owns one client connection's audio-to-audio conversational loop.
type Session struct {
	id       uuid.UUID
	ctx      context.Context
	conn     Conn
	engines  Engines
	cfg      Config
	registry *Registry
	log      *slog.Logger

	mu      sync.Mutex
	state   State
	cv      *convo.Conversation
	buf     bytes.Buffer
	pending bool
	missed  int
	stale   bool

	debounce *time.Timer
	pingStop chan struct{}

	// pipelines tracks in-flight runs so teardown and tests can wait.
	pipelines sync.WaitGroup
}

// New creates a session for one accepted connection.
// ctx bounds in-flight engine calls; it should outlive the connection and
// be cancelled only on server shutdown.
func New(ctx context.Context, conn Conn, engines Engines, registry *Registry, cfg Config) *Session {
	id := uuid.New()
	return &Session{
		id:       id,
		ctx:      ctx,
		conn:     conn,
		engines:  engines,
		cfg:      cfg,
		registry: registry,
		log:      cfg.Logger.With("component", "session", "session_id", id.String()),
	}
}

// ID returns the opaque connection identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Turns returns the current conversation length, including the system turn.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cv == nil {
		return 0
	}
	return s.cv.Len()
}

// History returns a snapshot of the conversation.
func (s *Session) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cv == nil {
		return nil
	}
	return s.cv.Messages()
}

// Open initializes conversation state, registers the session, starts the
// keep-alive probe, and acknowledges the connection to the client.
func (s *Session) Open() {
	s.mu.Lock()
	s.state = StateIdle
	s.cv = convo.New(s.cfg.SystemPrompt)
	s.pingStop = make(chan struct{})
	s.mu.Unlock()

	s.registry.add(s)

	if err := s.conn.WriteJSON(connectedMessage()); err != nil {
		s.log.Warn("failed to send connection ack", "error", err)
	}

	go s.keepAlive()

	s.log.Info("session opened")
}

// HandleFrame dispatches one decoded inbound message.
// Control messages from the client are not part of the protocol in the live
// variant; they are logged and dropped. Malformed frames likewise.
func (s *Session) HandleFrame(f Frame) {
	switch f.Kind {
	case FrameBinary:
		s.OnChunk(f.Data)
	case FrameControl:
		s.log.Debug("ignoring client control message", "type", f.Control.Type)
	case FrameMalformed:
		s.log.Debug("ignoring malformed frame")
	}
}

// OnChunk appends a compressed audio chunk to the utterance buffer and
// applies the boundary policy. It never runs the pipeline inline.
func (s *Session) OnChunk(data []byte) {
	s.mu.Lock()

	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	if s.state == StateRunning && s.cfg.DropWhileRunning {
		s.mu.Unlock()
		s.log.Debug("dropping chunk while pipeline in flight", "bytes", len(data))
		return
	}
	if s.cfg.MaxUtteranceBytes > 0 && s.buf.Len()+len(data) > s.cfg.MaxUtteranceBytes {
		s.mu.Unlock()
		s.log.Warn("utterance buffer full, dropping chunk", "bytes", len(data))
		return
	}

	s.buf.Write(data)

	switch s.cfg.Boundary {
	case BoundaryEveryChunk:
		s.triggerLocked()
		s.mu.Unlock()
	case BoundaryDebounce:
		if s.debounce != nil {
			s.debounce.Stop()
		}
		s.debounce = time.AfterFunc(s.cfg.DebounceInterval, s.TriggerPipeline)
		s.mu.Unlock()
	default:
		s.mu.Unlock()
	}
}

// TriggerPipeline marks the current buffer as a finished utterance and
// starts a run if one is not already in flight.
func (s *Session) TriggerPipeline() {
	s.mu.Lock()
	s.triggerLocked()
	s.mu.Unlock()
}

// triggerLocked starts a run when idle. When a run is in flight the trigger
// is remembered and replayed once the run finishes, so chunks buffered for
// the next utterance are never interleaved into the current one.
// Caller holds s.mu.
func (s *Session) triggerLocked() {
	switch s.state {
	case StateClosed:
		return
	case StateRunning:
		s.pending = true
		return
	}
	if s.buf.Len() == 0 {
		// Spurious trigger; nothing to do and nothing is emitted.
		return
	}

	audio := make([]byte, s.buf.Len())
	copy(audio, s.buf.Bytes())
	s.buf.Reset()

	s.state = StateRunning
	s.pipelines.Add(1)
	go s.run(audio)
}

// run executes one pipeline run and emits exactly one result message.
func (s *Session) run(audio []byte) {
	defer s.pipelines.Done()
	defer s.finish()

	s.mu.Lock()
	cv := s.cv
	s.mu.Unlock()

	reply, perr := runPipeline(s.ctx, s.engines, s.cfg, cv, audio, s.log)

	switch {
	case perr != nil:
		s.emitError(perr)
	case reply != nil:
		s.emitAudio(reply)
	default:
		// Empty transcript: nothing to emit.
	}
}

// finish returns the session to idle and replays a pending trigger.
func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		s.state = StateIdle
	}
	if s.pending {
		s.pending = false
		s.triggerLocked()
	}
}

// emitAudio sends the reply as a single binary message. A closed connection
// turns the emit into a no-op; the run still completed.
func (s *Session) emitAudio(audio []byte) {
	if err := s.conn.WriteBinary(audio); err != nil {
		s.log.Debug("reply dropped, connection gone", "bytes", len(audio), "error", err)
		return
	}
	s.log.Info("reply sent", "bytes", len(audio))
}

// emitError sends a structured error message for a failed run.
func (s *Session) emitError(perr *PipelineError) {
	s.log.Warn("pipeline failed", "kind", string(perr.Kind), "error", perr.Err)
	if err := s.conn.WriteJSON(errorMessage(perr)); err != nil {
		s.log.Debug("error message dropped, connection gone", "error", err)
	}
}

// HandlePong resets the missed-probe counter.
func (s *Session) HandlePong() {
	s.mu.Lock()
	s.missed = 0
	s.stale = false
	s.mu.Unlock()
}

// keepAlive sends a liveness probe on a fixed interval so intermediary
// network infrastructure does not reap the idle connection.
func (s *Session) keepAlive() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.pingStop:
			return
		case <-ticker.C:
			if err := s.conn.Ping(); err != nil {
				s.log.Debug("keep-alive probe failed", "error", err)
				return
			}
			s.mu.Lock()
			s.missed++
			if s.missed > s.cfg.MaxMissedPongs && !s.stale {
				s.stale = true
				s.log.Warn("connection looks stale", "missed_pongs", s.missed)
			}
			s.mu.Unlock()
		}
	}
}

// Close releases the timer and channel, deregisters the session, and
// discards conversation state. Idempotent. An in-flight run is not
// aborted; its final emit no-ops against the closed connection.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if s.pingStop != nil {
		close(s.pingStop)
		s.pingStop = nil
	}
	s.mu.Unlock()

	s.registry.remove(s)
	s.conn.Close()

	s.log.Info("session closed")
}
