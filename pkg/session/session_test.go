package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voicebridge/voicebridge/pkg/chat"
	"github.com/voicebridge/voicebridge/pkg/stt"
	"github.com/voicebridge/voicebridge/pkg/transcode"
	"github.com/voicebridge/voicebridge/pkg/tts"
)

// fakeConn records everything written to it and can simulate a dead channel.
type fakeConn struct {
	mu     sync.Mutex
	binary [][]byte
	jsons  []ControlMessage
	pings  int
	closed bool
}

func (c *fakeConn) WriteBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.binary = append(c.binary, buf)
	return nil
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	msg, ok := v.(ControlMessage)
	if !ok {
		return fmt.Errorf("unexpected message type %T", v)
	}
	c.jsons = append(c.jsons, msg)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.pings++
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) binaryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.binary)
}

func (c *fakeConn) errorMessages() []ControlMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ControlMessage
	for _, m := range c.jsons {
		if m.Type == typeError {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// workingEngines returns a full set of mock engines that succeed.
func workingEngines(transcript string) Engines {
	return Engines{
		Transcode: transcode.NewMock(),
		STT:       stt.WithText(transcript),
		Chat:      chat.NewMock(),
		TTS:       tts.NewMock(),
	}
}

// testConfig returns a session config suited to fast tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Boundary = BoundaryEveryChunk
	cfg.PingInterval = time.Hour // keep the prober out of the way
	return cfg
}

func newTestSession(t *testing.T, eng Engines, cfg Config) (*Session, *fakeConn, *Registry) {
	t.Helper()
	conn := &fakeConn{}
	reg := NewRegistry()
	s := New(context.Background(), conn, eng, reg, cfg)
	s.Open()
	t.Cleanup(s.Close)
	return s, conn, reg
}

func TestOpenSendsConnectionAck(t *testing.T) {
	s, conn, reg := newTestSession(t, workingEngines("hi"), testConfig())

	if reg.Count() != 1 {
		t.Fatalf("Expected 1 registered session, got %d", reg.Count())
	}
	if reg.Get(s.ID()) != s {
		t.Error("Registry does not resolve the session by id")
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.jsons) != 1 {
		t.Fatalf("Expected 1 control message, got %d", len(conn.jsons))
	}
	ack := conn.jsons[0]
	if ack.Type != "connection" || ack.Status != "connected" {
		t.Errorf("Unexpected ack: %+v", ack)
	}
}

func TestTurnCountAfterSuccessfulUtterances(t *testing.T) {
	const n = 3
	eng := workingEngines("hello there")
	s, conn, _ := newTestSession(t, eng, testConfig())

	for i := 0; i < n; i++ {
		s.OnChunk([]byte("chunk"))
		s.pipelines.Wait()
	}

	if got := s.Turns(); got != 1+2*n {
		t.Fatalf("Expected %d turns after %d utterances, got %d", 1+2*n, n, got)
	}

	msgs := s.History()
	if msgs[0].Role != chat.RoleSystem {
		t.Errorf("First turn must be system, got %s", msgs[0].Role)
	}
	for i := 1; i < len(msgs); i++ {
		want := chat.RoleUser
		if i%2 == 0 {
			want = chat.RoleAssistant
		}
		if msgs[i].Role != want {
			t.Errorf("Turn %d: expected %s, got %s", i, want, msgs[i].Role)
		}
	}

	if conn.binaryCount() != n {
		t.Errorf("Expected %d audio replies, got %d", n, conn.binaryCount())
	}
	if len(conn.errorMessages()) != 0 {
		t.Errorf("Expected no errors, got %v", conn.errorMessages())
	}
}

func TestWhitespaceTranscriptIsNoOp(t *testing.T) {
	eng := workingEngines("   \n\t ")
	chatMock := eng.Chat.(*chat.Mock)
	ttsMock := eng.TTS.(*tts.Mock)
	s, conn, _ := newTestSession(t, eng, testConfig())

	s.OnChunk([]byte("silence"))
	s.pipelines.Wait()

	if got := s.Turns(); got != 1 {
		t.Errorf("Expected conversation unchanged (1 turn), got %d", got)
	}
	if chatMock.CallCount("Chat") != 0 {
		t.Errorf("Chat engine must not be called for silence, got %d calls", chatMock.CallCount("Chat"))
	}
	if ttsMock.CallCount("Synthesize") != 0 {
		t.Errorf("Synthesis must not be called for silence, got %d calls", ttsMock.CallCount("Synthesize"))
	}
	if conn.binaryCount() != 0 || len(conn.errorMessages()) != 0 {
		t.Error("Silence must emit nothing")
	}
}

func TestEmptyBufferTriggerEmitsNothing(t *testing.T) {
	s, conn, _ := newTestSession(t, workingEngines("hi"), testConfig())

	s.TriggerPipeline()
	s.pipelines.Wait()

	if conn.binaryCount() != 0 || len(conn.errorMessages()) != 0 {
		t.Error("Empty-buffer trigger must emit nothing")
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle state, got %s", s.State())
	}
}

func TestSingleFlightPipeline(t *testing.T) {
	release := make(chan struct{})
	var inFlight, maxInFlight int
	var mu sync.Mutex

	eng := workingEngines("hello")
	eng.Chat = &chat.Mock{
		ChatFunc: func(ctx context.Context, req *chat.Request) (*chat.Response, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			<-release

			mu.Lock()
			inFlight--
			mu.Unlock()
			return &chat.Response{Message: chat.NewAssistantMessage("reply")}, nil
		},
	}

	s, conn, _ := newTestSession(t, eng, testConfig())

	// First chunk starts a run that parks inside the chat engine.
	s.OnChunk([]byte("first"))
	waitForState(t, s, StateRunning)

	// Two more chunks arrive while the run is in flight: buffered for the
	// next utterance, never interleaved into the current one.
	s.OnChunk([]byte("second"))
	s.OnChunk([]byte("third"))

	close(release)
	s.pipelines.Wait()
	// The queued trigger replays; wait for that run too.
	waitForState(t, s, StateIdle)
	s.pipelines.Wait()

	mu.Lock()
	if maxInFlight != 1 {
		t.Errorf("Expected at most 1 concurrent pipeline, saw %d", maxInFlight)
	}
	mu.Unlock()

	// Two runs total: "first", then "secondthird" as one utterance.
	if got := s.Turns(); got != 5 {
		t.Errorf("Expected 5 turns (system + 2 exchanges), got %d", got)
	}
	if conn.binaryCount() != 2 {
		t.Errorf("Expected 2 audio replies, got %d", conn.binaryCount())
	}
}

func TestDropWhileRunningPolicy(t *testing.T) {
	release := make(chan struct{})
	eng := workingEngines("hello")
	eng.Chat = &chat.Mock{
		ChatFunc: func(ctx context.Context, req *chat.Request) (*chat.Response, error) {
			<-release
			return &chat.Response{Message: chat.NewAssistantMessage("reply")}, nil
		},
	}

	cfg := testConfig()
	cfg.DropWhileRunning = true
	s, conn, _ := newTestSession(t, eng, cfg)

	s.OnChunk([]byte("first"))
	waitForState(t, s, StateRunning)

	// Dropped on the floor per policy.
	s.OnChunk([]byte("second"))

	close(release)
	s.pipelines.Wait()
	waitForState(t, s, StateIdle)
	s.pipelines.Wait()

	if got := s.Turns(); got != 3 {
		t.Errorf("Expected 3 turns (one exchange), got %d", got)
	}
	if conn.binaryCount() != 1 {
		t.Errorf("Expected 1 audio reply, got %d", conn.binaryCount())
	}
}

func TestFailureAtTranscodeLeavesHistoryUnchanged(t *testing.T) {
	eng := workingEngines("hello")
	eng.Transcode = transcode.WithError(errors.New("Invalid data found when processing input"))
	s, conn, _ := newTestSession(t, eng, testConfig())

	s.OnChunk([]byte("garbage"))
	s.pipelines.Wait()

	if got := s.Turns(); got != 1 {
		t.Errorf("Expected history unchanged (1 turn), got %d", got)
	}
	errs := conn.errorMessages()
	if len(errs) != 1 {
		t.Fatalf("Expected exactly 1 error message, got %d", len(errs))
	}
	if errs[0].Error != "Error processing audio." {
		t.Errorf("Unexpected error text: %q", errs[0].Error)
	}
	if errs[0].Details == "" {
		t.Error("Expected failure detail in error message")
	}
	if conn.binaryCount() != 0 {
		t.Error("Failed run must not emit audio")
	}
}

func TestFailureAtTranscriptionLeavesHistoryUnchanged(t *testing.T) {
	eng := workingEngines("hello")
	eng.STT = stt.WithError(errors.New("quota exceeded"))
	s, conn, _ := newTestSession(t, eng, testConfig())

	s.OnChunk([]byte("audio"))
	s.pipelines.Wait()

	if got := s.Turns(); got != 1 {
		t.Errorf("Expected history unchanged (1 turn), got %d", got)
	}
	errs := conn.errorMessages()
	if len(errs) != 1 {
		t.Fatalf("Expected exactly 1 error message, got %d", len(errs))
	}
}

func TestFailureAtCompletionKeepsUserTurn(t *testing.T) {
	eng := workingEngines("what time is it")
	eng.Chat = chat.WithError(errors.New("model overloaded"))
	s, conn, _ := newTestSession(t, eng, testConfig())

	s.OnChunk([]byte("audio"))
	s.pipelines.Wait()

	if got := s.Turns(); got != 2 {
		t.Fatalf("Expected user turn kept (2 turns), got %d", got)
	}
	last := s.History()[1]
	if last.Role != chat.RoleUser || last.Content != "what time is it" {
		t.Errorf("Unexpected kept turn: %s %q", last.Role, last.Content)
	}
	errs := conn.errorMessages()
	if len(errs) != 1 {
		t.Fatalf("Expected exactly 1 error message, got %d", len(errs))
	}
	if errs[0].Error != "Error generating response." {
		t.Errorf("Unexpected error text: %q", errs[0].Error)
	}
}

func TestFailureAtSynthesisKeepsBothTurns(t *testing.T) {
	eng := workingEngines("hello")
	eng.TTS = tts.WithError(errors.New("voice unavailable"))
	s, conn, _ := newTestSession(t, eng, testConfig())

	s.OnChunk([]byte("audio"))
	s.pipelines.Wait()

	if got := s.Turns(); got != 3 {
		t.Fatalf("Expected user and assistant turns kept (3 turns), got %d", got)
	}
	errs := conn.errorMessages()
	if len(errs) != 1 {
		t.Fatalf("Expected exactly 1 error message, got %d", len(errs))
	}
	if conn.binaryCount() != 0 {
		t.Error("Failed synthesis must not emit audio")
	}
}

func TestRollbackOnFailure(t *testing.T) {
	eng := workingEngines("hello")
	eng.Chat = chat.WithError(errors.New("model overloaded"))

	cfg := testConfig()
	cfg.RollbackOnFailure = true
	s, _, _ := newTestSession(t, eng, cfg)

	s.OnChunk([]byte("audio"))
	s.pipelines.Wait()

	if got := s.Turns(); got != 1 {
		t.Errorf("Expected rollback to 1 turn, got %d", got)
	}
}

func TestEmptyCompletionUsesFallbackReply(t *testing.T) {
	eng := workingEngines("hello")
	eng.Chat = &chat.Mock{
		ChatFunc: func(ctx context.Context, req *chat.Request) (*chat.Response, error) {
			return &chat.Response{Message: chat.NewAssistantMessage("")}, nil
		},
	}

	cfg := testConfig()
	s, _, _ := newTestSession(t, eng, cfg)

	s.OnChunk([]byte("audio"))
	s.pipelines.Wait()

	last := s.History()[2]
	if last.Content != cfg.FallbackReply {
		t.Errorf("Expected fallback reply, got %q", last.Content)
	}
}

func TestCloseRemovesFromRegistryAndReleasesConn(t *testing.T) {
	conn := &fakeConn{}
	reg := NewRegistry()
	s := New(context.Background(), conn, workingEngines("hi"), reg, testConfig())
	s.Open()

	if reg.Count() != 1 {
		t.Fatalf("Expected 1 session, got %d", reg.Count())
	}

	s.Close()

	if reg.Count() != 0 {
		t.Errorf("Expected empty registry after close, got %d", reg.Count())
	}
	if !conn.closed {
		t.Error("Expected connection closed")
	}
	if s.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", s.State())
	}

	// Idempotent
	s.Close()
	if reg.Count() != 0 {
		t.Error("Double close must not corrupt the registry")
	}
}

func TestCloseDuringInFlightPipeline(t *testing.T) {
	release := make(chan struct{})
	eng := workingEngines("hello")
	eng.Chat = &chat.Mock{
		ChatFunc: func(ctx context.Context, req *chat.Request) (*chat.Response, error) {
			<-release
			return &chat.Response{Message: chat.NewAssistantMessage("reply")}, nil
		},
	}

	conn := &fakeConn{}
	reg := NewRegistry()
	s := New(context.Background(), conn, eng, reg, testConfig())
	s.Open()

	s.OnChunk([]byte("audio"))
	waitForState(t, s, StateRunning)

	// Client disconnects mid-run.
	s.Close()
	if reg.Count() != 0 {
		t.Fatal("Close must deregister even with a run in flight")
	}

	// The run completes; its emit must be a silent no-op.
	close(release)
	s.pipelines.Wait()

	if conn.binaryCount() != 0 {
		t.Error("Emit after close must be a no-op")
	}
	if s.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", s.State())
	}
}

func TestChunksAfterCloseAreIgnored(t *testing.T) {
	s, conn, _ := newTestSession(t, workingEngines("hi"), testConfig())
	s.Close()

	s.OnChunk([]byte("late chunk"))
	s.pipelines.Wait()

	if conn.binaryCount() != 0 {
		t.Error("Chunks after close must not start a pipeline")
	}
}

func TestDebounceBoundaryCoalescesChunks(t *testing.T) {
	var captured []byte
	eng := workingEngines("hello")
	eng.Transcode = &transcode.Mock{
		TranscodeFunc: func(ctx context.Context, audio []byte) ([]byte, error) {
			captured = append([]byte(nil), audio...)
			return audio, nil
		},
	}

	cfg := testConfig()
	cfg.Boundary = BoundaryDebounce
	cfg.DebounceInterval = 30 * time.Millisecond
	s, conn, _ := newTestSession(t, eng, cfg)

	s.OnChunk([]byte("part-one|"))
	s.OnChunk([]byte("part-two"))

	deadline := time.Now().Add(2 * time.Second)
	for conn.binaryCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.pipelines.Wait()

	if conn.binaryCount() != 1 {
		t.Fatalf("Expected 1 reply for the coalesced utterance, got %d", conn.binaryCount())
	}
	if string(captured) != "part-one|part-two" {
		t.Errorf("Expected coalesced utterance, got %q", captured)
	}
}

func TestKeepAliveSendsPings(t *testing.T) {
	cfg := testConfig()
	cfg.PingInterval = 10 * time.Millisecond
	s, conn, _ := newTestSession(t, workingEngines("hi"), cfg)

	deadline := time.Now().Add(2 * time.Second)
	for conn.pingCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if conn.pingCount() < 2 {
		t.Fatalf("Expected at least 2 pings, got %d", conn.pingCount())
	}

	// Pong resets the missed counter.
	s.HandlePong()
	s.mu.Lock()
	missed := s.missed
	s.mu.Unlock()
	if missed != 0 {
		t.Errorf("Expected missed counter reset, got %d", missed)
	}
}

func TestConversationScenario(t *testing.T) {
	question := "what graphics card should I buy under $500"
	recommendation := "The RX 7800 XT is the best value under $500 right now."

	eng := workingEngines(question)
	eng.Chat = &chat.Mock{
		ChatFunc: func(ctx context.Context, req *chat.Request) (*chat.Response, error) {
			if len(req.Messages) != 2 {
				t.Errorf("Expected 2 messages in context, got %d", len(req.Messages))
			}
			if req.Messages[1].Content != question {
				t.Errorf("Expected question in context, got %q", req.Messages[1].Content)
			}
			return &chat.Response{Message: chat.NewAssistantMessage(recommendation)}, nil
		},
	}

	s, conn, _ := newTestSession(t, eng, testConfig())

	s.OnChunk([]byte("one audio chunk"))
	s.pipelines.Wait()

	if conn.binaryCount() != 1 {
		t.Fatalf("Expected exactly 1 binary reply, got %d", conn.binaryCount())
	}
	if got := s.Turns(); got != 3 {
		t.Fatalf("Expected 3 turns, got %d", got)
	}
	msgs := s.History()
	if msgs[1].Content != question {
		t.Errorf("Unexpected user turn: %q", msgs[1].Content)
	}
	if msgs[2].Content != recommendation {
		t.Errorf("Unexpected assistant turn: %q", msgs[2].Content)
	}
}

func TestRunOnce(t *testing.T) {
	eng := workingEngines("hello")

	audio, perr := RunOnce(context.Background(), eng, DefaultConfig(), []byte("upload"))
	if perr != nil {
		t.Fatalf("RunOnce failed: %v", perr)
	}
	if len(audio) == 0 {
		t.Error("Expected reply audio")
	}
}

func TestRunOnceTranscodeFailure(t *testing.T) {
	eng := workingEngines("hello")
	eng.Transcode = transcode.WithError(errors.New("unsupported codec"))

	_, perr := RunOnce(context.Background(), eng, DefaultConfig(), []byte("upload"))
	if perr == nil {
		t.Fatal("Expected pipeline error")
	}
	if perr.Kind != ErrKindTranscode {
		t.Errorf("Expected transcode_failed, got %s", perr.Kind)
	}
}

// waitForState polls until the session reaches the wanted state.
func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for state %s, still %s", want, s.State())
}
