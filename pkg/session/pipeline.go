package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voicebridge/voicebridge/pkg/chat"
	"github.com/voicebridge/voicebridge/pkg/convo"
)

// utteranceFilename hints the audio container to the transcription engine.
// The transcode filter always produces WAV.
const utteranceFilename = "utterance.wav"

// runPipeline executes one utterance through transcode → transcribe →
// complete → synthesize against the given conversation.
//
// Returns (audio, nil) on success, (nil, nil) when the transcript was
// empty or whitespace (a silent no-op that must not emit anything), and
// (nil, *PipelineError) on failure. History mutations made before the
// failing step stay in place unless cfg.RollbackOnFailure is set.
func runPipeline(ctx context.Context, eng Engines, cfg Config, cv *convo.Conversation, audio []byte, log *slog.Logger) ([]byte, *PipelineError) {
	// 1. Convert the compressed utterance to canonical PCM. The utterance
	// is already consumed from the buffer; a failure here loses it.
	pcm, err := eng.Transcode.Transcode(ctx, audio)
	if err != nil {
		return nil, pipelineErr(ErrKindTranscode, err)
	}

	// 2. Speech to text.
	tr, err := eng.STT.Transcribe(ctx, pcm, utteranceFilename)
	if err != nil {
		return nil, pipelineErr(ErrKindTranscription, err)
	}

	// 3. Silence produces no turn, no completion call, no emission.
	transcript := strings.TrimSpace(tr.Text)
	if transcript == "" {
		log.Debug("empty transcript, skipping turn")
		return nil, nil
	}

	mark := cv.Mark()
	cv.AddUser(transcript)
	log.Info("user turn", "chars", len(transcript))

	// 4. Chat completion over the full ordered history.
	resp, err := eng.Chat.Chat(ctx, &chat.Request{Messages: cv.Messages()})
	if err != nil {
		if cfg.RollbackOnFailure {
			cv.Rollback(mark)
		}
		return nil, pipelineErr(ErrKindCompletion, err)
	}

	reply := strings.TrimSpace(resp.Message.Content)
	if reply == "" {
		reply = cfg.FallbackReply
	}
	cv.AddAssistant(reply)
	log.Info("assistant turn", "chars", len(reply))

	// 5. Text to speech. On failure the assistant turn stays in history
	// (unless rollback is configured); the text conversation continues
	// even though this reply produced no audio.
	synth, err := eng.TTS.Synthesize(ctx, reply)
	if err != nil {
		if cfg.RollbackOnFailure {
			cv.Rollback(mark)
		}
		return nil, pipelineErr(ErrKindSynthesis, err)
	}

	return synth.Audio, nil
}

// RunOnce executes the pipeline for the request/response variant: a fresh
// one-shot conversation holding only the system turn and this utterance.
func RunOnce(ctx context.Context, eng Engines, cfg Config, audio []byte) ([]byte, *PipelineError) {
	cv := convo.New(cfg.SystemPrompt)
	return runPipeline(ctx, eng, cfg, cv, audio, cfg.Logger)
}
