package session

import (
	"github.com/voicebridge/voicebridge/pkg/chat"
	"github.com/voicebridge/voicebridge/pkg/stt"
	"github.com/voicebridge/voicebridge/pkg/transcode"
	"github.com/voicebridge/voicebridge/pkg/tts"
)

// Engines bundles the external capabilities the pipeline drives.
// Each is an opaque remote call; the session only sees its contract.
type Engines struct {
	Transcode transcode.Transcoder
	STT       stt.Provider
	Chat      chat.Provider
	TTS       tts.Provider
}

// EngineStatus reports which engines are configured, for the status surface.
type EngineStatus struct {
	Transcode bool `json:"transcode"`
	STT       bool `json:"stt"`
	Chat      bool `json:"chat"`
	TTS       bool `json:"tts"`
}

// Status reports configured (non-nil) engines.
func (e Engines) Status() EngineStatus {
	return EngineStatus{
		Transcode: e.Transcode != nil,
		STT:       e.STT != nil,
		Chat:      e.Chat != nil,
		TTS:       e.TTS != nil,
	}
}

// Ready returns true when every engine the pipeline needs is configured.
func (e Engines) Ready() bool {
	return e.Transcode != nil && e.STT != nil && e.Chat != nil && e.TTS != nil
}
