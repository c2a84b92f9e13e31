package session

import (
	"encoding/json"
	"unicode/utf8"
)

// Websocket opcodes, matching RFC 6455 and the values gorilla/gofiber use.
// Declared here so the session stays free of a transport dependency.
const (
	TextMessage   = 1
	BinaryMessage = 2
)

// FrameKind tags an inbound message after boundary decoding.
type FrameKind int

const (
	// FrameBinary is a raw compressed audio chunk.
	FrameBinary FrameKind = iota

	// FrameControl is a parseable JSON control message.
	FrameControl

	// FrameMalformed is anything else: text that is not valid JSON,
	// or an unknown opcode. Never enters the utterance buffer.
	FrameMalformed
)

// Frame is an inbound message decoded once at the channel boundary.
type Frame struct {
	Kind    FrameKind
	Data    []byte         // audio bytes for FrameBinary
	Control ControlMessage // populated for FrameControl
}

// ControlMessage is the JSON shape shared by all text messages on the wire.
type ControlMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// Outbound control message types.
const (
	typeConnection = "connection"
	typeError      = "error"
)

// connectedMessage is the acknowledgement sent when a session opens.
func connectedMessage() ControlMessage {
	return ControlMessage{Type: typeConnection, Status: "connected"}
}

// errorMessage frames a pipeline failure for the client.
func errorMessage(perr *PipelineError) ControlMessage {
	return ControlMessage{
		Type:    typeError,
		Error:   perr.Kind.Message(),
		Details: perr.Detail(),
	}
}

// DecodeFrame classifies one inbound websocket message.
// Binary payloads pass through untouched; text payloads must be valid
// JSON objects to count as control messages.
func DecodeFrame(messageType int, data []byte) Frame {
	switch messageType {
	case BinaryMessage:
		return Frame{Kind: FrameBinary, Data: data}
	case TextMessage:
		if !utf8.Valid(data) {
			return Frame{Kind: FrameMalformed}
		}
		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			return Frame{Kind: FrameMalformed}
		}
		return Frame{Kind: FrameControl, Control: msg}
	default:
		return Frame{Kind: FrameMalformed}
	}
}
