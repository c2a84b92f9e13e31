package session

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name        string
		messageType int
		data        []byte
		wantKind    FrameKind
	}{
		{
			name:        "binary audio chunk",
			messageType: BinaryMessage,
			data:        []byte{0x1a, 0x45, 0xdf, 0xa3},
			wantKind:    FrameBinary,
		},
		{
			name:        "empty binary chunk",
			messageType: BinaryMessage,
			data:        nil,
			wantKind:    FrameBinary,
		},
		{
			name:        "valid control message",
			messageType: TextMessage,
			data:        []byte(`{"type":"ping"}`),
			wantKind:    FrameControl,
		},
		{
			name:        "text that is not json",
			messageType: TextMessage,
			data:        []byte("hello there"),
			wantKind:    FrameMalformed,
		},
		{
			name:        "json without a type",
			messageType: TextMessage,
			data:        []byte(`{"status":"ok"}`),
			wantKind:    FrameMalformed,
		},
		{
			name:        "invalid utf-8 text",
			messageType: TextMessage,
			data:        []byte{0xff, 0xfe, 0xfd},
			wantKind:    FrameMalformed,
		},
		{
			name:        "unknown opcode",
			messageType: 9,
			data:        []byte("ping"),
			wantKind:    FrameMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := DecodeFrame(tt.messageType, tt.data)
			if f.Kind != tt.wantKind {
				t.Errorf("Expected kind %d, got %d", tt.wantKind, f.Kind)
			}
		})
	}
}

func TestDecodeFrameBinaryPassthrough(t *testing.T) {
	data := []byte("opus frame bytes")
	f := DecodeFrame(BinaryMessage, data)
	if string(f.Data) != string(data) {
		t.Errorf("Binary payload must pass through untouched, got %q", f.Data)
	}
}

func TestDecodeFrameControlFields(t *testing.T) {
	f := DecodeFrame(TextMessage, []byte(`{"type":"connection","status":"connected"}`))
	if f.Kind != FrameControl {
		t.Fatalf("Expected control frame, got %d", f.Kind)
	}
	if f.Control.Type != "connection" || f.Control.Status != "connected" {
		t.Errorf("Unexpected control fields: %+v", f.Control)
	}
}

func TestErrorMessageWireShape(t *testing.T) {
	perr := pipelineErr(ErrKindTranscode, errors.New("Invalid data found when processing input"))
	raw, err := json.Marshal(errorMessage(perr))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got["type"] != "error" {
		t.Errorf("Expected type error, got %q", got["type"])
	}
	if got["error"] != "Error processing audio." {
		t.Errorf("Unexpected error text: %q", got["error"])
	}
	if got["details"] != "Invalid data found when processing input" {
		t.Errorf("Unexpected details: %q", got["details"])
	}
	if _, ok := got["status"]; ok {
		t.Error("Empty status must be omitted from the wire")
	}
}
