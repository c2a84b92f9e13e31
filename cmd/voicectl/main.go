// voicectl: command-line client for a voicebridge server.
// Streams a local recording over the websocket in fixed-size chunks,
// the way the browser client streams microphone audio, and saves the
// spoken reply next to the input.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/voicebridge/internal/config"
	vlog "github.com/voicebridge/voicebridge/internal/log"
)

var (
	serverURL = flag.String("server", config.Env("VOICEBRIDGE_URL", "ws://localhost:3000/ws"), "Websocket endpoint")
	chunkSize = flag.Int("chunk-size", 16*1024, "Bytes per streamed chunk")
	chunkGap  = flag.Duration("chunk-gap", 250*time.Millisecond, "Delay between chunks, imitating live capture")
	output    = flag.String("out", "reply.mp3", "File to write the spoken reply to")
	timeout   = flag.Duration("timeout", 60*time.Second, "How long to wait for the reply")
	logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

// controlMessage mirrors the server's text-frame JSON shape.
type controlMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

func main() {
	flag.Parse()
	vlog.Init(*logLevel)

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: voicectl [flags] <recording>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	audio, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		vlog.Error("failed to read recording", "error", err)
		os.Exit(1)
	}

	if err := run(audio); err != nil {
		vlog.Error("conversation failed", "error", err)
		os.Exit(1)
	}
}

func run(audio []byte) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.Dial(*serverURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", *serverURL, err)
	}
	defer ws.Close()

	if err := awaitAck(ws); err != nil {
		return err
	}
	vlog.Info("connected", "server", *serverURL)

	// Stream the recording the way live capture would: a chunk at a
	// time with a gap well inside the server's utterance debounce.
	for off := 0; off < len(audio); off += *chunkSize {
		end := off + *chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, audio[off:end]); err != nil {
			return fmt.Errorf("failed to send chunk: %w", err)
		}
		vlog.Debug("chunk sent", "bytes", end-off)
		time.Sleep(*chunkGap)
	}
	vlog.Info("recording streamed", "bytes", len(audio))

	reply, err := awaitReply(ws)
	if err != nil {
		return err
	}

	if err := os.WriteFile(*output, reply, 0o644); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	vlog.Info("reply saved", "file", *output, "bytes", len(reply))
	return nil
}

// awaitAck reads the connection acknowledgement the server sends on open.
func awaitAck(ws *websocket.Conn) error {
	ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("no connection ack: %w", err)
	}
	if mt != websocket.TextMessage {
		return fmt.Errorf("unexpected first message type %d", mt)
	}
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("malformed ack: %w", err)
	}
	if msg.Type != "connection" || msg.Status != "connected" {
		return fmt.Errorf("unexpected ack: %s", data)
	}
	return nil
}

// awaitReply reads until the spoken reply arrives as one binary message.
// A structured error from the server ends the wait.
func awaitReply(ws *websocket.Conn) ([]byte, error) {
	deadline := time.Now().Add(*timeout)
	ws.SetReadDeadline(deadline)

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("waiting for reply: %w", err)
		}
		switch mt {
		case websocket.BinaryMessage:
			return data, nil
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				vlog.Debug("ignoring unparseable text message", "data", string(data))
				continue
			}
			if msg.Type == "error" {
				return nil, fmt.Errorf("server error: %s (%s)", msg.Error, msg.Details)
			}
			vlog.Debug("ignoring control message", "type", msg.Type)
		}
	}
}
