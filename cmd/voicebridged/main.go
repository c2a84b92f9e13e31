// voicebridged: voice conversation server.
// Streams browser microphone audio in over a websocket, runs it through
// transcription and chat completion, and streams spoken replies back.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/voicebridge/voicebridge/internal/config"
	vlog "github.com/voicebridge/voicebridge/internal/log"
	"github.com/voicebridge/voicebridge/pkg/chat"
	"github.com/voicebridge/voicebridge/pkg/server"
	"github.com/voicebridge/voicebridge/pkg/session"
	"github.com/voicebridge/voicebridge/pkg/stt"
	"github.com/voicebridge/voicebridge/pkg/transcode"
	"github.com/voicebridge/voicebridge/pkg/tts"
)

var (
	port      = flag.String("port", "", "HTTP listen port (overrides PORT env var)")
	staticDir = flag.String("static", config.DefaultStaticDir, "Directory served at / for the browser client")
	chatModel = flag.String("chat-model", "", "Chat completion model")
	voice     = flag.String("voice", "", "Synthesis voice")
	ffmpegBin = flag.String("ffmpeg", "", "Path to the ffmpeg binary (defaults to $PATH lookup)")
	logLevel  = flag.String("log-level", config.Env("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()
	vlog.Init(*logLevel)

	apiKey := config.EnvRequired("OPENAI_API_KEY")

	eng, err := buildEngines(apiKey)
	if err != nil {
		vlog.Error("engine setup failed", "error", err)
		os.Exit(1)
	}
	defer eng.STT.Close()
	defer eng.Chat.Close()
	defer eng.TTS.Close()

	cfg := server.DefaultConfig()
	cfg.Port = config.Port()
	if *port != "" {
		cfg.Port = *port
	}
	cfg.StaticDir = *staticDir
	cfg.Logger = vlog.L()

	srv := server.New(eng, cfg)

	// Serve until interrupted, then drain.
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		vlog.Info("shutting down", "signal", sig.String())
		if err := srv.Shutdown(); err != nil {
			vlog.Error("shutdown failed", "error", err)
		}
	case err := <-errc:
		if err != nil {
			vlog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}
}

// buildEngines wires the four pipeline engines from flags and environment.
func buildEngines(apiKey string) (session.Engines, error) {
	var tcOpts []transcode.FFmpegOption
	if *ffmpegBin != "" {
		tcOpts = append(tcOpts, transcode.WithBinary(*ffmpegBin))
	}

	var sttOpts []stt.Option
	sttOpts = append(sttOpts, stt.WithAPIKey(apiKey))
	transcriber, err := stt.NewOpenAI(sttOpts...)
	if err != nil {
		return session.Engines{}, err
	}

	chatOpts := []chat.Option{chat.WithAPIKey(apiKey)}
	if *chatModel != "" {
		chatOpts = append(chatOpts, chat.WithModel(*chatModel))
	}
	completer, err := chat.NewClient(chatOpts...)
	if err != nil {
		return session.Engines{}, err
	}

	ttsOpts := []tts.Option{tts.WithAPIKey(apiKey)}
	if *voice != "" {
		ttsOpts = append(ttsOpts, tts.WithVoice(*voice))
	}
	synth, err := tts.NewOpenAI(ttsOpts...)
	if err != nil {
		return session.Engines{}, err
	}

	return session.Engines{
		Transcode: transcode.NewFFmpeg(tcOpts...),
		STT:       transcriber,
		Chat:      completer,
		TTS:       synth,
	}, nil
}
