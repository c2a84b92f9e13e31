// Package server exposes the voice pipeline over HTTP and websockets.
//
// Two surfaces share the same engines: a duplex /ws channel streaming
// microphone audio in and spoken replies out, and a stateless
// POST /api/converse accepting one uploaded recording.
package server

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	vlog "github.com/voicebridge/voicebridge/internal/log"
	"github.com/voicebridge/voicebridge/pkg/session"
)

// Config holds server settings.
type Config struct {
	// Port is the TCP port to listen on.
	Port string

	// StaticDir is served at / for the browser demo client.
	// Empty disables static serving.
	StaticDir string

	// Session configures every accepted connection.
	Session session.Config

	// Logger is the structured logger; defaults to the process logger.
	Logger *slog.Logger
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Port:      "8080",
		StaticDir: "./web",
		Session:   session.DefaultConfig(),
	}
}

// Server wires the engines to the HTTP and websocket surfaces.
type Server struct {
	app      *fiber.App
	cfg      Config
	engines  session.Engines
	registry *session.Registry
	log      *slog.Logger

	// ctx bounds in-flight engine calls. It outlives any single
	// connection and is cancelled only on shutdown, so a disconnect
	// never aborts a pipeline mid-call.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server around the given engines.
func New(engines session.Engines, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = vlog.L()
	}
	if cfg.Session.Logger == nil {
		cfg.Session.Logger = cfg.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		engines:  engines,
		registry: session.NewRegistry(),
		log:      cfg.Logger.With("component", "server"),
		ctx:      ctx,
		cancel:   cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicebridge",
		DisableStartupMessage: true,
		BodyLimit:             32 << 20, // uploaded recordings
	})

	// CORS for local development
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/converse", s.handleConverse)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	s.app = app
	return s
}

// App returns the underlying fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Registry returns the live session registry.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Start blocks serving until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.log.Info("listening", "port", s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// Shutdown stops accepting connections, cancels in-flight engine calls,
// and drains gracefully.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}
