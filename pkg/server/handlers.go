package server

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/voicebridge/voicebridge/pkg/session"
)

// handleStatus reports engine wiring and active session count.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := s.engines.Status()
	status := "ok"
	if !s.engines.Ready() {
		status = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":   status,
		"engines":  st,
		"sessions": s.registry.Count(),
	})
}

// handleConverse is the stateless variant: one uploaded recording in,
// one synthesized reply out. Each request gets a fresh conversation.
func (s *Server) handleConverse(c *fiber.Ctx) error {
	fh, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "no_audio_uploaded",
			"details": "multipart field 'audio' is required",
		})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "no_audio_uploaded",
			"details": err.Error(),
		})
	}
	audio, err := io.ReadAll(f)
	f.Close()
	if err != nil || len(audio) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "no_audio_uploaded",
			"details": "empty upload",
		})
	}

	reply, perr := session.RunOnce(s.ctx, s.engines, s.cfg.Session, audio)
	if perr != nil {
		s.log.Warn("converse failed", "kind", string(perr.Kind), "error", perr.Err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   string(perr.Kind),
			"details": perr.Detail(),
		})
	}
	if reply == nil {
		// The recording transcribed to nothing.
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "no_speech_detected",
			"details": "transcript was empty",
		})
	}

	c.Set("Content-Type", "audio/mpeg")
	return c.Send(reply)
}

// handleWS owns one live connection for its whole lifetime: open a
// session, pump inbound frames into it, and tear it down on any read
// error. Replies are written by the session's pipeline goroutine through
// the write-locked adapter, never from this loop.
func (s *Server) handleWS(c *websocket.Conn) {
	conn := newWSConn(c)
	sess := session.New(s.ctx, conn, s.engines, s.registry, s.cfg.Session)
	sess.Open()
	defer sess.Close()

	c.SetPongHandler(func(string) error {
		sess.HandlePong()
		return nil
	})

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			// Normal closes and network errors end the session the
			// same way; the session logs its own teardown.
			return
		}
		sess.HandleFrame(session.DecodeFrame(mt, data))
	}
}
