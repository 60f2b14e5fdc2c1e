package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/voicebridge/voicebridge/pkg/hub"
	"github.com/voicebridge/voicebridge/pkg/session"
)

// handleSession mints a short-lived Realtime credential. The upstream
// reply is forwarded verbatim, status included, so the endpoint stays a
// transparent proxy over the operator API key.
func (s *Server) handleSession(c *fiber.Ctx) error {
	if s.cfg.Minter == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "session minting not configured",
		})
	}

	raw, err := s.cfg.Minter.Mint(c.Context())
	if err != nil {
		var ue *session.UpstreamError
		if errors.As(err, &ue) {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(ue.Status).SendString(ue.Body)
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleListTools returns the dynamically created tools.
func (s *Server) handleListTools(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Registry.List())
}

// TriggerToolRequest is the request body for triggering a tool manually.
type TriggerToolRequest struct {
	Args map[string]any `json:"args"`
}

// handleTriggerTool invokes a tool by name from the dashboard.
func (s *Server) handleTriggerTool(c *fiber.Ctx) error {
	name := c.Params("name")

	var req TriggerToolRequest
	if err := c.BodyParser(&req); err != nil {
		req.Args = make(map[string]any)
	}

	result, err := s.cfg.Registry.Call(name, req.Args)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.AddEvent("tool", "manual: "+name)

	return c.JSON(fiber.Map{
		"tool":   name,
		"result": result,
	})
}

// handleRemoveTool deletes a dynamic tool from the dashboard.
func (s *Server) handleRemoveTool(c *fiber.Ctx) error {
	res := s.cfg.Registry.Remove(c.Params("name"))
	if !res.Success {
		return c.Status(fiber.StatusNotFound).JSON(res)
	}
	return c.JSON(res)
}

// handleEventsWS streams the live event feed to a dashboard client.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)
	client.Run()
}
