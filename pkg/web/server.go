// Package web provides the voicebridge HTTP surface: the short-lived
// session credential endpoint, the static browser demo, and an optional
// tool dashboard when a registry is attached.
package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/voicebridge/voicebridge/internal/log"
	"github.com/voicebridge/voicebridge/pkg/hub"
	"github.com/voicebridge/voicebridge/pkg/session"
	"github.com/voicebridge/voicebridge/pkg/tools"
)

// Config configures the web server.
type Config struct {
	// Port to listen on.
	Port string

	// Minter issues session credentials on GET /session.
	Minter *session.Minter

	// Registry, when set, enables the tool dashboard API.
	Registry *tools.Registry

	// StaticDir serves the browser demo when non-empty.
	StaticDir string
}

// Event is one entry on the dashboard's live feed.
type Event struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, tool, speech, error
	Message string `json:"message"`
}

// Server is the voicebridge HTTP server.
type Server struct {
	app *fiber.App
	cfg Config

	// Live event fan-out for dashboard clients.
	events *hub.Hub
}

// NewServer creates the server and registers its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		events: hub.New("events"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicebridge",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	// The browser demo may be served from any origin.
	app.Use(cors.New())

	app.Get("/session", s.handleSession)
	app.Get("/healthz", s.handleHealth)

	if cfg.Registry != nil {
		api := app.Group("/api")
		api.Get("/tools", s.handleListTools)
		api.Post("/tools/:name", s.handleTriggerTool)
		api.Delete("/tools/:name", s.handleRemoveTool)

		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/events", websocket.New(s.handleEventsWS))
	}

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// Start starts the web server, blocking.
func (s *Server) Start() error {
	go s.events.Run()
	log.Info("web server listening", "port", s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// StartAsync starts the web server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("web server", "err", err)
		}
	}()
}

// AddEvent broadcasts an entry to connected dashboard clients.
func (s *Server) AddEvent(eventType, message string) {
	s.events.BroadcastJSON(Event{
		Time:    time.Now().Format("15:04:05"),
		Type:    eventType,
		Message: message,
	})
}

// App exposes the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
