// Package api exposes the workflow engine over HTTP.
package api

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/sicko7947/reelflow"
	"github.com/sicko7947/reelflow/engine"
)

// Orchestrator is the part of *engine.Engine the HTTP surface drives
type Orchestrator interface {
	Start(ctx context.Context, job reelflow.JobSpec, opts ...engine.RunOption) (string, error)
	Resume(ctx context.Context, workflowID string, opts ...engine.RunOption) error
	Status(ctx context.Context, workflowID string) (*reelflow.WorkflowState, error)
	List(ctx context.Context, filter reelflow.ListFilter) ([]reelflow.WorkflowSummary, error)
}

var _ Orchestrator = (*engine.Engine)(nil)

// Server wraps a fiber app serving the v1 workflow routes
type Server struct {
	app     *fiber.App
	engine  Orchestrator
	logger  zerolog.Logger
	version string
}

// NewServer creates the HTTP server and registers its routes
func NewServer(eng Orchestrator, logger zerolog.Logger, version string) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName: "reelflow",
		}),
		engine:  eng,
		logger:  logger,
		version: version,
	}
	s.registerRoutes()
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown is called
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("address", addr).Msg("Starting HTTP server")
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	// Health check endpoint
	s.app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "reelflow",
			"version": s.version,
		})
	})

	// API v1 routes
	v1 := s.app.Group("/api/v1")

	// Workflow endpoints
	workflows := v1.Group("/workflows")
	workflows.Post("/", s.handleCreate)
	workflows.Get("/", s.handleList)
	workflows.Get("/:id", s.handleStatus)
	workflows.Post("/:id/resume", s.handleResume)
}
