package server

import (
	"backend-racehub/internal/auth"
	"backend-racehub/internal/config"
	"backend-racehub/internal/live"
	"backend-racehub/internal/logger"
	"backend-racehub/internal/results"
	"backend-racehub/internal/source"
	"backend-racehub/internal/stream"
	"backend-racehub/internal/tracking"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the long-lived collaborators built by cmd/api.
type Deps struct {
	Log       *logger.Logger
	Source    source.Source
	Publisher source.Publisher
	Events    live.EventPublisher
	Live      *live.Registry
	Stream    *stream.Hub
	Drafts    results.DraftStore
}

type Server struct {
	App  *fiber.App
	Cfg  config.Config
	Deps Deps
}

func NewServer(cfg config.Config, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:     "racehub",
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		App:  app,
		Cfg:  cfg,
		Deps: deps,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "source": s.Cfg.Source})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	hostOnly := auth.RequireRole(auth.RoleHost)

	live.RegisterRoutes(s.App.Group("/live"), s.Deps.Live, s.Deps.Events, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Deps.Stream, s.Deps.Live.SnapshotPayload)
	tracking.RegisterRoutes(s.App.Group("/tracking"), tracking.NewService(s.Deps.Source))
	results.RegisterRoutes(
		s.App.Group("/results"),
		results.NewService(s.Deps.Source, s.Deps.Publisher, s.Deps.Drafts, s.Deps.Log),
		jwtMiddleware,
		hostOnly,
	)
}
