package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/campaign"
	"github.com/jmehdipour/campaign-orchestrator/internal/config"
	"github.com/jmehdipour/campaign-orchestrator/internal/http/middleware"
	"github.com/jmehdipour/campaign-orchestrator/internal/metrics"
	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/jmehdipour/campaign-orchestrator/internal/service/contacts"
	"github.com/jmehdipour/campaign-orchestrator/internal/supervisor"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Campaign interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Restart(ctx context.Context, opts campaign.RestartOptions) error
	GetStats(ctx context.Context) (campaign.Stats, error)
}

type FollowUps interface {
	Stats() campaign.FollowUpStats
}

type Supervisor interface {
	Status() supervisor.Status
}

// Connector is the part of the channel gateway the API drives directly.
type Connector interface {
	Connect(ctx context.Context, channelID int64) error
	ForceDisconnect(ctx context.Context, channelID int64) error
}

// Deps are the collaborators the control surface needs. Archive and Redis
// are optional.
type Deps struct {
	Store      repository.Store
	Campaign   Campaign
	FollowUps  FollowUps
	Supervisor Supervisor
	Gateway    Connector
	Contacts   *contacts.Service
	Archive    repository.CHLogsRepository
	Redis      *redis.Client
	Log        *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.INFO)
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	mws := []echo.MiddlewareFunc{middleware.APIKeyMiddleware(cfg.API.Keys)}
	if cfg.RateLimit.Enabled && d.Redis != nil {
		mws = append(mws, middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Redis:          d.Redis,
			RPS:            cfg.RateLimit.RPS,
			KeyPrefix:      "rl:key:",
			Window:         time.Second,
			RetryAfterHint: true,
		}))
	}

	// routes
	v1 := e.Group("/v1", mws...)

	v1.POST("/campaign/start", startHandler(d.Campaign))
	v1.POST("/campaign/pause", pauseHandler(d.Campaign))
	v1.POST("/campaign/restart", restartHandler(d.Campaign))
	v1.GET("/campaign/stats", statsHandler(d.Campaign))
	v1.GET("/system/status", systemStatusHandler(d.Supervisor, d.FollowUps))

	v1.GET("/logs", listLogsHandler(d.Store))
	v1.DELETE("/logs", clearLogsHandler(d.Store))
	v1.GET("/reports/logs", listArchivedLogsHandler(d.Archive))

	v1.GET("/received", listReceivedHandler(d.Store))
	v1.GET("/received/contacts/:id", listReceivedByContactHandler(d.Store))
	v1.DELETE("/received", clearReceivedHandler(d.Store))

	v1.GET("/contacts", listContactsHandler(d.Store))
	v1.POST("/contacts/upload", uploadContactsHandler(d.Contacts))
	v1.DELETE("/contacts", clearContactsHandler(d.Store))

	v1.GET("/settings", getSettingsHandler(d.Store))
	v1.PUT("/settings", putSettingsHandler(d.Store))
	v1.GET("/variants", listVariantsHandler(d.Store))
	v1.PUT("/variants/:ordinal", putVariantHandler(d.Store))

	v1.GET("/connections", listConnectionsHandler(d.Store))
	v1.POST("/connections", createConnectionHandler(d.Store, d.Gateway))
	v1.DELETE("/connections/:id", deleteConnectionHandler(d.Store, d.Gateway))
	v1.POST("/connections/:id/disconnect", disconnectHandler(d.Store, d.Gateway))

	return &Server{e: e, log: d.Log}
}

func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
