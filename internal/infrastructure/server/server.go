package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/mikan-dev/multibox/internal/api/http"
	"github.com/mikan-dev/multibox/internal/api/middleware"
	"github.com/mikan-dev/multibox/internal/api/ws"
	"github.com/mikan-dev/multibox/internal/domain/dispatch"
	"github.com/mikan-dev/multibox/internal/domain/guard"
	"github.com/mikan-dev/multibox/internal/domain/reconcile"
	"github.com/mikan-dev/multibox/internal/domain/registry"
	"github.com/mikan-dev/multibox/internal/events"
	"github.com/mikan-dev/multibox/internal/infrastructure/config"
	"github.com/mikan-dev/multibox/internal/infrastructure/logging"
	"github.com/mikan-dev/multibox/internal/infrastructure/monitoring"
	"github.com/mikan-dev/multibox/internal/providers/exclusivity"
	"github.com/mikan-dev/multibox/internal/providers/launcher"
	"github.com/mikan-dev/multibox/internal/providers/procscan"
)

// Server wires the lifecycle engine and serves the presentation API
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	registry   *registry.Manager
	dispatcher *dispatch.Dispatcher
	guard      *guard.Guard
	loop       *reconcile.Loop
	hub        *events.Hub

	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics

	cancel context.CancelFunc
}

// New builds a server from configuration
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	var err error
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: false,
			OutputPaths: []string{"stdout"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	logger.Info("initializing multibox",
		zap.String("port", cfg.Server.Port),
		zap.String("target", cfg.Launcher.TargetProcess),
		zap.Duration("reconcile_interval", cfg.Reconcile.Interval),
		zap.Duration("guard_interval", cfg.Guard.Interval),
	)

	metrics := monitoring.NewMetrics()
	hub := events.NewHub()

	scanner := procscan.NewProvider(procscan.Config{
		TargetName:        cfg.Launcher.TargetProcess,
		IntermediaryName:  cfg.Launcher.IntermediaryProcess,
		ProfileFlagPrefix: cfg.Launcher.ProfileFlagPrefix,
	}, logger.Named("procscan"))

	launch := launcher.NewProvider(launcher.Config{
		Executable:        cfg.Launcher.Executable,
		Args:              cfg.Launcher.Args,
		ProfileFlagPrefix: cfg.Launcher.ProfileFlagPrefix,
		TwoPhase:          cfg.Launcher.TwoPhase,
		TargetName:        cfg.Launcher.TargetProcess,
		StopWait:          cfg.Launcher.StopWait,
		StopWaitStep:      cfg.Launcher.StopWaitStep,
	}, scanner, logger.Named("launcher"))

	detector := exclusivity.NewProvider(exclusivity.Config{
		ProcessNames: []string{cfg.Launcher.IntermediaryProcess},
	}, logger.Named("exclusivity"))

	reg := registry.NewManager().WithEvents(hub).WithMetrics(metrics)

	g := guard.New(detector, cfg.Guard.Interval, logger.Named("guard")).
		WithEvents(hub).WithMetrics(metrics)

	disp := dispatch.New(reg, launch, detector, logger.Named("dispatch")).
		WithEvents(hub).WithMetrics(metrics)

	loop := reconcile.New(reg, scanner, cfg.Reconcile.Interval, cfg.Reconcile.MissThreshold, logger.Named("reconcile")).
		WithEvents(hub).WithMetrics(metrics).WithSkip(disp.Stopping)

	handlers := apihttp.NewHandlers(reg, disp, g, scanner, logger.Named("http"))
	wsHandler := ws.NewHandler(hub, logger.Named("ws")).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/guard", handlers.GuardStatus)
	router.GET("/debug/processes", handlers.DebugProcesses)
	router.GET("/ws", wsHandler.HandleConnection)

	profiles := router.Group("/profiles")
	{
		profiles.GET("", handlers.ListProfiles)
		profiles.POST("", handlers.CreateProfile)
		profiles.DELETE("/:id", handlers.DeleteProfile)
		profiles.POST("/:id/open", handlers.OpenProfile)
		profiles.POST("/:id/close", handlers.CloseProfile)
		profiles.POST("/:id/toggle", handlers.ToggleProfile)
	}

	return &Server{
		router:     router,
		registry:   reg,
		dispatcher: disp,
		guard:      g,
		loop:       loop,
		hub:        hub,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
	}, nil
}

// Run starts the periodic tasks and serves HTTP until Close or failure
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.guard.Run(ctx)
	go s.loop.Run(ctx)
	go s.uptimeLoop(ctx)

	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.logger.Info("multibox listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close stops the periodic tasks and shuts the HTTP server down gracefully
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
	}

	s.logger.Info("multibox stopped")
	_ = s.logger.Sync()
	return nil
}

func (s *Server) uptimeLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.metrics.UpdateUptime()
		}
	}
}
