package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/docrelay/docrelay/api"
	"github.com/docrelay/docrelay/config"
	"github.com/docrelay/docrelay/internal/cron"
	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/internal/tracing"
	"github.com/docrelay/docrelay/services"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	cronManager  *cron.CronManager
	tracerCloser io.Closer
	rootCtx      context.Context
	rootCancel   context.CancelFunc
}

func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, fmt.Errorf("could not initialize jaeger tracer: %w", err)
	}
	opentracing.SetGlobalTracer(tracer)

	// Root context outlives any API request; polling sessions run on it
	rootCtx, rootCancel := context.WithCancel(context.Background())

	svcs := services.InitServices(rootCtx, cfg, appLogger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:      cfg,
		log:         appLogger,
		router:      router,
		services:    svcs,
		cronManager: cron.NewCronManager(cfg, appLogger, svcs.SessionRegistry),
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
		tracerCloser: closer,
	}, nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	defer s.rootCancel()

	api.RegisterRoutes(s.rootCtx, s.router, s.services, s.config.AppConfig.APIKey)

	if err := s.cronManager.Start(); err != nil {
		return fmt.Errorf("failed to start cron manager: %w", err)
	}

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on port %s", s.config.AppConfig.APIPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})

	s.log.Info("Docrelay is now running. Press Ctrl+C to exit.")
	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	s.log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	}

	s.cronManager.Stop()

	// Stop polling sessions with a timeout; a hung IMAP connection must not
	// wedge shutdown
	stopDone := make(chan struct{})
	go s.wrapGoroutine("registry_shutdown", func() {
		defer close(stopDone)
		s.services.SessionRegistry.StopAll(shutdownCtx)
	})

	select {
	case <-stopDone:
		s.log.Info("All polling sessions stopped gracefully")
	case <-time.After(10 * time.Second):
		s.log.Warn("Polling session stop timed out, forcing exit")
	}

	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	return nil
}
