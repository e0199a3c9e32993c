package httpservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tokenmarket/marketd/internal/config"
	interfaces "github.com/tokenmarket/marketd/internal/interface"
	"github.com/tokenmarket/marketd/internal/interface/http/handlers"
	"github.com/tokenmarket/marketd/internal/interface/http/middlewares"
	"github.com/tokenmarket/marketd/internal/telemetry"
)

type service struct {
	version       string
	config        Config
	appConfig     *config.Config
	server        *http.Server
	appSvcStarted atomic.Bool
	stopListening context.CancelFunc
	otelShutdown  func(context.Context) error
}

func NewService(
	version string, svcConfig Config, appConfig *config.Config,
) (interfaces.Service, error) {
	if err := svcConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %s", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}

	return &service{
		version:   version,
		config:    svcConfig,
		appConfig: appConfig,
	}, nil
}

func (s *service) Start() error {
	if s.appConfig.OtelCollectorEndpoint != "" {
		pushInterval := time.Duration(s.appConfig.OtelPushInterval) * time.Second
		otelShutdown, err := telemetry.InitOtelSDK(
			context.Background(), s.appConfig.OtelCollectorEndpoint, pushInterval,
		)
		if err != nil {
			return err
		}
		s.otelShutdown = otelShutdown
	}

	if err := s.startAppServices(); err != nil {
		return err
	}

	appSvc, err := s.appConfig.AppService()
	if err != nil {
		return fmt.Errorf("failed to create app service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopListening = cancel
	handler := handlers.NewHandler(s.version, appSvc, s.config.HeartbeatInterval)
	handler.Listen(ctx)

	s.server = &http.Server{
		Addr:              s.config.address(),
		Handler:           NewRouter(handler, s.config.EnablePprof),
		ReadHeaderTimeout: s.config.readHeaderTimeout(),
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	log.Infof("started listening at %s", s.config.address())
	return nil
}

func (s *service) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to gracefully shutdown http server")
			_ = s.server.Close()
		}
	}
	if s.stopListening != nil {
		s.stopListening()
	}

	if s.appSvcStarted.CompareAndSwap(true, false) {
		appSvc, _ := s.appConfig.AppService()
		if appSvc != nil {
			appSvc.Stop()
		}
	}

	if s.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.otelShutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to shutdown otel sdk")
		}
	}
	log.Info("shutdown service")
}

func (s *service) startAppServices() error {
	if !s.appSvcStarted.CompareAndSwap(false, true) {
		// app already started, skip
		return nil
	}

	appSvc, err := s.appConfig.AppService()
	if err != nil {
		s.appSvcStarted.Store(false)
		return fmt.Errorf("failed to create app service: %w", err)
	}
	if err := appSvc.Start(); err != nil {
		s.appSvcStarted.Store(false)
		return fmt.Errorf("failed to start app service: %w", err)
	}
	log.Info("started app service")
	return nil
}

// NewRouter returns the gin engine serving the ledger API.
func NewRouter(handler *handlers.Handler, withPprof bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		middlewares.Tracing(),
		middlewares.Logger(),
		middlewares.PanicRecovery(),
		middlewares.ErrorConverter(),
	)
	handler.Register(router)

	if withPprof {
		debug := router.Group("/debug/pprof")
		debug.GET("/", gin.WrapF(pprof.Index))
		debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		debug.GET("/profile", gin.WrapF(pprof.Profile))
		debug.GET("/symbol", gin.WrapF(pprof.Symbol))
		debug.GET("/trace", gin.WrapF(pprof.Trace))
		debug.GET("/:name", gin.WrapF(pprof.Index))
	}

	return router
}
