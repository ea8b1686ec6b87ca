package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/remiblancher/qtsa/internal/api/router"
	"github.com/remiblancher/qtsa/internal/api/server"
	"github.com/remiblancher/qtsa/internal/api/service"
	"github.com/remiblancher/qtsa/internal/audit"
	"github.com/remiblancher/qtsa/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the RFC 3161 and REST listeners",
	Long: `Start the time-stamp authority.

Two listeners are started:
  TSP (default :318)   POST / with Content-Type: application/timestamp-query
  API (default :8080)  POST /sign, PUT /validate, PUT /validate-with-certificate,
                       GET /certificate, /health, /ready, /metrics

The keystore is loaded and both engines are initialized before the
listeners open; any failure aborts startup.

Examples:
  qtsa serve --config /etc/qtsa/qtsa.yaml

  # Development credential bundled with the binary
  QTSA_KEYSTORE_PATH=embedded:dev-tsa.p12 QTSA_KEYSTORE_PASSWORD=qtsa-dev qtsa serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := loadEngines()
	if err != nil {
		return err
	}
	defer func() { _ = e.close() }()

	e.serving = true
	if err := e.initialize(true, true); err != nil {
		return err
	}

	logger := logrus.NewEntry(logrus.StandardLogger())
	m := metrics.New()
	svc := service.NewTSAService(e.authority, e.validator,
		service.WithAudit(e.audit),
		service.WithMetrics(m),
		service.WithLogger(logger))

	routerCfg := &router.Config{
		Version:      version,
		Service:      svc,
		Metrics:      m.Handler(),
		Logger:       logger,
		MaxBodyBytes: e.cfg.Server.MaxBodyBytes,
		RateLimit:    e.cfg.Server.RateLimit,
		RateBurst:    e.cfg.Server.RateBurst,
	}
	srv := server.New(e.cfg.Server, router.NewTSP(routerCfg), router.NewAPI(routerCfg), logger)

	tspAddr, apiAddr := e.cfg.Server.TSPAddr(), e.cfg.Server.APIAddr()
	if err := e.audit.Write(audit.ServeEvent(tspAddr, apiAddr)); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"version": version,
		"tsp":     tspAddr,
		"api":     apiAddr,
	}).Info("Starting qtsa")
	return srv.Run(ctx)
}
