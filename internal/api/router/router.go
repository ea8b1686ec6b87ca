// Package router provides HTTP routing configuration using Chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/remiblancher/qtsa/internal/api/handler"
	"github.com/remiblancher/qtsa/internal/api/middleware"
)

// Service is the service layer both routers dispatch to.
type Service interface {
	handler.TSAService
	handler.ReadinessChecker
}

// Config holds router configuration.
type Config struct {
	Version string
	Service Service

	// Metrics serves GET /metrics on the API router when set.
	Metrics http.Handler

	Logger       *logrus.Entry
	MaxBodyBytes int64
	RateLimit    float64
	RateBurst    int
}

func (c *Config) logger() *logrus.Entry {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (c *Config) base(listener string) *chi.Mux {
	logger := c.logger().WithField("listener", listener)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.RateLimiter(c.RateLimit, c.RateBurst))
	if c.MaxBodyBytes > 0 {
		r.Use(middleware.BodyLimit(c.MaxBodyBytes))
	}
	return r
}

// NewTSP creates the router of the RFC 3161 listener. It serves only
// POST / with application/timestamp-query.
func NewTSP(cfg *Config) http.Handler {
	r := cfg.base("tsp")
	tsaHandler := handler.NewTSAHandler(cfg.Service)
	r.HandleFunc("/", tsaHandler.Query)
	return r
}

// NewAPI creates the router of the REST listener.
func NewAPI(cfg *Config) http.Handler {
	r := cfg.base("api")

	// Health endpoints
	healthHandler := handler.NewHealthHandler(cfg.Version, cfg.Service)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	tsaHandler := handler.NewTSAHandler(cfg.Service)
	r.Post("/sign", tsaHandler.Sign)
	r.Put("/validate", tsaHandler.Validate)
	r.Put("/validate-with-certificate", tsaHandler.ValidateWithCertificate)
	r.Get("/certificate", tsaHandler.Certificate)

	return r
}
