// Package server runs the TSP and REST listeners and shuts them down
// gracefully.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/remiblancher/qtsa/internal/config"
)

// Server represents the two HTTP servers.
type Server struct {
	cfg    config.ServerConfig
	tsp    *http.Server
	api    *http.Server
	logger *logrus.Entry
}

// New creates a Server for the given handlers.
func New(cfg config.ServerConfig, tspHandler, apiHandler http.Handler, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		cfg:    cfg,
		tsp:    newHTTPServer(cfg, cfg.TSPAddr(), tspHandler),
		api:    newHTTPServer(cfg, cfg.APIAddr(), apiHandler),
		logger: logger.WithField("component", "server"),
	}
}

func newHTTPServer(cfg config.ServerConfig, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Run listens on the configured addresses and blocks until ctx is done or
// a listener fails.
func (s *Server) Run(ctx context.Context) error {
	tspLn, err := net.Listen("tcp", s.tsp.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.tsp.Addr, err)
	}
	apiLn, err := net.Listen("tcp", s.api.Addr)
	if err != nil {
		_ = tspLn.Close()
		return fmt.Errorf("listen %s: %w", s.api.Addr, err)
	}
	return s.Serve(ctx, tspLn, apiLn)
}

// Serve serves on the given listeners until ctx is done or one of them
// fails, then shuts both servers down.
func (s *Server) Serve(ctx context.Context, tspLn, apiLn net.Listener) error {
	errChan := make(chan error, 2)
	serve := func(name string, srv *http.Server, ln net.Listener) {
		s.logger.WithFields(logrus.Fields{"listener": name, "address": ln.Addr().String()}).Info("Listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("%s server: %w", name, err)
			return
		}
		errChan <- nil
	}
	go serve("tsp", s.tsp, tspLn)
	go serve("api", s.api, apiLn)

	var serveErr error
	select {
	case serveErr = <-errChan:
		s.logger.WithError(serveErr).Error("Listener stopped, shutting down")
	case <-ctx.Done():
		s.logger.Info("Shutting down")
	}

	if err := s.shutdownAll(); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// shutdownAll gracefully shuts down both servers.
func (s *Server) shutdownAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, srv := range []*http.Server{s.tsp, s.api} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				errs[i] = fmt.Errorf("shutdown %s: %w", srv.Addr, err)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("All servers stopped gracefully")
	return nil
}
