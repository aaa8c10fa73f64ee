// Package httpapi serves the service over a loopback HTTP API for the web
// frontend. Every response uses the {success, data, message} envelope.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/forest6511/acctvault/internal/logging"
	"github.com/forest6511/acctvault/pkg/service"
)

const shutdownTimeout = 5 * time.Second

// Server wires the service to echo routes.
type Server struct {
	echo    *echo.Echo
	svc     *service.Service
	addr    string
	origins []string
	logger  logging.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds a Server that will listen on addr.
func New(svc *service.Service, addr string, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		addr:   addr,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		MaxAge:       3600,
	}))
	s.echo = e
	s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http api listening", "addr", s.addr)
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpapi: server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown failed: %w", err)
	}
	s.logger.Info(ctx, "http api stopped")
	return nil
}

func (s *Server) routes() {
	api := s.echo.Group("/api")

	api.POST("/auth/login", s.login)
	api.GET("/auth/check", s.check)
	api.POST("/auth/check", s.check)
	api.POST("/auth/logout", s.logout)

	api.GET("/accounts", s.listAccounts)
	api.POST("/accounts", s.createAccount)
	api.POST("/accounts/delete-all", s.deleteAll)
	api.DELETE("/accounts/delete-all", s.deleteAll)
	api.GET("/accounts/deleted", s.listDeleted)
	api.POST("/accounts/batch-import", s.batchImport)
	api.POST("/accounts/import-text", s.importText)
	api.DELETE("/accounts/purge-all", s.purgeAll)
	api.GET("/accounts/:id", s.getAccount)
	api.PUT("/accounts/:id", s.updateAccount)
	api.DELETE("/accounts/:id", s.deleteAccount)
	api.POST("/accounts/:id/restore", s.restoreAccount)
	api.DELETE("/accounts/:id/purge", s.purgeAccount)
	api.POST("/accounts/:id/toggle-status", s.toggleStatus)
	api.PATCH("/accounts/:id/status", s.toggleStatus)
	api.POST("/accounts/:id/toggle-sold", s.toggleSold)
	api.POST("/accounts/:id/toggle-sold-status", s.toggleSold)
	api.PATCH("/accounts/:id/sold", s.toggleSold)
	api.GET("/accounts/:id/history", s.history)
	api.GET("/accounts/:id/totp", s.accountTOTP)

	api.POST("/totp/generate", s.generateTOTP)

	api.GET("/backups", s.listBackups)
	api.POST("/backups", s.createBackup)
	api.POST("/backups/restore", s.restoreBackup)
	api.POST("/backups/upload", s.uploadBackup)

	api.POST("/export/text", s.exportText)
	api.GET("/export/sql", s.exportSQL)

	api.GET("/security", s.securityReport)
	api.GET("/audit/verify", s.verifyAudit)
}
