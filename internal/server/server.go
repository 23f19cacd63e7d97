// Package server is the composition root: it assembles the database, secret
// store, services, and handlers, wires them to routes, and runs the HTTP
// server with graceful shutdown. main.go stays minimal — it reads config and
// calls into here.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jsedeno/anitrack/internal/auth"
	"github.com/jsedeno/anitrack/internal/catalog"
	"github.com/jsedeno/anitrack/internal/handler"
	"github.com/jsedeno/anitrack/internal/middleware"
	sqliteRepo "github.com/jsedeno/anitrack/internal/repository/sqlite"
	"github.com/jsedeno/anitrack/internal/secrets"
	"github.com/jsedeno/anitrack/internal/service"
)

// Config holds everything the server needs from the environment.
type Config struct {
	Port      int
	DBPath    string // SQLite database file
	DataDir   string // root for secrets/ and avatars/
	JWTSecret string
}

// Server owns the router and the resources that must be released on
// shutdown (today: the database connection).
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New wires the full dependency chain:
//
//	sqlite.DB ─┬─> AuthService ───> AuthHandler
//	           └─> LibraryService ─> LibraryHandler
//	secrets.FileStore ─> AuthService
//	catalog.Client ───> CatalogHandler
//
// Each layer receives only the layer below it; handlers never see the
// database and services never see HTTP.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests driving the server with
// httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	secretStore, err := secrets.NewFileStore(filepath.Join(s.config.DataDir, "secrets"))
	if err != nil {
		return fmt.Errorf("creating secret store: %w", err)
	}

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	avatarDir := filepath.Join(s.config.DataDir, "avatars")
	authService := service.NewAuthService(s.db, secretStore, passwords, tokens, avatarDir, s.logger)
	libraryService := service.NewLibraryService(s.db, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	libraryHandler := handler.NewLibraryHandler(libraryService, s.logger)
	catalogHandler := handler.NewCatalogHandler(catalog.NewClient(), s.logger)

	// Avatars are plain files on disk, served read-only.
	fileServer := http.FileServer(http.Dir(avatarDir))
	s.router.Handle("/avatars/*", http.StripPrefix("/avatars/", fileServer))

	s.router.Route("/api", func(r chi.Router) {
		// Open endpoints.
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		r.Get("/catalog/search", catalogHandler.HandleSearch)
		r.Get("/catalog/anime/{id}", catalogHandler.HandleGetAnime)

		// Everything below requires a valid token.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/auth/me", authHandler.HandleMe)
			r.Put("/auth/profile", authHandler.HandleUpdateProfile)
			r.Delete("/auth/account", authHandler.HandleDeleteAccount)

			r.Get("/library", libraryHandler.HandleList)
			r.Get("/library/stats", libraryHandler.HandleStats)
			r.Post("/library", libraryHandler.HandleAdd)
			r.Get("/library/anime/{animeID}", libraryHandler.HandleGetByAnime)
			r.Patch("/library/{id}", libraryHandler.HandleUpdate)
			r.Delete("/library/{id}", libraryHandler.HandleRemove)
		})
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then drains in-flight requests
// and closes the database so the WAL is flushed.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server: graceful shutdown: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
