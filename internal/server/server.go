// Package server is the composition root: it wires repositories, services,
// handlers, and middleware into a chi router and runs the HTTP server with
// graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/polly-app/polly/internal/auth"
	"github.com/polly-app/polly/internal/handler"
	"github.com/polly-app/polly/internal/middleware"
	sqliteRepo "github.com/polly-app/polly/internal/repository/sqlite"
	"github.com/polly-app/polly/internal/service"
)

// Config holds everything the server needs from the environment.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string

	// GitHub OAuth is optional; login routes 404 when the client ID is empty.
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	// Rate limiting; zero values fall back to 100 requests per 15 minutes.
	RateLimit       int
	RateLimitPeriod time.Duration
}

// Server owns the router and the database connection. The connection is
// closed during graceful shutdown so the WAL is flushed and the file lock
// released.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	limiter *middleware.RateLimiter
}

// New assembles the full dependency chain:
//
//	sqlite.DB → repositories → services → handlers → routes
//
// Each layer receives only the interfaces it needs; handlers never touch the
// database, services never touch HTTP.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("configuring tokens: %w", err)
	}

	var github *auth.GitHubProvider
	if s.config.GitHubClientID != "" {
		github = auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.GitHubCallbackURL,
		)
	}

	users := sqliteRepo.NewUserRepo(s.db)
	polls := sqliteRepo.NewPollRepo(s.db)
	votes := sqliteRepo.NewVoteRepo(s.db)

	authService := service.NewAuthService(users, tokens, auth.NewPasswordService(), s.logger)
	pollService := service.NewPollService(polls, s.logger)
	voteService := service.NewVoteService(polls, votes, s.logger)

	authHandler := handler.NewAuthHandler(authService, github, s.logger)
	pollHandler := handler.NewPollHandler(pollService, voteService, s.logger)
	voteHandler := handler.NewVoteHandler(pollService, voteService, s.logger)

	limit, period := s.config.RateLimit, s.config.RateLimitPeriod
	if limit <= 0 {
		limit = 100
	}
	if period <= 0 {
		period = 15 * time.Minute
	}
	limiter := middleware.NewRateLimiter(limit, period)
	s.limiter = limiter

	// Middleware order matters: request ID and real IP first so the logger
	// and rate limiter see them, Recoverer last so panics in any of them
	// still produce a 500 instead of killing the process.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(limiter.Handler)
	s.router.Use(chimiddleware.Recoverer)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	// OAuth browser flow lives outside /api; it redirects, not JSONs.
	s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
	s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		// Public reads: anonymous users browse public polls, a valid session
		// additionally surfaces the viewer's own private polls and votes.
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/polls", pollHandler.HandleList)
			r.Get("/polls/{pollID}", pollHandler.HandleGet)
			r.Get("/polls/{pollID}/results", pollHandler.HandleResults)
		})

		// Everything that changes state or is inherently personal.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", authHandler.HandleMe)

			r.Post("/polls", pollHandler.HandleCreate)
			r.Get("/polls/mine", pollHandler.HandleListMine)
			r.Get("/polls/voted", pollHandler.HandleListVoted)
			r.Put("/polls/{pollID}", pollHandler.HandleUpdate)
			r.Delete("/polls/{pollID}", pollHandler.HandleDelete)
			r.Post("/polls/{pollID}/options", pollHandler.HandleAddOption)

			r.Post("/polls/{pollID}/vote", voteHandler.HandleCast)
			r.Delete("/polls/{pollID}/vote", voteHandler.HandleWithdraw)

			r.Get("/dashboard/stats", pollHandler.HandleDashboardStats)
		})
	})

	return nil
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the server's background resources: the rate limiter's sweep
// goroutine and the database connection.
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.db.Close()
}

// Start runs the server until SIGINT/SIGTERM, then drains in-flight requests
// and closes the database.
func (s *Server) Start() error {
	defer s.Close()

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
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
