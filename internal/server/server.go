// Package server is the composition root: it opens the database, builds the
// services and handlers, mounts the routes and runs the HTTP server next to
// the outbox relay.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/circles/internal/auth"
	"github.com/sakif/circles/internal/config"
	"github.com/sakif/circles/internal/handler"
	"github.com/sakif/circles/internal/middleware"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/notify"
	sqliteRepo "github.com/sakif/circles/internal/repository/sqlite"
	"github.com/sakif/circles/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns the database connection and the relay; Start closes both on
// the way out.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	relay  *notify.Relay
}

// New wires the whole application. sender delivers outbox messages; nil
// means log them instead.
func New(cfg *config.Config, sender notify.Sender, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	nonces, err := auth.NewNonceService(cfg.NonceSecret, cfg.NonceTTL)
	if err != nil {
		return nil, fmt.Errorf("creating nonce service: %w", err)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if sender == nil {
		sender = notify.NewLogSender(logger)
	}
	relay := notify.NewRelay(db, sender, notify.RelayConfig{
		Interval:    cfg.OutboxInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
		SendTimeout: notify.DefaultRelayConfig().SendTimeout,
	}, logger)

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		relay:  relay,
	}
	s.setupRoutes(tokens, nonces)
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the database. Start calls it itself.
func (s *Server) Close() error { return s.db.Close() }

func (s *Server) setupRoutes(tokens *auth.TokenService, nonces *auth.NonceService) {
	authz := service.NewPolicyAuthorizer(s.db)
	circles := service.NewCircleService(s.db, s.logger)
	feed := service.NewFeedService(s.db, circles, s.logger)
	invitations := service.NewInvitationService(s.db, authz, service.InvitationConfig{
		BaseURL:       s.config.BaseURL,
		InvitationTTL: s.config.InvitationTTL,
	}, s.logger)
	rsvp := service.NewRSVPService(s.db, s.logger)
	communities := service.NewCommunityService(s.db, authz, s.logger)
	events := service.NewEventService(s.db, authz, circles, s.logger)
	conversations := service.NewConversationService(s.db, authz, circles, events, s.logger)
	authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)

	nonceH := handler.NewNonceHandler(nonces, s.logger)
	authH := handler.NewAuthHandler(authService, tokens, s.logger)
	conversationH := handler.NewConversationHandler(feed, conversations, nonceH, s.logger)
	eventH := handler.NewEventHandler(events, feed, invitations, s.logger)
	communityH := handler.NewCommunityHandler(communities, s.logger)
	circleH := handler.NewCircleHandler(circles, s.logger)
	invitationH := handler.NewInvitationHandler(invitations, nonceH, s.logger)
	rsvpH := handler.NewRSVPHandler(rsvp, nonceH, s.logger)

	// Order matters: the logger reads the request id and the viewer.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(auth.OptionalAuth(tokens))
	s.router.Use(middleware.Logger(s.logger))

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authH.HandleRegister)
		r.Post("/login", authH.HandleLogin)
		r.Post("/logout", authH.HandleLogout)
	})

	s.router.Get("/rsvp/{token}", rsvpH.HandleShow)
	s.router.Post("/rsvp/{token}", rsvpH.HandleRespond)
	s.router.Get("/invitation/accept", invitationH.HandleAccept)
	s.router.Post("/invitation/accept", invitationH.HandleAccept)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/me", authH.HandleMe)
		r.Get("/nonce", nonceH.HandleCreate)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationH.HandleFeed)
			r.Post("/", conversationH.HandleCreate)
			r.Get("/{slug}", conversationH.HandleGet)
			r.Post("/{slug}/replies", conversationH.HandleReply)
		})
		r.Put("/replies/{replyId}", conversationH.HandleEditReply)
		r.Delete("/replies/{replyId}", conversationH.HandleDeleteReply)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", eventH.HandleList)
			r.Post("/", eventH.HandleCreate)
			r.Get("/{id}", eventH.HandleGet)
			r.Post("/{id}/share-link", eventH.HandleShareLink)
			mountInvitations(r, invitationH, model.EntityEvent)
		})

		r.Route("/communities", func(r chi.Router) {
			r.Post("/", communityH.HandleCreate)
			r.Get("/{id}", communityH.HandleGet)
			r.Get("/{id}/members", communityH.HandleMembers)
			r.Put("/{id}/members/{memberId}", communityH.HandleUpdateRole)
			r.Delete("/{id}/members/{memberId}", communityH.HandleRemove)
			mountInvitations(r, invitationH, model.EntityCommunity)
		})

		r.Route("/circles", func(r chi.Router) {
			r.Get("/", circleH.HandleGet)
			r.Put("/{userId}", circleH.HandleSet)
			r.Delete("/{userId}", circleH.HandleRemove)
		})

		r.Post("/invitations/bluesky/{type}/{id}", invitationH.HandleBluesky)
		r.Post("/invitations/accept", invitationH.HandleAcceptJSON)
	})
}

// mountInvitations adds the invitation management routes under an entity
// route ("/events" or "/communities").
func mountInvitations(r chi.Router, h *handler.InvitationHandler, entity model.EntityType) {
	r.Get("/{id}/invitations", h.HandleList(entity))
	r.Post("/{id}/invitations", h.HandleSend(entity))
	r.Post("/{id}/invitations/{invitationId}/resend", h.HandleResend(entity))
	r.Delete("/{id}/invitations/{invitationId}", h.HandleDelete(entity))
}

// Start serves HTTP and runs the relay until SIGINT or SIGTERM, then shuts
// both down. In-flight requests get shutdownTimeout to finish.
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
	defer signal.Stop(quit)

	s.relay.Start()
	defer s.relay.Stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("baseURL", s.config.BaseURL),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
