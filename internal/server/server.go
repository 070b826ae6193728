// Package server is the devbackend: a small reference implementation of the
// finance REST API and the chat broker that finctl talks to.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/weiawesome/fin-dashboard/internal/chat"
	"github.com/weiawesome/fin-dashboard/internal/idgen"
	"github.com/weiawesome/fin-dashboard/pkg/database"
	"github.com/weiawesome/fin-dashboard/pkg/jwt"
	"github.com/weiawesome/fin-dashboard/pkg/log"
	"github.com/weiawesome/fin-dashboard/pkg/middleware"
)

// Options configures New.
type Options struct {
	JWTSecret      string
	AccessDuration time.Duration
	Issuer         string
	MachineID      int64
	HistorySize    int
	Destinations   chat.Destinations
	WebSocket      chat.WebsocketConfig
}

// Server owns the devbackend components.
type Server struct {
	Router *gin.Engine
	Hub    *Hub
	Auth   *AuthService
	Chat   *ChatService
}

// New migrates db and assembles the router.
func New(db *gorm.DB, opts Options) (*Server, error) {
	if err := database.AutoMigrate(db, Models()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if opts.AccessDuration <= 0 {
		opts.AccessDuration = 24 * time.Hour
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 500
	}
	if opts.Destinations == (chat.Destinations{}) {
		opts.Destinations = chat.DefaultDestinations()
	}
	if opts.WebSocket == (chat.WebsocketConfig{}) {
		opts.WebSocket = chat.DefaultWebsocketConfig()
	}

	tokens, err := jwt.NewManager(opts.JWTSecret, opts.AccessDuration, opts.Issuer)
	if err != nil {
		return nil, err
	}
	ids, err := idgen.NewSnowflake(opts.MachineID, idgen.DefaultEpoch)
	if err != nil {
		return nil, err
	}

	repo := NewGormRepository(db)
	hub := NewHub()
	authSvc := NewAuthService(repo, tokens)
	financeSvc := NewFinanceService(repo, ids)
	chatSvc := NewChatService(hub, authSvc, ids, NewHistory(opts.HistorySize), opts.Destinations)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(log.GinMiddleware(log.L()))

	handler := NewHandler(authSvc, financeSvc, chatSvc, hub, opts.WebSocket, middleware.NewAuthMiddleware(tokens))
	handler.RegisterRoutes(router)

	return &Server{
		Router: router,
		Hub:    hub,
		Auth:   authSvc,
		Chat:   chatSvc,
	}, nil
}

// Run drives the hub until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.Hub.Run(ctx)
}
