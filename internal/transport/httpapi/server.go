// Package httpapi exposes the chat and login services over HTTP with echo.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"assistify/internal/domain"
	"assistify/internal/usecase"
)

// ChatUseCase is the chat surface served under /chat.
type ChatUseCase interface {
	CreateChat(ctx context.Context, userID string) (domain.Chat, error)
	ListChats(ctx context.Context, userID string) ([]domain.Chat, error)
	AddConversation(ctx context.Context, in usecase.AddConversationInput) (usecase.AddConversationOutput, error)
	ListConversations(ctx context.Context, in usecase.ListConversationsInput) ([]domain.Conversation, error)
	DeleteChat(ctx context.Context, userID, chatID string) error
}

// AuthUseCase is the login surface served under /user.
type AuthUseCase interface {
	Login(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, in usecase.VerifyInput) (usecase.VerifyOutput, error)
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

type Server struct {
	chats  ChatUseCase
	auth   AuthUseCase
	logger *slog.Logger
	echo   *echo.Echo
}

func New(chats ChatUseCase, auth AuthUseCase, logger *slog.Logger) (*Server, error) {
	if chats == nil {
		return nil, errors.New("httpapi: chat use case must not be nil")
	}
	if auth == nil {
		return nil, errors.New("httpapi: auth use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{chats: chats, auth: auth, logger: logger}
	s.echo = s.newRouter()
	return s, nil
}

// Handler returns the routed echo instance as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Router exposes the echo instance for adapters that need it directly.
func (s *Server) Router() *echo.Echo { return s.echo }

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func (s *Server) newRouter() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				s.logger.Warn("request failed", append(attrs, "err", v.Error)...)
				return nil
			}
			s.logger.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/health", s.health)

	user := e.Group("/user")
	user.POST("/login", s.login)
	user.POST("/verify", s.verify)
	user.GET("/me", s.me, s.requireAuth)

	chat := e.Group("/chat", s.requireAuth)
	chat.POST("/new", s.createChat)
	chat.GET("/all", s.listChats)
	chat.POST("/:id", s.addConversation)
	chat.GET("/:id", s.listConversations)
	chat.DELETE("/:id", s.deleteChat)

	return e
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
