package server

import (
	"context"
	"ctchen222/passplay/internal/auth"
	"ctchen222/passplay/internal/hub"
	"ctchen222/passplay/internal/table"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("server")

// TableService is what the HTTP handlers need from the table service.
type TableService interface {
	hub.TableService
	Open(ctx context.Context) (table.State, error)
	Close(ctx context.Context, id string) error
}

type Server struct {
	tables   TableService
	tokens   *auth.TableTokens
	hub      *hub.Hub
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

func NewServer(tables TableService, tokens *auth.TableTokens, h *hub.Hub) *Server {
	s := &Server{
		tables: tables,
		tokens: tokens,
		hub:    h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		engine: gin.New(),
	}
	s.registerRoutes()
	return s
}

// Engine returns the gin engine serving every route.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.Use(gin.Recovery(), traceRequest())

	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/instructions", s.handleInstructions)

	tables := api.Group("/tables")
	tables.POST("", s.handleOpenTable)
	tables.GET("/:id", s.handleGetTable)
	tables.GET("/:id/ws", s.handleWebSocket)

	authorized := tables.Group("/:id", s.requireToken())
	authorized.POST("/marks", s.handlePlaceMark)
	authorized.POST("/reset", s.handleReset)
	authorized.DELETE("", s.handleCloseTable)
}
