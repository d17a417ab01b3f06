package server

import (
	"ctchen222/passplay/internal/api/response"
	"ctchen222/passplay/internal/game"
	"ctchen222/passplay/internal/repository"
	"ctchen222/passplay/internal/version"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type placeRequest struct {
	Slot *int `json:"slot" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	response.SuccessResponse(c, gin.H{"status": "ok"})
}

func (s *Server) handleInstructions(c *gin.Context) {
	response.SuccessResponse(c, gin.H{"text": game.Instructions(version.String())})
}

func (s *Server) handleOpenTable(c *gin.Context) {
	st, err := s.tables.Open(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	token, err := s.tokens.Issue(st.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.CreatedResponse(c, gin.H{"table": st, "token": token})
}

func (s *Server) handleGetTable(c *gin.Context) {
	st, err := s.tables.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.SuccessResponse(c, st)
}

func (s *Server) handlePlaceMark(c *gin.Context) {
	var req placeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	st, err := s.tables.Place(c.Request.Context(), c.Param("id"), *req.Slot)
	var moveErr *game.MoveError
	if errors.As(err, &moveErr) {
		response.AbortWithError(c, response.NewError(http.StatusUnprocessableEntity, moveErr.Error()).
			With("reason", moveErr.Reason).
			With("slot", moveErr.Slot).
			With("cue", game.CueBadMove).
			With("table", st))
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.SuccessResponse(c, st)
}

func (s *Server) handleReset(c *gin.Context) {
	st, err := s.tables.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.SuccessResponse(c, st)
}

func (s *Server) handleCloseTable(c *gin.Context) {
	if err := s.tables.Close(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	response.SuccessResponse(c, gin.H{"message": "Table closed"})
}

// handleWebSocket upgrades the connection and hands it to the hub. Anyone
// may watch a table; only a valid token lets the watcher send commands.
func (s *Server) handleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	tableID := c.Param("id")
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("table.id", tableID))

	if _, err := s.tables.Get(ctx, tableID); err != nil {
		s.writeError(c, err)
		return
	}

	canCommand := false
	if raw, err := tokenFrom(c); err == nil {
		if err := s.tokens.Verify(raw, tableID); err != nil {
			response.ErrorResponse(c, http.StatusUnauthorized, err.Error())
			return
		}
		canCommand = true
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to upgrade connection", "table.id", tableID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to upgrade connection")
		return
	}
	s.hub.Serve(ctx, tableID, conn, canCommand)
}

// writeError maps service errors to HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.ErrorResponse(c, http.StatusNotFound, err.Error())
	default:
		slog.ErrorContext(ctx, "Request failed", "http.route", c.FullPath(), "error", err)
		trace.SpanFromContext(ctx).RecordError(err)
		response.ErrorResponse(c, http.StatusInternalServerError, "internal error")
	}
}
