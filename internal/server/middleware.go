package server

import (
	"ctchen222/passplay/internal/api/response"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// traceRequest opens a span for every request and logs its result.
func traceRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(c.Request.Context(), fmt.Sprintf("%s %s", c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
			))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		slog.InfoContext(ctx, "HTTP request",
			"http.method", c.Request.Method,
			"http.route", route,
			"http.status_code", status,
			"duration", time.Since(start),
		)
	}
}

var errMissingToken = errors.New("missing table token")

// tokenFrom reads the table token from the Authorization header or, for
// websocket upgrades, the token query parameter.
func tokenFrom(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return "", errMissingToken
		}
		return raw, nil
	}
	if raw := c.Query("token"); raw != "" {
		return raw, nil
	}
	return "", errMissingToken
}

// requireToken rejects requests that do not carry the token of the table
// named by the :id parameter.
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := tokenFrom(c)
		if err == nil {
			err = s.tokens.Verify(raw, c.Param("id"))
		}
		if err != nil {
			span := trace.SpanFromContext(c.Request.Context())
			span.RecordError(err)
			slog.WarnContext(c.Request.Context(), "Rejected table token", "table.id", c.Param("id"), "error", err)
			response.ErrorResponse(c, http.StatusUnauthorized, err.Error())
			return
		}
		c.Next()
	}
}
