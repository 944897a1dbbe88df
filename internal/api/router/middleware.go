package router

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/api/dto"
	"github.com/cuongbtq/booking-dispatch/internal/api/handler"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/gin-gonic/gin"
)

// Headers set by the upstream gateway after authentication
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		attrs := []any{
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.String("ip", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("body_size", c.Writer.Size()),
		}
		if actor, ok := handler.ActorFrom(c); ok {
			attrs = append(attrs, slog.Int64("actor_id", actor.ID), slog.String("actor_role", string(actor.Role)))
		}
		logger.Info("HTTP Request", attrs...)

		for _, e := range c.Errors {
			logger.Error("Request error",
				slog.String("error", e.Error()),
				slog.Uint64("type", uint64(e.Type)),
			)
		}
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID, X-User-Role")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ActorMiddleware trusts the identity headers of the gateway
func ActorMiddleware() gin.HandlerFunc {
	roles := []domain.Role{domain.RoleCustomer, domain.RoleTranslator, domain.RoleAdmin, domain.RoleSuperAdmin}

	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
		if err != nil || id <= 0 {
			unauthorized(c, "missing or invalid "+HeaderUserID)
			return
		}
		role := domain.Role(c.GetHeader(HeaderUserRole))
		if !slices.Contains(roles, role) {
			unauthorized(c, "missing or invalid "+HeaderUserRole)
			return
		}

		handler.SetActor(c, domain.Actor{ID: id, Role: role})
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed
func RequireRole(allowed ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := handler.ActorFrom(c)
		if !ok || !slices.Contains(allowed, actor.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.ErrorResponse{
				Status:  "fail",
				Message: "not allowed for this role",
			})
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
		Status:  "fail",
		Message: message,
	})
}
