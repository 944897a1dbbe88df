package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/booking-dispatch/internal/api/dto"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/gin-gonic/gin"
)

func fail(c *gin.Context, code int, message, field string) {
	c.AbortWithStatusJSON(code, dto.ErrorResponse{
		Status:    "fail",
		Message:   message,
		FieldName: field,
	})
}

// respondError maps domain errors to HTTP status codes. Anything unknown is
// logged and reported as a 500 without details.
func (h *BookingHandler) respondError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	var conflictErr *domain.ConflictError

	switch {
	case errors.As(err, &validationErr):
		fail(c, http.StatusBadRequest, validationErr.Message, validationErr.Field)
	case errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrTranslatorNotFound),
		errors.Is(err, domain.ErrCustomerNotFound):
		fail(c, http.StatusNotFound, err.Error(), "")
	case errors.As(err, &conflictErr):
		fail(c, http.StatusConflict, conflictErr.Message, "")
	case errors.Is(err, domain.ErrNoActiveAssignment):
		fail(c, http.StatusConflict, err.Error(), "")
	default:
		h.logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		fail(c, http.StatusInternalServerError, "internal server error", "")
	}
}
