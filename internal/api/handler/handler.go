package handler

import (
	"log/slog"

	"github.com/cuongbtq/booking-dispatch/internal/booking"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/gin-gonic/gin"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Bookings *booking.Service
}

// BookingHandler handles booking lifecycle HTTP requests
type BookingHandler struct {
	logger   *slog.Logger
	bookings *booking.Service
}

// NewBookingHandler creates a new BookingHandler instance
func NewBookingHandler(deps *Dependencies) *BookingHandler {
	return &BookingHandler{
		logger:   deps.Logger,
		bookings: deps.Bookings,
	}
}

const actorKey = "actor"

// SetActor stores the authenticated caller on the request context
func SetActor(c *gin.Context, actor domain.Actor) {
	c.Set(actorKey, actor)
}

// ActorFrom returns the caller set by the actor middleware
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}
