package router

import (
	"net/http"

	"github.com/cuongbtq/booking-dispatch/internal/api/handler"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes.
// metrics may be nil.
func SetupRouter(deps *handler.Dependencies, metrics http.Handler) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "booking-api-service",
		})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	h := handler.NewBookingHandler(deps)

	admins := RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin)
	customers := RequireRole(domain.RoleCustomer)
	translators := RequireRole(domain.RoleTranslator)
	anyone := RequireRole(domain.RoleCustomer, domain.RoleTranslator, domain.RoleAdmin, domain.RoleSuperAdmin)

	v1 := r.Group("/api/v1", ActorMiddleware())
	{
		bookings := v1.Group("/bookings")
		{
			bookings.POST("", customers, h.CreateBooking)
			bookings.PUT("/:id", admins, h.UpdateBooking)
			bookings.POST("/:id/accept", translators, h.AcceptBooking)
			bookings.POST("/:id/cancel", anyone, h.CancelBooking)
			bookings.POST("/:id/status", admins, h.ChangeStatus)
			bookings.POST("/:id/end", anyone, h.EndSession)
			bookings.POST("/:id/customer-not-call", RequireRole(domain.RoleTranslator, domain.RoleAdmin, domain.RoleSuperAdmin), h.CustomerNotCall)
			bookings.POST("/:id/reopen", admins, h.ReopenBooking)
			bookings.POST("/:id/notifications/resend", admins, h.ResendNotifications)
			bookings.POST("/:id/sms/resend", admins, h.ResendSMS)
		}

		v1.GET("/translators/:id/potential-jobs", RequireRole(domain.RoleTranslator, domain.RoleAdmin, domain.RoleSuperAdmin), h.PotentialJobs)
	}

	return r
}
