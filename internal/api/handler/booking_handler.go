package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/api/dto"
	"github.com/cuongbtq/booking-dispatch/internal/booking"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/gin-gonic/gin"
)

var (
	genders = map[string]domain.Gender{
		"":       domain.GenderAny,
		"male":   domain.GenderMale,
		"female": domain.GenderFemale,
	}
	certifications = map[string]domain.Certification{
		"":         domain.CertificationAny,
		"yes":      domain.CertificationYes,
		"both":     domain.CertificationBoth,
		"law":      domain.CertificationLaw,
		"n_law":    domain.CertificationLawNeeded,
		"health":   domain.CertificationHealth,
		"n_health": domain.CertificationHealthNeeded,
		"normal":   domain.CertificationNormal,
	}
)

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, name+" must be a positive integer", name)
		return 0, false
	}
	return id, true
}

func parseSessionTime(raw *string) (*time.Duration, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil || d <= 0 {
		return nil, domain.NewValidationError("session_time", "session time must be a positive duration")
	}
	return &d, nil
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		fail(c, http.StatusBadRequest, "invalid request body", "")
		return
	}

	gender, ok := genders[req.Gender]
	if !ok {
		fail(c, http.StatusBadRequest, "unknown gender", "gender")
		return
	}
	certified, ok := certifications[req.Certified]
	if !ok {
		fail(c, http.StatusBadRequest, "unknown certification", "certified")
		return
	}

	actor, _ := ActorFrom(c)
	job, err := h.bookings.CreateJob(c.Request.Context(), actor, booking.CreateJobInput{
		Immediate:            req.Immediate,
		Due:                  req.Due,
		FromLanguageID:       req.FromLanguageID,
		Duration:             req.Duration,
		Gender:               gender,
		Certified:            certified,
		CustomerPhoneType:    req.CustomerPhoneType,
		CustomerPhysicalType: req.CustomerPhysicalType,
		Town:                 req.Town,
		Reference:            req.Reference,
		UserEmail:            req.UserEmail,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// UpdateBooking handles PUT /api/v1/bookings/:id
func (h *BookingHandler) UpdateBooking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		fail(c, http.StatusBadRequest, "invalid request body", "")
		return
	}

	in := booking.UpdateJobInput{
		Due:            req.Due,
		FromLanguageID: req.FromLanguageID,
		AdminComments:  req.AdminComments,
		Reference:      req.Reference,
		Translator:     booking.TranslatorRef{ID: req.TranslatorID, Email: req.TranslatorEmail},
	}
	if req.Status != nil {
		status, err := domain.ParseJobStatus(*req.Status)
		if err != nil {
			h.respondError(c, err)
			return
		}
		in.Status = &status
	}
	session, err := parseSessionTime(req.SessionTime)
	if err != nil {
		h.respondError(c, err)
		return
	}
	in.SessionTime = session

	actor, _ := ActorFrom(c)
	result, err := h.bookings.UpdateJob(c.Request.Context(), actor, id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AcceptBooking handles POST /api/v1/bookings/:id/accept
func (h *BookingHandler) AcceptBooking(c *gin.Context) {
	h.jobAction(c, h.bookings.Accept)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	h.jobAction(c, h.bookings.Cancel)
}

// EndSession handles POST /api/v1/bookings/:id/end
func (h *BookingHandler) EndSession(c *gin.Context) {
	h.jobAction(c, h.bookings.EndSession)
}

// CustomerNotCall handles POST /api/v1/bookings/:id/customer-not-call
func (h *BookingHandler) CustomerNotCall(c *gin.Context) {
	h.jobAction(c, h.bookings.CustomerNotCall)
}

// ReopenBooking handles POST /api/v1/bookings/:id/reopen
func (h *BookingHandler) ReopenBooking(c *gin.Context) {
	h.jobAction(c, h.bookings.Reopen)
}

// ResendNotifications handles POST /api/v1/bookings/:id/notifications/resend
func (h *BookingHandler) ResendNotifications(c *gin.Context) {
	h.jobAction(c, h.bookings.ResendNotifications)
}

// ResendSMS handles POST /api/v1/bookings/:id/sms/resend
func (h *BookingHandler) ResendSMS(c *gin.Context) {
	h.jobAction(c, h.bookings.ResendSMS)
}

type jobActionFunc func(ctx context.Context, actor domain.Actor, jobID int64) (*domain.Job, error)

func (h *BookingHandler) jobAction(c *gin.Context, action jobActionFunc) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	actor, _ := ActorFrom(c)
	job, err := action(c.Request.Context(), actor, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ChangeStatus handles POST /api/v1/bookings/:id/status
func (h *BookingHandler) ChangeStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "status is required", "status")
		return
	}
	target, err := domain.ParseJobStatus(req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	session, err := parseSessionTime(req.SessionTime)
	if err != nil {
		h.respondError(c, err)
		return
	}

	actor, _ := ActorFrom(c)
	result, err := h.bookings.ChangeStatus(c.Request.Context(), actor, id, booking.TransitionRequest{
		Target:       target,
		AdminComment: req.AdminComment,
		SessionTime:  session,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !result.Applied {
		fail(c, http.StatusConflict, result.Reason, "status")
		return
	}

	c.JSON(http.StatusOK, result)
}

// PotentialJobs handles GET /api/v1/translators/:id/potential-jobs
func (h *BookingHandler) PotentialJobs(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if actor, _ := ActorFrom(c); !actor.IsAdmin() && actor.ID != id {
		fail(c, http.StatusForbidden, "translators may only list their own jobs", "")
		return
	}

	jobs, err := h.bookings.PotentialJobs(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.PotentialJobsResponse{TranslatorID: id, Jobs: jobs})
}
