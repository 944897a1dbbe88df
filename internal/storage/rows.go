package storage

import (
	"database/sql"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/lib/pq"
)

const jobColumns = `
	id, user_id, status, due, immediate, from_language_id, duration,
	gender, certified, job_type, customer_phone_type, customer_physical_type,
	town, session_time_seconds, admin_comments, reference, user_email,
	created_at, will_expire_at, withdraw_at, end_at, expiry_notified`

// jobRow is the jobs table layout
type jobRow struct {
	ID                   int64        `db:"id"`
	UserID               int64        `db:"user_id"`
	Status               string       `db:"status"`
	Due                  time.Time    `db:"due"`
	Immediate            bool         `db:"immediate"`
	FromLanguageID       int64        `db:"from_language_id"`
	Duration             int          `db:"duration"`
	Gender               string       `db:"gender"`
	Certified            string       `db:"certified"`
	JobType              string       `db:"job_type"`
	CustomerPhoneType    bool         `db:"customer_phone_type"`
	CustomerPhysicalType bool         `db:"customer_physical_type"`
	Town                 string       `db:"town"`
	SessionTimeSeconds   int64        `db:"session_time_seconds"`
	AdminComments        string       `db:"admin_comments"`
	Reference            string       `db:"reference"`
	UserEmail            string       `db:"user_email"`
	CreatedAt            time.Time    `db:"created_at"`
	WillExpireAt         time.Time    `db:"will_expire_at"`
	WithdrawAt           sql.NullTime `db:"withdraw_at"`
	EndAt                sql.NullTime `db:"end_at"`
	ExpiryNotified       bool         `db:"expiry_notified"`
}

func (r *jobRow) toDomain() *domain.Job {
	return &domain.Job{
		ID:                   r.ID,
		UserID:               r.UserID,
		Status:               domain.JobStatus(r.Status),
		Due:                  r.Due,
		Immediate:            r.Immediate,
		FromLanguageID:       r.FromLanguageID,
		Duration:             r.Duration,
		Gender:               domain.Gender(r.Gender),
		Certified:            domain.Certification(r.Certified),
		JobType:              domain.JobType(r.JobType),
		CustomerPhoneType:    r.CustomerPhoneType,
		CustomerPhysicalType: r.CustomerPhysicalType,
		Town:                 r.Town,
		SessionTime:          time.Duration(r.SessionTimeSeconds) * time.Second,
		AdminComments:        r.AdminComments,
		Reference:            r.Reference,
		UserEmail:            r.UserEmail,
		CreatedAt:            r.CreatedAt,
		WillExpireAt:         r.WillExpireAt,
		WithdrawAt:           nullTimePtr(r.WithdrawAt),
		EndAt:                nullTimePtr(r.EndAt),
		ExpiryNotified:       r.ExpiryNotified,
	}
}

// assignmentRow is the translator_assignments table layout
type assignmentRow struct {
	ID           int64         `db:"id"`
	JobID        int64         `db:"job_id"`
	TranslatorID int64         `db:"translator_id"`
	CreatedAt    time.Time     `db:"created_at"`
	CancelAt     sql.NullTime  `db:"cancel_at"`
	CompletedAt  sql.NullTime  `db:"completed_at"`
	CompletedBy  sql.NullInt64 `db:"completed_by"`
}

func (r *assignmentRow) toDomain() *domain.Assignment {
	a := &domain.Assignment{
		ID:           r.ID,
		JobID:        r.JobID,
		TranslatorID: r.TranslatorID,
		CreatedAt:    r.CreatedAt,
		CancelAt:     nullTimePtr(r.CancelAt),
		CompletedAt:  nullTimePtr(r.CompletedAt),
	}
	if r.CompletedBy.Valid {
		by := r.CompletedBy.Int64
		a.CompletedBy = &by
	}
	return a
}

// translatorRow joins users, translator_profiles and translator_languages
type translatorRow struct {
	ID                 int64         `db:"id"`
	Email              string        `db:"email"`
	Name               string        `db:"name"`
	Mobile             string        `db:"mobile"`
	RoleID             int64         `db:"role_id"`
	Active             bool          `db:"active"`
	Town               string        `db:"town"`
	NotGetNotification bool          `db:"not_get_notification"`
	NotGetNighttime    bool          `db:"not_get_nighttime"`
	TranslatorType     string        `db:"translator_type"`
	TranslatorLevel    string        `db:"translator_level"`
	Gender             string        `db:"gender"`
	NotGetEmergency    bool          `db:"not_get_emergency"`
	LanguageIDs        pq.Int64Array `db:"language_ids"`
}

func (r *translatorRow) toDomain() *domain.Translator {
	return &domain.Translator{
		ID:                 r.ID,
		Email:              r.Email,
		Name:               r.Name,
		Mobile:             r.Mobile,
		RoleID:             r.RoleID,
		Active:             r.Active,
		Type:               domain.TranslatorType(r.TranslatorType),
		Level:              domain.TranslatorLevel(r.TranslatorLevel),
		Gender:             domain.Gender(r.Gender),
		Town:               r.Town,
		LanguageIDs:        []int64(r.LanguageIDs),
		NotGetNotification: r.NotGetNotification,
		NotGetEmergency:    r.NotGetEmergency,
		NotGetNighttime:    r.NotGetNighttime,
	}
}

// customerRow joins users and customer_profiles
type customerRow struct {
	ID                 int64  `db:"id"`
	Email              string `db:"email"`
	Name               string `db:"name"`
	Town               string `db:"town"`
	ConsumerType       string `db:"consumer_type"`
	CustomerType       string `db:"customer_type"`
	NotGetNotification bool   `db:"not_get_notification"`
	NotGetNighttime    bool   `db:"not_get_nighttime"`
}

func (r *customerRow) toDomain() *domain.Customer {
	return &domain.Customer{
		ID:                 r.ID,
		Email:              r.Email,
		Name:               r.Name,
		Town:               r.Town,
		ConsumerType:       domain.ConsumerType(r.ConsumerType),
		CustomerType:       r.CustomerType,
		NotGetNotification: r.NotGetNotification,
		NotGetNighttime:    r.NotGetNighttime,
	}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timePtrNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
