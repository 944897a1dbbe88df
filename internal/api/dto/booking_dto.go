package dto

import "time"

type CreateBookingRequest struct {
	Immediate            bool       `json:"immediate"`
	Due                  *time.Time `json:"due"`
	FromLanguageID       int64      `json:"from_language_id" binding:"required"`
	Duration             int        `json:"duration" binding:"required"`
	Gender               string     `json:"gender"`
	Certified            string     `json:"certified"`
	CustomerPhoneType    bool       `json:"customer_phone_type"`
	CustomerPhysicalType bool       `json:"customer_physical_type"`
	Town                 string     `json:"town"`
	Reference            string     `json:"reference"`
	UserEmail            string     `json:"user_email"`
}

type UpdateBookingRequest struct {
	Due             *time.Time `json:"due"`
	FromLanguageID  *int64     `json:"from_language_id"`
	AdminComments   *string    `json:"admin_comments"`
	Reference       *string    `json:"reference"`
	TranslatorID    int64      `json:"translator_id"`
	TranslatorEmail string     `json:"translator_email"`
	Status          *string    `json:"status"`
	// SessionTime is a Go duration string such as "1h30m"
	SessionTime *string `json:"session_time"`
}

type ChangeStatusRequest struct {
	Status       string  `json:"status" binding:"required"`
	AdminComment string  `json:"admin_comment"`
	SessionTime  *string `json:"session_time"`
}

type ErrorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	FieldName string `json:"field_name,omitempty"`
}

type PotentialJobsResponse struct {
	TranslatorID int64 `json:"translator_id"`
	Jobs         any   `json:"jobs"`
}
