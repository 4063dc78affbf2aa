package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
)

// BookingRequest is the body of enroll and submit calls.
type BookingRequest struct {
	Href    string                  `json:"href"`
	Patient appointment.PatientData `json:"patient"`
}

type CheckRequest struct {
	Href string `json:"href"`
}

type CheckResponse struct {
	Href   string `json:"href"`
	Booked bool   `json:"booked"`
}

type LogEntryResponse struct {
	Status  string    `json:"status"`
	At      time.Time `json:"at"`
	Message string    `json:"message,omitempty"`
}

type RecordResponse struct {
	ID               uuid.UUID               `json:"id"`
	Href             string                  `json:"href"`
	ClinicianID      string                  `json:"clinician_id,omitempty"`
	ClinicianName    string                  `json:"clinician_name,omitempty"`
	Patient          appointment.PatientData `json:"patient"`
	AppointmentDate  string                  `json:"appointment_date,omitempty"`
	AppointmentTime  string                  `json:"appointment_time,omitempty"`
	Status           string                  `json:"status"`
	ConfirmationText string                  `json:"confirmation_text,omitempty"`
	LastAttemptAt    *time.Time              `json:"last_attempt_at,omitempty"`
	SubmittedAt      *time.Time              `json:"submitted_at,omitempty"`
	ProcessingLog    []LogEntryResponse      `json:"processing_log"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

type ListRecordsResponse struct {
	Records []RecordResponse `json:"records"`
	Count   int              `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toRecordResponse(rec *appointment.Record) RecordResponse {
	logs := make([]LogEntryResponse, 0, len(rec.ProcessingLog))
	for _, e := range rec.ProcessingLog {
		logs = append(logs, LogEntryResponse{
			Status:  string(e.Status),
			At:      e.At,
			Message: e.Message,
		})
	}
	return RecordResponse{
		ID:               rec.ID,
		Href:             rec.Href,
		ClinicianID:      rec.ClinicianID,
		ClinicianName:    rec.ClinicianName,
		Patient:          rec.Patient,
		AppointmentDate:  rec.AppointmentDate,
		AppointmentTime:  rec.AppointmentTime,
		Status:           string(rec.Status),
		ConfirmationText: rec.ConfirmationText,
		LastAttemptAt:    rec.LastAttemptAt,
		SubmittedAt:      rec.SubmittedAt,
		ProcessingLog:    logs,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}
