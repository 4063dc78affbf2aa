package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusUnknown Status = "unknown"
	StatusBooked  Status = "booked"
	StatusExpired Status = "expired"
)

// rank orders statuses toward a terminal outcome. Upserts never lower it.
func (s Status) rank() int {
	switch s {
	case StatusBooked:
		return 2
	case StatusExpired:
		return 1
	default:
		return 0
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusBooked, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether automation should stop for this status.
func (s Status) Terminal() bool {
	return s == StatusBooked || s == StatusExpired
}

// PatientData is what the booking form needs. Empty fields are left alone on
// merge so partial updates never erase what is already on record.
type PatientData struct {
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	PreferredName string `json:"preferred_name,omitempty"`
	DateOfBirth   string `json:"date_of_birth,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Comments      string `json:"comments,omitempty"`
}

type LogEntry struct {
	Status  Status    `json:"status"`
	At      time.Time `json:"at"`
	Message string    `json:"message,omitempty"`
}

type Record struct {
	ID              uuid.UUID
	Href            string
	ClinicianID     string
	ClinicianName   string
	Patient         PatientData
	AppointmentDate string
	AppointmentTime string

	Status           Status
	ConfirmationText string
	LastAttemptAt    *time.Time
	SubmittedAt      *time.Time
	ProcessingLog    []LogEntry

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertInput carries one write against the record for Href.
type UpsertInput struct {
	Href    string
	Patient PatientData
	// Status is the requested status. Empty keeps the current one.
	Status       Status
	Message      string
	AttemptedAt  *time.Time
	SubmittedAt  *time.Time
	Confirmation string

	// Filled by the service from the href and the clinician directory.
	ClinicianID     string
	ClinicianName   string
	AppointmentDate string
	AppointmentTime string
}

// RecordID derives the stable record id for an href.
func RecordID(href string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(href))
}

// NewRecord returns the zero state a record starts from before its first merge.
func NewRecord(href string) Record {
	return Record{
		ID:     RecordID(href),
		Href:   href,
		Status: StatusUnknown,
	}
}

// Merge applies in to r and reports whether anything changed. It is the
// single code path for both creation and update.
func (r Record) Merge(in UpsertInput, now time.Time) (Record, bool) {
	next := r
	next.ProcessingLog = append([]LogEntry(nil), r.ProcessingLog...)

	next.Patient = mergePatient(r.Patient, in.Patient)
	setIfPresent(&next.ClinicianID, in.ClinicianID)
	setIfPresent(&next.ClinicianName, in.ClinicianName)
	setIfPresent(&next.AppointmentDate, in.AppointmentDate)
	setIfPresent(&next.AppointmentTime, in.AppointmentTime)
	setIfPresent(&next.ConfirmationText, in.Confirmation)

	if in.AttemptedAt != nil {
		t := *in.AttemptedAt
		next.LastAttemptAt = &t
	}
	if in.SubmittedAt != nil {
		t := *in.SubmittedAt
		next.SubmittedAt = &t
	}

	if next.Status == "" {
		next.Status = StatusUnknown
	}
	statusChanged := false
	if in.Status != "" && in.Status.rank() > next.Status.rank() {
		next.Status = in.Status
		statusChanged = true
	}

	if statusChanged || in.Message != "" {
		next.ProcessingLog = append(next.ProcessingLog, LogEntry{
			Status:  next.Status,
			At:      now,
			Message: in.Message,
		})
	}

	changed := statusChanged ||
		in.Message != "" ||
		next.Patient != r.Patient ||
		next.ClinicianID != r.ClinicianID ||
		next.ClinicianName != r.ClinicianName ||
		next.AppointmentDate != r.AppointmentDate ||
		next.AppointmentTime != r.AppointmentTime ||
		next.ConfirmationText != r.ConfirmationText ||
		!sameTime(next.LastAttemptAt, r.LastAttemptAt) ||
		!sameTime(next.SubmittedAt, r.SubmittedAt) ||
		r.CreatedAt.IsZero()

	if changed {
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
		next.UpdatedAt = now
	}

	return next, changed
}

func mergePatient(current, in PatientData) PatientData {
	out := current
	setIfPresent(&out.FirstName, in.FirstName)
	setIfPresent(&out.LastName, in.LastName)
	setIfPresent(&out.PreferredName, in.PreferredName)
	setIfPresent(&out.DateOfBirth, in.DateOfBirth)
	setIfPresent(&out.Email, in.Email)
	setIfPresent(&out.Phone, in.Phone)
	setIfPresent(&out.Comments, in.Comments)
	return out
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// ListFilter narrows record listings for the HTTP layer.
type ListFilter struct {
	Status      Status
	ClinicianID string
	Limit       int
	Offset      int
}
