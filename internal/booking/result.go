package booking

import "github.com/hackgods/therapy-slot-booking/internal/appointment"

// Failure messages callers and operators see.
const (
	MsgAlreadyBooked     = "Appointment is already booked"
	MsgBooked            = "Appointment booked successfully"
	MsgAttemptInProgress = "Another booking attempt for this appointment is in progress"
	MsgNoConsent         = "Could not proceed past the guest consent step"
	MsgCouldNotSubmit    = "Could not submit the form"
	MsgNotConfirmed      = "Submission could not be confirmed"
)

// Result is the outcome of one submission attempt. Submit never returns an
// error; every failure is described here.
type Result struct {
	Success       bool               `json:"success"`
	AlreadyBooked bool               `json:"already_booked"`
	Status        appointment.Status `json:"status"`
	Message       string             `json:"message"`
	Confirmation  string             `json:"confirmation,omitempty"`
	// Diagnostic is visible error text captured when the outcome was unclear.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Terminal reports whether retrying this href is pointless.
func (r Result) Terminal() bool {
	return r.Success || r.AlreadyBooked || r.Status.Terminal()
}

func (r Result) outcome() string {
	switch {
	case r.Success:
		return "success"
	case r.AlreadyBooked:
		return "already_booked"
	case r.Status == appointment.StatusExpired:
		return "expired"
	default:
		return "failed"
	}
}

func failure(status appointment.Status, msg string) Result {
	if status == "" {
		status = appointment.StatusUnknown
	}
	return Result{Status: status, Message: msg}
}

func alreadyBooked() Result {
	return Result{AlreadyBooked: true, Status: appointment.StatusBooked, Message: MsgAlreadyBooked}
}
