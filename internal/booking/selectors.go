package booking

import "github.com/hackgods/therapy-slot-booking/internal/appointment"

// Selectors are tried in order; the first to resolve wins.

var guestSelectors = []string{
	"button[data-testid='continue-as-guest']",
	"a[data-testid='continue-as-guest']",
	"button.guest-checkout",
	"#continue-as-guest",
	"input[type='checkbox'][name='guestConsent']",
	"button[name='guest']",
}

var submitSelectors = []string{
	"button[type='submit']",
	"input[type='submit']",
	"button[data-testid='submit-request']",
	"#submit-appointment-request",
	"form button.btn-primary",
}

// Containers where the site renders banners and errors. The whole visible
// text is scanned as well, so these only speed up the common case.
var (
	bannerContainers = []string{
		".alert",
		".alert-danger",
		".alert-warning",
		"[role='alert']",
		".error-message",
		".banner",
	}
	confirmationContainers = []string{
		".confirmation",
		".confirmation-message",
		".alert-success",
		"[data-testid='confirmation']",
		"[role='status']",
	}
	errorContainers = []string{
		".field-error",
		".invalid-feedback",
		".error-message",
		".alert-danger",
		"[role='alert']",
	}
)

var (
	unavailablePhrases = []string{
		"Please contact the office",
		"slot is no longer available",
		"has already been booked",
		"time slot has been taken",
	}
	tooSoonPhrases = []string{
		"appointment is very soon",
		"too soon to book",
		"please call the office",
	}
	successPhrases = []string{
		"has been received",
		"successfully submitted",
		"thank you for your request",
	}
)

type formField struct {
	name      string
	value     func(appointment.PatientData) string
	selectors []string
}

var formFields = []formField{
	{
		name:  "first_name",
		value: func(p appointment.PatientData) string { return p.FirstName },
		selectors: []string{
			"input[name='firstName']",
			"input[name='first_name']",
			"#firstName",
			"input[autocomplete='given-name']",
		},
	},
	{
		name:  "last_name",
		value: func(p appointment.PatientData) string { return p.LastName },
		selectors: []string{
			"input[name='lastName']",
			"input[name='last_name']",
			"#lastName",
			"input[autocomplete='family-name']",
		},
	},
	{
		name:  "preferred_name",
		value: func(p appointment.PatientData) string { return p.PreferredName },
		selectors: []string{
			"input[name='preferredName']",
			"input[name='preferred_name']",
			"#preferredName",
		},
	},
	{
		name:  "date_of_birth",
		value: func(p appointment.PatientData) string { return p.DateOfBirth },
		selectors: []string{
			"input[name='dateOfBirth']",
			"input[name='dob']",
			"#dateOfBirth",
			"input[autocomplete='bday']",
		},
	},
	{
		name:  "email",
		value: func(p appointment.PatientData) string { return p.Email },
		selectors: []string{
			"input[name='email']",
			"input[type='email']",
			"#email",
		},
	},
	{
		name:  "phone",
		value: func(p appointment.PatientData) string { return p.Phone },
		selectors: []string{
			"input[name='phone']",
			"input[name='phoneNumber']",
			"input[type='tel']",
			"#phone",
		},
	},
	{
		name:  "comments",
		value: func(p appointment.PatientData) string { return p.Comments },
		selectors: []string{
			"textarea[name='comments']",
			"textarea[name='message']",
			"#comments",
			"textarea",
		},
	},
}
