package appointment

import (
	"net/url"
	"strings"
)

var clinicianParams = []string{"clinicianId", "clinician_id", "clinician"}

// slotRef is what the booking URL itself tells us about the slot.
type slotRef struct {
	ClinicianID string
	Date        string
	Time        string
}

// parseHref extracts the clinician id and slot date/time from the query
// string. Unparseable hrefs yield an empty ref; the href is still the key.
func parseHref(href string) slotRef {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return slotRef{}
	}
	q := u.Query()

	var ref slotRef
	for _, p := range clinicianParams {
		if v := strings.TrimSpace(q.Get(p)); v != "" {
			ref.ClinicianID = v
			break
		}
	}
	ref.Date = strings.TrimSpace(q.Get("date"))
	ref.Time = strings.TrimSpace(q.Get("time"))
	return ref
}

// ValidHref reports whether href is an absolute http(s) URL.
func ValidHref(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
