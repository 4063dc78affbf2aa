package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHref = "https://booking.example.com/book?clinicianId=c-42&date=2026-11-02&time=09:30"

func TestMergeCreatesUnknownRecord(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	rec, changed := NewRecord(testHref).Merge(UpsertInput{
		Href:    testHref,
		Patient: PatientData{FirstName: "Ada", LastName: "Lovelace"},
	}, now)

	require.True(t, changed)
	assert.Equal(t, StatusUnknown, rec.Status)
	assert.Equal(t, RecordID(testHref), rec.ID)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Empty(t, rec.ProcessingLog)
}

func TestMergeIdenticalInputIsNoop(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	in := UpsertInput{
		Href:    testHref,
		Patient: PatientData{FirstName: "Ada", Email: "ada@example.com"},
		Status:  StatusUnknown,
	}

	first, _ := NewRecord(testHref).Merge(in, now)
	second, changed := first.Merge(in, now.Add(time.Minute))

	assert.False(t, changed)
	assert.Equal(t, first, second)
}

func TestMergeStatusIsMonotone(t *testing.T) {
	now := time.Now().UTC()
	rec, _ := NewRecord(testHref).Merge(UpsertInput{Href: testHref, Status: StatusBooked}, now)
	require.Equal(t, StatusBooked, rec.Status)

	for _, requested := range []Status{StatusUnknown, StatusExpired} {
		next, changed := rec.Merge(UpsertInput{Href: testHref, Status: requested}, now)
		assert.False(t, changed, "requested %s", requested)
		assert.Equal(t, StatusBooked, next.Status)
	}

	expired, _ := NewRecord(testHref).Merge(UpsertInput{Href: testHref, Status: StatusExpired}, now)
	promoted, changed := expired.Merge(UpsertInput{Href: testHref, Status: StatusBooked}, now)
	assert.True(t, changed)
	assert.Equal(t, StatusBooked, promoted.Status)
}

func TestMergeAppendsLogOnStatusChangeOrMessage(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	rec, _ := NewRecord(testHref).Merge(UpsertInput{Href: testHref}, now)

	rec, _ = rec.Merge(UpsertInput{Href: testHref, Message: "submission attempt started"}, now.Add(time.Second))
	rec, _ = rec.Merge(UpsertInput{Href: testHref, Status: StatusBooked, Message: "Your request has been received"}, now.Add(2*time.Second))

	require.Len(t, rec.ProcessingLog, 2)
	assert.Equal(t, StatusUnknown, rec.ProcessingLog[0].Status)
	assert.Equal(t, "submission attempt started", rec.ProcessingLog[0].Message)
	assert.Equal(t, StatusBooked, rec.ProcessingLog[1].Status)
	assert.True(t, rec.ProcessingLog[1].At.After(rec.ProcessingLog[0].At))
}

func TestMergeKeepsExistingPatientFields(t *testing.T) {
	now := time.Now().UTC()
	rec, _ := NewRecord(testHref).Merge(UpsertInput{
		Href:    testHref,
		Patient: PatientData{FirstName: "Ada", Phone: "555-0100"},
	}, now)

	rec, changed := rec.Merge(UpsertInput{
		Href:    testHref,
		Patient: PatientData{Email: "ada@example.com"},
	}, now)

	assert.True(t, changed)
	assert.Equal(t, "Ada", rec.Patient.FirstName)
	assert.Equal(t, "555-0100", rec.Patient.Phone)
	assert.Equal(t, "ada@example.com", rec.Patient.Email)
}

func TestMergeDoesNotAliasLog(t *testing.T) {
	now := time.Now().UTC()
	base, _ := NewRecord(testHref).Merge(UpsertInput{Href: testHref, Message: "one"}, now)
	_, _ = base.Merge(UpsertInput{Href: testHref, Message: "two"}, now)

	assert.Len(t, base.ProcessingLog, 1)
}

func TestParseHref(t *testing.T) {
	tests := []struct {
		name string
		href string
		want slotRef
	}{
		{"camel case param", testHref, slotRef{ClinicianID: "c-42", Date: "2026-11-02", Time: "09:30"}},
		{"snake case param", "https://x.test/b?clinician_id=77", slotRef{ClinicianID: "77"}},
		{"no query", "https://x.test/b", slotRef{}},
		{"garbage", "://nope", slotRef{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseHref(tt.href))
		})
	}
}

func TestValidHref(t *testing.T) {
	assert.True(t, ValidHref(testHref))
	assert.False(t, ValidHref("booking.example.com/book"))
	assert.False(t, ValidHref("ftp://booking.example.com/book"))
	assert.False(t, ValidHref(""))
}
