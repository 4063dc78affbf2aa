package appointment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordColumnNames = []string{
	"id", "href", "clinician_id", "clinician_name",
	"first_name", "last_name", "preferred_name", "date_of_birth", "email", "phone", "comments",
	"appointment_date", "appointment_time", "status", "confirmation_text",
	"last_attempt_at", "submitted_at", "processing_log", "created_at", "updated_at",
}

func recordRow(rec Record) []any {
	logJSON, _ := json.Marshal(rec.ProcessingLog)
	return []any{
		rec.ID.String(), rec.Href, rec.ClinicianID, rec.ClinicianName,
		rec.Patient.FirstName, rec.Patient.LastName, rec.Patient.PreferredName,
		rec.Patient.DateOfBirth, rec.Patient.Email, rec.Patient.Phone, rec.Patient.Comments,
		rec.AppointmentDate, rec.AppointmentTime, string(rec.Status), rec.ConfirmationText,
		rec.LastAttemptAt, rec.SubmittedAt, logJSON, rec.CreatedAt, rec.UpdatedAt,
	}
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPgRepositoryUpsertCreatesRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	in := UpsertInput{
		Href:        testHref,
		Patient:     PatientData{FirstName: "Ada"},
		Status:      StatusUnknown,
		ClinicianID: "c-42",
	}
	want, _ := NewRecord(testHref).Merge(in, now)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM appointment_records").
		WithArgs(testHref).
		WillReturnRows(pgxmock.NewRows(recordColumnNames))
	mock.ExpectQuery("INSERT INTO appointment_records (.+) ON CONFLICT \\(href\\) DO NOTHING").
		WithArgs(anyArgs(20)...).
		WillReturnRows(pgxmock.NewRows(recordColumnNames).AddRow(recordRow(want)...))
	mock.ExpectCommit()

	repo := NewPgRepository(mock)
	got, err := repo.UpsertRecord(context.Background(), in, now)
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, StatusUnknown, got.Status)
	assert.Equal(t, "Ada", got.Patient.FirstName)
	assert.Equal(t, "c-42", got.ClinicianID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryUpsertSkipsWriteWhenUnchanged(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	in := UpsertInput{Href: testHref, Patient: PatientData{FirstName: "Ada"}}
	existing, _ := NewRecord(testHref).Merge(in, now)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM appointment_records").
		WithArgs(testHref).
		WillReturnRows(pgxmock.NewRows(recordColumnNames).AddRow(recordRow(existing)...))
	mock.ExpectCommit()

	repo := NewPgRepository(mock)
	got, err := repo.UpsertRecord(context.Background(), in, now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, existing.UpdatedAt, got.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryUpsertUpdatesExistingRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	existing, _ := NewRecord(testHref).Merge(UpsertInput{Href: testHref, Message: "queued"}, now)
	in := UpsertInput{Href: testHref, Status: StatusBooked, Message: "booking confirmed"}
	want, _ := existing.Merge(in, now.Add(time.Minute))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM appointment_records\\s+WHERE href = \\$1\\s+FOR UPDATE").
		WithArgs(testHref).
		WillReturnRows(pgxmock.NewRows(recordColumnNames).AddRow(recordRow(existing)...))
	mock.ExpectQuery("UPDATE appointment_records SET").
		WithArgs(anyArgs(18)...).
		WillReturnRows(pgxmock.NewRows(recordColumnNames).AddRow(recordRow(want)...))
	mock.ExpectCommit()

	repo := NewPgRepository(mock)
	got, err := repo.UpsertRecord(context.Background(), in, now.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, StatusBooked, got.Status)
	require.Len(t, got.ProcessingLog, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryUpsertMergesOntoConcurrentInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	// another writer created the row between our read and our insert
	theirs, _ := NewRecord(testHref).Merge(UpsertInput{Href: testHref, Message: "enrolled"}, now)
	in := UpsertInput{Href: testHref, Message: "submission attempt started"}
	want, _ := theirs.Merge(in, now.Add(time.Second))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM appointment_records").
		WithArgs(testHref).
		WillReturnRows(pgxmock.NewRows(recordColumnNames))
	mock.ExpectQuery("INSERT INTO appointment_records (.+) ON CONFLICT \\(href\\) DO NOTHING").
		WithArgs(anyArgs(20)...).
		WillReturnRows(pgxmock.NewRows(recordColumnNames))
	mock.ExpectQuery("SELECT (.+) FROM appointment_records").
		WithArgs(testHref).
		WillReturnRows(pgxmock.NewRows(recordColumnNames).AddRow(recordRow(theirs)...))
	mock.ExpectQuery("UPDATE appointment_records SET").
		WithArgs(anyArgs(18)...).
		WillReturnRows(pgxmock.NewRows(recordColumnNames).AddRow(recordRow(want)...))
	mock.ExpectCommit()

	repo := NewPgRepository(mock)
	got, err := repo.UpsertRecord(context.Background(), in, now.Add(time.Second))
	require.NoError(t, err)

	require.Len(t, got.ProcessingLog, 2)
	assert.Equal(t, "enrolled", got.ProcessingLog[0].Message)
	assert.Equal(t, "submission attempt started", got.ProcessingLog[1].Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryGetRecordByHrefNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM appointment_records").
		WithArgs(testHref).
		WillReturnRows(pgxmock.NewRows(recordColumnNames))

	repo := NewPgRepository(mock)
	_, err = repo.GetRecordByHref(context.Background(), testHref)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryListRecordsByStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	a, _ := NewRecord("https://x.test/b?slot=1").Merge(UpsertInput{Href: "https://x.test/b?slot=1", Message: "queued"}, now)
	b, _ := NewRecord("https://x.test/b?slot=2").Merge(UpsertInput{Href: "https://x.test/b?slot=2"}, now)

	mock.ExpectQuery("SELECT (.+) FROM appointment_records\\s+WHERE status = \\$1").
		WithArgs("unknown").
		WillReturnRows(pgxmock.NewRows(recordColumnNames).
			AddRow(recordRow(a)...).
			AddRow(recordRow(b)...))

	repo := NewPgRepository(mock)
	records, err := repo.ListRecordsByStatus(context.Background(), StatusUnknown)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, a.Href, records[0].Href)
	require.Len(t, records[0].ProcessingLog, 1)
	assert.Equal(t, "queued", records[0].ProcessingLog[0].Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryListRecordsBuildsFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("WHERE clinician_id = \\$1 AND status = \\$2 ORDER BY updated_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("c-42", "booked", 20, 40).
		WillReturnRows(pgxmock.NewRows(recordColumnNames))

	repo := NewPgRepository(mock)
	records, err := repo.ListRecords(context.Background(), ListFilter{
		Status: StatusBooked, ClinicianID: "c-42", Limit: 20, Offset: 40,
	})
	require.NoError(t, err)
	assert.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryGetClinicianName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT name\\s+FROM clinicians").
		WithArgs("c-42").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Dr. Grace Hopper"))
	mock.ExpectQuery("SELECT name\\s+FROM clinicians").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"name"}))

	repo := NewPgRepository(mock)
	name, err := repo.GetClinicianName(context.Background(), "c-42")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Grace Hopper", name)

	_, err = repo.GetClinicianName(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrClinicianNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
