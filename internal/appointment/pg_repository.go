package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx pool so pgxmock can stand in during tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

const recordColumns = `id, href, clinician_id, clinician_name,
	first_name, last_name, preferred_name, date_of_birth, email, phone, comments,
	appointment_date, appointment_time, status, confirmation_text,
	last_attempt_at, submitted_at, processing_log, created_at, updated_at`

// Helpers

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var id, status string
	var logJSON []byte

	err := row.Scan(
		&id,
		&r.Href,
		&r.ClinicianID,
		&r.ClinicianName,
		&r.Patient.FirstName,
		&r.Patient.LastName,
		&r.Patient.PreferredName,
		&r.Patient.DateOfBirth,
		&r.Patient.Email,
		&r.Patient.Phone,
		&r.Patient.Comments,
		&r.AppointmentDate,
		&r.AppointmentTime,
		&status,
		&r.ConfirmationText,
		&r.LastAttemptAt,
		&r.SubmittedAt,
		&logJSON,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	r.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse record id: %w", err)
	}
	r.Status = Status(status)
	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &r.ProcessingLog); err != nil {
			return nil, fmt.Errorf("decode processing log: %w", err)
		}
	}
	return &r, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var result []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

// UpsertRecord locks the existing row and merges in Go. A missing row is
// created with ON CONFLICT DO NOTHING; when another writer got there first
// the merge is redone on top of its row so neither log is lost.
func (r *PgRepository) UpsertRecord(ctx context.Context, in UpsertInput, now time.Time) (*Record, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := selectRecordForUpdate(ctx, tx, in.Href)
	if errors.Is(err, ErrRecordNotFound) {
		fresh := NewRecord(in.Href)
		merged, _ := fresh.Merge(in, now)

		saved, err := insertRecord(ctx, tx, merged)
		if err == nil {
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("commit upsert: %w", err)
			}
			return saved, nil
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}

		// Lost the insert race; the winner's row is committed by now.
		current, err = selectRecordForUpdate(ctx, tx, in.Href)
		if err != nil {
			return nil, fmt.Errorf("reload record after conflict: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load record for upsert: %w", err)
	}

	merged, changed := current.Merge(in, now)
	if !changed {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit upsert: %w", err)
		}
		return current, nil
	}

	saved, err := updateRecord(ctx, tx, merged)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return saved, nil
}

func selectRecordForUpdate(ctx context.Context, tx pgx.Tx, href string) (*Record, error) {
	return scanRecord(tx.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM appointment_records
		WHERE href = $1
		FOR UPDATE
	`, href))
}

// insertRecord returns ErrRecordNotFound when the href already exists.
func insertRecord(ctx context.Context, tx pgx.Tx, rec Record) (*Record, error) {
	logJSON, err := json.Marshal(rec.ProcessingLog)
	if err != nil {
		return nil, fmt.Errorf("encode processing log: %w", err)
	}

	saved, err := scanRecord(tx.QueryRow(ctx, `
		INSERT INTO appointment_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (href) DO NOTHING
		RETURNING `+recordColumns,
		rec.ID.String(),
		rec.Href,
		rec.ClinicianID,
		rec.ClinicianName,
		rec.Patient.FirstName,
		rec.Patient.LastName,
		rec.Patient.PreferredName,
		rec.Patient.DateOfBirth,
		rec.Patient.Email,
		rec.Patient.Phone,
		rec.Patient.Comments,
		rec.AppointmentDate,
		rec.AppointmentTime,
		string(rec.Status),
		rec.ConfirmationText,
		rec.LastAttemptAt,
		rec.SubmittedAt,
		logJSON,
		rec.CreatedAt,
		rec.UpdatedAt,
	))
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	return saved, err
}

func updateRecord(ctx context.Context, tx pgx.Tx, rec Record) (*Record, error) {
	logJSON, err := json.Marshal(rec.ProcessingLog)
	if err != nil {
		return nil, fmt.Errorf("encode processing log: %w", err)
	}

	saved, err := scanRecord(tx.QueryRow(ctx, `
		UPDATE appointment_records SET
			clinician_id = $2,
			clinician_name = $3,
			first_name = $4,
			last_name = $5,
			preferred_name = $6,
			date_of_birth = $7,
			email = $8,
			phone = $9,
			comments = $10,
			appointment_date = $11,
			appointment_time = $12,
			status = $13,
			confirmation_text = $14,
			last_attempt_at = $15,
			submitted_at = $16,
			processing_log = $17,
			updated_at = $18
		WHERE href = $1
		RETURNING `+recordColumns,
		rec.Href,
		rec.ClinicianID,
		rec.ClinicianName,
		rec.Patient.FirstName,
		rec.Patient.LastName,
		rec.Patient.PreferredName,
		rec.Patient.DateOfBirth,
		rec.Patient.Email,
		rec.Patient.Phone,
		rec.Patient.Comments,
		rec.AppointmentDate,
		rec.AppointmentTime,
		string(rec.Status),
		rec.ConfirmationText,
		rec.LastAttemptAt,
		rec.SubmittedAt,
		logJSON,
		rec.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	return saved, nil
}

func (r *PgRepository) GetRecordByHref(ctx context.Context, href string) (*Record, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM appointment_records
		WHERE href = $1
	`, href)
	return scanRecord(row)
}

func (r *PgRepository) ListRecordsByStatus(ctx context.Context, status Status) ([]Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM appointment_records
		WHERE status = $1
		ORDER BY created_at ASC
	`, string(status))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (r *PgRepository) ListRecords(ctx context.Context, filter ListFilter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if filter.ClinicianID != "" {
		args = append(args, filter.ClinicianID)
		where = append(where, fmt.Sprintf("clinician_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + recordColumns + ` FROM appointment_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (r *PgRepository) GetClinicianName(ctx context.Context, clinicianID string) (string, error) {
	var name string
	err := r.db.QueryRow(ctx, `
		SELECT name
		FROM clinicians
		WHERE id = $1
	`, clinicianID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrClinicianNotFound
		}
		return "", err
	}
	return name, nil
}

// UpsertClinician is used by the seed command to populate the directory.
func (r *PgRepository) UpsertClinician(ctx context.Context, clinicianID, name string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO clinicians (id, name, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = now()
	`, clinicianID, name)
	if err != nil {
		return fmt.Errorf("upsert clinician: %w", err)
	}
	return nil
}
