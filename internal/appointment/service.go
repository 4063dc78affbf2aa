package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

// Service is the status store used by the booking flow. All writes go
// through Upsert so a record is created and updated on one code path.
type Service struct {
	repo       Repository
	clinicians ClinicianLookup
	logger     *logging.Logger
	now        func() time.Time
}

func NewService(repo Repository, clinicians ClinicianLookup, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:       repo,
		clinicians: clinicians,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Upsert creates or updates the record for in.Href. The clinician id and
// slot date/time come from the href; the clinician display name is looked
// up on a best-effort basis and never fails the write.
func (s *Service) Upsert(ctx context.Context, in UpsertInput) (*Record, error) {
	in.Href = strings.TrimSpace(in.Href)
	if !ValidHref(in.Href) {
		return nil, ErrInvalidHref
	}
	if in.Status != "" && !in.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}

	ref := parseHref(in.Href)
	in.ClinicianID = ref.ClinicianID
	in.AppointmentDate = ref.Date
	in.AppointmentTime = ref.Time
	if name, ok := s.clinicianName(ctx, ref.ClinicianID); ok {
		in.ClinicianName = name
	}

	rec, err := s.repo.UpsertRecord(ctx, in, s.now())
	if err != nil {
		return nil, fmt.Errorf("upsert record: %w", err)
	}
	return rec, nil
}

// Find returns the record for href, or nil when none exists.
func (s *Service) Find(ctx context.Context, href string) (*Record, error) {
	rec, err := s.repo.GetRecordByHref(ctx, strings.TrimSpace(href))
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find record: %w", err)
	}
	return rec, nil
}

func (s *Service) FindAllByStatus(ctx context.Context, status Status) ([]Record, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	records, err := s.repo.ListRecordsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("find records by status: %w", err)
	}
	return records, nil
}

// List retrieves records for the HTTP layer
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = 20 // default
	}
	if filter.Limit > 100 {
		filter.Limit = 100 // max
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	records, err := s.repo.ListRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// clinicianName treats every lookup failure as "no name".
func (s *Service) clinicianName(ctx context.Context, clinicianID string) (string, bool) {
	if clinicianID == "" || s.clinicians == nil {
		return "", false
	}

	name, err := s.clinicians.GetClinicianName(ctx, clinicianID)
	if err != nil {
		if errors.Is(err, ErrClinicianNotFound) {
			s.logger.Debug("clinician not in directory", "clinician_id", clinicianID)
		} else {
			s.logger.Warn("clinician lookup failed", "clinician_id", clinicianID, "error", err)
		}
		return "", false
	}
	return name, name != ""
}
