package appointment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository keeps records in process. Used by tests and local runs
// without Postgres.
type InMemoryRepository struct {
	mu         sync.RWMutex
	records    map[string]Record
	clinicians map[string]string
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records:    make(map[string]Record),
		clinicians: make(map[string]string),
	}
}

func (r *InMemoryRepository) UpsertRecord(ctx context.Context, in UpsertInput, now time.Time) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[in.Href]
	if !ok {
		current = NewRecord(in.Href)
	}

	merged, changed := current.Merge(in, now)
	if changed {
		r.records[in.Href] = merged
	}
	out := cloneRecord(r.records[in.Href])
	return &out, nil
}

func (r *InMemoryRepository) GetRecordByHref(ctx context.Context, href string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[href]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (r *InMemoryRepository) ListRecordsByStatus(ctx context.Context, status Status) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Record
	for _, rec := range r.records {
		if rec.Status == status {
			result = append(result, cloneRecord(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemoryRepository) ListRecords(ctx context.Context, filter ListFilter) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Record
	for _, rec := range r.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.ClinicianID != "" && rec.ClinicianID != filter.ClinicianID {
			continue
		}
		result = append(result, cloneRecord(rec))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	if filter.Offset >= len(result) {
		return nil, nil
	}
	result = result[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// AddClinician registers a directory entry.
func (r *InMemoryRepository) AddClinician(clinicianID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clinicians[clinicianID] = name
}

func (r *InMemoryRepository) GetClinicianName(ctx context.Context, clinicianID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.clinicians[clinicianID]
	if !ok {
		return "", ErrClinicianNotFound
	}
	return name, nil
}

func cloneRecord(rec Record) Record {
	rec.ProcessingLog = append([]LogEntry(nil), rec.ProcessingLog...)
	return rec
}
