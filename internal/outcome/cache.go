package outcome

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

// CachedStore wraps a Store with an expiring LRU over patient summaries and
// per-technique aggregates. Appends invalidate the patient's cached entries,
// so reads after a write always see the new record.
type CachedStore struct {
	Store
	summaries  *expirable.LRU[string, *domain.PatientSummary]
	techniques *expirable.LRU[string, map[string]domain.TechniqueSummary]
}

// NewCachedStore wraps store with summary caching. size bounds the number of
// cached patients, ttl bounds staleness when another instance writes to a
// shared backend.
func NewCachedStore(store Store, size int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store:      store,
		summaries:  expirable.NewLRU[string, *domain.PatientSummary](size, nil, ttl),
		techniques: expirable.NewLRU[string, map[string]domain.TechniqueSummary](size, nil, ttl),
	}
}

// Append persists the record and drops the patient's cached aggregates.
func (s *CachedStore) Append(ctx context.Context, record *domain.OutcomeRecord) error {
	if err := s.Store.Append(ctx, record); err != nil {
		return err
	}
	s.summaries.Remove(record.PatientID)
	s.techniques.Remove(record.PatientID)
	return nil
}

// TechniqueOutcomes returns the cached per-technique aggregates, computing and
// caching them on a miss.
func (s *CachedStore) TechniqueOutcomes(ctx context.Context, patientID string) (map[string]domain.TechniqueSummary, error) {
	if cached, ok := s.techniques.Get(patientID); ok {
		return cached, nil
	}
	result, err := s.Store.TechniqueOutcomes(ctx, patientID)
	if err != nil {
		return nil, err
	}
	s.techniques.Add(patientID, result)
	return result, nil
}

// Summary returns the cached patient summary, computing and caching it on a
// miss.
func (s *CachedStore) Summary(ctx context.Context, patientID string) (*domain.PatientSummary, error) {
	if cached, ok := s.summaries.Get(patientID); ok {
		return cached, nil
	}
	summary, err := s.Store.Summary(ctx, patientID)
	if err != nil {
		return nil, err
	}
	s.summaries.Add(patientID, summary)
	return summary, nil
}
