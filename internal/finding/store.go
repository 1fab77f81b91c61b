// Package finding defines the normalized finding data model and the
// append-only, internally synchronized store that is the pipeline's shared
// data backbone. All mutation goes through the store's narrow interface;
// no other component takes a lock.
package finding

import (
	"sync"
	"time"

	"github.com/pattonant/autopen2.0/internal/types"
)

// Filter provides filtering options for store queries.
// The zero filter matches every finding.
type Filter struct {
	Phase     *types.Phase
	TargetKey *string
	Category  *Category
	Status    *Status
}

// NewFilter creates a new empty filter.
func NewFilter() *Filter {
	return &Filter{}
}

// WithPhase filters by originating phase.
func (f *Filter) WithPhase(phase types.Phase) *Filter {
	f.Phase = &phase
	return f
}

// WithTarget filters by target identity (host, host:port or URL).
func (f *Filter) WithTarget(t types.Target) *Filter {
	key := t.Key()
	f.TargetKey = &key
	return f
}

// WithCategory filters by finding category.
func (f *Filter) WithCategory(category Category) *Filter {
	f.Category = &category
	return f
}

// WithStatus filters by lifecycle status.
func (f *Filter) WithStatus(status Status) *Filter {
	f.Status = &status
	return f
}

// matches reports whether the finding passes every set predicate.
func (f *Filter) matches(finding *Finding) bool {
	if f == nil {
		return true
	}
	if f.Phase != nil && finding.PhaseOrigin != *f.Phase {
		return false
	}
	if f.TargetKey != nil && finding.Target.Key() != *f.TargetKey {
		return false
	}
	if f.Category != nil && finding.Category != *f.Category {
		return false
	}
	if f.Status != nil && finding.Status != *f.Status {
		return false
	}
	return true
}

// Store is the in-memory finding collection. Findings are retained for the
// session lifetime; there is no delete operation. Insertion order is
// preserved, which also preserves per-target insertion order for
// deterministic querying.
type Store struct {
	mu       sync.RWMutex
	findings []*Finding
	byID     map[types.ID]*Finding
	byDedup  map[string]*Finding
}

// NewStore creates an empty finding store.
func NewStore() *Store {
	return &Store{
		byID:    make(map[types.ID]*Finding),
		byDedup: make(map[string]*Finding),
	}
}

// Add inserts a finding and returns its assigned ID. A duplicate insert
// (same target, category and evidence hash) does not create a new row:
// it refreshes the existing finding's confidence and discovery timestamp
// and returns the existing ID.
func (s *Store) Add(f Finding) (types.ID, error) {
	if err := f.Validate(); err != nil {
		return "", types.WrapError(types.FINDING_INVALID, "rejecting finding", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := f.DedupKey()
	if existing, ok := s.byDedup[key]; ok {
		if f.Confidence > existing.Confidence {
			existing.Confidence = f.Confidence
		}
		if f.DiscoveredAt.After(existing.DiscoveredAt) {
			existing.DiscoveredAt = f.DiscoveredAt
		}
		return existing.ID, nil
	}

	if f.ID.IsZero() {
		f.ID = types.NewID()
	}
	if f.DiscoveredAt.IsZero() {
		f.DiscoveredAt = time.Now()
	}
	if f.Status == "" {
		f.Status = StatusOpen
	}

	stored := f.clone()
	s.findings = append(s.findings, &stored)
	s.byID[stored.ID] = &stored
	s.byDedup[key] = &stored

	return stored.ID, nil
}

// Get retrieves a finding snapshot by ID.
func (s *Store) Get(id types.ID) (Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.byID[id]
	if !ok {
		return Finding{}, types.NewError(types.FINDING_NOT_FOUND, "no finding with id "+id.String())
	}
	return f.clone(), nil
}

// Query returns snapshot copies of every finding matching the filter, in
// insertion order. A nil filter returns everything.
func (s *Store) Query(filter *Filter) []Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Finding
	for _, f := range s.findings {
		if filter.matches(f) {
			out = append(out, f.clone())
		}
	}
	return out
}

// All returns a snapshot of every finding in insertion order.
func (s *Store) All() []Finding {
	return s.Query(nil)
}

// Annotate appends a scoring annotation to the finding. Annotations are
// never replaced; history is retained for audit.
func (s *Store) Annotate(id types.ID, ann Annotation) error {
	if err := ann.Validate(); err != nil {
		return types.WrapError(types.FINDING_INVALID, "rejecting annotation", err)
	}
	if ann.ProducedAt.IsZero() {
		ann.ProducedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return types.NewError(types.FINDING_NOT_FOUND, "no finding with id "+id.String())
	}
	f.Annotations = append(f.Annotations, ann)
	return nil
}

// SetStatus updates the finding's lifecycle status.
func (s *Store) SetStatus(id types.ID, status Status) error {
	if !status.IsValid() {
		return types.NewError(types.FINDING_INVALID_STATUS, "invalid finding status "+status.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return types.NewError(types.FINDING_NOT_FOUND, "no finding with id "+id.String())
	}
	f.Status = status
	return nil
}

// Count returns the number of findings in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.findings)
}

// Targets returns the distinct targets seen across all findings, in first
// insertion order. The orchestrator builds phase workloads from this set.
func (s *Store) Targets() []types.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []types.Target
	for _, f := range s.findings {
		key := f.Target.Key()
		if !seen[key] {
			seen[key] = true
			out = append(out, f.Target)
		}
	}
	return out
}
