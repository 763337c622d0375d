package memory

import (
	"context"
	"sync"

	"schememap/internal/core"
	"schememap/internal/sources"
)

// Store keeps schemes and region rows in memory. It implements every source
// port and is used by tests and by the CLI for ad-hoc pipelines.
type Store struct {
	mu      sync.Mutex
	schemes []core.SchemeRecord
	regions []core.RawRegion
	reads   int
}

var (
	_ sources.SchemeReader = (*Store)(nil)
	_ sources.RegionReader = (*Store)(nil)
	_ sources.SchemeWriter = (*Store)(nil)
)

func New(schemes []core.SchemeRecord, regions []core.RawRegion) *Store {
	return &Store{
		schemes: append([]core.SchemeRecord(nil), schemes...),
		regions: append([]core.RawRegion(nil), regions...),
	}
}

func (s *Store) Name() string { return "memory" }

// ReadSchemes returns a copy of the stored records.
func (s *Store) ReadSchemes(ctx context.Context) ([]core.SchemeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return append([]core.SchemeRecord(nil), s.schemes...), nil
}

// ReadRegions returns a copy of the stored region rows.
func (s *Store) ReadRegions(ctx context.Context) ([]core.RawRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.RawRegion(nil), s.regions...), nil
}

// ReplaceSchemes validates and swaps the stored records.
func (s *Store) ReplaceSchemes(_ context.Context, records []core.SchemeRecord) (int, error) {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemes = append([]core.SchemeRecord(nil), records...)
	return len(s.schemes), nil
}

// Reads reports how many times ReadSchemes was called.
func (s *Store) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
