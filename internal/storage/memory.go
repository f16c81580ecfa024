package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps samples in process. It backs tests and runs without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	samples []PriceSample
	nextID  int64
}

func NewMemoryStore(samples ...PriceSample) *MemoryStore {
	m := &MemoryStore{}
	_ = m.InsertSamples(context.Background(), samples)
	return m
}

func (m *MemoryStore) InsertSamples(_ context.Context, samples []PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		m.nextID++
		s.ID = m.nextID
		s.At = s.At.UTC()
		m.samples = append(m.samples, s)
	}
	sort.SliceStable(m.samples, func(i, j int) bool { return m.samples[i].At.Before(m.samples[j].At) })
	return nil
}

func (m *MemoryStore) LatestAtOrBefore(_ context.Context, token, baseToken string, at time.Time) (PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.samples) - 1; i >= 0; i-- {
		s := m.samples[i]
		if s.Token == token && s.BaseToken == baseToken && !s.At.After(at) {
			return s, nil
		}
	}
	return PriceSample{}, ErrNoSample
}

func (m *MemoryStore) EarliestAtOrAfter(_ context.Context, token, baseToken string, at time.Time) (PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.samples {
		if s.Token == token && s.BaseToken == baseToken && !s.At.Before(at) {
			return s, nil
		}
	}
	return PriceSample{}, ErrNoSample
}

func (m *MemoryStore) ListSamplesBetween(_ context.Context, token, baseToken string, from, to time.Time) ([]PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PriceSample, 0)
	for _, s := range m.samples {
		if s.Token == token && s.BaseToken == baseToken && !s.At.Before(from) && s.At.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListRecentSamples(_ context.Context, limit int) ([]PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PriceSample, 0, limit)
	for i := len(m.samples) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.samples[i])
	}
	return out, nil
}

func (m *MemoryStore) CountSamples(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.samples)), nil
}

func (m *MemoryStore) DeleteByFetchedFrom(_ context.Context, source string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.samples[:0]
	var removed int64
	for _, s := range m.samples {
		if s.FetchedFrom == source {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.samples = kept
	return removed, nil
}

var _ SampleStore = (*MemoryStore)(nil)
