package countstore

import (
	"context"
	"sync"
)

type MemCountStore struct {
	lk     sync.Mutex
	counts map[string]int
}

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		counts: make(map[string]int),
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.counts[periodBucket(name, val, period)], nil
}

func (s *MemCountStore) Increment(ctx context.Context, name, val string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	for _, p := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		s.counts[periodBucket(name, val, p)]++
	}
	return nil
}

func (s *MemCountStore) CheckAndIncrement(ctx context.Context, name, val, period string, limit int) (int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	k := periodBucket(name, val, period)
	v := s.counts[k]
	if v >= limit {
		return v, ErrLimitExceeded
	}
	v++
	s.counts[k] = v
	return v, nil
}
