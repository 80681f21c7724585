// Package candlestore keeps a rolling, append-only candle history per
// interval. Polling returns overlapping windows; Merge keeps only what is
// newer than the last stored candle so repeated fetches are idempotent.
package candlestore

import (
	"sort"
	"sync"

	"cryptobot/internal/model"
)

// Store holds one ordered series per interval string ("1m", "1h", ...).
// Written by the poll loop; readers (status, metrics) get copies.
type Store struct {
	mu     sync.RWMutex
	series map[string][]model.Candle

	// HistoryLimit caps each series; the oldest candles are dropped first.
	// 0 keeps everything.
	HistoryLimit int

	// Hooks (optional)
	OnAppend func(interval string, n int)
	// OnGap fires when two consecutive stored candles are further apart than
	// one interval, e.g. after a restart or an outage longer than the fetch window.
	OnGap func(interval string, prevOpen, nextOpen int64)
}

// New returns an empty store.
func New(historyLimit int) *Store {
	return &Store{
		series:       make(map[string][]model.Candle, 4),
		HistoryLimit: historyLimit,
	}
}

// Merge appends the candles of incoming that are newer than the last stored
// candle of interval and returns how many were appended. incoming must be
// ascending by OpenTime. An empty series takes the whole batch.
func (s *Store) Merge(interval string, incoming []model.Candle) int {
	if len(incoming) == 0 {
		return 0
	}

	s.mu.Lock()
	cur := s.series[interval]

	var fresh []model.Candle
	if len(cur) == 0 {
		fresh = incoming
	} else {
		last := cur[len(cur)-1].OpenTime
		// First candle strictly after last; everything from there on is new.
		i := sort.Search(len(incoming), func(i int) bool { return incoming[i].OpenTime > last })
		fresh = incoming[i:]
	}
	if len(fresh) == 0 {
		s.mu.Unlock()
		return 0
	}

	var gaps [][2]int64
	if step := model.IntervalDuration(interval).Milliseconds(); step > 0 && s.OnGap != nil {
		prev := int64(-1)
		if len(cur) > 0 {
			prev = cur[len(cur)-1].OpenTime
		}
		for _, c := range fresh {
			if prev >= 0 && c.OpenTime-prev > step {
				gaps = append(gaps, [2]int64{prev, c.OpenTime})
			}
			prev = c.OpenTime
		}
	}

	cur = append(cur, fresh...)
	if s.HistoryLimit > 0 && len(cur) > s.HistoryLimit {
		trimmed := make([]model.Candle, s.HistoryLimit)
		copy(trimmed, cur[len(cur)-s.HistoryLimit:])
		cur = trimmed
	}
	s.series[interval] = cur
	n := len(fresh)
	s.mu.Unlock()

	for _, g := range gaps {
		s.OnGap(interval, g[0], g[1])
	}
	if s.OnAppend != nil {
		s.OnAppend(interval, n)
	}
	return n
}

// Series returns a copy of the stored candles of interval, oldest first.
func (s *Store) Series(interval string) []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.series[interval]
	out := make([]model.Candle, len(cur))
	copy(out, cur)
	return out
}

// Last returns the newest candle of interval.
func (s *Store) Last(interval string) (model.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.series[interval]
	if len(cur) == 0 {
		return model.Candle{}, false
	}
	return cur[len(cur)-1], true
}

// Tail returns a copy of the newest n candles of interval.
func (s *Store) Tail(interval string, n int) []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.series[interval]
	if n > len(cur) {
		n = len(cur)
	}
	out := make([]model.Candle, n)
	copy(out, cur[len(cur)-n:])
	return out
}

// Len returns the number of stored candles of interval.
func (s *Store) Len(interval string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[interval])
}

// Intervals lists the intervals that hold at least one candle, sorted.
func (s *Store) Intervals() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.series))
	for k, v := range s.series {
		if len(v) > 0 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
