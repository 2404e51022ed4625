package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	analytics "fleet-telemetry/internal/analytics/domain"
	telemetry "fleet-telemetry/internal/telemetry/domain"
)

// ReadingStore is an in-memory append-only reading store for demo/testing.
// It also serves the analytics aggregation ports.
type ReadingStore struct {
	mu       sync.RWMutex
	nextID   int64
	byDevice map[string][]telemetry.Reading
}

// NewReadingStore constructs an empty store.
func NewReadingStore() *ReadingStore {
	return &ReadingStore{byDevice: make(map[string][]telemetry.Reading)}
}

// Insert appends a reading and assigns its id.
func (s *ReadingStore) Insert(_ context.Context, reading *telemetry.Reading) error {
	if reading == nil || reading.DeviceID == "" || reading.TS.IsZero() {
		return errors.New("telemetry memory: invalid reading")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	reading.ID = s.nextID
	s.byDevice[reading.DeviceID] = append(s.byDevice[reading.DeviceID], *reading)
	return nil
}

// RangeByDevice returns readings of one device within [start, end].
func (s *ReadingStore) RangeByDevice(_ context.Context, deviceID string, start, end time.Time, limit int, ascending bool) ([]telemetry.Reading, error) {
	s.mu.RLock()
	result := inRange(s.byDevice[deviceID], start, end)
	s.mu.RUnlock()

	sortReadings(result, ascending)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// RangeByDeviceSet returns readings of every device in ids within [start, end].
func (s *ReadingStore) RangeByDeviceSet(_ context.Context, ids []string, start, end time.Time) ([]telemetry.Reading, error) {
	s.mu.RLock()
	var result []telemetry.Reading
	for _, id := range dedupe(ids) {
		result = append(result, inRange(s.byDevice[id], start, end)...)
	}
	s.mu.RUnlock()
	sortReadings(result, true)
	return result, nil
}

// LatestByDeviceSet returns the newest reading among ids.
func (s *ReadingStore) LatestByDeviceSet(_ context.Context, ids []string) (*telemetry.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *telemetry.Reading
	for _, id := range dedupe(ids) {
		for i := range s.byDevice[id] {
			r := s.byDevice[id][i]
			if latest == nil || r.TS.After(latest.TS) || (r.TS.Equal(latest.TS) && r.ID > latest.ID) {
				copied := r
				latest = &copied
			}
		}
	}
	return latest, nil
}

// Aggregate summarises readings of deviceIDs within [start, end].
func (s *ReadingStore) Aggregate(ctx context.Context, deviceIDs []string, start, end time.Time) (analytics.WindowSummary, error) {
	if len(deviceIDs) == 0 {
		return analytics.WindowSummary{}, nil
	}
	readings, err := s.RangeByDeviceSet(ctx, deviceIDs, start, end)
	if err != nil {
		return analytics.WindowSummary{}, err
	}
	return analytics.Summarize(readings), nil
}

// ActiveBuckets counts occupied buckets of one device within [start, end].
func (s *ReadingStore) ActiveBuckets(ctx context.Context, deviceID string, start, end time.Time, width time.Duration) (int, error) {
	readings, err := s.RangeByDevice(ctx, deviceID, start, end, 0, true)
	if err != nil {
		return 0, err
	}
	stamps := make([]time.Time, 0, len(readings))
	for _, r := range readings {
		stamps = append(stamps, r.TS)
	}
	return analytics.CountBuckets(stamps, start, end, width), nil
}

func inRange(readings []telemetry.Reading, start, end time.Time) []telemetry.Reading {
	var result []telemetry.Reading
	for _, r := range readings {
		if r.TS.Before(start) || r.TS.After(end) {
			continue
		}
		result = append(result, r)
	}
	return result
}

func sortReadings(readings []telemetry.Reading, ascending bool) {
	sort.SliceStable(readings, func(i, j int) bool {
		if readings[i].TS.Equal(readings[j].TS) {
			if ascending {
				return readings[i].ID < readings[j].ID
			}
			return readings[i].ID > readings[j].ID
		}
		if ascending {
			return readings[i].TS.Before(readings[j].TS)
		}
		return readings[i].TS.After(readings[j].TS)
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
