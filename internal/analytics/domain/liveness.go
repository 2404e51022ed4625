package analytics

import (
	"context"
	"time"
)

const (
	// FreshnessWindow is how recent a heartbeat must be for a device to count as active.
	FreshnessWindow = 5 * time.Minute
	// UptimeWindow is the trailing window for per-device uptime.
	UptimeWindow = 24 * time.Hour
	// BucketWidth partitions UptimeWindow into BucketCount slots.
	BucketWidth = 5 * time.Minute
	BucketCount = int(UptimeWindow / BucketWidth)
)

// ActivityCounter counts distinct width-sized buckets, measured from start,
// that hold at least one reading of deviceID with start <= ts <= end.
type ActivityCounter interface {
	ActiveBuckets(ctx context.Context, deviceID string, start, end time.Time, width time.Duration) (int, error)
}

// FleetRatio returns active/total as a percentage; zero devices give 0.
func FleetRatio(active, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(active) / float64(total) * 100
}

// BucketIndex maps ts to its bucket relative to start. Readings stamped exactly
// at the window end fall into the last bucket.
func BucketIndex(ts, start time.Time, width time.Duration, count int) int {
	idx := int(ts.Sub(start) / width)
	if idx >= count {
		idx = count - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// CountBuckets counts distinct occupied buckets among timestamps inside [start, end].
func CountBuckets(timestamps []time.Time, start, end time.Time, width time.Duration) int {
	if width <= 0 || end.Before(start) {
		return 0
	}
	count := int(end.Sub(start) / width)
	if count < 1 {
		count = 1
	}
	seen := make(map[int]struct{})
	for _, ts := range timestamps {
		if ts.Before(start) || ts.After(end) {
			continue
		}
		seen[BucketIndex(ts, start, width, count)] = struct{}{}
	}
	return len(seen)
}

// UptimePercent converts occupied buckets to a percentage of BucketCount.
// Zero buckets means the device sent nothing in the window and yields nil.
func UptimePercent(buckets int) *float64 {
	if buckets <= 0 {
		return nil
	}
	if buckets > BucketCount {
		buckets = BucketCount
	}
	v := float64(buckets) / float64(BucketCount) * 100
	return &v
}
