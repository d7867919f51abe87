// Package timeslot converts requested appointment times into canonical
// intervals and derives the hour buckets used for capacity locking.
package timeslot

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidInterval = errors.New("interval must have a positive duration")

// Interval is a half-open appointment window [Start, End) in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Normalize keeps the requested instant verbatim and applies the service
// type's configured duration. Sub-hour starts and variable-length sessions
// are supported; the stored interval is never truncated to the hour.
func Normalize(startAt time.Time, duration time.Duration) (Interval, error) {
	if duration <= 0 {
		return Interval{}, ErrInvalidInterval
	}

	start := startAt.UTC()
	return Interval{Start: start, End: start.Add(duration)}, nil
}

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return other.Start.Before(iv.End) && other.End.After(iv.Start)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// HourBuckets lists every UTC hour bucket the interval touches. A 90 minute
// session starting at 10:30 yields the 10:00 and 11:00 buckets.
func (iv Interval) HourBuckets() []time.Time {
	var buckets []time.Time
	for t := iv.Start.Truncate(time.Hour); t.Before(iv.End); t = t.Add(time.Hour) {
		buckets = append(buckets, t)
	}
	return buckets
}

// BucketKey renders an hour bucket as a stable lock-key fragment.
func BucketKey(bucket time.Time) string {
	return bucket.UTC().Format("2006-01-02T15")
}

// GlobalLockKey is the Redis key serializing clinic-wide admission for one
// hour bucket.
func GlobalLockKey(bucket time.Time) string {
	return fmt.Sprintf("lock:capacity:%s", BucketKey(bucket))
}

// ProviderLockKey serializes admission for one provider within one bucket.
func ProviderLockKey(providerID string, bucket time.Time) string {
	return fmt.Sprintf("lock:capacity:%s:%s", providerID, BucketKey(bucket))
}

// LockKeys returns the full set of keys a booking attempt must hold: one
// global and one provider key per touched bucket.
func LockKeys(iv Interval, providerID string) []string {
	buckets := iv.HourBuckets()
	keys := make([]string, 0, 2*len(buckets))
	for _, b := range buckets {
		keys = append(keys, GlobalLockKey(b), ProviderLockKey(providerID, b))
	}
	return keys
}
