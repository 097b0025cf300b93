package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hakeemcare/clinic-booking/internal/schedule"
)

// Availability caches resolved free-slot lists per (practitioner, date).
// Entries are versioned per practitioner: every booking or schedule write
// bumps the version, which retires all lists cached under older versions.
// A resolver that raced such a write Sets under the version it started
// from, so its stale list is never served.
type Availability struct {
	client *redis.Client
	ttl    time.Duration
}

// versionTTL must outlive every list written under an older version, so it
// sits far above any sensible list TTL.
const versionTTL = 24 * time.Hour

func NewAvailability(client *redis.Client, ttl time.Duration) *Availability {
	return &Availability{client: client, ttl: ttl}
}

func versionKey(practitionerID uuid.UUID) string {
	return fmt.Sprintf("avail_ver:%s", practitionerID)
}

func availabilityKey(practitionerID uuid.UUID, date time.Time, version int64) string {
	return fmt.Sprintf("avail:%s:%s:%d", practitionerID, date.Format(time.DateOnly), version)
}

// Get returns the cached list under the practitioner's current version. The
// version comes back even on a miss; callers compute against it and hand it
// to Set, so a list resolved from since-changed data lands under a retired
// key instead of shadowing the write that changed it.
func (a *Availability) Get(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, int64, bool, error) {
	version, err := a.currentVersion(ctx, practitionerID)
	if err != nil {
		return nil, 0, false, err
	}

	raw, err := a.client.Get(ctx, availabilityKey(practitionerID, date, version)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, version, false, nil
		}
		return nil, version, false, fmt.Errorf("get availability: %w", err)
	}

	var times []schedule.TimeOfDay
	if err := json.Unmarshal(raw, &times); err != nil {
		return nil, version, false, fmt.Errorf("decode cached availability: %w", err)
	}

	return times, version, true, nil
}

// Set stores the list under the version the caller observed in Get, not the
// current one.
func (a *Availability) Set(ctx context.Context, practitionerID uuid.UUID, date time.Time, version int64, times []schedule.TimeOfDay) error {
	if times == nil {
		times = []schedule.TimeOfDay{}
	}
	raw, err := json.Marshal(times)
	if err != nil {
		return fmt.Errorf("encode availability: %w", err)
	}

	if err := a.client.Set(ctx, availabilityKey(practitionerID, date, version), raw, a.ttl).Err(); err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	return nil
}

// Invalidate bumps the practitioner's cache version. Every list cached under
// the previous version becomes unreachable and ages out on its TTL.
func (a *Availability) Invalidate(ctx context.Context, practitionerID uuid.UUID) error {
	pipe := a.client.TxPipeline()
	pipe.Incr(ctx, versionKey(practitionerID))
	pipe.Expire(ctx, versionKey(practitionerID), versionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate availability: %w", err)
	}
	return nil
}

func (a *Availability) currentVersion(ctx context.Context, practitionerID uuid.UUID) (int64, error) {
	version, err := a.client.Get(ctx, versionKey(practitionerID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get availability version: %w", err)
	}
	return version, nil
}
