package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
)

// ClinicianCache is a read-through cache in front of the clinician
// directory. Redis errors fall through to the directory.
type ClinicianCache struct {
	client *redis.Client
	next   appointment.ClinicianLookup
	ttl    time.Duration
}

func NewClinicianCache(client *redis.Client, next appointment.ClinicianLookup, ttl time.Duration) *ClinicianCache {
	return &ClinicianCache{client: client, next: next, ttl: ttl}
}

func clinicianKey(clinicianID string) string {
	return "clinician:name:" + clinicianID
}

func (c *ClinicianCache) GetClinicianName(ctx context.Context, clinicianID string) (string, error) {
	key := clinicianKey(clinicianID)

	name, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return name, nil
	}
	if !errors.Is(err, redis.Nil) {
		// cache down; the directory is still authoritative
		name, lookupErr := c.next.GetClinicianName(ctx, clinicianID)
		if lookupErr != nil {
			return "", fmt.Errorf("clinician lookup after cache error %v: %w", err, lookupErr)
		}
		return name, nil
	}

	name, err = c.next.GetClinicianName(ctx, clinicianID)
	if err != nil {
		return "", err
	}

	_ = c.client.Set(ctx, key, name, c.ttl).Err()
	return name, nil
}
