package social

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Suppressor is the duplicate-suppression store: a TTL-keyed set of already
// posted links. Entries expire when the event they announce would have, so
// the store never grows past the set of upcoming events.
type Suppressor struct {
	rdb *redis.Client
}

// NewSuppressor connects to the store at addr.
func NewSuppressor(addr string) *Suppressor {
	return &Suppressor{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// Seen reports whether link was already posted.
func (s *Suppressor) Seen(ctx context.Context, link string) (bool, error) {
	_, err := s.rdb.Get(ctx, link).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Mark records link with the given TTL. Non-positive TTLs are skipped; the
// event is already expiring.
func (s *Suppressor) Mark(ctx context.Context, link string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, link, "true", ttl).Err()
}

// Close releases the connection.
func (s *Suppressor) Close() error {
	return s.rdb.Close()
}
