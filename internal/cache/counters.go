package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counters implements fixed-window counting on redis. The first hit in a
// window creates the key and stamps its TTL; later hits only increment, so
// the window never slides.
type Counters struct {
	rdb redis.UniversalClient
}

// NewCounters wraps an existing redis client.
func NewCounters(rdb redis.UniversalClient) *Counters {
	return &Counters{rdb: rdb}
}

// Hit increments the counter for key and returns the count within the
// current window. The window TTL is set only when the increment created the
// key, so every caller inside a window sees the same deadline.
func (c *Counters) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}
