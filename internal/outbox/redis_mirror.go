package outbox

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror copies counter increments into the hash outbox:<dispatcher>
// so every replica's counts can be read from one place.
type RedisMirror struct {
	rdb     *redis.Client
	timeout time.Duration
}

// NewRedisMirror returns nil when rdb is nil so callers can pass the
// result straight into Options.
func NewRedisMirror(rdb *redis.Client) Mirror {
	if rdb == nil {
		return nil
	}
	return &RedisMirror{rdb: rdb, timeout: 500 * time.Millisecond}
}

// Key is the hash that holds a dispatcher's counters.
func Key(dispatcher string) string { return "outbox:" + dispatcher }

func (m *RedisMirror) Incr(ctx context.Context, dispatcher, field string) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	_ = m.rdb.HIncrBy(ctx, Key(dispatcher), field, 1).Err()
}
