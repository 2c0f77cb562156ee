package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
)

// ShowtimeReader is the lookup surface CachedShowtimes wraps.
type ShowtimeReader interface {
	GetByID(ctx context.Context, id uint64) (model.Showtime, error)
	GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Showtime, error)
}

// CachedShowtimes serves GetByID from Redis when it can.  Reads inside a
// transaction always go to the database.  Redis failures fall through to
// the wrapped reader.
type CachedShowtimes struct {
	next   ShowtimeReader
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCachedShowtimes wraps next.  A nil rdb returns next unchanged.
func NewCachedShowtimes(next ShowtimeReader, rdb *redis.Client, ttl time.Duration, prefix string) ShowtimeReader {
	if rdb == nil {
		return next
	}
	if prefix == "" {
		prefix = "catalog"
	}
	return &CachedShowtimes{next: next, rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *CachedShowtimes) key(id uint64) string {
	return fmt.Sprintf("%s:showtime:%d", c.prefix, id)
}

// GetByID returns the cached showtime or loads and caches it.  Missing
// showtimes are not cached.
func (c *CachedShowtimes) GetByID(ctx context.Context, id uint64) (model.Showtime, error) {
	bs, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	if err == nil {
		var st model.Showtime
		if jerr := json.Unmarshal(bs, &st); jerr == nil {
			return st, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("catalog cache: get showtime %d: %v", id, err)
	}

	st, err := c.next.GetByID(ctx, id)
	if err != nil {
		return st, err
	}
	if bs, jerr := json.Marshal(st); jerr == nil {
		if serr := c.rdb.Set(ctx, c.key(id), bs, c.ttl).Err(); serr != nil {
			log.Printf("catalog cache: set showtime %d: %v", id, serr)
		}
	}
	return st, nil
}

// GetByIDTx bypasses the cache.
func (c *CachedShowtimes) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Showtime, error) {
	return c.next.GetByIDTx(ctx, tx, id)
}

