package countstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisCountPrefix string = "count/"

type RedisCountStore struct {
	Client *redis.Client
}

func NewRedisCountStore(redisURL string) (*RedisCountStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	rcs := RedisCountStore{
		Client: rdb,
	}
	return &rcs, nil
}

func (s *RedisCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	key := redisCountPrefix + periodBucket(name, val, period)
	c, err := s.Client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return c, nil
}

func (s *RedisCountStore) Increment(ctx context.Context, name, val string) error {

	var key string

	// increment multiple period buckets in a single redis round-trip
	multi := s.Client.Pipeline()

	key = redisCountPrefix + periodBucket(name, val, PeriodHour)
	multi.Incr(ctx, key)
	multi.Expire(ctx, key, 2*time.Hour)

	key = redisCountPrefix + periodBucket(name, val, PeriodDay)
	multi.Incr(ctx, key)
	multi.Expire(ctx, key, 48*time.Hour)

	key = redisCountPrefix + periodBucket(name, val, PeriodTotal)
	multi.Incr(ctx, key)
	// no expiration for total

	_, err := multi.Exec(ctx)
	return err
}

func (s *RedisCountStore) CheckAndIncrement(ctx context.Context, name, val, period string, limit int) (int, error) {
	if limit <= 0 {
		return 0, ErrLimitExceeded
	}
	key := redisCountPrefix + periodBucket(name, val, period)

	// INCR is the atomic primitive here; if the increment overshoots the
	// limit we roll it back, so the stored count never exceeds the limit
	v, err := s.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if v > int64(limit) {
		if err := s.Client.Decr(ctx, key).Err(); err != nil {
			return 0, err
		}
		return limit, ErrLimitExceeded
	}
	if v == 1 && period != PeriodTotal {
		// day and hour buckets are self-expiring; keys include the bucket
		// number so a late expiry can not bleed into the next period
		s.Client.Expire(ctx, key, 48*time.Hour)
	}
	return int(v), nil
}
