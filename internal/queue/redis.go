package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimScript moves the first ready member out of sight for the visibility timeout.
var claimScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #items == 0 then
	return false
end
redis.call('ZADD', KEYS[1], ARGV[2], items[1])
return items[1]
`)

type RedisConfig struct {
	Address  string `cfg:"address"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db"`
}

func (c RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:     c.Address,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
	}
}

func NewRedisQueue(client redis.UniversalClient, name string, visibilityTimeout time.Duration) *RedisQueue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	return &RedisQueue{
		client:            client,
		key:               "ccxcon:queue:" + name,
		heartbeatKey:      "ccxcon:worker:" + name + ":heartbeat",
		visibilityTimeout: visibilityTimeout,
		now:               time.Now,
	}
}

// RedisQueue keeps all jobs of a queue in one sorted set scored by the time they become ready.
type RedisQueue struct {
	client            redis.UniversalClient
	key               string
	heartbeatKey      string
	visibilityTimeout time.Duration
	now               func() time.Time
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job, delay time.Duration) error {
	member, err := job.encode()
	if err != nil {
		return err
	}
	if err = q.client.ZAdd(ctx, q.key, redis.Z{Score: score(q.now().Add(delay)), Member: member}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Claim(ctx context.Context) (Job, error) {
	now := q.now()
	member, err := claimScript.Run(ctx, q.client, []string{q.key},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(q.visibilityTimeout).UnixMilli(), 10),
	).Text()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrEmpty
	}
	if err != nil {
		return Job{}, fmt.Errorf("failed to claim job: %w", err)
	}

	job, err := decodeJob(member)
	if err != nil {
		// drop what can never be processed
		_ = q.client.ZRem(ctx, q.key, member).Err()
		return Job{}, err
	}
	return job, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	if err := q.client.ZRem(ctx, q.key, job.member).Err(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Retry(ctx context.Context, job Job, delay time.Duration) error {
	old := job.member
	job.Attempt++
	member, err := job.encode()
	if err != nil {
		return err
	}
	if _, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.key, old)
		pipe.ZAdd(ctx, q.key, redis.Z{Score: score(q.now().Add(delay)), Member: member})
		return nil
	}); err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}
	return nil
}

// Len returns the number of stored jobs, claimed ones included.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}

func (q *RedisQueue) Heartbeat(ctx context.Context) error {
	return q.client.Set(ctx, q.heartbeatKey, strconv.FormatInt(q.now().Unix(), 10), time.Hour).Err()
}

func (q *RedisQueue) LastHeartbeat(ctx context.Context) (time.Time, error) {
	unix, err := q.client.Get(ctx, q.heartbeatKey).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read heartbeat: %w", err)
	}
	return time.Unix(unix, 0), nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
