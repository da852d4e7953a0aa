package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/efreitasn/stockserver/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisRecorder accumulates counters in Redis hashes so several server
// processes can be observed together. Fields are "<command>:<outcome>".
//
//	<prefix>:total                  cumulative, never expires
//	<prefix>:minute:<YYYYMMDDhhmm>  per-minute bucket, expires after ttl
type RedisRecorder struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// RedisOption configures a RedisRecorder.
type RedisOption func(*RedisRecorder)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

// WithBucketTTL sets how long per-minute buckets live.
func WithBucketTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

// WithTimeout bounds each Record call.
func WithTimeout(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.timeout = d }
}

// NewRedisRecorder creates a recorder writing through rdb.
func NewRedisRecorder(rdb *redis.Client, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:     rdb,
		prefix:  "stockserver:stats",
		ttl:     24 * time.Hour,
		timeout: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record implements service.Recorder.
func (r *RedisRecorder) Record(ctx context.Context, ev domain.TradeEvent) error {
	if r == nil || r.rdb == nil {
		return nil
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := r.field(ev)

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.totalKey(), field, 1)
	bucketKey := r.bucketKey(at)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, bucketKey, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis stats: %w", err)
	}
	return nil
}

func (r *RedisRecorder) field(ev domain.TradeEvent) string {
	cmd := string(ev.Command)
	if cmd == "" {
		cmd = "unknown"
	}
	return cmd + ":" + string(ev.Outcome)
}

func (r *RedisRecorder) totalKey() string {
	return r.prefix + ":total"
}

func (r *RedisRecorder) bucketKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
}
