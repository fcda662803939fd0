package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/listing-import/internal/core"
	"github.com/JonMunkholm/listing-import/internal/logging"
)

const keyPrefix = "listing_import:job:"

// Hash fields of a job key.
const (
	fieldProgress = "progress"
	fieldResult   = "result"
	fieldError    = "error"
)

// RedisAPI is the subset of *redis.Client used by RedisStore.
type RedisAPI interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisStore keeps each job in a hash that expires ttl after its last write.
type RedisStore struct {
	rdb    RedisAPI
	ttl    time.Duration
	filter *staleFilter
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb RedisAPI, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl, filter: newStaleFilter()}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func jobKey(importID string) string { return keyPrefix + importID }

// Update stores a progress snapshot. Failures are logged; progress is best
// effort and never fails an import.
func (s *RedisStore) Update(ctx context.Context, p core.ImportProgress) {
	if !s.filter.accept(p) {
		return
	}
	if err := s.write(ctx, p.ImportID, fieldProgress, p); err != nil {
		logging.FromContext(ctx).Warn("job progress not saved", "import_id", p.ImportID, "error", err)
	}
}

func (s *RedisStore) Finish(ctx context.Context, importID string, res *core.ImportResult, failure *core.ErrorInfo) error {
	defer s.filter.forget(importID)

	values := make([]any, 0, 4)
	if res != nil {
		b, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		values = append(values, fieldResult, string(b))
	}
	if failure != nil {
		b, err := json.Marshal(failure)
		if err != nil {
			return fmt.Errorf("encode failure: %w", err)
		}
		values = append(values, fieldError, string(b))
	}
	if len(values) == 0 {
		return nil
	}
	return s.hset(ctx, importID, values...)
}

func (s *RedisStore) Get(ctx context.Context, importID string) (*Job, error) {
	fields, err := s.rdb.HGetAll(ctx, jobKey(importID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", importID, err)
	}
	raw, ok := fields[fieldProgress]
	if !ok {
		return nil, ErrNotFound
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job.Progress); err != nil {
		return nil, fmt.Errorf("decode job %s progress: %w", importID, err)
	}
	if raw, ok := fields[fieldResult]; ok {
		job.Result = &core.ImportResult{}
		if err := json.Unmarshal([]byte(raw), job.Result); err != nil {
			return nil, fmt.Errorf("decode job %s result: %w", importID, err)
		}
	}
	if raw, ok := fields[fieldError]; ok {
		job.Error = &core.ErrorInfo{}
		if err := json.Unmarshal([]byte(raw), job.Error); err != nil {
			return nil, fmt.Errorf("decode job %s error: %w", importID, err)
		}
	}
	return &job, nil
}

func (s *RedisStore) write(ctx context.Context, importID, field string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	return s.hset(ctx, importID, field, string(b))
}

func (s *RedisStore) hset(ctx context.Context, importID string, values ...any) error {
	key := jobKey(importID)
	// Detached so a cancelled import can still record how it ended.
	ctx = context.WithoutCancel(ctx)
	if err := s.rdb.HSet(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", importID, err)
	}
	if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("expire job %s: %w", importID, err)
	}
	return nil
}
