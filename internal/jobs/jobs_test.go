package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/listing-import/internal/core"
)

// fakeRedis is an in-memory hash store.
type fakeRedis struct {
	hashes  map[string]map[string]string
	ttls    map[string]time.Duration
	hsetErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: map[string]map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	if f.hsetErr != nil {
		return redis.NewIntResult(0, f.hsetErr)
	}
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	out := map[string]string{}
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func progress(id string, phase core.ImportPhase, at time.Time) core.ImportProgress {
	return core.ImportProgress{ImportID: id, Kind: core.KindLot, Phase: phase, TotalListings: 2, UpdatedAt: at}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	rdb := newFakeRedis()
	s := NewRedisStore(rdb, time.Hour)
	ctx := context.Background()
	now := time.Now()

	s.Update(ctx, progress("imp-1", core.PhasePersisting, now))

	res := &core.ImportResult{
		ImportID: "imp-1",
		Kind:     core.KindLot,
		Created:  []core.ListingOutcome{{Row: 2, ListingID: uuid.New(), Title: "Pallet A"}},
		Failures: []core.ListingFailure{{Row: 3, Title: "Pallet B", Error: core.ErrorInfo{Code: "DB005"}, Err: errors.New("reset")}},
	}
	require.NoError(t, s.Finish(ctx, "imp-1", res, nil))
	s.Update(ctx, progress("imp-1", core.PhaseComplete, now.Add(time.Second)))

	job, err := s.Get(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseComplete, job.Progress.Phase)
	assert.True(t, job.Done())
	require.NotNil(t, job.Result)
	assert.Len(t, job.Result.Created, 1)
	assert.Equal(t, "DB005", job.Result.Failures[0].Error.Code)
	assert.Nil(t, job.Error)
	assert.Equal(t, time.Hour, rdb.ttls["listing_import:job:imp-1"])
}

func TestRedisStore_DropsStaleProgress(t *testing.T) {
	s := NewRedisStore(newFakeRedis(), 0)
	ctx := context.Background()
	now := time.Now()

	s.Update(ctx, progress("imp-2", core.PhaseProcessingMedia, now))
	s.Update(ctx, progress("imp-2", core.PhaseValidating, now.Add(-time.Second)))

	job, err := s.Get(ctx, "imp-2")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseProcessingMedia, job.Progress.Phase)
}

func TestRedisStore_Failure(t *testing.T) {
	s := NewRedisStore(newFakeRedis(), time.Hour)
	ctx := context.Background()

	s.Update(ctx, progress("imp-3", core.PhaseFailed, time.Now()))
	require.NoError(t, s.Finish(ctx, "imp-3", nil, &core.ErrorInfo{Code: "VAL004", Message: "bad rows"}))

	job, err := s.Get(ctx, "imp-3")
	require.NoError(t, err)
	require.NotNil(t, job.Error)
	assert.Equal(t, "VAL004", job.Error.Code)
	assert.Nil(t, job.Result)
}

func TestRedisStore_NotFound(t *testing.T) {
	_, err := NewRedisStore(newFakeRedis(), time.Hour).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_UpdateErrorIsSwallowed(t *testing.T) {
	rdb := newFakeRedis()
	rdb.hsetErr = errors.New("connection refused")
	s := NewRedisStore(rdb, time.Hour)

	assert.NotPanics(t, func() {
		s.Update(context.Background(), progress("imp-4", core.PhaseReading, time.Now()))
	})
	assert.Error(t, s.Finish(context.Background(), "imp-4", &core.ImportResult{}, nil))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	clock := time.Now()
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	s.Update(ctx, progress("imp-5", core.PhasePersisting, clock))
	s.Update(ctx, progress("imp-5", core.PhaseReading, clock.Add(-time.Second)))
	require.NoError(t, s.Finish(ctx, "imp-5", &core.ImportResult{ImportID: "imp-5"}, nil))

	job, err := s.Get(ctx, "imp-5")
	require.NoError(t, err)
	assert.Equal(t, core.PhasePersisting, job.Progress.Phase)
	assert.Equal(t, "imp-5", job.Result.ImportID)

	clock = clock.Add(2 * time.Minute)
	_, err = s.Get(ctx, "imp-5")
	assert.ErrorIs(t, err, ErrNotFound)
}
