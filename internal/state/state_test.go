package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreMissingRouteIsZeroState(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "deals.json"))
	st, err := s.Load(context.Background(), "YUL-LIM-CAD")
	require.NoError(t, err)
	assert.Nil(t, st.BestPriceSeen)
	assert.Nil(t, st.LastNotifiedPrice)
}

func TestFileStoreSaveLoadReset(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "deals.json")
	s := NewFileStore(path)
	in := model.DealState{
		BestPriceSeen:     model.Decimal("712.40"),
		LastNotifiedPrice: model.Decimal("750"),
		UpdatedAt:         time.Date(2026, 2, 19, 22, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Save(ctx, "YUL-LIM-CAD", in))
	require.NoError(t, s.Save(ctx, "YUL-CUZ-CAD", model.DealState{BestPriceSeen: model.Decimal("1200")}))

	out, err := NewFileStore(path).Load(ctx, "YUL-LIM-CAD")
	require.NoError(t, err)
	require.NotNil(t, out.BestPriceSeen)
	assert.True(t, out.BestPriceSeen.Equal(decimal.RequireFromString("712.4")))
	assert.True(t, out.LastNotifiedPrice.Equal(decimal.NewFromInt(750)))
	assert.True(t, out.UpdatedAt.Equal(in.UpdatedAt))

	require.NoError(t, s.Reset(ctx, "YUL-LIM-CAD"))
	out, err = s.Load(ctx, "YUL-LIM-CAD")
	require.NoError(t, err)
	assert.Nil(t, out.BestPriceSeen)
	other, err := s.Load(ctx, "YUL-CUZ-CAD")
	require.NoError(t, err)
	assert.NotNil(t, other.BestPriceSeen)
}

func TestRedisStoreKey(t *testing.T) {
	s := NewRedisStore(RedisConfig{Addr: "localhost:6379"})
	t.Cleanup(func() { _ = s.Close() })
	assert.Equal(t, "farewatch:deal:YUL-LIM-CAD", s.key("YUL-LIM-CAD"))
}

type fakeRedis struct {
	data   map[string]string
	getErr error
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd { return redis.NewStatusResult("PONG", nil) }
func (f *fakeRedis) Close() error                         { return nil }

func TestRedisStoreSaveLoadReset(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{data: map[string]string{}}
	s := &RedisStore{client: fake, prefix: "farewatch"}

	st, err := s.Load(ctx, "YUL-LIM-CAD")
	require.NoError(t, err)
	assert.Nil(t, st.BestPriceSeen)

	in := model.DealState{BestPriceSeen: model.Decimal("712.40"), LastNotifiedPrice: model.Decimal("750")}
	require.NoError(t, s.Save(ctx, "YUL-LIM-CAD", in))
	require.NoError(t, s.Save(ctx, "YUL-CUZ-CAD", model.DealState{BestPriceSeen: model.Decimal("1200")}))
	assert.Contains(t, fake.data, "farewatch:deal:YUL-LIM-CAD")

	out, err := s.Load(ctx, "YUL-LIM-CAD")
	require.NoError(t, err)
	require.NotNil(t, out.BestPriceSeen)
	assert.True(t, out.BestPriceSeen.Equal(decimal.RequireFromString("712.4")))
	assert.True(t, out.LastNotifiedPrice.Equal(decimal.NewFromInt(750)))

	require.NoError(t, s.Reset(ctx, "YUL-LIM-CAD"))
	out, err = s.Load(ctx, "YUL-LIM-CAD")
	require.NoError(t, err)
	assert.Nil(t, out.BestPriceSeen)
	other, err := s.Load(ctx, "YUL-CUZ-CAD")
	require.NoError(t, err)
	assert.NotNil(t, other.BestPriceSeen)

	require.NoError(t, s.Reset(ctx, "YUL-LIM-CAD"))
	require.NoError(t, s.Ping(ctx))
}

func TestRedisStoreLoadErrors(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")
	s := &RedisStore{client: &fakeRedis{getErr: down}, prefix: "farewatch"}
	_, err := s.Load(ctx, "YUL-LIM-CAD")
	assert.ErrorIs(t, err, down)

	s = &RedisStore{client: &fakeRedis{data: map[string]string{"farewatch:deal:YUL-LIM-CAD": "{not json"}}, prefix: "farewatch"}
	_, err = s.Load(ctx, "YUL-LIM-CAD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode deal state YUL-LIM-CAD")
}
