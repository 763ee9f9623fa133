package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/config"
)

func newRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func backends(t *testing.T) map[string]ObjectStore {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	rs, _ := newRedisStore(t)
	return map[string]ObjectStore{"file": fs, "redis": rs}
}

func TestObjectStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, KindResults, "task-2", []byte(`{"b":2}`)))
			require.NoError(t, s.Save(ctx, KindResults, "task-1", []byte(`{"a":1}`)))
			require.NoError(t, s.Save(ctx, KindOutcomes, "task-1", []byte(`{}`)))

			data, err := s.Load(ctx, KindResults, "task-1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(data))

			names, err := s.List(ctx, KindResults)
			require.NoError(t, err)
			assert.Equal(t, []string{"task-1", "task-2"}, names)

			require.NoError(t, s.Save(ctx, KindResults, "task-1", []byte(`{"a":3}`)))
			data, err = s.Load(ctx, KindResults, "task-1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":3}`, string(data))

			require.NoError(t, s.Delete(ctx, KindResults, "task-1"))
			_, err = s.Load(ctx, KindResults, "task-1")
			assert.True(t, api.IsNotFound(err))
			assert.True(t, api.IsNotFound(s.Delete(ctx, KindResults, "task-1")))

			names, err = s.List(ctx, KindResults)
			require.NoError(t, err)
			assert.Equal(t, []string{"task-2"}, names)

			names, err = s.List(ctx, KindComponents)
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestObjectStoreRejectsEmptyKeys(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.Save(ctx, "", "x", nil), ErrInvalidKey)
			assert.ErrorIs(t, s.Save(ctx, KindResults, "", nil), ErrInvalidKey)
			_, err := s.Load(ctx, KindResults, "")
			assert.ErrorIs(t, err, ErrInvalidKey)
			_, err = s.List(ctx, "")
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	in := api.TaskOutcome{TaskID: "t1", State: api.StateCompleted, Passed: true}
	require.NoError(t, SaveJSON(ctx, s, KindOutcomes, in.TaskID, in))

	var out api.TaskOutcome
	require.NoError(t, LoadJSON(ctx, s, KindOutcomes, "t1", &out))
	assert.Equal(t, in.State, out.State)
	assert.True(t, out.Passed)

	err = LoadJSON(ctx, s, KindOutcomes, "missing", &out)
	assert.True(t, api.IsNotFound(err))
}

func TestFileStoreSanitizesNames(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, KindDescriptors, "../escape/x", []byte("{}")))
	names, err := s.List(ctx, KindDescriptors)
	require.NoError(t, err)
	assert.Equal(t, []string{".._escape_x"}, names)

	_, err = s.Load(ctx, KindDescriptors, "../escape/x")
	assert.NoError(t, err)
}

func TestRedisStoreOptions(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, WithPrefix("etf"), WithTTL(time.Minute))

	require.NoError(t, s.Save(ctx, KindResults, "t1", []byte("x")))
	assert.True(t, mr.Exists("etf:results:t1"))
	assert.Equal(t, time.Minute, mr.TTL("etf:results:t1"))
	require.NoError(t, s.Ping(ctx))

	mr.FastForward(2 * time.Minute)
	_, err := s.Load(ctx, KindResults, "t1")
	assert.True(t, api.IsNotFound(err))

	names, err := s.List(ctx, KindResults)
	require.NoError(t, err)
	assert.Empty(t, names)
	members, err := mr.SMembers("etf:results:index")
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestRedisStoreConnectionError(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	err := s.Save(context.Background(), KindResults, "t1", []byte("x"))
	require.Error(t, err)
	assert.False(t, api.IsNotFound(err))
}

func TestNopStore(t *testing.T) {
	ctx := context.Background()
	var s ObjectStore = NopStore{}
	require.NoError(t, s.Save(ctx, KindResults, "t1", []byte("x")))
	_, err := s.Load(ctx, KindResults, "t1")
	assert.True(t, api.IsNotFound(err))
	names, err := s.List(ctx, KindResults)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		want    any
		wantErr bool
	}{
		{name: "default", cfg: config.StorageConfig{}, want: NopStore{}},
		{name: "none", cfg: config.StorageConfig{Type: config.StorageNone}, want: NopStore{}},
		{name: "file", cfg: config.StorageConfig{Type: config.StorageFile, Path: t.TempDir()}, want: &FileStore{}},
		{name: "file without path", cfg: config.StorageConfig{Type: config.StorageFile}, wantErr: true},
		{name: "redis", cfg: config.StorageConfig{Type: config.StorageRedis, Redis: config.RedisConfig{Addr: "localhost:0"}}, want: &RedisStore{}},
		{name: "unknown", cfg: config.StorageConfig{Type: "s3"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
			_ = s.Close()
		})
	}
}
