package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcl-forecast/internal/config"
	"dcl-forecast/internal/data"
	"dcl-forecast/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Log.Output = "stderr"
	cfg.Log.Level = "error"
	return cfg
}

func TestNew_Fixtures(t *testing.T) {
	cfg := testConfig(t)
	cfg.NESO.FixturesDir = t.TempDir()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, data.FileQuerier{}, a.Querier)
	assert.IsType(t, &storage.MemoryStore{}, a.Store)
	assert.Equal(t, "Europe/London", a.Clock.Location().String())
	assert.NotNil(t, a.Builder)
}

func TestNew_MemoryCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "memory"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	client, ok := a.Querier.(*data.NESOClient)
	require.True(t, ok)
	assert.IsType(t, &data.MemoryCache{}, client.Cache)
}

func TestNew_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Cache.Backend = "redis"
	cfg.Cache.Redis.Addr = mr.Addr()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	client, ok := a.Querier.(*data.NESOClient)
	require.True(t, ok)
	assert.IsType(t, &data.RedisCache{}, client.Cache)
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "redis"
	cfg.Cache.Redis.Addr = "127.0.0.1:1"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Storage.DatabaseURL = "not a url"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Log.Format = "xml"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
