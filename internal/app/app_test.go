package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lead-console/config"
	"lead-console/internal/models"
	"lead-console/internal/services"
)

func TestNewWithMemoryStores(t *testing.T) {
	a, err := New(context.Background(), config.NewConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	names, err := a.Datasets.List()
	require.NoError(t, err)
	assert.Equal(t, []string{services.DefaultDatasetName}, names)
	assert.False(t, a.Exports.CanUpload())
}

func TestNewWithSQLiteAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.NewConfig()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "leads.db")
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = a.Datasets.Import(services.DefaultDatasetName, []*models.LeadRecord{{LastName: "DUPONT", Mobile: "0612345678"}}, 10)
	require.NoError(t, err)
	reply := a.Console.Handle(context.Background(), 7, "c1", models.Event{Kind: models.EventCommandStart})
	assert.False(t, reply.Notice)
	assert.NotEmpty(t, mr.Keys())
	require.NoError(t, a.Close())

	// A second process sees the records written by the first.
	again, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer again.Close()
	record, err := again.Datasets.FindByID(services.DefaultDatasetName, "1")
	require.NoError(t, err)
	assert.Equal(t, "DUPONT", record.LastName)
}

func TestNewFailsWhenRedisIsDown(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
