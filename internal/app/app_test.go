package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/grant-discovery/internal/app"
	"github.com/JakeFAU/grant-discovery/internal/config"
	"github.com/JakeFAU/grant-discovery/internal/grant"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Provider = config.ProviderMemory
	cfg.Storage.Provider = config.ProviderLocal
	cfg.Storage.Local.BaseDir = t.TempDir()
	cfg.Index.Provider = config.ProviderMemory
	cfg.Publisher.Provider = config.ProviderMemory
	return cfg
}

func TestNewBuildsMemoryApp(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), memoryConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	require.NotNil(t, a.Controller)
	require.NotNil(t, a.Store)
	require.NotNil(t, a.Blobs)

	stored, err := a.Store.List(context.Background(), "eureka")
	require.NoError(t, err)
	require.Empty(t, stored)

	_, err = a.Controller.Latest(context.Background())
	require.ErrorIs(t, err, grant.ErrNotFound)
}

func TestNewRejectsUnknownProviders(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	cfg.Index.Provider = "pinecone"
	_, err := app.New(context.Background(), cfg, nil)
	require.True(t, errors.Is(err, config.ErrConfiguration), "got %v", err)

	cfg = memoryConfig(t)
	cfg.Storage.Provider = "s3"
	_, err = app.New(context.Background(), cfg, nil)
	require.ErrorIs(t, err, config.ErrConfiguration)
}

func TestNewRequiresOpenAIKey(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	cfg.Embedding.Provider = config.ProviderOpenAI
	_, err := app.New(context.Background(), cfg, nil)
	require.Error(t, err)
}
