package cmd

import (
	"context"
	"testing"

	"github.com/jmehdipour/campaign-orchestrator/internal/config"
	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/jmehdipour/campaign-orchestrator/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDefaults(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	_, err := store.UpsertVariant(ctx, model.Variant{Ordinal: 2, Text: "keep me", Enabled: true})
	require.NoError(t, err)

	created, err := seedDefaults(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"settings", "variant 1", "variant 3"}, created)

	st, err := store.GetSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, model.DefaultSettings().MinIntervalSeconds, st.MinIntervalSeconds)

	vs, err := store.ListVariants(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 3)
	for _, v := range vs {
		if v.Ordinal == 2 {
			assert.Equal(t, "keep me", v.Text)
			continue
		}
		assert.False(t, v.Usable())
		assert.Equal(t, model.DefaultSecondMessageDelaySeconds, v.SecondMessageDelaySeconds)
	}

	created, err = seedDefaults(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestSupervisorConfigKeepsDefaultsForZeroValues(t *testing.T) {
	got := supervisorConfig(config.SupervisorConfig{})
	assert.Equal(t, supervisor.DefaultConfig(), got)

	got = supervisorConfig(config.SupervisorConfig{MaxRestarts: 3, Factor: 2})
	assert.Equal(t, 3, got.MaxRestarts)
	assert.Equal(t, 2.0, got.Factor)
	assert.Equal(t, supervisor.DefaultConfig().BaseDelay, got.BaseDelay)
}
