package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"arena/internal/exitplan"
	"arena/internal/store/gormstore"
)

func TestPrintPlansAsYAML(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "arena.db")
	store, err := gormstore.NewGormStore(path)
	require.NoError(t, err)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertExitPlan(ctx, "alpha", "BTC", exitplan.ExitPlan{ProfitTarget: 65000, StopLoss: 58000, InvalidationCondition: "4h close below 57000", LastUpdated: at}))
	require.NoError(t, store.UpsertExitPlan(ctx, "beta", "ETH", exitplan.ExitPlan{StopLoss: 3000, LastUpdated: at}))
	require.NoError(t, store.Close())

	var buf bytes.Buffer
	require.NoError(t, printPlans(ctx, &buf, path, "alpha"))
	var records []exitplan.Record
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "BTC", records[0].Symbol)
	assert.Equal(t, 65000.0, records[0].Plan.ProfitTarget)
	assert.Contains(t, buf.String(), "invalidation_condition: 4h close below 57000")

	buf.Reset()
	require.NoError(t, printPlans(ctx, &buf, path, ""))
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &records))
	assert.Len(t, records, 2)

	buf.Reset()
	require.NoError(t, printPlans(ctx, &buf, path, "nobody"))
	assert.Equal(t, "# no exit plans\n", buf.String())
}

func TestRootCommandFlags(t *testing.T) {
	t.Setenv("ARENA_CONFIG", "/tmp/custom.toml")
	root := newRootCmd()
	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "/tmp/custom.toml", flag.DefValue)

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "once", "plans"})
}
