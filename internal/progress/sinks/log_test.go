package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	run := uuid.New()
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageItemDone, ItemID: 730, Outcome: "success", Status: catalog.StatusGame},
		{RunID: run, TS: now, Stage: progress.StageStats, Stats: &catalog.Stats{Total: 4, Pending: 2}},
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zap.DebugLevel, entries[0].Level)
	require.EqualValues(t, 730, entries[0].ContextMap()["item_id"])
	require.Equal(t, zap.InfoLevel, entries[1].Level)
	require.InDelta(t, 50.0, entries[1].ContextMap()["progress_pct"], 1e-9)
	require.NoError(t, sink.Close(context.Background()))
}
