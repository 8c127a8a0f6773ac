package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/publisher/memory"
)

func TestPersisterPublishFailureKeepsStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	seedItems(t, store, catalog.ListEntry{ID: 730, Name: "Counter-Strike 2"})
	pub := memory.New()
	pub.FailWith(errors.New("unavailable"))
	core, logs := observer.New(zap.WarnLevel)
	p := NewPersister(store, pub, "new-games", zap.New(core))

	item := catalog.Item{ID: 730, Name: "Counter-Strike 2", Status: catalog.StatusPending}
	d := Classify(item, gameDetail("Counter-Strike 2"), "game", TransientPending)
	require.NoError(t, p.Apply(ctx, item, d, time.Now()))

	requireStatus(t, store, 730, catalog.StatusGame)
	require.Equal(t, 1, logs.FilterMessage("new game notification failed").Len())
}

func TestPersisterSkipsNotificationForKnownGames(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	seedItems(t, store, catalog.ListEntry{ID: 730, Name: "Counter-Strike 2"})
	pub := memory.New()
	p := NewPersister(store, pub, "new-games", nil)

	item := catalog.Item{ID: 730, Status: catalog.StatusGame}
	d := Classify(item, gameDetail("Counter-Strike 2"), "game", TransientPending)
	require.NoError(t, p.Apply(ctx, item, d, time.Now()))
	require.Empty(t, pub.Messages())
}

func TestPersisterMarkUnknownItem(t *testing.T) {
	t.Parallel()

	p := NewPersister(newTestStore(t), nil, "", nil)
	err := p.Apply(context.Background(), catalog.Item{ID: 99}, Excluded(), time.Now())
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestPersisterNoneIsNoop(t *testing.T) {
	t.Parallel()

	p := NewPersister(newTestStore(t), nil, "", nil)
	require.NoError(t, p.Apply(context.Background(), catalog.Item{ID: 99}, Decision{Action: ActionNone}, time.Now()))
}
