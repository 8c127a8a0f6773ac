package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
)

// NewGameMessage is published when an item is first confirmed as a game.
type NewGameMessage struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Persister writes classification decisions to the store.
type Persister struct {
	store     catalog.Store
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPersister builds a Persister. publisher may be nil and topic empty, which
// disables notifications.
func NewPersister(store catalog.Store, publisher Publisher, topic string, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{store: store, publisher: publisher, topic: topic, logger: logger}
}

// Apply persists d for item. Every write is an upsert keyed by item id, so
// applying the same decision twice leaves the store unchanged.
func (p *Persister) Apply(ctx context.Context, item catalog.Item, d Decision, at time.Time) error {
	switch d.Action {
	case ActionNone:
		return nil
	case ActionMark:
		if err := p.store.MarkItem(ctx, item.ID, d.Status, at, d.Filtered); err != nil {
			return fmt.Errorf("mark item %d %s: %w", item.ID, d.Status, err)
		}
		return nil
	case ActionSaveGame:
		if err := p.store.SaveGame(ctx, d.Record, at); err != nil {
			return fmt.Errorf("save game %d: %w", item.ID, err)
		}
		if item.Status != catalog.StatusGame {
			p.notify(ctx, d.Record, at)
		}
		return nil
	default:
		return fmt.Errorf("unknown action %d", d.Action)
	}
}

func (p *Persister) notify(ctx context.Context, rec catalog.Record, at time.Time) {
	if p.publisher == nil || p.topic == "" {
		return
	}
	msg := NewGameMessage{ID: rec.ID, Name: rec.Name, Type: rec.Type, DiscoveredAt: at.UTC()}
	id, err := p.publisher.Publish(ctx, p.topic, msg)
	if err != nil {
		p.logger.Warn("new game notification failed",
			zap.Int64("item_id", rec.ID),
			zap.String("topic", p.topic),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("new game notification published",
		zap.Int64("item_id", rec.ID),
		zap.String("message_id", id),
	)
}
