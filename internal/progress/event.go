package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageItemDone Stage = "ITEM_DONE"
	StageCooldown Stage = "COOLDOWN"
	StageStats    Stage = "STATS"
	StageRunDone  Stage = "RUN_DONE"
)

// Event captures one crawl milestone.
type Event struct {
	// RunID identifies one invocation of the crawl loop.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// ItemID, Outcome and Status describe ITEM_DONE events.
	ItemID  int64
	Outcome string
	Status  catalog.Status
	// Filtered marks items decided by the name pre-filter without a fetch.
	Filtered bool
	// Dur is the item processing time, the cooldown length, or the run time.
	Dur time.Duration
	// Stats is the aggregate snapshot for STATS and RUN_DONE events.
	Stats *catalog.Stats
	// Failures is the consecutive failure counter after the event.
	Failures int
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageCooldown:
	case StageItemDone:
		if e.ItemID == 0 {
			return errors.New("item done requires item id")
		}
		if e.Outcome == "" {
			return errors.New("item done requires outcome")
		}
	case StageStats, StageRunDone:
		if e.Stats == nil {
			return fmt.Errorf("%s requires stats", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
