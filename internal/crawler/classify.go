package crawler

import (
	"strings"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
)

// Action is the persistence step a Decision requires.
type Action int

// Persistence actions.
const (
	// ActionNone leaves the item untouched.
	ActionNone Action = iota
	// ActionMark records a non-game status on the item.
	ActionMark
	// ActionSaveGame upserts the enriched record and marks the item a game.
	ActionSaveGame
)

// Decision is the pure result of classifying one fetch result.
type Decision struct {
	Action Action
	// Status is the item's status after the decision is applied.
	Status catalog.Status
	// Record is set for ActionSaveGame.
	Record catalog.Record
	// Filtered marks a decision made by the name pre-filter.
	Filtered bool
}

// Classify maps a fetch result for item to a status change. It performs no I/O.
func Classify(item catalog.Item, res FetchResult, targetType string, policy TransientPolicy) Decision {
	switch res.Outcome {
	case OutcomeSuccess:
		if !strings.EqualFold(res.Detail.Type, targetType) {
			return Decision{Action: ActionMark, Status: catalog.StatusNotGame}
		}
		name := res.Detail.Name
		if name == "" {
			name = item.Name
		}
		return Decision{
			Action: ActionSaveGame,
			Status: catalog.StatusGame,
			Record: catalog.Record{
				ID:     item.ID,
				Name:   name,
				Type:   res.Detail.Type,
				Detail: res.Detail.Raw,
			},
		}
	case OutcomeNotFound:
		return Decision{Action: ActionMark, Status: catalog.StatusNotGame}
	case OutcomeTransient:
		if policy == TransientFailed {
			return Decision{Action: ActionMark, Status: catalog.StatusFailed}
		}
		return Decision{Action: ActionNone, Status: item.Status}
	default:
		return Decision{Action: ActionNone, Status: item.Status}
	}
}

// Excluded is the decision for an item rejected by the name pre-filter.
func Excluded() Decision {
	return Decision{Action: ActionMark, Status: catalog.StatusNotGame, Filtered: true}
}
