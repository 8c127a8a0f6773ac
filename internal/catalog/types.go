package catalog

import (
	"encoding/json"
	"time"
)

// ListEntry is one {id, name} pair from the remote listing.
type ListEntry struct {
	ID   int64  `json:"appid"`
	Name string `json:"name"`
}

// Item is one row of the item store.
type Item struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	// Filtered is set when the name pre-filter decided the status without a network call.
	Filtered bool `json:"filtered"`
}

// Record is an item confirmed to be of the target type, with the detail payload
// kept verbatim so it can be re-parsed without re-fetching.
type Record struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Detail json.RawMessage `json:"detail"`
}

// CrawlState is the process-wide progress metadata persisted between runs.
type CrawlState struct {
	ListLastSynced      time.Time `json:"list_last_synced"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastStats           *Stats    `json:"last_stats,omitempty"`
	LastStatsAt         time.Time `json:"last_stats_at"`
}

// Selection controls which items PendingItems returns.
type Selection struct {
	// RetryFailed re-admits failed items alongside pending ones.
	RetryFailed bool
	// Shuffle randomizes the order instead of ascending id.
	Shuffle bool
}

// Stats are aggregate item counts grouped by status.
type Stats struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Games    int64 `json:"games"`
	NotGames int64 `json:"not_games"`
	Failed   int64 `json:"failed"`
	Filtered int64 `json:"filtered"`
}

// Add folds count rows with the given status into the aggregate.
func (s *Stats) Add(status Status, filtered bool, count int64) {
	s.Total += count
	switch status {
	case StatusPending:
		s.Pending += count
	case StatusGame:
		s.Games += count
	case StatusNotGame, StatusChecked:
		s.NotGames += count
	case StatusFailed:
		s.Failed += count
	}
	if filtered {
		s.Filtered += count
	}
}

// Processed is the number of items no longer pending.
func (s Stats) Processed() int64 {
	return s.Total - s.Pending
}

// Progress returns the processed share of the catalog as a percentage.
func (s Stats) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Processed()) * 100 / float64(s.Total)
}
