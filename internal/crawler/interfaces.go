package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
)

// ListFetcher returns the full remote {id, name} enumeration in one call.
type ListFetcher interface {
	FetchList(ctx context.Context) ([]catalog.ListEntry, error)
}

// DetailFetcher performs one bounded, retried detail lookup. It never returns an
// error; every failure is expressed as a FetchResult outcome.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, id int64) FetchResult
}

// NameFilter is the pre-fetch exclusion hook.
type NameFilter interface {
	LikelyExcluded(name string) bool
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pacer spaces out detail requests.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Pauser blocks for a long cooldown, returning early if ctx ends.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
