package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
)

// TransientPolicy decides what a TransientError does to an item's status.
type TransientPolicy string

// Supported transient policies.
const (
	// TransientPending leaves the item pending so a later pass retries it.
	TransientPending TransientPolicy = "pending"
	// TransientFailed marks the item failed for an explicit retry-failed pass.
	TransientFailed TransientPolicy = "failed"
)

// ParseTransientPolicy validates a configured policy name.
func ParseTransientPolicy(s string) (TransientPolicy, error) {
	switch p := TransientPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case TransientPending, TransientFailed:
		return p, nil
	case "":
		return TransientPending, nil
	default:
		return "", fmt.Errorf("unknown transient policy %q", s)
	}
}

// Config holds the settings for the crawl engine. It is decoupled from Viper
// so the engine can be configured directly in tests.
type Config struct {
	// Delay is the minimum spacing between detail requests.
	Delay time.Duration
	// FailureThreshold is the consecutive failure count that triggers a cooldown.
	FailureThreshold int
	// RateLimitWeight is how much one RateLimited result adds to the counter.
	RateLimitWeight int
	// Cooldown is the pause applied once the threshold is reached.
	Cooldown time.Duration
	// StatsEvery emits aggregate stats after this many processed items.
	StatsEvery int
	// Selection picks which items a pass visits and in what order.
	Selection catalog.Selection
	// NameFilter enables the pre-fetch exclusion heuristic.
	NameFilter      bool
	TransientPolicy TransientPolicy
	// TargetType is the detail type that makes an item a game.
	TargetType string
	// ListFreshness is the maximum age of the last listing sync before a re-sync.
	ListFreshness time.Duration
	// IdlePoll is how long Serve waits between passes.
	IdlePoll time.Duration
	// Topic receives new-game notifications; empty disables them.
	Topic string
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Delay:            3 * time.Second,
		FailureThreshold: 50,
		RateLimitWeight:  1,
		Cooldown:         2 * time.Hour,
		StatsEvery:       100,
		NameFilter:       true,
		TransientPolicy:  TransientPending,
		TargetType:       "game",
		ListFreshness:    7 * 24 * time.Hour,
		IdlePoll:         time.Hour,
	}
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.Delay < 0 {
		return fmt.Errorf("crawler delay must be >= 0")
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("crawler failure threshold must be > 0")
	}
	if c.RateLimitWeight <= 0 {
		return fmt.Errorf("crawler rate limit weight must be > 0")
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("crawler cooldown must be > 0")
	}
	if c.StatsEvery <= 0 {
		return fmt.Errorf("crawler stats interval must be > 0")
	}
	if _, err := ParseTransientPolicy(string(c.TransientPolicy)); err != nil {
		return err
	}
	if strings.TrimSpace(c.TargetType) == "" {
		return fmt.Errorf("crawler target type must be set")
	}
	if c.ListFreshness <= 0 {
		return fmt.Errorf("crawler list freshness must be > 0")
	}
	return nil
}
