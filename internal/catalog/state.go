package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Keys of the crawl_state key/value table.
const (
	StateListLastSynced      = "list_last_synced"
	StateConsecutiveFailures = "consecutive_failures"
	StateLastStats           = "last_stats"
)

// TimeLayout is the text encoding used for timestamps stored as strings.
const TimeLayout = time.RFC3339Nano

// FormatTime encodes t for text columns.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime decodes a value written by FormatTime.
func ParseTime(raw string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// EncodeStats renders stats for the last_stats state key.
func EncodeStats(stats Stats) (string, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("marshal stats: %w", err)
	}
	return string(data), nil
}

// Apply folds one crawl_state row into s. Unknown keys are ignored so older
// binaries can read state written by newer ones.
func (s *CrawlState) Apply(key, value string, updatedAt time.Time) error {
	switch key {
	case StateListLastSynced:
		t, err := ParseTime(value)
		if err != nil {
			return err
		}
		s.ListLastSynced = t
	case StateConsecutiveFailures:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		s.ConsecutiveFailures = n
	case StateLastStats:
		var stats Stats
		if err := json.Unmarshal([]byte(value), &stats); err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		s.LastStats = &stats
		s.LastStatsAt = updatedAt.UTC()
	}
	return nil
}
