package catalog

import "fmt"

// Status is the crawl state of a single catalog item.
type Status string

// Supported item statuses. StatusChecked is only read from older databases and
// is reported together with StatusNotGame.
const (
	StatusPending Status = "pending"
	StatusChecked Status = "checked"
	StatusGame    Status = "game"
	StatusFailed  Status = "failed"
	StatusNotGame Status = "not_game"
)

// ParseStatus maps the stored string representation back to a Status.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusChecked, StatusGame, StatusFailed, StatusNotGame:
		return s, nil
	default:
		return "", fmt.Errorf("unknown item status %q", raw)
	}
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether a normal crawl pass leaves items in this status alone.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// CheckMarkable reports whether an item may be moved to status by a plain status
// write. Games need their enriched record written alongside, and pending carries
// no last_checked timestamp, so neither can be set this way.
func CheckMarkable(status Status) error {
	switch status {
	case StatusNotGame, StatusFailed, StatusChecked:
		return nil
	case StatusGame:
		return fmt.Errorf("status %q requires an enriched record", status)
	default:
		return fmt.Errorf("cannot mark item as %q", status)
	}
}
