package cache

import (
	"encoding/json"
	"time"
)

type State int

const (
	StateEmpty State = iota
	StateFresh
	StateStale
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateExpired:
		return "expired"
	default:
		return "empty"
	}
}

// Entry is the unit stored in both tiers. Entries are replaced whole, never
// patched.
type Entry struct {
	Key      string          `json:"key"`
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
}

// State classifies the entry at now: fresh while age <= TTL, stale while
// age <= TTL+grace, expired after that.
func (e Entry) State(now time.Time, grace time.Duration) State {
	if e.StoredAt.IsZero() {
		return StateEmpty
	}
	age := now.Sub(e.StoredAt)
	switch {
	case age <= e.TTL:
		return StateFresh
	case age <= e.TTL+grace:
		return StateStale
	default:
		return StateExpired
	}
}
