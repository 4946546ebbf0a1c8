package ledger

import (
	"fmt"

	"github.com/Vinayak0987/CareSync-sub001/pkg/store"
)

// Policy decides whether an incoming order list replaces the local one.
type Policy string

const (
	// PolicyLastWriterWins adopts every list it receives.
	PolicyLastWriterWins Policy = "last-writer-wins"
	// PolicyVersioned adopts a list only when its version is newer than
	// the local one. Snapshots with an equal version are ordered by
	// origin.
	PolicyVersioned Policy = "versioned"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyLastWriterWins:
		return PolicyLastWriterWins, nil
	case PolicyVersioned:
		return PolicyVersioned, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", s)
}

// accepts reports whether incoming may replace current. Equal versions
// are ordered by origin; a snapshot of unknown origin must be strictly
// newer.
func (p Policy) accepts(current, incoming store.Stamp) bool {
	if p != PolicyVersioned {
		return true
	}
	if incoming.Version != current.Version {
		return incoming.Version > current.Version
	}
	return incoming.Origin != "" && incoming.Origin >= current.Origin
}
