// Package biztime provides business-timezone calendar calculations.
// All storage and transport use UTC; the business timezone is only used to
// decide which calendar day a donation belongs to.
package biztime

import (
	"fmt"
	"sync"
	"time"
)

const defaultTimezone = "Asia/Taipei"

var (
	bizLoc *time.Location
	locMu  sync.RWMutex
)

// Init loads the business timezone. An empty name falls back to Asia/Taipei.
func Init(name string) error {
	if name == "" {
		name = defaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("failed to load business timezone %q: %w", name, err)
	}
	locMu.Lock()
	bizLoc = loc
	locMu.Unlock()
	return nil
}

// Location returns the business timezone, loading the default if Init was
// never called.
func Location() *time.Location {
	locMu.RLock()
	loc := bizLoc
	locMu.RUnlock()
	if loc != nil {
		return loc
	}

	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		// Asia/Taipei is UTC+8 with no DST transitions.
		loc = time.FixedZone("CST", 8*60*60)
	}
	locMu.Lock()
	bizLoc = loc
	locMu.Unlock()
	return loc
}

// NowUTC returns the current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// CurrentDate returns today's civil date in the business timezone,
// formatted as YYYY-MM-DD.
func CurrentDate() string {
	return DateOf(time.Now())
}

// DateOf returns the civil date of t in the business timezone.
func DateOf(t time.Time) string {
	return t.In(Location()).Format(time.DateOnly)
}
