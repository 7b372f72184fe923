// Package system provides the wall clock used to stamp digests.
package system

import "time"

// Clock implements digest.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, truncated to whole seconds so that
// backup names and the rendered timestamp always agree.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
