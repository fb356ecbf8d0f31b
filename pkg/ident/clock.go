package ident

import "time"

// Clock abstracts time for testability. Every validity check in
// the ledger evaluates against an injected Clock rather than
// reading the wall clock directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
