package types

import "time"

// Clock supplies the current time. Services take a Clock so tests can pin
// token expiry and confirmation deadlines to fixed instants.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock. All stored timestamps are UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }
