package types

import "time"

// TimePoint is a nanosecond-resolution instant carried as whole seconds plus
// a nanosecond remainder, the form exchange timestamps arrive in. The zero
// value means "unknown"; use the pointer form for optional fields.
type TimePoint struct {
	Seconds int64
	Nanos   int64
}

// TimePointNow returns the current wall-clock instant.
func TimePointNow() TimePoint {
	now := time.Now()
	return TimePoint{Seconds: now.Unix(), Nanos: int64(now.Nanosecond())}
}

// TimePointFromUnixMilli converts an exchange millisecond timestamp.
func TimePointFromUnixMilli(ms int64) TimePoint {
	return TimePoint{Seconds: ms / 1000, Nanos: (ms % 1000) * 1_000_000}
}

// Compare orders two time points lexicographically: -1, 0 or 1.
func (t TimePoint) Compare(other TimePoint) int {
	if t.Seconds != other.Seconds {
		if t.Seconds < other.Seconds {
			return -1
		}
		return 1
	}
	if t.Nanos != other.Nanos {
		if t.Nanos < other.Nanos {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether t is strictly earlier than other.
func (t TimePoint) Before(other TimePoint) bool { return t.Compare(other) < 0 }

// After reports whether t is strictly later than other.
func (t TimePoint) After(other TimePoint) bool { return t.Compare(other) > 0 }

// Sub returns the elapsed duration from other to t.
func (t TimePoint) Sub(other TimePoint) time.Duration {
	return time.Duration(t.Seconds-other.Seconds)*time.Second + time.Duration(t.Nanos-other.Nanos)
}

// Time converts to a time.Time in the local zone.
func (t TimePoint) Time() time.Time {
	return time.Unix(t.Seconds, t.Nanos)
}
