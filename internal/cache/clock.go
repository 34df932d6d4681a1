package cache

import "time"

// Clock provides the current time. Tests substitute a fake one.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// expiresAt converts a ttl into an absolute deadline in unix nanoseconds.
// A ttl <= 0 never expires and is encoded as 0.
func expiresAt(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now.Add(ttl).UnixNano()
}

func expired(deadline, now int64) bool {
	return deadline > 0 && now > deadline
}
