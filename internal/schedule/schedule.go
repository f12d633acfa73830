package schedule

import (
	"time"
)

// IsQuiet reports whether t falls in one of the quiet hours (UTC).
func IsQuiet(t time.Time, quietHours []int) bool {
	h := t.UTC().Hour()
	for _, q := range quietHours {
		if q == h {
			return true
		}
	}
	return false
}

// NextWindow returns the next time at or after now outside the quiet hours.
func NextWindow(now time.Time, quietHours []int) time.Time {
	for i := 0; i < 48; i++ { // search up to 2 days ahead
		cand := now.Add(time.Duration(i) * time.Hour)
		if !IsQuiet(cand, quietHours) {
			if i == 0 {
				return cand
			}
			return cand.Truncate(time.Hour)
		}
	}
	return now.Add(15 * time.Minute)
}
