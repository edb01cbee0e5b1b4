package lifecycle

import "time"

// Cooldown decides whether an action last performed at `last` may run
// again at `now` under a fixed window, and how long remains if not.
// A nil last timestamp always allows.
func Cooldown(last *time.Time, now time.Time, window time.Duration) (bool, time.Duration) {
	if last == nil {
		return true, 0
	}
	elapsed := now.Sub(*last)
	if elapsed >= window {
		return true, 0
	}
	return false, window - elapsed
}
