// Package gate decides whether a channel should fire for a recipient,
// combining per-type toggles with do-not-disturb windows. Pure
// functions of their inputs; no I/O.
package gate

import (
	"strconv"
	"strings"
	"time"

	"notification-engine/internal/domain"
)

// ShouldDeliver reports whether channel may fire for a notification of
// the given type under pref. A nil pref means all defaults.
//
// The realtime channel is deliberately asymmetric: it is gated by the
// per-type toggle only, never by DND or the push master switch. A
// connected client should still see live state change; DND exists to
// protect against push and sound interruptions.
func ShouldDeliver(pref *domain.Preference, typ domain.NotificationType, channel domain.Channel, now time.Time) bool {
	if !pref.TypeEnabled(typ) {
		return false
	}
	if channel == domain.ChannelRealtime {
		return true
	}
	if pref == nil {
		return true
	}
	if !pref.PushEnabled {
		return false
	}
	if InDND(pref.DND, now) {
		return false
	}
	return true
}

// InDND reports whether now falls inside the window. Windows whose end
// precedes their start wrap midnight; for wrapped windows after
// midnight the day-of-week check uses the day the window started.
func InDND(w domain.DNDWindow, now time.Time) bool {
	if !w.Enabled {
		return false
	}
	start, okS := parseClock(w.Start)
	end, okE := parseClock(w.End)
	if !okS || !okE || start == end {
		return false
	}

	minutes := now.Hour()*60 + now.Minute()
	wraps := end < start

	var inside bool
	if wraps {
		inside = minutes >= start || minutes < end
	} else {
		inside = minutes >= start && minutes < end
	}
	if !inside {
		return false
	}

	if len(w.DaysOfWeek) == 0 {
		return true
	}
	day := now.Weekday()
	if wraps && minutes < end {
		// past midnight: the window belongs to the previous day
		day = (day + 6) % 7
	}
	for _, d := range w.DaysOfWeek {
		if int(day) == d {
			return true
		}
	}
	return false
}

// parseClock turns "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
