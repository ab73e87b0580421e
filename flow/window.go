package flow

import (
	"strings"
	"time"

	"github.com/Reverse-Call-Center/routing-engine/config"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// windowMatches reports whether now falls inside a time-branch edge guard.
// Day names, a HH:MM range (possibly wrapping midnight) and a holiday flag
// are ANDed together; empty constraints match everything.
func windowMatches(w *config.Window, now time.Time, holidays []string) bool {
	// A holiday edge only matches on configured holidays. Non-holiday
	// windows still apply on holidays unless a holiday edge claimed the
	// day first; declaration order decides.
	if w.Holiday && !isHoliday(now, holidays) {
		return false
	}

	if len(w.Days) > 0 {
		matched := false
		for _, d := range w.Days {
			if wd, ok := weekdayNames[strings.ToLower(d)]; ok && wd == now.Weekday() {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if w.From != "" && w.To != "" {
		from, okFrom := parseClock(w.From)
		to, okTo := parseClock(w.To)
		if !okFrom || !okTo {
			return false
		}
		minute := now.Hour()*60 + now.Minute()
		if from <= to {
			if minute < from || minute >= to {
				return false
			}
		} else {
			// Wraps midnight, e.g. 22:00-06:00.
			if minute < from && minute >= to {
				return false
			}
		}
	}
	return true
}

func isHoliday(now time.Time, holidays []string) bool {
	day := now.Format("2006-01-02")
	for _, h := range holidays {
		if h == day {
			return true
		}
	}
	return false
}

// parseClock converts "HH:MM" into minutes after midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
