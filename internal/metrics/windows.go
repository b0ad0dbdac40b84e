package metrics

import "github.com/vilaca/agent-dashboard/internal/domain"

// sample is one window count that may be unknown when its fetch failed.
type sample struct {
	n     int
	known bool
}

func known(n int) sample { return sample{n: n, known: true} }

// repairWindows turns three independently-failable window counts into a
// monotonic triple. Unknown values are filled from neighboring windows
// (30d from 7d, else 24h; 7d from 24h, else the possibly just-filled 30d;
// 24h from zero), then clamped upward so no shorter window exceeds a longer
// one. All-unknown input yields (0,0,0).
func repairWindows(day, week, month sample) domain.WindowedCount {
	if !day.known && !week.known && !month.known {
		return domain.WindowedCount{}
	}

	if !month.known {
		switch {
		case week.known:
			month = week
		case day.known:
			month = day
		default:
			month = known(0)
		}
	}
	if !week.known {
		if day.known {
			week = day
		} else {
			week = month
		}
	}
	if !day.known {
		day = known(0)
	}

	if week.n < day.n {
		week.n = day.n
	}
	if month.n < week.n {
		month.n = week.n
	}

	return domain.WindowedCount{Day: day.n, Week: week.n, Month: month.n}
}
