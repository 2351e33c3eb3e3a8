package service

import "reflow_oven/internal/models"

// TargetAt returns the temperature and power a profile asks for at elapsed
// seconds. Before the first waypoint the first waypoint's values hold; at or
// after the last waypoint the last values hold and complete is true.
// Waypoints must be sorted by time, which the profile store guarantees.
func TargetAt(p models.Profile, elapsed float64) (t models.Targets, complete bool) {
	w := p.Waypoints
	if len(w) == 0 {
		return models.Targets{}, true
	}
	if elapsed < w[0].TimeS {
		return targetOf(w[0]), false
	}
	last := w[len(w)-1]
	if elapsed >= last.TimeS {
		return targetOf(last), true
	}
	for i := 0; i+1 < len(w); i++ {
		a, b := w[i], w[i+1]
		if elapsed >= a.TimeS && elapsed < b.TimeS {
			f := (elapsed - a.TimeS) / (b.TimeS - a.TimeS)
			return models.Targets{
				TempC:    lerp(a.TempC, b.TempC, f),
				PowerPct: lerp(a.PowerPct, b.PowerPct, f),
			}, false
		}
	}
	return targetOf(last), true
}

func targetOf(w models.Waypoint) models.Targets {
	return models.Targets{TempC: w.TempC, PowerPct: w.PowerPct}
}

func lerp(a, b, f float64) float64 { return a + (b-a)*f }
