package analyses

import "math"

// Phase weights; they sum to 100.
const (
	weightSampling  = 20.0
	weightDiscovery = 15.0
	weightParallel  = 50.0
	weightConflicts = 10.0
	weightSummary   = 5.0

	interRoundBonus = 2.0
)

// Project maps a progress record to a percentage in [0,100]. floor is the
// highest value already reported for the job; the result never drops below it.
// complete is always 100 and error returns floor.
func Project(p Progress, floor int) int {
	switch p.Phase {
	case PhaseComplete:
		return 100
	case PhaseError:
		return clampInt(floor, 0, 100)
	}
	v := int(math.Round(rawPercent(p)))
	v = clampInt(v, 0, 99)
	if floor > v {
		v = clampInt(floor, 0, 99)
	}
	return v
}

func rawPercent(p Progress) float64 {
	const (
		discoveryBase = weightSampling
		parallelBase  = discoveryBase + weightDiscovery
		conflictBase  = parallelBase + weightParallel
		summaryBase   = conflictBase + weightConflicts
	)
	switch p.Phase {
	case PhaseSampling:
		var frac float64
		if sp := p.SamplingProgress; sp != nil {
			frac = math.Max(ratio(sp.WindowIndex, sp.TotalWindows), ratio(p.SessionsFound, sp.TargetCount))
		}
		return weightSampling * clamp01(frac)
	case PhaseDiscovery:
		var rate float64
		if p.DiscoveryStats != nil {
			rate = p.DiscoveryStats.DiscoveryRate
		}
		return discoveryBase + weightDiscovery*clamp01(rate)
	case PhaseParallel:
		return parallelValue(p, parallelBase)
	case PhaseConflicts:
		if p.TotalRounds > 0 && p.RoundsCompleted < p.TotalRounds {
			return math.Min(parallelValue(p, parallelBase)+interRoundBonus, conflictBase)
		}
		resolved := 1.0
		if cs := p.ConflictStats; cs != nil && cs.ConflictsFound > 0 {
			resolved = ratio(cs.ConflictsResolved, cs.ConflictsFound)
		}
		return conflictBase + weightConflicts*clamp01(resolved)
	case PhaseSummary:
		return summaryBase + 0.5*weightSummary
	}
	return 0
}

func parallelValue(p Progress, base float64) float64 {
	frac := math.Max(ratio(p.RoundsCompleted, p.TotalRounds), ratio(p.SessionsProcessed, p.TotalSessions))
	return base + weightParallel*clamp01(frac)
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
