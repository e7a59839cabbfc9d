package connectivity

import (
	"slices"
	"time"

	"github.com/projecteru2/rf4watch/types"
)

// Latency band upper bounds in milliseconds, best tier first.
var bands = []struct {
	below   float64
	quality types.Quality
}{
	{50, types.QualityExcellent},
	{100, types.QualityGood},
	{200, types.QualityFair},
	{500, types.QualityPoor},
}

// Classify maps reachability and average latency onto a quality tier.
func Classify(connected bool, avgMS float64) types.Quality {
	if !connected {
		return types.QualityNoConnection
	}
	for _, b := range bands {
		if avgMS < b.below {
			return b.quality
		}
	}
	return types.QualityVeryPoor
}

// Rank orders tiers from best (highest) to no connection (0).
func Rank(q types.Quality) int {
	switch q {
	case types.QualityExcellent:
		return 5
	case types.QualityGood:
		return 4
	case types.QualityFair:
		return 3
	case types.QualityPoor:
		return 2
	case types.QualityVeryPoor:
		return 1
	default:
		return 0
	}
}

// result is the outcome of probing a single target.
type result struct {
	target  string
	latency time.Duration
	err     error
}

// assemble folds per-target results into a sample. Only basic targets count
// toward connectivity and latency.
func assemble(now time.Time, basic, game []result) types.ConnectionSample {
	s := types.ConnectionSample{Timestamp: now}
	var sum time.Duration
	var ok int
	for _, r := range basic {
		if r.err != nil {
			s.UnreachableTargets = append(s.UnreachableTargets, r.target)
			continue
		}
		s.ReachableTargets = append(s.ReachableTargets, r.target)
		sum += r.latency
		ok++
	}
	for _, r := range game {
		if r.err != nil {
			s.UnreachableTargets = append(s.UnreachableTargets, r.target)
			continue
		}
		s.ReachableTargets = append(s.ReachableTargets, r.target)
		s.GameServersReachable = append(s.GameServersReachable, r.target)
	}
	s.Connected = ok > 0
	if s.Connected {
		avg := float64(sum) / float64(ok) / float64(time.Millisecond)
		s.AvgLatencyMS = &avg
		s.Quality = Classify(true, avg)
	} else {
		s.Quality = types.QualityNoConnection
	}
	slices.Sort(s.ReachableTargets)
	slices.Sort(s.UnreachableTargets)
	slices.Sort(s.GameServersReachable)
	return s
}
