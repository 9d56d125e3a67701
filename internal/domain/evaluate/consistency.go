package evaluate

import (
	"math"
	"sort"
	"time"
)

// Consistency policy.
const (
	ConsistencyInsufficientScore = 0.5
	ConsistencyHighVarianceCV    = 0.8
	ConsistencyRapidGap          = 5 * time.Second
	SessionHoppingMinSessions    = 3
	SessionHoppingMaxAvgEvents   = 2.0
	SessionHoppingPenalty        = 0.15
)

// Consistency flags.
const (
	FlagInsufficientHistory = "insufficient_history"
	FlagHighVariance        = "high_variance"
	FlagRapidSequence       = "rapid_sequence"
	FlagSessionHopping      = "session_hopping"
)

// Consistency scores how regular a user's engagement cadence is.
type Consistency struct{}

// Kind implements Evaluator.
func (Consistency) Kind() Kind { return KindConsistency }

// Evaluate implements Evaluator.
func (Consistency) Evaluate(sub Submission) Result {
	stamps := make([]time.Time, 0, len(sub.History))
	for _, h := range sub.History {
		if !h.Timestamp.IsZero() {
			stamps = append(stamps, h.Timestamp)
		}
	}
	if len(stamps) < 2 {
		return result(KindConsistency, sub, ConsistencyInsufficientScore, []string{FlagInsufficientHistory})
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	gaps := make([]float64, 0, len(stamps)-1)
	rapid := false
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		if gap < ConsistencyRapidGap {
			rapid = true
		}
		gaps = append(gaps, gap.Seconds())
	}
	cv := CoefficientOfVariation(gaps)
	score := 1 - math.Min(1, cv)

	var flags []string
	if cv > ConsistencyHighVarianceCV {
		flags = append(flags, FlagHighVariance)
	}
	if rapid {
		flags = append(flags, FlagRapidSequence)
	}
	if sessionHopping(sub.History) {
		score -= SessionHoppingPenalty
		flags = append(flags, FlagSessionHopping)
	}
	return result(KindConsistency, sub, score, flags)
}

// CoefficientOfVariation returns population stdev / mean, or 1 when the
// mean is zero or there are no values.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 1
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 1
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq/float64(len(values))) / mean
}

func sessionHopping(history []HistoryEvent) bool {
	sessions := make(map[string]int)
	for _, h := range history {
		if h.SessionID != "" {
			sessions[h.SessionID]++
		}
	}
	if len(sessions) < SessionHoppingMinSessions {
		return false
	}
	events := 0
	for _, n := range sessions {
		events += n
	}
	return float64(events)/float64(len(sessions)) < SessionHoppingMaxAvgEvents
}
