package evaluate

import (
	"sort"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"
)

// Fraud policy.
const (
	FraudMissingEvidence    = 0.3
	FraudSuspiciousPatterns = 0.3
	FraudBurst              = 0.3
	FraudBurstWindow        = 10 * time.Second
	FraudBurstMinEvents     = 5
	FraudDominance          = 0.1
	FraudDominanceSample    = 10
	FraudDominanceMinEvents = 5
	FraudDominanceShare     = 0.8
	FraudDuplicateText      = 0.2
	FraudDuplicateMinCount  = 3
	FraudCollision          = 0.25
	FraudCollisionMinEvents = 5
	FraudThreshold          = 0.6
)

// HighValueActions require evidence.
var HighValueActions = map[string]struct{}{
	"verify":  {},
	"quote":   {},
	"comment": {},
}

// Fraud flags.
const (
	FlagMissingEvidence    = "missing_evidence"
	FlagBurstActivity      = "burst_activity"
	FlagRepetitiveActions  = "repetitive_actions"
	FlagDuplicateContent   = "duplicate_content"
	FlagTimestampCollision = "timestamp_collision"
)

// Fraud accumulates signals of automated or farmed engagement.
type Fraud struct{}

// Kind implements Evaluator.
func (Fraud) Kind() Kind { return KindFraud }

// Evaluate implements Evaluator.
func (Fraud) Evaluate(sub Submission) Result {
	var (
		score float64
		flags []string
	)
	add := func(v float64, flag string) {
		score += v
		flags = append(flags, flag)
	}

	if eng := sub.Engagement; eng != nil {
		if _, ok := HighValueActions[strings.ToLower(eng.ActionType)]; ok && missingEvidence(eng.Evidence) {
			add(FraudMissingEvidence, FlagMissingEvidence)
		}
	}
	if suspicious(sub) {
		add(FraudSuspiciousPatterns, FlagSuspiciousPatterns)
	}

	recent := make([]EngagementEvent, 0, len(sub.RecentEngagements))
	for _, e := range sub.RecentEngagements {
		if !e.Timestamp.IsZero() {
			recent = append(recent, e)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Timestamp.Before(recent[j].Timestamp) })

	if burst(recent) {
		add(FraudBurst, FlagBurstActivity)
	}
	if dominated(recent) {
		add(FraudDominance, FlagRepetitiveActions)
	}
	if duplicateTexts(sub) {
		add(FraudDuplicateText, FlagDuplicateContent)
	}
	if collisions(recent) {
		add(FraudCollision, FlagTimestampCollision)
	}

	r := result(KindFraud, sub, score, flags)
	r.IsFraud = r.Score >= FraudThreshold
	return r
}

func missingEvidence(ev any) bool {
	if ev == nil {
		return true
	}
	s, ok := ev.(string)
	return ok && strings.TrimSpace(s) == ""
}

func suspicious(sub Submission) bool {
	if sub.Engagement != nil && len(sub.Engagement.SuspiciousPatterns) > 0 {
		return true
	}
	q, ok := sub.Evaluations[KindQuality]
	return ok && q.HasFlag(FlagSuspiciousPatterns)
}

// burst reports whether any FraudBurstWindow span, starting at one of the
// sorted events, holds FraudBurstMinEvents events. The window slides over
// the history, so a later straggler does not hide an earlier cluster.
func burst(sorted []EngagementEvent) bool {
	if len(sorted) < FraudBurstMinEvents {
		return false
	}
	lo := 0
	for hi := range sorted {
		for sorted[hi].Timestamp.Sub(sorted[lo].Timestamp) > FraudBurstWindow {
			lo++
		}
		if hi-lo+1 >= FraudBurstMinEvents {
			return true
		}
	}
	return false
}

func dominated(sorted []EngagementEvent) bool {
	sample := sorted
	if len(sample) > FraudDominanceSample {
		sample = sample[len(sample)-FraudDominanceSample:]
	}
	if len(sample) < FraudDominanceMinEvents {
		return false
	}
	counts := make(map[string]int)
	top := 0
	for _, e := range sample {
		k := strings.ToLower(e.ActionType)
		counts[k]++
		if counts[k] > top {
			top = counts[k]
		}
	}
	return float64(top)/float64(len(sample)) >= FraudDominanceShare
}

// duplicateTexts fingerprints the submission text and recent texts.
func duplicateTexts(sub Submission) bool {
	counts := make(map[uint64]int)
	seen := func(text string) bool {
		norm := strings.ToLower(strings.TrimSpace(text))
		if norm == "" {
			return false
		}
		h := murmur3.Sum64([]byte(norm))
		counts[h]++
		return counts[h] >= FraudDuplicateMinCount
	}
	hit := seen(sub.Text)
	for _, e := range sub.RecentEngagements {
		if seen(e.Text) {
			hit = true
		}
	}
	return hit
}

func collisions(events []EngagementEvent) bool {
	counts := make(map[int64]int)
	for _, e := range events {
		k := e.Timestamp.UnixNano()
		counts[k]++
		if counts[k] >= FraudCollisionMinEvents {
			return true
		}
	}
	return false
}
