// Package evaluate scores a claimed engagement along independent dimensions.
//
// Evaluators are pure: they read only the Submission they are given, never
// the wall clock, and never panic on malformed input. A caller picks the
// subset it needs and composes them with Run.
package evaluate

import (
	"math"
	"time"
)

// Kind names an evaluation dimension.
type Kind string

// Evaluation kinds.
const (
	KindQuality     Kind = "quality"
	KindSpam        Kind = "spam"
	KindRelevance   Kind = "relevance"
	KindConsistency Kind = "consistency"
	KindFraud       Kind = "fraud"
)

// Kinds lists every evaluation kind in pipeline order.
var Kinds = []Kind{KindQuality, KindSpam, KindRelevance, KindConsistency, KindFraud}

// Engagement describes the action a user claims to have taken.
type Engagement struct {
	ActionType         string   `json:"actionType"`
	Evidence           any      `json:"evidence,omitempty"`
	SuspiciousPatterns []string `json:"suspiciousPatterns,omitempty"`
}

// Evidence is the structured proof of an engagement.
type Evidence struct {
	Type     string  `json:"type"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"`
}

// EngagementEvent is one recent engagement by the same user.
type EngagementEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	ActionType string    `json:"actionType,omitempty"`
	Text       string    `json:"text,omitempty"`
}

// HistoryEvent is one entry of a user's engagement history.
type HistoryEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId,omitempty"`
}

// Submission is the payload evaluators score.
type Submission struct {
	Text              string            `json:"text"`
	Engagement        *Engagement       `json:"engagementData,omitempty"`
	RecentEngagements []EngagementEvent `json:"recentEngagements,omitempty"`
	History           []HistoryEvent    `json:"engagementHistory,omitempty"`
	TargetContent     string            `json:"targetContent,omitempty"`
	ReferenceText     string            `json:"referenceText,omitempty"`
	Topics            []string          `json:"topics,omitempty"`
	// At stamps results. Evaluators never read the clock themselves.
	At time.Time `json:"at,omitempty"`
	// Evaluations holds results already attached to the submission.
	Evaluations map[Kind]Result `json:"evaluation,omitempty"`
}

// Result is the outcome of one evaluator.
type Result struct {
	Kind      Kind      `json:"type"`
	Score     float64   `json:"score"`
	IsSpam    bool      `json:"isSpam,omitempty"`
	IsFraud   bool      `json:"isFraud,omitempty"`
	Flags     []string  `json:"flags"`
	Timestamp time.Time `json:"timestamp"`
}

// HasFlag reports whether r carries flag.
func (r Result) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Evaluator scores one dimension of a submission.
type Evaluator interface {
	Kind() Kind
	Evaluate(sub Submission) Result
}

// Run applies each evaluator in order and attaches its result to the
// submission, so later evaluators can see earlier verdicts.
func Run(sub Submission, evaluators ...Evaluator) Submission {
	for _, e := range evaluators {
		if e == nil {
			continue
		}
		sub = Merge(sub, e.Evaluate(sub))
	}
	return sub
}

// Merge attaches r to sub without touching other fields or other kinds.
func Merge(sub Submission, r Result) Submission {
	merged := make(map[Kind]Result, len(sub.Evaluations)+1)
	for k, v := range sub.Evaluations {
		merged[k] = v
	}
	merged[r.Kind] = r
	sub.Evaluations = merged
	return sub
}

// MergePayload attaches r under payload["evaluation"][kind]. Unrelated keys
// are preserved; a non-map "evaluation" value is replaced.
func MergePayload(payload map[string]any, r Result) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	evals := map[string]any{}
	if existing, ok := payload["evaluation"].(map[string]any); ok {
		for k, v := range existing {
			evals[k] = v
		}
	}
	evals[string(r.Kind)] = r
	out["evaluation"] = evals
	return out
}

// Default returns one evaluator of each kind with default policy.
func Default() map[Kind]Evaluator {
	return map[Kind]Evaluator{
		KindQuality:     Quality{},
		KindSpam:        Spam{},
		KindRelevance:   Relevance{},
		KindConsistency: Consistency{},
		KindFraud:       Fraud{},
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func result(kind Kind, sub Submission, score float64, flags []string) Result {
	if flags == nil {
		flags = []string{}
	}
	return Result{Kind: kind, Score: clamp01(score), Flags: flags, Timestamp: sub.At}
}
