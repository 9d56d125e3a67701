package evaluate

import (
	"net/url"
	"strings"
)

// Quality policy.
const (
	QualityBase              = 0.3
	QualityEvidenceBonus     = 0.2
	QualitySuspiciousPenalty = 0.3
)

// QualityActionBonus is the per-action bonus; only these actions are scored.
var QualityActionBonus = map[string]float64{
	"verify":  0.6,
	"quote":   0.4,
	"comment": 0.35,
	"retweet": 0.25,
	"like":    0.15,
}

// Quality flags.
const (
	FlagMissingEngagement  = "missing_engagement_data"
	FlagUnsupportedAction  = "unsupported_action"
	FlagEvidenceVerified   = "evidence_verified"
	FlagEvidenceInvalid    = "evidence_invalid"
	FlagSuspiciousPatterns = "suspicious_patterns"
)

// Quality scores how much a claimed engagement is worth.
type Quality struct{}

// Kind implements Evaluator.
func (Quality) Kind() Kind { return KindQuality }

// Evaluate implements Evaluator.
func (Quality) Evaluate(sub Submission) Result {
	eng := sub.Engagement
	if eng == nil {
		return result(KindQuality, sub, 0, []string{FlagMissingEngagement})
	}
	action := strings.ToLower(strings.TrimSpace(eng.ActionType))
	bonus, ok := QualityActionBonus[action]
	if !ok {
		return result(KindQuality, sub, 0, []string{FlagUnsupportedAction})
	}

	score := QualityBase + bonus
	var flags []string
	switch {
	case ValidEvidence(eng.Evidence):
		score += QualityEvidenceBonus
		flags = append(flags, FlagEvidenceVerified)
	case eng.Evidence != nil:
		flags = append(flags, FlagEvidenceInvalid)
	}
	if len(eng.SuspiciousPatterns) > 0 {
		score -= QualitySuspiciousPenalty
		flags = append(flags, FlagSuspiciousPatterns)
	}
	return result(KindQuality, sub, score, flags)
}

// ValidEvidence reports whether ev proves an engagement. Any string counts.
// Structured evidence must be a screenshot with an http(s) url, or a video
// with an http(s) url and a positive duration.
func ValidEvidence(ev any) bool {
	switch v := ev.(type) {
	case string:
		return true
	case Evidence:
		return validStructured(v)
	case *Evidence:
		return v != nil && validStructured(*v)
	case map[string]any:
		e := Evidence{}
		e.Type, _ = v["type"].(string)
		e.URL, _ = v["url"].(string)
		e.Duration = number(v["duration"])
		return validStructured(e)
	default:
		return false
	}
}

func validStructured(e Evidence) bool {
	if !httpURL(e.URL) {
		return false
	}
	switch strings.ToLower(e.Type) {
	case "screenshot":
		return true
	case "video":
		return e.Duration > 0
	default:
		return false
	}
}

func httpURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
