package evaluate

import "strings"

// Relevance policy.
const (
	RelevanceTopicBonus     = 0.1
	RelevanceGenericPenalty = 0.1
)

// GenericPhrases are low-effort replies that match any target.
var GenericPhrases = map[string]struct{}{
	"nice":       {},
	"cool":       {},
	"gm":         {},
	"great":      {},
	"awesome":    {},
	"love it":    {},
	"lfg":        {},
	"wow":        {},
	"based":      {},
	"great post": {},
	"nice one":   {},
}

// Relevance flags.
const (
	FlagMissingReference = "missing_reference"
	FlagTopicMatch       = "topic_match"
	FlagGenericPhrase    = "generic_phrase"
)

// Relevance scores token overlap between the text and the content it replies to.
type Relevance struct{}

// Kind implements Evaluator.
func (Relevance) Kind() Kind { return KindRelevance }

// Evaluate implements Evaluator.
func (Relevance) Evaluate(sub Submission) Result {
	reference := sub.TargetContent
	if strings.TrimSpace(reference) == "" {
		reference = sub.ReferenceText
	}
	if strings.TrimSpace(reference) == "" {
		return result(KindRelevance, sub, 0, []string{FlagMissingReference})
	}

	userTokens := Tokenize(sub.Text)
	user := tokenSet(userTokens)
	score := Jaccard(user, tokenSet(Tokenize(reference)))

	var flags []string
	if topicMatch(user, sub.Topics) {
		score += RelevanceTopicBonus
		flags = append(flags, FlagTopicMatch)
	}
	if _, ok := GenericPhrases[strings.Join(userTokens, " ")]; ok {
		score -= RelevanceGenericPenalty
		flags = append(flags, FlagGenericPhrase)
	}
	return result(KindRelevance, sub, score, flags)
}

// Jaccard returns |a∩b| / |a∪b|, 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func topicMatch(user map[string]struct{}, topics []string) bool {
	for _, topic := range topics {
		for _, t := range Tokenize(topic) {
			if _, ok := user[t]; ok {
				return true
			}
		}
	}
	return false
}
