package evaluate

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Spam policy.
const (
	SpamExclamationBonus = 0.15
	SpamURLBonus         = 0.15
	SpamMinURLs          = 2
	SpamCapsBonus        = 0.2
	SpamCapsRatio        = 0.4
	SpamCapsMinRunes     = 12
	SpamThreshold        = 0.7
)

// SpamTrigger is a phrase that adds Weight when present.
type SpamTrigger struct {
	Phrase string
	Weight float64
}

// SpamTriggers is the trigger vocabulary, matched as whole words on
// lower-cased text: "free" hits "free!" but not "freedom".
var SpamTriggers = []SpamTrigger{
	{Phrase: "follow me", Weight: 0.25},
	{Phrase: "buy now", Weight: 0.3},
	{Phrase: "click here", Weight: 0.25},
	{Phrase: "free", Weight: 0.2},
	{Phrase: "promo", Weight: 0.2},
	{Phrase: "giveaway", Weight: 0.2},
}

// Spam flags.
const (
	FlagSpamTrigger  = "trigger_phrase"
	FlagExclamations = "excessive_exclamation"
	FlagManyURLs     = "multiple_urls"
	FlagCaps         = "excessive_caps"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// Spam scores how promotional or abusive the submission text looks.
type Spam struct{}

// Kind implements Evaluator.
func (Spam) Kind() Kind { return KindSpam }

// Evaluate implements Evaluator.
func (Spam) Evaluate(sub Submission) Result {
	lower := strings.ToLower(sub.Text)
	var (
		score float64
		flags []string
	)
	for _, t := range SpamTriggers {
		if containsWord(lower, t.Phrase) {
			score += t.Weight
			flags = append(flags, FlagSpamTrigger+":"+t.Phrase)
		}
	}
	if strings.Contains(sub.Text, "!!!") {
		score += SpamExclamationBonus
		flags = append(flags, FlagExclamations)
	}
	if len(urlPattern.FindAllString(sub.Text, -1)) >= SpamMinURLs {
		score += SpamURLBonus
		flags = append(flags, FlagManyURLs)
	}
	if n := utf8.RuneCountInString(sub.Text); n > SpamCapsMinRunes && capsRatio(sub.Text, n) > SpamCapsRatio {
		score += SpamCapsBonus
		flags = append(flags, FlagCaps)
	}

	r := result(KindSpam, sub, score, flags)
	r.IsSpam = r.Score >= SpamThreshold
	return r
}

func capsRatio(s string, total int) float64 {
	upper := 0
	for _, r := range s {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper) / float64(total)
}

// containsWord reports whether phrase occurs in text with no letter or digit
// directly before or after it.
func containsWord(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	for from := 0; from <= len(text)-len(phrase); {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(phrase)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}
