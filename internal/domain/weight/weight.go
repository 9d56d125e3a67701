// Package weight scores a single interaction into a signed reputation weight.
//
// The function is pure: the same interaction evaluated at the same instant
// always yields the same weight. Every factor comes from a named table so the
// policy can be read and tested apart from the arithmetic.
package weight

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/okian/rally/internal/domain/model"
)

// Policy constants.
const (
	BaseWeight         = 1.0
	DefaultMultiplier  = 1.0
	SentimentFactor    = 0.5
	LongContentRunes   = 100
	LongContentFactor  = 1.2
	ShortContentRunes  = 20
	ShortContentFactor = 0.8
	VocabularyBonus    = 0.1
	DecayScale         = 168 * time.Hour
	DecayFloor         = 0.1
	WeightFloor        = -0.5
)

// DefaultTypeMultipliers is the per-type weight table.
var DefaultTypeMultipliers = map[model.InteractionType]float64{
	model.RaidInitiation:        2.5,
	model.MentorBehavior:        3.0,
	model.CommunityHelp:         2.5,
	model.KnowledgeSharing:      2.2,
	model.ConstructiveFeedback:  2.0,
	model.RaidParticipation:     2.0,
	model.ConstructiveCriticism: 1.8,
	model.BugReport:             1.8,
	model.PositiveFeedback:      1.2,
	model.CasualChat:            0.5,
	model.SpamReport:            -1.0,
	model.ToxicBehavior:         -2.0,
}

// QualityVocabulary lists words that signal a reasoned explanation.
var QualityVocabulary = map[string]struct{}{
	"because":       {},
	"however":       {},
	"therefore":     {},
	"specifically":  {},
	"example":       {},
	"solution":      {},
	"furthermore":   {},
	"additionally":  {},
	"consequently":  {},
	"alternatively": {},
}

// ContextBonus multiplies the weight when Flag is truthy in the context.
type ContextBonus struct {
	Flag   string
	Factor float64
}

// ContextBonuses is applied in order so results are reproducible bit for bit.
var ContextBonuses = []ContextBonus{
	{Flag: "mentions_others", Factor: 1.3},
	{Flag: "helps_newbie", Factor: 1.5},
	{Flag: "shares_resources", Factor: 1.4},
}

// Option applies a configuration option to the Weigher.
type Option func(*Weigher)

// WithTypeMultipliers overrides entries of the type table. Keys are matched
// case-insensitively; unlisted types keep their default.
func WithTypeMultipliers(overrides map[string]float64) Option {
	return func(w *Weigher) {
		for k, v := range overrides {
			w.types[model.InteractionType(strings.ToLower(k))] = v
		}
	}
}

// Weigher computes interaction weights.
type Weigher struct {
	types map[model.InteractionType]float64
}

// New creates a Weigher using the default policy tables.
func New(opts ...Option) *Weigher {
	w := &Weigher{types: make(map[model.InteractionType]float64, len(DefaultTypeMultipliers))}
	for k, v := range DefaultTypeMultipliers {
		w.types[k] = v
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Multiplier returns the type multiplier, DefaultMultiplier when unknown.
func (w *Weigher) Multiplier(t model.InteractionType) float64 {
	if m, ok := w.types[t]; ok {
		return m
	}
	return DefaultMultiplier
}

// Weight scores in as of now.
func (w *Weigher) Weight(in model.Interaction, now time.Time) float64 {
	v := BaseWeight * w.Multiplier(in.Type)
	v *= 1 + in.SentimentScore*SentimentFactor
	v *= LengthFactor(in.Content)
	v *= 1 + VocabularyBonus*float64(VocabularyCount(in.Content))
	v *= Decay(now.Sub(in.Timestamp))
	for _, b := range ContextBonuses {
		if truthy(in.Context[b.Flag]) {
			v *= b.Factor
		}
	}
	return math.Max(WeightFloor, v)
}

// LengthFactor rewards long content and discounts very short content.
func LengthFactor(content string) float64 {
	n := utf8.RuneCountInString(content)
	switch {
	case n > LongContentRunes:
		return LongContentFactor
	case n < ShortContentRunes:
		return ShortContentFactor
	default:
		return 1
	}
}

// VocabularyCount counts tokens of content found in QualityVocabulary.
func VocabularyCount(content string) int {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	count := 0
	for _, word := range words {
		if _, ok := QualityVocabulary[word]; ok {
			count++
		}
	}
	return count
}

// Decay returns the recency factor for an interaction of the given age.
// Negative ages (future timestamps) do not decay.
func Decay(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Max(DecayFloor, math.Exp(-age.Hours()/DecayScale.Hours()))
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		return err == nil && b
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return false
	}
}
