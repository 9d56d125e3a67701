// Package simulate drives the engine with generated community traffic.
package simulate

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/okian/rally/internal/domain/model"
)

// typeMix is the relative frequency of each interaction type.
var typeMix = []struct {
	Type   model.InteractionType
	Weight float32
}{
	{model.CasualChat, 30},
	{model.PositiveFeedback, 12},
	{model.QualityEngagement, 10},
	{model.RaidParticipation, 10},
	{model.CommunityHelp, 8},
	{model.KnowledgeSharing, 6},
	{model.ConstructiveFeedback, 6},
	{model.BugReport, 5},
	{model.MentorBehavior, 4},
	{model.RaidInitiation, 3},
	{model.ConstructiveCriticism, 3},
	{model.SpamReport, 2},
	{model.ToxicBehavior, 1},
}

var reasoning = []string{"because", "however", "therefore", "specifically", "for example", "the solution"}

var contextFlags = []string{"mentions_others", "helps_newbie", "shares_resources"}

// Generate builds cfg.Interactions interactions spread over cfg.Users users,
// with timestamps up to cfg.Span before now. A fixed seed gives a fixed batch.
func Generate(cfg Config, now time.Time) []model.Interaction {
	cfg = cfg.withDefaults()
	f := gofakeit.New(cfg.Seed)

	type user struct{ id, name string }
	users := make([]user, cfg.Users)
	for i := range users {
		users[i] = user{id: f.UUID(), name: f.Username()}
	}

	types := make([]any, len(typeMix))
	weights := make([]float32, len(typeMix))
	for i, m := range typeMix {
		types[i] = m.Type
		weights[i] = m.Weight
	}

	raids := make([]string, 0, cfg.Users/5+1)
	out := make([]model.Interaction, cfg.Interactions)
	for i := range out {
		u := users[f.Number(0, len(users)-1)]
		picked, err := f.Weighted(types, weights)
		t, ok := picked.(model.InteractionType)
		if err != nil || !ok {
			t = model.CasualChat
		}

		in := model.Interaction{
			ID:             f.UUID(),
			UserID:         u.id,
			Username:       u.name,
			Type:           t,
			Content:        content(f, t),
			Context:        map[string]any{},
			SentimentScore: sentiment(f, t),
			Timestamp:      now.Add(-time.Duration(f.Float64Range(0, 1) * float64(cfg.Span))).UTC(),
		}
		for _, flag := range contextFlags {
			if f.Float64Range(0, 1) < 0.1 {
				in.Context[flag] = true
			}
		}
		switch {
		case t == model.RaidInitiation:
			id := fmt.Sprintf("raid-%d", len(raids)+1)
			raids = append(raids, id)
			in.RelatedRaidID = id
		case t == model.RaidParticipation && len(raids) > 0:
			in.RelatedRaidID = raids[f.Number(0, len(raids)-1)]
		}
		out[i] = in
	}
	return out
}

func content(f *gofakeit.Faker, t model.InteractionType) string {
	switch t {
	case model.CasualChat:
		return f.Phrase()
	case model.SpamReport, model.ToxicBehavior:
		return strings.ToUpper(f.Sentence(4)) + "!!!"
	case model.MentorBehavior, model.KnowledgeSharing, model.CommunityHelp, model.ConstructiveFeedback:
		return f.Sentence(12) + " " + f.RandomString(reasoning) + " " + f.Sentence(10)
	default:
		return f.Sentence(f.Number(3, 15))
	}
}

func sentiment(f *gofakeit.Faker, t model.InteractionType) float64 {
	switch t {
	case model.ToxicBehavior, model.SpamReport:
		return f.Float64Range(-1, -0.3)
	case model.PositiveFeedback, model.MentorBehavior, model.CommunityHelp:
		return f.Float64Range(0.2, 1)
	default:
		return f.Float64Range(-0.4, 0.6)
	}
}
