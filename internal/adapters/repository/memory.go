package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/standing"
	"github.com/okian/rally/pkg/metrics"
)

// MemoryStore keeps everything in process memory. Leaderboard reads are
// served from a treap index in O(log n).
type MemoryStore struct {
	mu           sync.RWMutex
	interactions map[string]model.Interaction
	archive      map[string]model.ArchivedInteraction
	profiles     map[string]model.PersonalityProfile
	entries      map[string]model.LeaderboardEntry
	ranks        *rankIndex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		interactions: make(map[string]model.Interaction),
		archive:      make(map[string]model.ArchivedInteraction),
		profiles:     make(map[string]model.PersonalityProfile),
		entries:      make(map[string]model.LeaderboardEntry),
		ranks:        newRankIndex(),
	}
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// InsertInteraction implements InteractionStore.
func (s *MemoryStore) InsertInteraction(_ context.Context, in model.Interaction) error {
	defer observe("insert_interaction", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interactions[in.ID]; ok {
		return ErrDuplicateInteraction
	}
	in.Context = cloneContext(in.Context)
	s.interactions[in.ID] = in
	return nil
}

// RecentInteractions implements InteractionStore.
func (s *MemoryStore) RecentInteractions(_ context.Context, userID string, limit int) ([]model.Interaction, error) {
	defer observe("recent_interactions", time.Now())
	s.mu.RLock()
	var out []model.Interaction
	for _, in := range s.interactions {
		if in.UserID == userID {
			out = append(out, in)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InteractionsSince implements InteractionStore.
func (s *MemoryStore) InteractionsSince(_ context.Context, since time.Time) ([]model.Interaction, error) {
	defer observe("interactions_since", time.Now())
	s.mu.RLock()
	var out []model.Interaction
	for _, in := range s.interactions {
		if !in.Timestamp.Before(since) {
			out = append(out, in)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ActiveUsersSince implements InteractionStore.
func (s *MemoryStore) ActiveUsersSince(_ context.Context, since time.Time, limit int) ([]string, error) {
	defer observe("active_users", time.Now())
	s.mu.RLock()
	latest := make(map[string]time.Time)
	for _, in := range s.interactions {
		if in.Timestamp.Before(since) {
			continue
		}
		if in.Timestamp.After(latest[in.UserID]) {
			latest[in.UserID] = in.Timestamp
		}
	}
	s.mu.RUnlock()

	users := make([]string, 0, len(latest))
	for u := range latest {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		a, b := latest[users[i]], latest[users[j]]
		if !a.Equal(b) {
			return a.After(b)
		}
		return users[i] < users[j]
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// StaleInteractions implements InteractionStore.
func (s *MemoryStore) StaleInteractions(_ context.Context, olderThan time.Time, maxWeight float64) ([]model.Interaction, error) {
	defer observe("stale_interactions", time.Now())
	s.mu.RLock()
	var out []model.Interaction
	for _, in := range s.interactions {
		if in.Timestamp.Before(olderThan) && in.Weight < maxWeight {
			out = append(out, in)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

// DeleteInteractions implements InteractionStore.
func (s *MemoryStore) DeleteInteractions(_ context.Context, ids []string) (int, error) {
	defer observe("delete_interactions", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.interactions[id]; ok {
			delete(s.interactions, id)
			n++
		}
	}
	return n, nil
}

// InsertArchive implements ArchiveStore.
func (s *MemoryStore) InsertArchive(_ context.Context, a model.ArchivedInteraction) (bool, error) {
	defer observe("insert_archive", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.archive[a.ID]; ok {
		return false, nil
	}
	s.archive[a.ID] = a
	return true, nil
}

// CountArchive implements ArchiveStore.
func (s *MemoryStore) CountArchive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.archive), nil
}

// UpsertProfile implements ProfileStore.
func (s *MemoryStore) UpsertProfile(_ context.Context, p model.PersonalityProfile) error {
	defer observe("upsert_profile", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = cloneProfile(p)
	return nil
}

// GetProfile implements ProfileStore.
func (s *MemoryStore) GetProfile(_ context.Context, userID string) (model.PersonalityProfile, error) {
	defer observe("get_profile", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return model.PersonalityProfile{}, ErrNotFound
	}
	return cloneProfile(p), nil
}

// ApplyStanding implements LeaderboardStore.
func (s *MemoryStore) ApplyStanding(_ context.Context, d model.StandingDelta) (model.LeaderboardEntry, error) {
	defer observe("apply_standing", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	e := standing.Apply(s.entries[d.UserID], d)
	s.entries[d.UserID] = e
	s.ranks.set(d.UserID, e.TotalPoints)
	e.Rank, _ = s.ranks.rank(d.UserID)
	metrics.UpdateLeaderboardEntries(s.ranks.count())
	return e, nil
}

// TopN implements LeaderboardStore.
func (s *MemoryStore) TopN(_ context.Context, n int) ([]model.LeaderboardEntry, error) {
	defer observe("top_n", time.Now())
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.ranks.top(n)
	out := make([]model.LeaderboardEntry, 0, len(ids))
	for _, id := range ids {
		e := s.entries[id]
		e.Badges = append([]string(nil), e.Badges...)
		out = append(out, e)
	}
	assignRanksWithTies(out)
	return out, nil
}

// Rank implements LeaderboardStore.
func (s *MemoryStore) Rank(_ context.Context, userID string) (model.LeaderboardEntry, error) {
	defer observe("rank", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	rank, ok := s.ranks.rank(userID)
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.LeaderboardEntry{}, ErrNotFound
	}
	e := s.entries[userID]
	e.Badges = append([]string(nil), e.Badges...)
	e.Rank = rank
	return e, nil
}

// Count implements LeaderboardStore.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ranks.count(), nil
}

// assignRanksWithTies gives equal points the same rank; ranks are
// consecutive (1, 1, 2). entries must already be in leaderboard order.
func assignRanksWithTies(entries []model.LeaderboardEntry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].TotalPoints != entries[i-1].TotalPoints {
			rank++
		}
		entries[i].Rank = rank
	}
}

func sortNewestFirst(in []model.Interaction) {
	sort.Slice(in, func(i, j int) bool {
		if !in[i].Timestamp.Equal(in[j].Timestamp) {
			return in[i].Timestamp.After(in[j].Timestamp)
		}
		return in[i].ID < in[j].ID
	})
}

func cloneContext(c map[string]any) map[string]any {
	if c == nil {
		return nil
	}
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func cloneProfile(p model.PersonalityProfile) model.PersonalityProfile {
	p.Traits = append([]string(nil), p.Traits...)
	patterns := make(map[model.InteractionType]int, len(p.InteractionPatterns))
	for k, v := range p.InteractionPatterns {
		patterns[k] = v
	}
	p.InteractionPatterns = patterns
	return p
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Microseconds())/1000)
}
