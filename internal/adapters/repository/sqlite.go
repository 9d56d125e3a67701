package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // database/sql driver "sqlite"

	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/standing"
	"github.com/okian/rally/pkg/metrics"
)

// Migrations returns the schema statements, one per Exec.
// Timestamps are unix milliseconds; maps and lists are JSON text.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			username        TEXT NOT NULL DEFAULT '',
			type            TEXT NOT NULL,
			content         TEXT NOT NULL DEFAULT '',
			context         TEXT NOT NULL DEFAULT '{}',
			weight          REAL NOT NULL,
			sentiment       REAL NOT NULL DEFAULT 0,
			related_raid_id TEXT NOT NULL DEFAULT '',
			ts              INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_user_ts ON interactions(user_id, ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_ts_weight ON interactions(ts, weight)`,

		`CREATE TABLE IF NOT EXISTS interaction_archive (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			username        TEXT NOT NULL DEFAULT '',
			type            TEXT NOT NULL,
			content         TEXT NOT NULL DEFAULT '',
			context         TEXT NOT NULL DEFAULT '{}',
			weight          REAL NOT NULL,
			sentiment       REAL NOT NULL DEFAULT 0,
			related_raid_id TEXT NOT NULL DEFAULT '',
			ts              INTEGER NOT NULL,
			archived_at     INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS personality_profiles (
			user_id                TEXT PRIMARY KEY,
			engagement_style       TEXT NOT NULL,
			communication_tone     TEXT NOT NULL,
			activity_level         TEXT NOT NULL,
			community_contribution TEXT NOT NULL,
			reliability_score      REAL NOT NULL,
			leadership_potential   REAL NOT NULL,
			traits                 TEXT NOT NULL DEFAULT '[]',
			interaction_patterns   TEXT NOT NULL DEFAULT '{}',
			last_updated           INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS leaderboard_entries (
			user_id                TEXT PRIMARY KEY,
			username               TEXT NOT NULL DEFAULT '',
			total_points           INTEGER NOT NULL DEFAULT 0,
			raids_participated     INTEGER NOT NULL DEFAULT 0,
			successful_engagements INTEGER NOT NULL DEFAULT 0,
			badges                 TEXT NOT NULL DEFAULT '[]',
			last_activity          INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_points ON leaderboard_entries(total_points DESC, user_id)`,
	}
}

// SQLiteStore implements Store on modernc.org/sqlite.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
	journalMode string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{busyTimeout: 5 * time.Second, journalMode: "WAL"}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)",
		path, s.busyTimeout.Milliseconds(), s.journalMode)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range Migrations() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// deleteChunkSize keeps each DELETE well under SQLite's bound-variable limit.
const deleteChunkSize = 500

const interactionColumns = `id, user_id, username, type, content, context, weight, sentiment, related_raid_id, ts`

// InsertInteraction implements InteractionStore.
func (s *SQLiteStore) InsertInteraction(ctx context.Context, in model.Interaction) error {
	defer observe("insert_interaction", time.Now())
	ctxJSON, err := marshalJSON(in.Context, "{}")
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (`+interactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, in.ID, in.UserID, in.Username, string(in.Type), in.Content, ctxJSON,
		in.Weight, in.SentimentScore, in.RelatedRaidID, in.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert interaction %s: %w", in.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateInteraction
	}
	return nil
}

// RecentInteractions implements InteractionStore.
func (s *SQLiteStore) RecentInteractions(ctx context.Context, userID string, limit int) ([]model.Interaction, error) {
	defer observe("recent_interactions", time.Now())
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	return s.queryInteractions(ctx, `
		SELECT `+interactionColumns+` FROM interactions
		WHERE user_id = ? ORDER BY ts DESC, id LIMIT ?
	`, userID, limit)
}

// InteractionsSince implements InteractionStore.
func (s *SQLiteStore) InteractionsSince(ctx context.Context, since time.Time) ([]model.Interaction, error) {
	defer observe("interactions_since", time.Now())
	return s.queryInteractions(ctx, `
		SELECT `+interactionColumns+` FROM interactions
		WHERE ts >= ? ORDER BY ts, id
	`, since.UnixMilli())
}

// ActiveUsersSince implements InteractionStore.
func (s *SQLiteStore) ActiveUsersSince(ctx context.Context, since time.Time, limit int) ([]string, error) {
	defer observe("active_users", time.Now())
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, MAX(ts) AS last_ts FROM interactions
		WHERE ts >= ? GROUP BY user_id
		ORDER BY last_ts DESC, user_id LIMIT ?
	`, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var (
			id   string
			last int64
		)
		if err := rows.Scan(&id, &last); err != nil {
			return nil, fmt.Errorf("scan active user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// StaleInteractions implements InteractionStore.
func (s *SQLiteStore) StaleInteractions(ctx context.Context, olderThan time.Time, maxWeight float64) ([]model.Interaction, error) {
	defer observe("stale_interactions", time.Now())
	return s.queryInteractions(ctx, `
		SELECT `+interactionColumns+` FROM interactions
		WHERE ts < ? AND weight < ? ORDER BY ts DESC, id
	`, olderThan.UnixMilli(), maxWeight)
}

// DeleteInteractions implements InteractionStore.
func (s *SQLiteStore) DeleteInteractions(ctx context.Context, ids []string) (int, error) {
	defer observe("delete_interactions", time.Now())
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete interactions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	total := 0
	for start := 0; start < len(ids); start += deleteChunkSize {
		chunk := ids[start:min(start+deleteChunkSize, len(ids))]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM interactions WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return 0, fmt.Errorf("delete interactions: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("delete interactions: %w", err)
		}
		total += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete interactions: %w", err)
	}
	return total, nil
}

// InsertArchive implements ArchiveStore.
func (s *SQLiteStore) InsertArchive(ctx context.Context, a model.ArchivedInteraction) (bool, error) {
	defer observe("insert_archive", time.Now())
	ctxJSON, err := marshalJSON(a.Context, "{}")
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO interaction_archive (`+interactionColumns+`, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, a.ID, a.UserID, a.Username, string(a.Type), a.Content, ctxJSON,
		a.Weight, a.SentimentScore, a.RelatedRaidID, a.Timestamp.UnixMilli(), a.ArchivedAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("archive interaction %s: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountArchive implements ArchiveStore.
func (s *SQLiteStore) CountArchive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interaction_archive`).Scan(&n)
	return n, err
}

// UpsertProfile implements ProfileStore.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p model.PersonalityProfile) error {
	defer observe("upsert_profile", time.Now())
	traits, err := marshalJSON(p.Traits, "[]")
	if err != nil {
		return err
	}
	patterns, err := marshalJSON(p.InteractionPatterns, "{}")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personality_profiles (
			user_id, engagement_style, communication_tone, activity_level, community_contribution,
			reliability_score, leadership_potential, traits, interaction_patterns, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			engagement_style       = excluded.engagement_style,
			communication_tone     = excluded.communication_tone,
			activity_level         = excluded.activity_level,
			community_contribution = excluded.community_contribution,
			reliability_score      = excluded.reliability_score,
			leadership_potential   = excluded.leadership_potential,
			traits                 = excluded.traits,
			interaction_patterns   = excluded.interaction_patterns,
			last_updated           = excluded.last_updated
	`, p.UserID, p.EngagementStyle, p.CommunicationTone, p.ActivityLevel, p.CommunityContribution,
		p.ReliabilityScore, p.LeadershipPotential, traits, patterns, p.LastUpdated.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.UserID, err)
	}
	return nil
}

// GetProfile implements ProfileStore.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (model.PersonalityProfile, error) {
	defer observe("get_profile", time.Now())
	var (
		p                model.PersonalityProfile
		traits, patterns string
		updated          int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, engagement_style, communication_tone, activity_level, community_contribution,
			reliability_score, leadership_potential, traits, interaction_patterns, last_updated
		FROM personality_profiles WHERE user_id = ?
	`, userID).Scan(&p.UserID, &p.EngagementStyle, &p.CommunicationTone, &p.ActivityLevel,
		&p.CommunityContribution, &p.ReliabilityScore, &p.LeadershipPotential, &traits, &patterns, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PersonalityProfile{}, ErrNotFound
	}
	if err != nil {
		return model.PersonalityProfile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(traits), &p.Traits); err != nil {
		return model.PersonalityProfile{}, fmt.Errorf("decode traits: %w", err)
	}
	if err := json.Unmarshal([]byte(patterns), &p.InteractionPatterns); err != nil {
		return model.PersonalityProfile{}, fmt.Errorf("decode patterns: %w", err)
	}
	p.LastUpdated = time.UnixMilli(updated).UTC()
	return p, nil
}

// ApplyStanding implements LeaderboardStore. The read-modify-write runs in
// one transaction; SetMaxOpenConns(1) serializes writers.
func (s *SQLiteStore) ApplyStanding(ctx context.Context, d model.StandingDelta) (model.LeaderboardEntry, error) {
	defer observe("apply_standing", time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.LeaderboardEntry{}, fmt.Errorf("begin standing tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanEntry(tx.QueryRowContext(ctx, `
		SELECT user_id, username, total_points, raids_participated, successful_engagements, badges, last_activity
		FROM leaderboard_entries WHERE user_id = ?
	`, d.UserID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return model.LeaderboardEntry{}, err
	}

	e := standing.Apply(cur, d)
	badges, err := marshalJSON(e.Badges, "[]")
	if err != nil {
		return model.LeaderboardEntry{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO leaderboard_entries (
			user_id, username, total_points, raids_participated, successful_engagements, badges, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username               = excluded.username,
			total_points           = excluded.total_points,
			raids_participated     = excluded.raids_participated,
			successful_engagements = excluded.successful_engagements,
			badges                 = excluded.badges,
			last_activity          = excluded.last_activity
	`, e.UserID, e.Username, e.TotalPoints, e.RaidsParticipated, e.SuccessfulEngagements, badges, e.LastActivity.UnixMilli())
	if err != nil {
		return model.LeaderboardEntry{}, fmt.Errorf("upsert standing %s: %w", d.UserID, err)
	}
	if e.Rank, err = rankOf(ctx, tx, e.TotalPoints); err != nil {
		return model.LeaderboardEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.LeaderboardEntry{}, fmt.Errorf("commit standing: %w", err)
	}
	if n, err := s.Count(ctx); err == nil {
		metrics.UpdateLeaderboardEntries(n)
	}
	return e, nil
}

// TopN implements LeaderboardStore.
func (s *SQLiteStore) TopN(ctx context.Context, n int) ([]model.LeaderboardEntry, error) {
	defer observe("top_n", time.Now())
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, username, total_points, raids_participated, successful_engagements, badges, last_activity
		FROM leaderboard_entries ORDER BY total_points DESC, user_id LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("top n: %w", err)
	}
	defer rows.Close()

	out := make([]model.LeaderboardEntry, 0, n)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	assignRanksWithTies(out)
	return out, nil
}

// Rank implements LeaderboardStore.
func (s *SQLiteStore) Rank(ctx context.Context, userID string) (model.LeaderboardEntry, error) {
	defer observe("rank", time.Now())
	e, err := scanEntry(s.db.QueryRowContext(ctx, `
		SELECT user_id, username, total_points, raids_participated, successful_engagements, badges, last_activity
		FROM leaderboard_entries WHERE user_id = ?
	`, userID))
	if errors.Is(err, ErrNotFound) {
		metrics.RecordErrorByComponent("repository", "not_found")
	}
	if err != nil {
		return model.LeaderboardEntry{}, err
	}
	if e.Rank, err = rankOf(ctx, s.db, e.TotalPoints); err != nil {
		return model.LeaderboardEntry{}, err
	}
	return e, nil
}

// Count implements LeaderboardStore.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leaderboard_entries`).Scan(&n)
	return n, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rankOf counts distinct higher point totals, giving consecutive tied ranks.
func rankOf(ctx context.Context, q queryer, points int64) (int, error) {
	var higher int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT total_points) FROM leaderboard_entries WHERE total_points > ?
	`, points).Scan(&higher); err != nil {
		return 0, fmt.Errorf("rank: %w", err)
	}
	return higher + 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (model.LeaderboardEntry, error) {
	var (
		e      model.LeaderboardEntry
		badges string
		last   int64
	)
	err := row.Scan(&e.UserID, &e.Username, &e.TotalPoints, &e.RaidsParticipated, &e.SuccessfulEngagements, &badges, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LeaderboardEntry{}, ErrNotFound
	}
	if err != nil {
		return model.LeaderboardEntry{}, fmt.Errorf("scan entry: %w", err)
	}
	if err := json.Unmarshal([]byte(badges), &e.Badges); err != nil {
		return model.LeaderboardEntry{}, fmt.Errorf("decode badges: %w", err)
	}
	e.LastActivity = time.UnixMilli(last).UTC()
	return e, nil
}

func (s *SQLiteStore) queryInteractions(ctx context.Context, query string, args ...any) ([]model.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []model.Interaction
	for rows.Next() {
		var (
			in      model.Interaction
			typ     string
			ctxJSON string
			ts      int64
		)
		if err := rows.Scan(&in.ID, &in.UserID, &in.Username, &typ, &in.Content, &ctxJSON,
			&in.Weight, &in.SentimentScore, &in.RelatedRaidID, &ts); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		in.Type = model.InteractionType(typ)
		in.Timestamp = time.UnixMilli(ts).UTC()
		if err := json.Unmarshal([]byte(ctxJSON), &in.Context); err != nil {
			return nil, fmt.Errorf("decode context of %s: %w", in.ID, err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	if s := string(b); s != "null" {
		return s, nil
	}
	return empty, nil
}
