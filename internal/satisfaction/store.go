package satisfaction

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
)

// Store persists explicit feedback and implicit interaction samples to
// ClickHouse and computes rolling-window aggregates from them.
type Store struct {
	conn clickhouse.Conn
}

// NewStore opens a ClickHouse connection from dsn and ensures the two
// append-only tables this package needs exist.
func NewStore(ctx context.Context, dsn, database string) (*Store, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if database != "" {
		opts.Auth.Database = database
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	s := &Store{conn: conn}
	if err := s.ensureTables(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS feedback (
			id String,
			user_id String,
			turn_id String,
			kind String,
			value Float64,
			score Float64,
			submitted_at DateTime
		) ENGINE = MergeTree() ORDER BY (user_id, submitted_at)`,
		`CREATE TABLE IF NOT EXISTS interaction_tracking (
			id String,
			user_id String,
			turn_id String,
			response_time_ms UInt64,
			task_completed UInt8,
			follow_up_turns UInt16,
			engagement_ms UInt64,
			composite Float64,
			recorded_at DateTime
		) ENGINE = MergeTree() ORDER BY (user_id, recorded_at)`,
	}
	for _, stmt := range stmts {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure satisfaction tables: %w", err)
		}
	}
	return nil
}

// RecordFeedback inserts one explicit submission, normalizing its value.
func (s *Store) RecordFeedback(ctx context.Context, userID, turnID string, kind FeedbackKind, value float64) (Feedback, error) {
	fb := Feedback{
		ID:          uuid.NewString(),
		UserID:      userID,
		TurnID:      turnID,
		Kind:        kind,
		Value:       value,
		Score:       NormalizeFeedback(kind, value),
		SubmittedAt: time.Now(),
	}
	err := s.conn.Exec(ctx,
		`INSERT INTO feedback (id, user_id, turn_id, kind, value, score, submitted_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.UserID, fb.TurnID, string(fb.Kind), fb.Value, fb.Score, fb.SubmittedAt,
	)
	return fb, err
}

// RecordInteraction inserts one implicit sample and its precomputed
// composite score.
func (s *Store) RecordInteraction(ctx context.Context, sample InteractionSample) (CompositeScore, error) {
	score := Composite(sample)
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now()
	}
	taskCompleted := uint8(0)
	if sample.TaskCompleted {
		taskCompleted = 1
	}
	err := s.conn.Exec(ctx,
		`INSERT INTO interaction_tracking (id, user_id, turn_id, response_time_ms, task_completed, follow_up_turns, engagement_ms, composite, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, sample.UserID, sample.TurnID,
		uint64(sample.ResponseTime.Milliseconds()), taskCompleted, uint16(sample.FollowUpTurns),
		uint64(sample.EngagementTime.Milliseconds()), score.Composite, sample.RecordedAt,
	)
	return score, err
}

// AggregateMetrics is a rolling-window composite average, optionally scoped
// to one user (empty userID means system-wide, spec §4.7/§6).
type AggregateMetrics struct {
	UserID         string
	SampleCount    int
	AverageScore   float64
	WindowStart    time.Time
	WindowEnd      time.Time
}

// Metrics computes the rolling-window aggregate (spec §6: GET
// /api/satisfaction/metrics). userID == "" aggregates system-wide.
func (s *Store) Metrics(ctx context.Context, userID string) (AggregateMetrics, error) {
	end := time.Now()
	start := end.Add(-RollingWindow)

	query := `SELECT count(), avg(composite) FROM interaction_tracking WHERE recorded_at >= ? AND recorded_at <= ?`
	args := []any{start, end}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	row := s.conn.QueryRow(ctx, query, args...)
	var count uint64
	var avg float64
	if err := row.Scan(&count, &avg); err != nil {
		return AggregateMetrics{}, err
	}
	return AggregateMetrics{
		UserID:       userID,
		SampleCount:  int(count),
		AverageScore: avg,
		WindowStart:  start,
		WindowEnd:    end,
	}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}
