package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/pkg/logger"
)

//go:embed schema.sql
var schema embed.FS

// PostgresStore persists results to Postgres. The full result is kept as JSONB;
// candidates and matches are also written as rows for ad-hoc queries.
type PostgresStore struct {
	pool    *pgxpool.Pool
	logger  logger.Logger
	migrate bool
}

// OpenPostgres connects to dsn and applies the embedded schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{migrate: true}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("postgres")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s.pool = pool

	if s.migrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate applies the embedded schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("postgres: read schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Save implements Store.Save in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, res *model.Result) error {
	if res == nil || res.ID == "" {
		return ErrMissingID
	}
	settings, err := json.Marshal(res.Settings)
	if err != nil {
		return fmt.Errorf("postgres: encode settings: %w", err)
	}
	full, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("postgres: encode result: %w", err)
	}
	sum := Summarize(res)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM runs WHERE id = $1`, res.ID); err != nil {
		return fmt.Errorf("postgres: replace run %s: %w", res.ID, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO runs(id, description, settings, termination, rounds_played, best_id, best_rating, started_at, finished_at, result)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, res.ID, res.Task.Description, settings, string(res.Termination), res.RoundsPlayed,
		sum.BestID, sum.BestRating, res.StartedAt, res.FinishedAt, full); err != nil {
		return fmt.Errorf("postgres: insert run %s: %w", res.ID, err)
	}

	batch := &pgx.Batch{}
	for i, c := range res.Standings {
		batch.Queue(`INSERT INTO candidates(run_id, id, rank, content, rating) VALUES ($1,$2,$3,$4,$5)`,
			res.ID, c.ID, i+1, c.Content, c.Rating)
	}
	for i, m := range res.Matches {
		batch.Queue(`
			INSERT INTO matches(run_id, seq, round, candidate_a, candidate_b, verdict, evidence_note, before_a, before_b, after_a, after_b)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, res.ID, i, m.Round, m.CandidateA, m.CandidateB, string(m.Verdict), m.EvidenceNote,
			m.RatingBefore.A, m.RatingBefore.B, m.RatingAfter.A, m.RatingAfter.B)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert rows for %s: %w", res.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit %s: %w", res.ID, err)
	}
	s.logger.Debug(ctx, "result saved",
		logger.String("id", res.ID),
		logger.Int("candidates", len(res.Standings)),
		logger.Int("matches", len(res.Matches)),
	)
	return nil
}

// Get implements Store.Get.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Result, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM runs WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get %s: %w", id, err)
	}
	var res model.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("postgres: decode %s: %w", id, err)
	}
	return &res, nil
}

// List implements Store.List.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.description, COALESCE(r.best_id, ''), COALESCE(r.best_rating, 0),
		       (SELECT COUNT(*) FROM candidates c WHERE c.run_id = r.id),
		       (SELECT COUNT(*) FROM matches m WHERE m.run_id = r.id),
		       r.termination, r.finished_at
		  FROM runs r
		 ORDER BY r.finished_at DESC
		 LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum         Summary
			termination string
		)
		if err := rows.Scan(&sum.ID, &sum.Description, &sum.BestID, &sum.BestRating,
			&sum.Candidates, &sum.Matches, &termination, &sum.FinishedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		sum.Termination = model.Termination(termination)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Count implements Store.Count. Query errors are logged and count as zero.
func (s *PostgresStore) Count(ctx context.Context) int {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		s.logger.Warn(ctx, "count failed", logger.Error(err))
		return 0
	}
	return n
}
