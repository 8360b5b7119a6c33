package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frontdesk/backend/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS help_requests (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		question TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		customer_phone TEXT,
		context JSONB,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ,
		supervisor_answer TEXT,
		supervisor_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS knowledge_base (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'supervisor',
		tags TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		usage_count INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_help_requests_status ON help_requests (status, created_at DESC)`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Help requests

func (s *Store) CreateHelpRequest(ctx context.Context, question, customerID string, customerPhone *string, contextJSON []byte) (string, error) {
	var id string
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO help_requests (question, customer_id, customer_phone, context, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id
	`, question, customerID, customerPhone, contextJSON, models.StatusPending).Scan(&id)
	return id, err
}

func (s *Store) GetHelpRequest(ctx context.Context, id string) (models.HelpRequest, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, question, customer_id, customer_phone, context, status, created_at, resolved_at, supervisor_answer, supervisor_id
		FROM help_requests WHERE id = $1
	`, id)
	var r models.HelpRequest
	if err := row.Scan(&r.ID, &r.Question, &r.CustomerID, &r.CustomerPhone, &r.Context, &r.Status, &r.CreatedAt, &r.ResolvedAt, &r.SupervisorAnswer, &r.SupervisorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.HelpRequest{}, models.ErrNotFound
		}
		return models.HelpRequest{}, err
	}
	return r, nil
}

func (s *Store) ListPendingRequests(ctx context.Context) ([]models.HelpRequest, error) {
	return s.listRequests(ctx, `
		SELECT id, question, customer_id, customer_phone, context, status, created_at, resolved_at, supervisor_answer, supervisor_id
		FROM help_requests WHERE status = $1 ORDER BY created_at DESC
	`, models.StatusPending)
}

func (s *Store) ListRequests(ctx context.Context, limit int) ([]models.HelpRequest, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.listRequests(ctx, `
		SELECT id, question, customer_id, customer_phone, context, status, created_at, resolved_at, supervisor_answer, supervisor_id
		FROM help_requests ORDER BY created_at DESC LIMIT $1
	`, limit)
}

func (s *Store) listRequests(ctx context.Context, query string, args ...any) ([]models.HelpRequest, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HelpRequest
	for rows.Next() {
		var r models.HelpRequest
		if err := rows.Scan(&r.ID, &r.Question, &r.CustomerID, &r.CustomerPhone, &r.Context, &r.Status, &r.CreatedAt, &r.ResolvedAt, &r.SupervisorAnswer, &r.SupervisorID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TransitionRequest applies upd only if the request is still in the
// expected status. A lost race reports models.ErrConflict, a missing
// request models.ErrNotFound.
func (s *Store) TransitionRequest(ctx context.Context, id string, expected models.RequestStatus, upd models.RequestTransition) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE help_requests
		SET status = $1, resolved_at = $2, supervisor_answer = COALESCE($3, supervisor_answer), supervisor_id = COALESCE($4, supervisor_id)
		WHERE id = $5 AND status = $6
	`, upd.Status, upd.ResolvedAt, upd.SupervisorAnswer, upd.SupervisorID, id, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetHelpRequest(ctx, id); errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrConflict
	}
	return nil
}

func (s *Store) CountRequestsByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	rows, err := s.Pool.Query(ctx, `SELECT status, COUNT(*) FROM help_requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[models.RequestStatus]int{}
	for rows.Next() {
		var status models.RequestStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}

// Knowledge base

func (s *Store) AddKnowledge(ctx context.Context, question, answer, source string, tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	var id string
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO knowledge_base (question, answer, source, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id
	`, question, answer, source, tags).Scan(&id)
	return id, err
}

// SearchKnowledge does case-insensitive substring containment against both
// the stored question and answer. Ties are decided by iteration order:
// newest entry first.
func (s *Store) SearchKnowledge(ctx context.Context, query string) ([]models.KnowledgeEntry, error) {
	pattern := "%" + query + "%"
	return s.listKnowledgeRows(ctx, `
		SELECT id, question, answer, source, tags, created_at, updated_at, usage_count
		FROM knowledge_base
		WHERE question ILIKE $1 OR answer ILIKE $1
		ORDER BY created_at DESC
	`, pattern)
}

func (s *Store) ListKnowledge(ctx context.Context, limit int) ([]models.KnowledgeEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.listKnowledgeRows(ctx, `
		SELECT id, question, answer, source, tags, created_at, updated_at, usage_count
		FROM knowledge_base ORDER BY created_at DESC LIMIT $1
	`, limit)
}

func (s *Store) listKnowledgeRows(ctx context.Context, query string, args ...any) ([]models.KnowledgeEntry, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.KnowledgeEntry
	for rows.Next() {
		var e models.KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Source, &e.Tags, &e.CreatedAt, &e.UpdatedAt, &e.UsageCount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpdateKnowledgeAnswer(ctx context.Context, id string, answer string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE knowledge_base SET answer = $1, updated_at = NOW() WHERE id = $2`, answer, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// IncrementKnowledgeUsage bumps the counter in a single statement so
// concurrent hits never lose an increment.
func (s *Store) IncrementKnowledgeUsage(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE knowledge_base SET usage_count = usage_count + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) CountKnowledge(ctx context.Context) (int, error) {
	var count int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_base`).Scan(&count)
	return count, err
}

// SeedKnowledge inserts the starter Q&A entries when the knowledge base is
// empty, so a fresh install can answer the basics without escalating.
func (s *Store) SeedKnowledge(ctx context.Context) (int, error) {
	seeded := 0
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_base`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		for _, e := range seedEntries {
			if _, err := tx.Exec(ctx, `
				INSERT INTO knowledge_base (question, answer, source, tags, created_at, updated_at)
				VALUES ($1, $2, $3, $4, NOW(), NOW())
			`, e.Question, e.Answer, e.Source, e.Tags); err != nil {
				return fmt.Errorf("seed %q: %w", e.Question, err)
			}
			seeded++
		}
		return nil
	})
	return seeded, err
}

var seedEntries = []models.KnowledgeEntry{
	{
		Question: "What are your hours?",
		Answer:   "We're open Monday-Saturday 9 AM - 8 PM, and Sunday 10 AM - 6 PM.",
		Source:   "initial",
		Tags:     []string{"hours", "schedule"},
	},
	{
		Question: "How much is a haircut?",
		Answer:   "Men's haircut is $45, women's haircut is $65.",
		Source:   "initial",
		Tags:     []string{"pricing", "haircut"},
	},
	{
		Question: "Do you take walk-ins?",
		Answer:   "Yes! We accept walk-ins, but appointments are recommended to avoid wait times.",
		Source:   "initial",
		Tags:     []string{"appointments", "walk-ins"},
	},
	{
		Question: "Where are you located?",
		Answer:   "We're located at 123 Beauty Street, Downtown. Free parking available in the rear.",
		Source:   "initial",
		Tags:     []string{"location", "parking"},
	},
}
