package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/kolloq/pkg/provider/embeddings"
)

// Interview is a finished session ready for persistence.
type Interview struct {
	SessionID  string
	Score      int
	Notes      string
	StartedAt  time.Time
	FinishedAt time.Time
	Answers    []Answer
}

// Answer is one candidate answer within an interview.
type Answer struct {
	QuestionID      string
	QuestionPrompt  string
	Transcript      string
	CoveragePercent float64
}

// SearchResult is one semantically matched archived answer. Distance is the
// cosine distance to the query; smaller means closer.
type SearchResult struct {
	SessionID       string
	QuestionID      string
	QuestionPrompt  string
	Transcript      string
	CoveragePercent float64
	Distance        float64
}

// Store persists interviews to PostgreSQL with pgvector-backed answer search.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
	logger   *slog.Logger
}

// New connects to PostgreSQL, registers the pgvector types on every
// connection and runs the idempotent schema migration. embedder may be nil;
// answers are then archived without embeddings and SearchAnswers returns an
// error.
func New(ctx context.Context, dsn string, embeddingDimensions int, embedder embeddings.Provider, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		pool:     pool,
		embedder: embedder,
		logger:   logger.With("component", "archive"),
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports connectivity; used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveInterview writes the session summary and all answers in one
// transaction. Answer embeddings are computed in a single batch; when the
// embedder is missing or fails the answers are stored without vectors and the
// interview is still persisted.
func (s *Store) SaveInterview(ctx context.Context, iv Interview) error {
	vectors := s.embedAnswers(ctx, iv.Answers)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO interviews (session_id, score, notes, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE
		SET score = EXCLUDED.score, notes = EXCLUDED.notes, finished_at = EXCLUDED.finished_at`,
		iv.SessionID, iv.Score, iv.Notes, iv.StartedAt, iv.FinishedAt)
	if err != nil {
		return fmt.Errorf("archive: insert interview %s: %w", iv.SessionID, err)
	}

	for i, ans := range iv.Answers {
		var embedding any
		if vectors != nil && len(vectors[i]) > 0 {
			embedding = pgvector.NewVector(vectors[i])
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO interview_answers
			    (session_id, question_id, question_prompt, transcript, coverage_percent, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			iv.SessionID, ans.QuestionID, ans.QuestionPrompt, ans.Transcript, ans.CoveragePercent, embedding)
		if err != nil {
			return fmt.Errorf("archive: insert answer %s/%s: %w", iv.SessionID, ans.QuestionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}

	s.logger.Info("interview archived",
		"session_id", iv.SessionID, "score", iv.Score, "answers", len(iv.Answers))
	return nil
}

// SearchAnswers embeds the query and returns the topK closest archived
// answers by cosine distance.
func (s *Store) SearchAnswers(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("archive: semantic search requires an embeddings provider")
	}
	if topK <= 0 {
		topK = 10
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("archive: embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT session_id, question_id, question_prompt, transcript, coverage_percent,
		       embedding <=> $1 AS distance
		FROM interview_answers
		WHERE embedding IS NOT NULL
		ORDER BY distance
		LIMIT $2`,
		pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("archive: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SearchResult, error) {
		var r SearchResult
		err := row.Scan(&r.SessionID, &r.QuestionID, &r.QuestionPrompt,
			&r.Transcript, &r.CoveragePercent, &r.Distance)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: collect rows: %w", err)
	}
	return results, nil
}

// SessionAnswers returns all archived answers of one session in insertion
// order.
func (s *Store) SessionAnswers(ctx context.Context, sessionID string) ([]Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT question_id, question_prompt, transcript, coverage_percent
		FROM interview_answers
		WHERE session_id = $1
		ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive: session answers: %w", err)
	}

	answers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Answer, error) {
		var a Answer
		err := row.Scan(&a.QuestionID, &a.QuestionPrompt, &a.Transcript, &a.CoveragePercent)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: collect rows: %w", err)
	}
	return answers, nil
}

// embedAnswers returns one vector per answer, or nil when embeddings are
// unavailable. A failed batch is logged, not fatal.
func (s *Store) embedAnswers(ctx context.Context, answers []Answer) [][]float32 {
	if s.embedder == nil || len(answers) == 0 {
		return nil
	}
	texts := make([]string, len(answers))
	for i, a := range answers {
		texts[i] = a.Transcript
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.logger.Warn("answer embedding failed, archiving without vectors", "error", err)
		return nil
	}
	if len(vectors) != len(answers) {
		s.logger.Warn("embedding batch size mismatch, archiving without vectors",
			"want", len(answers), "got", len(vectors))
		return nil
	}
	return vectors
}
