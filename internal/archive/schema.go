// Package archive persists finished interviews to PostgreSQL and makes the
// candidates' answers semantically searchable through a pgvector index.
//
// The archive is optional: the server runs fully in memory when no DSN is
// configured. All methods are safe for concurrent use.
//
// Usage:
//
//	store, err := archive.New(ctx, dsn, 1536, embedder, logger)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.SaveInterview(ctx, record)
//	results, _ := store.SearchAnswers(ctx, "esperienza con il backend", 5)
package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlInterviews = `
CREATE TABLE IF NOT EXISTS interviews (
    session_id   TEXT         PRIMARY KEY,
    score        INT          NOT NULL,
    notes        TEXT         NOT NULL DEFAULT '',
    started_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    finished_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interviews_finished_at
    ON interviews (finished_at);
`

// ddlAnswers returns the answers DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlAnswers(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS interview_answers (
    id               BIGSERIAL    PRIMARY KEY,
    session_id       TEXT         NOT NULL REFERENCES interviews (session_id) ON DELETE CASCADE,
    question_id      TEXT         NOT NULL,
    question_prompt  TEXT         NOT NULL,
    transcript       TEXT         NOT NULL,
    coverage_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
    embedding        vector(%d),
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_answers_session_id
    ON interview_answers (session_id);

CREATE INDEX IF NOT EXISTS idx_interview_answers_embedding
    ON interview_answers USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the configured embedding model (e.g., 1536
// for OpenAI text-embedding-3-small). Changing it after the first migration
// requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlInterviews,
		ddlAnswers(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("archive migrate: %w", err)
		}
	}
	return nil
}
