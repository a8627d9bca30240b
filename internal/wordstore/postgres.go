package wordstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `create table if not exists trigger_words (
	doc_id     text primary key,
	words      text[] not null default '{}',
	updated_at timestamptz not null default now()
)`

// PostgresStore keeps each document as one row of trigger_words
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and makes sure the table exists
func OpenPostgres(ctx context.Context, url string, maxConns int32) (*PostgresStore, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres url is empty")
	}
	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}
	if maxConns > 0 {
		pcfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the trigger_words table if missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create trigger_words: %w", err)
	}
	return nil
}

// LoadAll concatenates the words of every document
func (s *PostgresStore) LoadAll(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `select words from trigger_words order by doc_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger words: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]string])
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger words: %w", err)
	}
	var words []string
	for _, d := range docs {
		words = append(words, d...)
	}
	return words, nil
}

// SaveAll overwrites the first document, or inserts one when the table is empty
func (s *PostgresStore) SaveAll(ctx context.Context, words []string) error {
	if words == nil {
		words = []string{}
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `select doc_id from trigger_words order by doc_id limit 1 for update`).Scan(&id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			_, err = tx.Exec(ctx, `insert into trigger_words (doc_id, words) values ($1, $2)`, uuid.NewString(), words)
		case err == nil:
			_, err = tx.Exec(ctx, `update trigger_words set words = $2, updated_at = now() where doc_id = $1`, id, words)
		}
		if err != nil {
			return fmt.Errorf("failed to save trigger words: %w", err)
		}
		return nil
	})
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
