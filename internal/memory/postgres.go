package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversation turns in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL,
			speaker TEXT NOT NULL,
			content TEXT NOT NULL,
			word_count INT NOT NULL DEFAULT 0,
			sentiment REAL NOT NULL DEFAULT 0,
			depth_level INT NOT NULL DEFAULT 1,
			virtue_signals JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_session_created
			ON conversation_turns (session_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, sessionID uuid.UUID, turn Turn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	signals, err := json.Marshal(turn.Metadata.VirtueSignals)
	if err != nil {
		return fmt.Errorf("encode virtue signals: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversation_turns
			(id, session_id, speaker, content, word_count, sentiment, depth_level, virtue_signals, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		turn.ID,
		sessionID,
		string(turn.Speaker),
		turn.Content,
		turn.Metadata.WordCount,
		turn.Metadata.Sentiment,
		turn.Metadata.DepthLevel,
		signals,
		turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, speaker, content, word_count, sentiment, depth_level, virtue_signals, created_at
		 FROM conversation_turns
		 WHERE session_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	turns := make([]Turn, 0, limit)
	for rows.Next() {
		var (
			t       Turn
			speaker string
			signals []byte
		)
		if err := rows.Scan(&t.ID, &speaker, &t.Content, &t.Metadata.WordCount,
			&t.Metadata.Sentiment, &t.Metadata.DepthLevel, &signals, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		switch Speaker(speaker) {
		case SpeakerUser, SpeakerAI:
			t.Speaker = Speaker(speaker)
		default:
			// Unknown speaker rows are skipped rather than invented.
			continue
		}
		if len(signals) > 0 {
			_ = json.Unmarshal(signals, &t.Metadata.VirtueSignals)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	return turns, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
