// Package archive persists merged signal batches to PostgreSQL.
package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS marketlens;

	CREATE TABLE IF NOT EXISTS marketlens.signals (
		signal_id      TEXT PRIMARY KEY,
		ticker         TEXT NOT NULL,
		signal_type    TEXT NOT NULL,
		action         TEXT NOT NULL,
		score          DOUBLE PRECISION NOT NULL,
		confidence     DOUBLE PRECISION NOT NULL,
		verified       BOOLEAN NOT NULL,
		unverified     BOOLEAN NOT NULL,
		low_confidence BOOLEAN NOT NULL,
		evidence_count INTEGER NOT NULL,
		evidence       JSONB,
		signal_time    TIMESTAMPTZ NOT NULL,
		archived_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_signals_ticker_time
		ON marketlens.signals (ticker, signal_time DESC);
`

// Repository stores signals
// ⭐ SSOT: the signal archive is written here only
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new signal repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the archive schema when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// SaveBatch upserts signals in one round trip
func (r *Repository) SaveBatch(ctx context.Context, signals []contracts.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	query := `
		INSERT INTO marketlens.signals (
			signal_id, ticker, signal_type, action, score, confidence,
			verified, unverified, low_confidence, evidence_count, evidence, signal_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (signal_id) DO UPDATE SET
			signal_type = EXCLUDED.signal_type,
			action = EXCLUDED.action,
			score = EXCLUDED.score,
			confidence = EXCLUDED.confidence,
			verified = EXCLUDED.verified,
			unverified = EXCLUDED.unverified,
			low_confidence = EXCLUDED.low_confidence,
			evidence_count = EXCLUDED.evidence_count,
			evidence = EXCLUDED.evidence,
			signal_time = EXCLUDED.signal_time
	`

	batch := &pgx.Batch{}
	for _, s := range signals {
		var evidence []byte
		if len(s.Evidence) > 0 {
			b, err := json.Marshal(s.Evidence)
			if err != nil {
				return fmt.Errorf("marshal evidence for %s: %w", s.Ticker, err)
			}
			evidence = b
		}
		batch.Queue(query,
			s.ID, s.Ticker, string(s.Type), string(s.Action), s.Score, s.Confidence,
			s.Trust.Verified, s.Trust.Unverified, s.LowConfidence, s.EvidenceCount, evidence, s.Timestamp,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save signal batch: %w", err)
	}
	return nil
}

// Recent returns the latest archived signals for ticker, newest first
func (r *Repository) Recent(ctx context.Context, ticker string, limit int) ([]contracts.Signal, error) {
	query := `
		SELECT signal_id, ticker, signal_type, action, score, confidence,
		       verified, unverified, low_confidence, evidence_count, evidence, signal_time
		FROM marketlens.signals
		WHERE ticker = $1
		ORDER BY signal_time DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, contracts.NormalizeSymbol(ticker), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.Signal
	for rows.Next() {
		var (
			s        contracts.Signal
			sigType  string
			action   string
			evidence []byte
		)
		if err := rows.Scan(
			&s.ID, &s.Ticker, &sigType, &action, &s.Score, &s.Confidence,
			&s.Trust.Verified, &s.Trust.Unverified, &s.LowConfidence, &s.EvidenceCount, &evidence, &s.Timestamp,
		); err != nil {
			return nil, err
		}
		s.Type = contracts.SignalType(sigType)
		s.Action = contracts.Action(action)
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &s.Evidence); err != nil {
				return nil, fmt.Errorf("decode evidence for %s: %w", s.ID, err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
