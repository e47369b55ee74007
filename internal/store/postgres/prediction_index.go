package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imperfectform/predictbot/internal/domain"
)

// SourceLedger marks index rows written from the ledger event stream; a row
// first written by the API or the bot keeps that source.
const SourceLedger = "ledger"

// PredictionIndex implements domain.PredictionIndex.
type PredictionIndex struct {
	pool *pgxpool.Pool
}

// NewPredictionIndex creates a PredictionIndex backed by pool.
func NewPredictionIndex(pool *pgxpool.Pool) *PredictionIndex {
	return &PredictionIndex{pool: pool}
}

// Upsert writes the creation metadata. Status and outcome are owned by
// UpdateStatus and are not overwritten on conflict.
func (s *PredictionIndex) Upsert(ctx context.Context, rec domain.PredictionRecord) error {
	const query = `
		INSERT INTO predictions (
			chain, prediction_id, tx_hash, creator, title, category,
			target_date, status, outcome, source, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (chain, prediction_id) DO UPDATE SET
			tx_hash     = CASE WHEN EXCLUDED.tx_hash <> '' THEN EXCLUDED.tx_hash ELSE predictions.tx_hash END,
			creator     = EXCLUDED.creator,
			title       = EXCLUDED.title,
			category    = EXCLUDED.category,
			target_date = EXCLUDED.target_date,
			source      = CASE WHEN EXCLUDED.source <> 'ledger' THEN EXCLUDED.source ELSE predictions.source END,
			updated_at  = NOW()`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	source := rec.Source
	if source == "" {
		source = SourceLedger
	}
	_, err := s.pool.Exec(ctx, query,
		rec.Chain, int64(rec.PredictionID), rec.TxHash, rec.Creator, rec.Title, rec.Category.String(),
		rec.TargetDate, rec.Status.String(), rec.Outcome.String(), source, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert prediction %s/%d: %w", rec.Chain, rec.PredictionID, err)
	}
	return nil
}

// UpdateStatus returns domain.ErrNotFound when the prediction is not indexed.
func (s *PredictionIndex) UpdateStatus(ctx context.Context, chain string, id uint64, status domain.Status, outcome domain.Outcome) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE predictions SET status = $3, outcome = $4, updated_at = NOW() WHERE chain = $1 AND prediction_id = $2`,
		chain, int64(id), status.String(), outcome.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: update prediction %s/%d: %w", chain, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update prediction %s/%d: %w", chain, id, domain.ErrNotFound)
	}
	return nil
}

const predictionColumns = `chain, prediction_id, tx_hash, creator, title, category,
	COALESCE(target_date, 'epoch'::timestamptz), status, outcome, source, created_at, updated_at`

func scanPredictionRecord(row pgx.Row) (domain.PredictionRecord, error) {
	var (
		rec                       domain.PredictionRecord
		id                        int64
		category, status, outcome string
	)
	if err := row.Scan(&rec.Chain, &id, &rec.TxHash, &rec.Creator, &rec.Title, &category,
		&rec.TargetDate, &status, &outcome, &rec.Source, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return domain.PredictionRecord{}, err
	}
	rec.PredictionID = uint64(id)
	if err := errors.Join(
		rec.Category.UnmarshalText([]byte(category)),
		rec.Status.UnmarshalText([]byte(status)),
		rec.Outcome.UnmarshalText([]byte(outcome)),
	); err != nil {
		return domain.PredictionRecord{}, err
	}
	return rec, nil
}

func (s *PredictionIndex) Get(ctx context.Context, chain string, id uint64) (domain.PredictionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE chain = $1 AND prediction_id = $2`,
		chain, int64(id))
	rec, err := scanPredictionRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PredictionRecord{}, fmt.Errorf("postgres: get prediction %s/%d: %w", chain, id, domain.ErrNotFound)
		}
		return domain.PredictionRecord{}, fmt.Errorf("postgres: get prediction %s/%d: %w", chain, id, err)
	}
	return rec, nil
}

// ListByStatus returns predictions ordered by target date, soonest first.
// opts.Since/Until filter on target_date.
func (s *PredictionIndex) ListByStatus(ctx context.Context, chain string, status domain.Status, opts domain.ListOpts) ([]domain.PredictionRecord, error) {
	query, args := newSelect(`SELECT `+predictionColumns+` FROM predictions`).
		whereArg("chain = ?", chain).
		whereArg("status = ?", status.String()).
		build("target_date", "target_date ASC, prediction_id ASC", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list predictions %s: %w", chain, err)
	}
	defer rows.Close()

	var out []domain.PredictionRecord
	for rows.Next() {
		rec, err := scanPredictionRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan prediction: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list predictions rows: %w", err)
	}
	return out, nil
}

var _ domain.PredictionIndex = (*PredictionIndex)(nil)
