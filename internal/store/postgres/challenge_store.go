package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imperfectform/predictbot/internal/domain"
)

// ChallengeStore implements domain.ChallengeStore: one row per verification
// attempt, approved or not.
type ChallengeStore struct {
	pool *pgxpool.Pool
}

// NewChallengeStore creates a ChallengeStore backed by pool.
func NewChallengeStore(pool *pgxpool.Pool) *ChallengeStore {
	return &ChallengeStore{pool: pool}
}

func (s *ChallengeStore) RecordAttempt(ctx context.Context, rec domain.ChallengeRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO challenge_attempts (chain, challenge_id, user_address, proof_key, approved, reason, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Chain, int64(rec.ChallengeID), rec.User, rec.ProofKey, rec.Approved, rec.Reason, rec.TxHash,
	)
	if err != nil {
		return fmt.Errorf("postgres: record challenge attempt %s/%d: %w", rec.Chain, rec.ChallengeID, err)
	}
	return nil
}

// ListAttempts returns attempts oldest first.
func (s *ChallengeStore) ListAttempts(ctx context.Context, chain string, challengeID uint64) ([]domain.ChallengeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain, challenge_id, user_address, proof_key, approved, reason, tx_hash, created_at
		FROM challenge_attempts WHERE chain = $1 AND challenge_id = $2
		ORDER BY created_at ASC, id ASC`,
		chain, int64(challengeID),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list challenge attempts %s/%d: %w", chain, challengeID, err)
	}
	defer rows.Close()

	var out []domain.ChallengeRecord
	for rows.Next() {
		var rec domain.ChallengeRecord
		var id int64
		if err := rows.Scan(&rec.Chain, &id, &rec.User, &rec.ProofKey, &rec.Approved, &rec.Reason, &rec.TxHash, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan challenge attempt: %w", err)
		}
		rec.ChallengeID = uint64(id)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list challenge attempts rows: %w", err)
	}
	return out, nil
}

var _ domain.ChallengeStore = (*ChallengeStore)(nil)
