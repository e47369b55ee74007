// Package sweat runs sweat-equity challenges: losing stakers recover part of
// their stake by proving they completed a workout before the deadline.
package sweat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/market"
	"github.com/imperfectform/predictbot/internal/notify"
)

// Config tunes the service.
type Config struct {
	LockTTL       time.Duration
	VerifyTimeout time.Duration
}

// Deps are the collaborators. Locks, Audit, Attempts, Archiver, and
// Notifier may be nil.
type Deps struct {
	Client   *market.Client
	Signer   market.Account
	Verifier Verifier
	Locks    domain.LockManager
	Audit    domain.AuditStore
	Attempts domain.ChallengeStore
	Archiver domain.Archiver
	Notifier *notify.Notifier
	Now      func() time.Time
}

// Service gates, creates, and verifies challenges. The bot account signs
// every ledger call on the user's behalf.
type Service struct {
	cfg      Config
	client   *market.Client
	signer   market.Account
	verifier Verifier
	locks    domain.LockManager
	audit    domain.AuditStore
	attempts domain.ChallengeStore
	archiver domain.Archiver
	notifier *notify.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(cfg Config, deps Deps, logger *slog.Logger) *Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 45 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		cfg:      cfg,
		client:   deps.Client,
		signer:   deps.Signer,
		verifier: deps.Verifier,
		locks:    deps.Locks,
		audit:    deps.Audit,
		attempts: deps.Attempts,
		archiver: deps.Archiver,
		notifier: deps.Notifier,
		now:      deps.Now,
		logger:   logger.With(slog.String("component", "sweat")),
	}
}

// CanCreate reports whether user may open a challenge on a prediction.
func (s *Service) CanCreate(ctx context.Context, chainKey string, predictionID uint64, user common.Address) (bool, error) {
	return s.client.CanCreateSweatEquity(ctx, chainKey, predictionID, user)
}

// Created is what CreateChallenge returns.
type Created struct {
	ChallengeID    uint64    `json:"challengeId"`
	TxHash         string    `json:"txHash"`
	Deadline       time.Time `json:"deadline"`
	RecoveryAmount *big.Int  `json:"recoveryAmount"`
}

// CreateChallenge opens a challenge for req.User. The ledger rejects it
// unless the gate passes and the challenge window has not closed.
func (s *Service) CreateChallenge(ctx context.Context, chainKey string, req domain.CreateChallengeRequest) (Created, error) {
	req.ExerciseType = canonicalExercise(req.ExerciseType)
	rcpt, err := s.client.CreateChallenge(ctx, chainKey, s.signer, req)
	if err != nil {
		return Created{}, err
	}
	out := Created{ChallengeID: rcpt.ChallengeID, TxHash: rcpt.TxHash.Hex(), RecoveryAmount: rcpt.Amount}
	if ch, err := s.client.GetChallenge(ctx, chainKey, rcpt.ChallengeID); err == nil {
		out.Deadline = ch.Deadline
		out.RecoveryAmount = ch.RecoveryAmount
	}
	s.logger.InfoContext(ctx, "challenge created",
		slog.String("chain", chainKey),
		slog.Uint64("challenge_id", rcpt.ChallengeID),
		slog.Uint64("prediction_id", req.PredictionID),
		slog.String("user", req.User.Hex()),
	)
	s.logAudit(ctx, "sweat.create", map[string]any{
		"chain":         chainKey,
		"challenge_id":  rcpt.ChallengeID,
		"prediction_id": req.PredictionID,
		"user":          req.User.Hex(),
		"exercise":      req.ExerciseType,
		"target":        req.TargetAmount,
		"tx_hash":       out.TxHash,
	})
	return out, nil
}

// Verification is the result of AutonomousVerification. A rejected proof is
// a normal result with Approved false, not an error.
type Verification struct {
	Approved         bool                  `json:"approved"`
	AlreadyCompleted bool                  `json:"alreadyCompleted,omitempty"`
	Reason           string                `json:"reason"`
	Verifier         string                `json:"verifier,omitempty"`
	ProofKey         string                `json:"proofKey,omitempty"`
	TxHash           string                `json:"txHash,omitempty"`
	Payout           *big.Int              `json:"payout,omitempty"`
	Challenge        domain.Challenge      `json:"challenge"`
	// State is the challenge state as of the decision, on the service clock.
	State            domain.ChallengeState `json:"state"`
}

// AutonomousVerification judges proof for a challenge and, if approved,
// completes it on the ledger, which marks it verified and pays the recovery
// amount in one transaction. A retry after a completed verification
// returns AlreadyCompleted without paying again. Errors mean nothing was
// decided and the call may be retried.
func (s *Service) AutonomousVerification(ctx context.Context, chainKey string, challengeID uint64, proof Proof) (Verification, error) {
	now := s.now()
	v, err := s.verify(ctx, chainKey, challengeID, proof, now)
	if err != nil {
		return Verification{}, err
	}
	if v.State == "" {
		v.State = v.Challenge.State(now)
	}
	return v, nil
}

func (s *Service) verify(ctx context.Context, chainKey string, challengeID uint64, proof Proof, now time.Time) (Verification, error) {
	log := s.logger.With(slog.String("chain", chainKey), slog.Uint64("challenge_id", challengeID))

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, fmt.Sprintf("verify:%s:%d", chainKey, challengeID), s.cfg.LockTTL)
		if err != nil {
			return Verification{}, fmt.Errorf("sweat: verification in progress: %w", err)
		}
		defer unlock()
	}

	ch, err := s.client.GetChallenge(ctx, chainKey, challengeID)
	if err != nil {
		return Verification{}, err
	}
	if ch.Completed {
		log.InfoContext(ctx, "challenge already completed")
		return Verification{AlreadyCompleted: true, Reason: domain.ErrChallengeCompleted.Reason, Challenge: ch, State: domain.ChallengeVerified}, nil
	}
	if now.After(ch.Deadline) {
		return s.reject(ctx, chainKey, ch, "", domain.ErrChallengeExpired.Reason, ""), nil
	}

	proofKey := s.storeProof(ctx, log, challengeID, proof)

	vctx, cancel := context.WithTimeout(ctx, s.cfg.VerifyTimeout)
	verdict, err := s.verifier.Verify(vctx, ch, proof)
	cancel()
	if err != nil {
		log.WarnContext(ctx, "verifier failed", slog.String("error", err.Error()))
		s.logAudit(ctx, "sweat.verify.error", map[string]any{
			"chain": chainKey, "challenge_id": challengeID, "error": err.Error(),
		})
		return Verification{}, fmt.Errorf("sweat: verify challenge %d: %w", challengeID, err)
	}
	if !verdict.Approved {
		return s.reject(ctx, chainKey, ch, proofKey, verdict.Reasoning, s.verifier.Name()), nil
	}

	rcpt, err := s.client.CompleteChallenge(ctx, chainKey, s.signer, challengeID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrChallengeCompleted):
			fresh, _ := s.client.GetChallenge(ctx, chainKey, challengeID)
			return Verification{AlreadyCompleted: true, Reason: domain.ErrChallengeCompleted.Reason, Challenge: fresh, State: domain.ChallengeVerified}, nil
		case errors.Is(err, domain.ErrChallengeExpired):
			v := s.reject(ctx, chainKey, ch, proofKey, domain.ErrChallengeExpired.Reason, s.verifier.Name())
			v.State = domain.ChallengeExpired
			return v, nil
		}
		log.ErrorContext(ctx, "complete challenge failed", slog.String("error", err.Error()))
		s.logAudit(ctx, "sweat.verify.payout_failed", map[string]any{
			"chain": chainKey, "challenge_id": challengeID, "reasoning": verdict.Reasoning, "error": err.Error(),
		})
		return Verification{}, err
	}

	if fresh, err := s.client.GetChallenge(ctx, chainKey, challengeID); err == nil {
		ch = fresh
	} else {
		ch.Completed = true
	}
	out := Verification{
		Approved:  true,
		Reason:    verdict.Reasoning,
		Verifier:  s.verifier.Name(),
		ProofKey:  proofKey,
		TxHash:    rcpt.TxHash.Hex(),
		Payout:    rcpt.Amount,
		Challenge: ch,
	}
	s.record(ctx, chainKey, ch, out)
	log.InfoContext(ctx, "challenge verified", slog.String("tx_hash", out.TxHash))
	s.announce(ctx, chainKey, out)
	return out, nil
}

func (s *Service) reject(ctx context.Context, chainKey string, ch domain.Challenge, proofKey, reason, verifier string) Verification {
	out := Verification{Reason: reason, Verifier: verifier, ProofKey: proofKey, Challenge: ch}
	s.record(ctx, chainKey, ch, out)
	s.logger.InfoContext(ctx, "challenge proof rejected",
		slog.String("chain", chainKey),
		slog.Uint64("challenge_id", ch.ID),
		slog.String("reason", reason),
	)
	return out
}

func (s *Service) storeProof(ctx context.Context, log *slog.Logger, challengeID uint64, proof Proof) string {
	if s.archiver == nil {
		return ""
	}
	contentType := proof.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}
	key, err := s.archiver.StoreProof(ctx, challengeID, proof.Bytes(), contentType)
	if err != nil {
		log.WarnContext(ctx, "store proof failed", slog.String("error", err.Error()))
		return ""
	}
	return key
}

func (s *Service) record(ctx context.Context, chainKey string, ch domain.Challenge, v Verification) {
	s.logAudit(ctx, "sweat.verify", map[string]any{
		"chain":        chainKey,
		"challenge_id": ch.ID,
		"user":         ch.User.Hex(),
		"approved":     v.Approved,
		"reason":       v.Reason,
		"verifier":     v.Verifier,
		"proof_key":    v.ProofKey,
		"tx_hash":      v.TxHash,
	})
	if s.attempts == nil {
		return
	}
	if err := s.attempts.RecordAttempt(ctx, domain.ChallengeRecord{
		Chain:       chainKey,
		ChallengeID: ch.ID,
		User:        ch.User.Hex(),
		ProofKey:    v.ProofKey,
		Approved:    v.Approved,
		Reason:      v.Reason,
		TxHash:      v.TxHash,
		CreatedAt:   s.now().UTC(),
	}); err != nil {
		s.logger.WarnContext(ctx, "record attempt failed", slog.String("error", err.Error()))
	}
}

func (s *Service) announce(ctx context.Context, chainKey string, v Verification) {
	if !s.notifier.Enabled(notify.EventChallengeVerified) {
		return
	}
	amount := v.Payout.String()
	if desc, _, err := s.client.Backend(chainKey); err == nil {
		amount = desc.Format(v.Payout)
	}
	msg := fmt.Sprintf("Challenge #%d on %s verified: %d %s. Recovered %s for %s.",
		v.Challenge.ID, chainKey, v.Challenge.TargetAmount, v.Challenge.ExerciseType, amount, v.Challenge.User.Hex())
	if err := s.notifier.Notify(ctx, notify.EventChallengeVerified, "Sweat equity verified", msg); err != nil {
		s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
}

func (s *Service) logAudit(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
