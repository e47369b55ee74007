package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/sweat"
)

// ChallengeService gates, creates, and verifies sweat-equity challenges.
type ChallengeService interface {
	CanCreate(ctx context.Context, chainKey string, predictionID uint64, user common.Address) (bool, error)
	CreateChallenge(ctx context.Context, chainKey string, req domain.CreateChallengeRequest) (sweat.Created, error)
	AutonomousVerification(ctx context.Context, chainKey string, challengeID uint64, proof sweat.Proof) (sweat.Verification, error)
}

// SweatHandler serves the sweat-equity endpoints.
type SweatHandler struct {
	service ChallengeService
	logger  *slog.Logger
}

func NewSweatHandler(service ChallengeService, logger *slog.Logger) *SweatHandler {
	return &SweatHandler{service: service, logger: logger}
}

type createChallengeRequest struct {
	UserAddress  string   `json:"userAddress"`
	PredictionID flexUint `json:"predictionId"`
	ExerciseType string   `json:"exerciseType"`
	TargetAmount flexUint `json:"targetAmount"`
	Chain        string   `json:"chain"`
}

type createChallengeResponse struct {
	Success        bool   `json:"success"`
	ChallengeID    uint64 `json:"challengeId"`
	TxHash         string `json:"txHash"`
	Deadline       string `json:"deadline,omitempty"`
	RecoveryAmount string `json:"recoveryAmount"`
}

// CreateChallenge opens a challenge for a losing staker.
// POST /api/sweat-equity/create-challenge
func (h *SweatHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var body createChallengeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, err)
		return
	}
	user, err := parseAddress(body.UserAddress, "userAddress")
	if err != nil {
		writeFailure(w, err)
		return
	}
	if body.PredictionID == 0 || body.TargetAmount == 0 || strings.TrimSpace(body.ExerciseType) == "" {
		writeFailure(w, fmt.Errorf("%w: predictionId, exerciseType, and targetAmount are required", domain.ErrValidation))
		return
	}

	created, err := h.service.CreateChallenge(r.Context(), body.Chain, domain.CreateChallengeRequest{
		User:         user,
		PredictionID: uint64(body.PredictionID),
		ExerciseType: body.ExerciseType,
		TargetAmount: uint64(body.TargetAmount),
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: create challenge failed",
			slog.Uint64("prediction_id", uint64(body.PredictionID)),
			slog.String("user", user.Hex()),
			slog.String("error", err.Error()),
		)
		writeFailure(w, err)
		return
	}
	resp := createChallengeResponse{
		Success:        true,
		ChallengeID:    created.ChallengeID,
		TxHash:         created.TxHash,
		RecoveryAmount: intString(created.RecoveryAmount),
	}
	if !created.Deadline.IsZero() {
		resp.Deadline = created.Deadline.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// proofInput accepts verificationProof as plain text or as an object.
type proofInput sweat.Proof

func (p *proofInput) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		*p = proofInput{Text: text}
		return nil
	}
	var obj sweat.Proof
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("verificationProof must be a string or an object")
	}
	*p = proofInput(obj)
	return nil
}

type verifyRequest struct {
	ChallengeID       flexUint   `json:"challengeId"`
	VerificationProof proofInput `json:"verificationProof"`
	Chain             string     `json:"chain"`
}

type challengeView struct {
	ID             uint64                `json:"id"`
	User           common.Address        `json:"user"`
	PredictionID   uint64                `json:"predictionId"`
	ExerciseType   string                `json:"exerciseType"`
	TargetAmount   uint64                `json:"targetAmount"`
	Deadline       string                `json:"deadline"`
	Completed      bool                  `json:"completed"`
	State          domain.ChallengeState `json:"state"`
	StakeAmount    string                `json:"stakeAmount"`
	RecoveryAmount string                `json:"recoveryAmount"`
}

type verifyResponse struct {
	Success          bool          `json:"success"`
	Approved         bool          `json:"approved"`
	AlreadyCompleted bool          `json:"alreadyCompleted,omitempty"`
	Reason           string        `json:"reason"`
	TxHash           string        `json:"txHash,omitempty"`
	Payout           string        `json:"payout,omitempty"`
	Challenge        challengeView `json:"challenge"`
}

// AutonomousVerification judges proof and pays the recovery when approved.
// A rejected proof is a 200 with approved false.
// POST /api/sweat-equity/autonomous-verification
func (h *SweatHandler) AutonomousVerification(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, err)
		return
	}
	if body.ChallengeID == 0 {
		writeFailure(w, fmt.Errorf("%w: challengeId is required", domain.ErrValidation))
		return
	}
	if strings.TrimSpace(body.VerificationProof.Text) == "" && body.VerificationProof.MediaURL == "" {
		writeFailure(w, fmt.Errorf("%w: verificationProof is required", domain.ErrValidation))
		return
	}

	v, err := h.service.AutonomousVerification(r.Context(), body.Chain, uint64(body.ChallengeID), sweat.Proof(body.VerificationProof))
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: verification failed",
			slog.Uint64("challenge_id", uint64(body.ChallengeID)),
			slog.String("error", err.Error()),
		)
		writeFailure(w, err)
		return
	}
	ch := v.Challenge
	resp := verifyResponse{
		Success:          true,
		Approved:         v.Approved,
		AlreadyCompleted: v.AlreadyCompleted,
		Reason:           v.Reason,
		TxHash:           v.TxHash,
		Challenge: challengeView{
			ID:             ch.ID,
			User:           ch.User,
			PredictionID:   ch.PredictionID,
			ExerciseType:   ch.ExerciseType,
			TargetAmount:   ch.TargetAmount,
			Deadline:       ch.Deadline.UTC().Format(time.RFC3339),
			Completed:      ch.Completed,
			State:          v.State,
			StakeAmount:    intString(ch.StakeAmount),
			RecoveryAmount: intString(ch.RecoveryAmount),
		},
	}
	if v.Payout != nil {
		resp.Payout = v.Payout.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// CanCreate reports whether a user may open a challenge.
// GET /api/sweat-equity/can-create?chain=base&predictionId=1&user=0x...
func (h *SweatHandler) CanCreate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := parseID(q.Get("predictionId"), "predictionId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := parseAddress(q.Get("user"), "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ok, err := h.service.CanCreate(r.Context(), q.Get("chain"), id, user)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"canCreate": ok, "predictionId": id, "user": user})
}
