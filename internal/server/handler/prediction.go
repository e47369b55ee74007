package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/imperfectform/predictbot/internal/bot"
	"github.com/imperfectform/predictbot/internal/chain"
	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/market"
)

// MarketReader is the read side of the market client.
type MarketReader interface {
	Registry() *chain.Registry
	GetPrediction(ctx context.Context, chainKey string, id uint64) (domain.Prediction, error)
	GetUserVote(ctx context.Context, chainKey string, id uint64, user common.Address) (domain.Vote, error)
	GetFeeInfo(ctx context.Context, chainKey string) (domain.FeeInfo, error)
}

// PredictionCreator submits predictions with the bot's identity.
type PredictionCreator interface {
	CreatePrediction(ctx context.Context, chainKey string, req domain.CreatePredictionRequest, requester, source string) market.Result
}

// PredictionHandler serves prediction, vote, fee, and chain endpoints.
type PredictionHandler struct {
	reader  MarketReader
	creator PredictionCreator
	logger  *slog.Logger
}

func NewPredictionHandler(reader MarketReader, creator PredictionCreator, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{reader: reader, creator: creator, logger: logger}
}

type createPredictionRequest struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	TargetDate     json.RawMessage `json:"targetDate"`
	TargetValue    json.RawMessage `json:"targetValue"`
	Category       json.RawMessage `json:"category"`
	Network        string          `json:"network"`
	Emoji          string          `json:"emoji"`
	UserAddress    string          `json:"userAddress"`
	AutoResolvable bool            `json:"autoResolvable"`
	Chain          string          `json:"chain"`
}

func (c createPredictionRequest) toDomain() (domain.CreatePredictionRequest, error) {
	target, err := parseTargetDate(c.TargetDate)
	if err != nil {
		return domain.CreatePredictionRequest{}, err
	}
	value, err := parseBigInt(c.TargetValue)
	if err != nil {
		return domain.CreatePredictionRequest{}, err
	}
	category, err := parseCategory(c.Category)
	if err != nil {
		return domain.CreatePredictionRequest{}, err
	}
	if strings.TrimSpace(c.Title) == "" {
		return domain.CreatePredictionRequest{}, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	return domain.CreatePredictionRequest{
		Title:          strings.TrimSpace(c.Title),
		Description:    c.Description,
		TargetDate:     target,
		TargetValue:    value,
		Category:       category,
		Network:        c.Network,
		Emoji:          c.Emoji,
		AutoResolvable: c.AutoResolvable,
	}, nil
}

// parseTargetDate accepts unix seconds, RFC 3339, or a YYYY-MM-DD date
// (end of that day, UTC).
func parseTargetDate(raw json.RawMessage) (time.Time, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Time{}, fmt.Errorf("%w: targetDate is required", domain.ErrValidation)
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Add(24*time.Hour - time.Second), nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid targetDate %q", domain.ErrValidation, s)
}

func parseBigInt(raw json.RawMessage) (*big.Int, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid targetValue %q", domain.ErrValidation, s)
	}
	return v, nil
}

// parseCategory accepts the category name or its numeric index.
func parseCategory(raw json.RawMessage) (domain.Category, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return domain.CategoryCustom, nil
	}
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		c := domain.Category(n)
		if !c.Valid() {
			return 0, fmt.Errorf("%w: unknown category %d", domain.ErrValidation, n)
		}
		return c, nil
	}
	return domain.ParseCategory(s)
}

type createPredictionResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash"`
	ExplorerURL     string `json:"explorerUrl"`
	PredictionID    uint64 `json:"predictionId"`
}

// CreatePrediction submits a prediction on behalf of userAddress.
// POST /api/create-prediction
func (h *PredictionHandler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	var body createPredictionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, err)
		return
	}
	req, err := body.toDomain()
	if err != nil {
		writeFailure(w, err)
		return
	}
	requester := body.UserAddress
	if requester != "" {
		addr, err := parseAddress(requester, "userAddress")
		if err != nil {
			writeFailure(w, err)
			return
		}
		requester = addr.Hex()
	}

	res := h.creator.CreatePrediction(r.Context(), body.Chain, req, requester, bot.SourceAPI)
	if !res.Success {
		h.logger.WarnContext(r.Context(), "handler: create prediction failed",
			slog.String("chain", body.Chain),
			slog.String("code", string(res.Error.Code)),
			slog.String("reason", res.Error.Reason),
		)
		writeFailure(w, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, createPredictionResponse{
		Success:         true,
		TransactionHash: res.TxHash,
		ExplorerURL:     res.ExplorerURL,
		PredictionID:    res.PredictionID,
	})
}

type predictionView struct {
	Chain             string          `json:"chain"`
	ID                uint64          `json:"id"`
	Creator           common.Address  `json:"creator"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Emoji             string          `json:"emoji,omitempty"`
	Network           string          `json:"network,omitempty"`
	TargetDate        time.Time       `json:"targetDate"`
	TargetValue       string          `json:"targetValue"`
	Category          domain.Category `json:"category"`
	Status            domain.Status   `json:"status"`
	Outcome           domain.Outcome  `json:"outcome"`
	AutoResolvable    bool            `json:"autoResolvable"`
	TotalStaked       string          `json:"totalStaked"`
	YesVotes          string          `json:"yesVotes"`
	NoVotes           string          `json:"noVotes"`
	TotalStakedHuman  string          `json:"totalStakedFormatted"`
	CharityAmount     string          `json:"charityAmount"`
	MaintenanceAmount string          `json:"maintenanceAmount"`
	Distributable     string          `json:"distributable"`
	CreatedAt         time.Time       `json:"createdAt"`
	ResolvedAt        *time.Time      `json:"resolvedAt,omitempty"`
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newPredictionView(desc chain.Descriptor, p domain.Prediction) predictionView {
	return predictionView{
		Chain:             desc.Key,
		ID:                p.ID,
		Creator:           p.Creator,
		Title:             p.Title,
		Description:       p.Description,
		Emoji:             p.Emoji,
		Network:           p.Network,
		TargetDate:        p.TargetDate,
		TargetValue:       intString(p.TargetValue),
		Category:          p.Category,
		Status:            p.Status,
		Outcome:           p.Outcome,
		AutoResolvable:    p.AutoResolvable,
		TotalStaked:       intString(p.TotalStaked),
		YesVotes:          intString(p.YesVotes),
		NoVotes:           intString(p.NoVotes),
		TotalStakedHuman:  desc.Format(p.TotalStaked),
		CharityAmount:     intString(p.CharityAmount),
		MaintenanceAmount: intString(p.MaintenanceAmount),
		Distributable:     intString(p.Distributable),
		CreatedAt:         p.CreatedAt,
		ResolvedAt:        p.ResolvedAt,
	}
}

// chainAndID resolves the {chain} and {id} path values.
func (h *PredictionHandler) chainAndID(r *http.Request) (chain.Descriptor, uint64, error) {
	desc, err := h.reader.Registry().Get(pathParam(r, "chain"))
	if err != nil {
		return chain.Descriptor{}, 0, err
	}
	id, err := parseID(pathParam(r, "id"), "prediction id")
	if err != nil {
		return chain.Descriptor{}, 0, err
	}
	return desc, id, nil
}

// GetPrediction returns one prediction.
// GET /api/predictions/{chain}/{id}
func (h *PredictionHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	desc, id, err := h.chainAndID(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	p, err := h.reader.GetPrediction(r.Context(), desc.Key, id)
	if err != nil {
		h.logFailure(r, "get prediction", err, slog.Uint64("prediction_id", id))
		writeError(w, statusFor(err), market.Classify(err).Reason)
		return
	}
	writeJSON(w, http.StatusOK, newPredictionView(desc, p))
}

type voteView struct {
	Address  common.Address `json:"address"`
	HasVoted bool           `json:"hasVoted"`
	IsYes    bool           `json:"isYes"`
	Amount   string         `json:"amount"`
	Claimed  bool           `json:"claimed"`
}

// GetUserVote returns one user's stake on a prediction.
// GET /api/predictions/{chain}/{id}/votes/{address}
func (h *PredictionHandler) GetUserVote(w http.ResponseWriter, r *http.Request) {
	desc, id, err := h.chainAndID(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	addr, err := parseAddress(pathParam(r, "address"), "address")
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	v, err := h.reader.GetUserVote(r.Context(), desc.Key, id, addr)
	if err != nil {
		h.logFailure(r, "get vote", err, slog.Uint64("prediction_id", id))
		writeError(w, statusFor(err), market.Classify(err).Reason)
		return
	}
	writeJSON(w, http.StatusOK, voteView{
		Address:  addr,
		HasVoted: v.HasStake(),
		IsYes:    v.IsYes,
		Amount:   intString(v.Amount),
		Claimed:  v.Claimed,
	})
}

// GetFeeInfo returns the fee configuration on a chain.
// GET /api/fees/{chain}
func (h *PredictionHandler) GetFeeInfo(w http.ResponseWriter, r *http.Request) {
	desc, err := h.reader.Registry().Get(pathParam(r, "chain"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	info, err := h.reader.GetFeeInfo(r.Context(), desc.Key)
	if err != nil {
		h.logFailure(r, "get fee info", err)
		writeError(w, statusFor(err), market.Classify(err).Reason)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chain":                    desc.Key,
		"charityFeePercentage":     info.CharityFeePercentage,
		"maintenanceFeePercentage": info.MaintenanceFeePercentage,
		"totalFeePercentage":       info.TotalFeePercentage,
		"charityAddress":           info.CharityAddress,
		"maintenanceAddress":       info.MaintenanceAddress,
	})
}

// ListChains returns the supported chains.
// GET /api/chains
func (h *PredictionHandler) ListChains(w http.ResponseWriter, r *http.Request) {
	reg := h.reader.Registry()
	writeJSON(w, http.StatusOK, map[string]any{
		"default": reg.Default().Key,
		"chains":  reg.All(),
	})
}

func (h *PredictionHandler) logFailure(r *http.Request, op string, err error, attrs ...any) {
	if statusFor(err) < http.StatusInternalServerError {
		return
	}
	args := append([]any{slog.String("chain", pathParam(r, "chain")), slog.String("error", err.Error())}, attrs...)
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed", args...)
}
