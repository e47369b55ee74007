package ledger

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/fees"
)

// CreatePrediction registers a new ACTIVE prediction and returns its id in
// the receipt.
func (l *Ledger) CreatePrediction(from common.Address, req domain.CreatePredictionRequest) (domain.TxReceipt, error) {
	targetValue := new(big.Int)
	if req.TargetValue != nil {
		targetValue.Set(req.TargetValue)
	}
	args := []string{
		req.Title, req.Description, strconv.FormatInt(req.TargetDate.Unix(), 10), targetValue.String(),
		req.Category.String(), req.Network, req.Emoji, strconv.FormatBool(req.AutoResolvable),
	}
	return l.exec(from, "createPrediction", nil, args, func(t *txn) error {
		if !l.cfg.OpenCreation && !l.isOwner(from) && !l.bots[from] {
			return domain.ErrNotCreator
		}
		if strings.TrimSpace(req.Title) == "" {
			return domain.ErrEmptyTitle
		}
		if !req.Category.Valid() {
			return domain.ErrInvalidCategory
		}
		if targetValue.Sign() < 0 {
			return fmt.Errorf("%w: negative target value", domain.ErrValidation)
		}
		now := l.now()
		if !req.TargetDate.After(now) {
			return domain.ErrTargetDateNotFuture
		}

		id := l.nextPredictionID
		p := &domain.Prediction{
			ID:                id,
			Creator:           from,
			Title:             req.Title,
			Description:       req.Description,
			Emoji:             req.Emoji,
			Network:           req.Network,
			TargetDate:        req.TargetDate.UTC().Truncate(time.Second),
			TargetValue:       targetValue,
			Category:          req.Category,
			TotalStaked:       new(big.Int),
			YesVotes:          new(big.Int),
			NoVotes:           new(big.Int),
			Status:            domain.StatusActive,
			Outcome:           domain.OutcomeUnresolved,
			AutoResolvable:    req.AutoResolvable,
			CreatedAt:         now.UTC(),
			CharityAmount:     new(big.Int),
			MaintenanceAmount: new(big.Int),
			Distributable:     new(big.Int),
		}
		t.stage(func() {
			l.predictions[id] = p
			l.votes[id] = make(map[common.Address]*domain.Vote)
			l.nextPredictionID = id + 1
		})
		t.predictionID = id
		t.emit(domain.Event{
			Type:         domain.EventPredictionCreated,
			PredictionID: id,
			Account:      from,
			Title:        p.Title,
			TargetDate:   p.TargetDate,
			Category:     p.Category,
			Network:      p.Network,
		})
		return nil
	})
}

func (l *Ledger) prediction(id uint64) (*domain.Prediction, error) {
	p, ok := l.predictions[id]
	if !ok {
		return nil, domain.ErrPredictionNotFound
	}
	return p, nil
}

// Vote stakes value on one side. A vote on the opposite side of the caller's
// existing stake moves that whole stake to the new side before adding value.
func (l *Ledger) Vote(from common.Address, id uint64, isYes bool, value *big.Int) (domain.TxReceipt, error) {
	return l.exec(from, "vote", value, []string{u64(id), strconv.FormatBool(isYes)}, func(t *txn) error {
		p, err := l.prediction(id)
		if err != nil {
			return err
		}
		if p.Status != domain.StatusActive {
			return domain.ErrPredictionNotActive
		}
		if value == nil || value.Sign() <= 0 {
			return domain.ErrZeroStake
		}
		if l.balance(from).Cmp(value) < 0 {
			return domain.ErrInsufficientBalance
		}

		amt := new(big.Int).Set(value)
		t.stage(func() {
			l.debit(from, amt)
			l.custody.Add(l.custody, amt)

			v, ok := l.votes[id][from]
			if !ok {
				v = &domain.Vote{IsYes: isYes, Amount: new(big.Int)}
				l.votes[id][from] = v
			}
			if v.Amount.Sign() > 0 && v.IsYes != isYes {
				if v.IsYes {
					p.YesVotes.Sub(p.YesVotes, v.Amount)
					p.NoVotes.Add(p.NoVotes, v.Amount)
				} else {
					p.NoVotes.Sub(p.NoVotes, v.Amount)
					p.YesVotes.Add(p.YesVotes, v.Amount)
				}
			}
			v.IsYes = isYes
			v.Amount.Add(v.Amount, amt)
			if isYes {
				p.YesVotes.Add(p.YesVotes, amt)
			} else {
				p.NoVotes.Add(p.NoVotes, amt)
			}
			p.TotalStaked.Add(p.TotalStaked, amt)
		})
		t.predictionID = id
		t.amount = amt
		t.emit(domain.Event{
			Type:         domain.EventVoteCast,
			PredictionID: id,
			Account:      from,
			IsYes:        isYes,
			Amount:       new(big.Int).Set(amt),
		})
		return nil
	})
}

// ResolvePrediction fixes the outcome and freezes the fee split. The owner
// may resolve any prediction; authorized bots only auto-resolvable ones.
func (l *Ledger) ResolvePrediction(from common.Address, id uint64, outcome domain.Outcome) (domain.TxReceipt, error) {
	return l.exec(from, "resolvePrediction", nil, []string{u64(id), outcome.String()}, func(t *txn) error {
		p, err := l.prediction(id)
		if err != nil {
			return err
		}
		if !l.isOwner(from) && !(l.bots[from] && p.AutoResolvable) {
			return domain.ErrNotResolver
		}
		switch p.Status {
		case domain.StatusResolved:
			return domain.ErrAlreadyResolved
		case domain.StatusCancelled:
			return domain.ErrPredictionNotActive
		}
		if outcome != domain.OutcomeYes && outcome != domain.OutcomeNo {
			return domain.ErrInvalidOutcome
		}
		split, err := fees.SplitPool(p.TotalStaked, l.charityPct, l.maintenancePct)
		if err != nil {
			return err
		}

		winning := p.NoVotes
		if outcome == domain.OutcomeYes {
			winning = p.YesVotes
		}
		// No winners: the distributable pool goes to charity.
		toCharity := new(big.Int).Set(split.CharityAmount)
		if winning.Sign() == 0 {
			toCharity.Add(toCharity, split.Distributable)
		}
		released := new(big.Int).Add(toCharity, split.MaintenanceAmount)

		now := l.now().UTC()
		t.stage(func() {
			p.Status = domain.StatusResolved
			p.Outcome = outcome
			p.ResolvedAt = &now
			p.CharityAmount = split.CharityAmount
			p.MaintenanceAmount = split.MaintenanceAmount
			p.Distributable = split.Distributable
			l.custody.Sub(l.custody, released)
			l.credit(l.cfg.CharityAddress, toCharity)
			l.credit(l.cfg.MaintenanceAddress, split.MaintenanceAmount)
		})
		t.predictionID = id
		t.emit(domain.Event{
			Type:         domain.EventPredictionResolved,
			PredictionID: id,
			Account:      from,
			Outcome:      outcome,
		})
		return nil
	})
}

// CancelPrediction moves an ACTIVE prediction to CANCELLED, enabling refunds.
// Owner only.
func (l *Ledger) CancelPrediction(from common.Address, id uint64) (domain.TxReceipt, error) {
	return l.exec(from, "cancelPrediction", nil, []string{u64(id)}, func(t *txn) error {
		p, err := l.prediction(id)
		if err != nil {
			return err
		}
		if !l.isOwner(from) {
			return domain.ErrNotOwner
		}
		if p.Status != domain.StatusActive {
			return domain.ErrPredictionNotActive
		}
		t.stage(func() { p.Status = domain.StatusCancelled })
		t.predictionID = id
		t.emit(domain.Event{Type: domain.EventPredictionCancelled, PredictionID: id, Account: from})
		return nil
	})
}

// ClaimReward pays a winner their share of the distributable pool. A losing
// vote also succeeds, pays zero, and is marked claimed.
func (l *Ledger) ClaimReward(from common.Address, id uint64) (domain.TxReceipt, error) {
	return l.exec(from, "claimReward", nil, []string{u64(id)}, func(t *txn) error {
		p, err := l.prediction(id)
		if err != nil {
			return err
		}
		if p.Status != domain.StatusResolved {
			return domain.ErrNotResolved
		}
		v, ok := l.votes[id][from]
		if !ok || !v.HasStake() {
			return domain.ErrNoVote
		}
		if v.Claimed {
			return domain.ErrAlreadyClaimed
		}

		payout := new(big.Int)
		if domain.OutcomeFor(v.IsYes) == p.Outcome {
			payout = fees.Payout(v.Amount, p.Distributable, p.WinningTotal())
		}
		t.stage(func() {
			v.Claimed = true
			l.custody.Sub(l.custody, payout)
			l.credit(from, payout)
		})
		t.predictionID = id
		t.amount = payout
		t.emit(domain.Event{
			Type:         domain.EventRewardClaimed,
			PredictionID: id,
			Account:      from,
			Amount:       new(big.Int).Set(payout),
		})
		return nil
	})
}

// ClaimRefund returns the caller's full stake on a cancelled prediction.
func (l *Ledger) ClaimRefund(from common.Address, id uint64) (domain.TxReceipt, error) {
	return l.exec(from, "claimRefund", nil, []string{u64(id)}, func(t *txn) error {
		p, err := l.prediction(id)
		if err != nil {
			return err
		}
		if p.Status != domain.StatusCancelled {
			return domain.ErrNotCancelled
		}
		v, ok := l.votes[id][from]
		if !ok || !v.HasStake() {
			return domain.ErrNoVote
		}
		if v.Claimed {
			return domain.ErrAlreadyClaimed
		}
		refund := new(big.Int).Set(v.Amount)
		t.stage(func() {
			v.Claimed = true
			l.custody.Sub(l.custody, refund)
			l.credit(from, refund)
		})
		t.predictionID = id
		t.amount = refund
		t.emit(domain.Event{
			Type:         domain.EventRefundClaimed,
			PredictionID: id,
			Account:      from,
			Amount:       new(big.Int).Set(refund),
		})
		return nil
	})
}

// GetPrediction returns a copy of the prediction record.
func (l *Ledger) GetPrediction(id uint64) (domain.Prediction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.prediction(id)
	if err != nil {
		return domain.Prediction{}, err
	}
	return p.Clone(), nil
}

// GetUserVote returns the user's vote. A user who never voted gets a zero
// vote, not an error.
func (l *Ledger) GetUserVote(id uint64, user common.Address) (domain.Vote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.prediction(id); err != nil {
		return domain.Vote{}, err
	}
	if v, ok := l.votes[id][user]; ok {
		return v.Clone(), nil
	}
	return domain.Vote{Amount: new(big.Int)}, nil
}

// PredictionCount returns the number of predictions ever created.
func (l *Ledger) PredictionCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextPredictionID - 1
}

// ListPredictions returns predictions in id order, filtered by status when
// statuses are given.
func (l *Ledger) ListPredictions(statuses ...domain.Status) []domain.Prediction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Prediction, 0, len(l.predictions))
	for _, p := range l.predictions {
		if len(statuses) > 0 && !hasStatus(statuses, p.Status) {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func hasStatus(set []domain.Status, s domain.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Dust returns the truncation remainder retained by the ledger: for every
// resolved prediction with winners, the distributable pool minus the sum of
// all winner payouts.
func (l *Ledger) Dust() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	dust := new(big.Int)
	for id, p := range l.predictions {
		if p.Status != domain.StatusResolved {
			continue
		}
		winning := p.WinningTotal()
		if winning.Sign() == 0 {
			continue
		}
		paid := new(big.Int)
		for _, v := range l.votes[id] {
			if domain.OutcomeFor(v.IsYes) == p.Outcome {
				paid.Add(paid, fees.Payout(v.Amount, p.Distributable, winning))
			}
		}
		dust.Add(dust, new(big.Int).Sub(p.Distributable, paid))
	}
	return dust
}
