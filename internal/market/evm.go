package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/imperfectform/predictbot/internal/chain"
	"github.com/imperfectform/predictbot/internal/domain"
)

// RPC is the subset of an Ethereum JSON-RPC client the EVM backend needs.
// *ethclient.Client satisfies it.
type RPC interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ RPC = (*ethclient.Client)(nil)

// EVMOptions tunes transaction submission and log scanning.
type EVMOptions struct {
	// GasMultiplierPct pads the node's gas estimate. 0 means 120.
	GasMultiplierPct uint64
	// ReceiptPoll is the receipt polling interval. 0 means 2s.
	ReceiptPoll time.Duration
	// StartBlock is where Events starts when given a zero cursor.
	StartBlock uint64
	// MaxLogRange caps the block span of one FilterLogs call. 0 means 5000.
	MaxLogRange uint64
}

// EVMBackend talks to a deployed ledger contract over JSON-RPC.
type EVMBackend struct {
	rpc      RPC
	desc     chain.Descriptor
	contract abi.ABI
	opts     EVMOptions
	logger   *slog.Logger

	// nonces are serialized per sender so concurrent writes from the bot
	// account do not collide.
	nonceMu sync.Mutex
}

var _ Backend = (*EVMBackend)(nil)

// DialEVM connects to the descriptor's RPC endpoint.
func DialEVM(ctx context.Context, desc chain.Descriptor, opts EVMOptions, logger *slog.Logger) (*EVMBackend, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, desc.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("market: dial %s: %w", desc.Key, errors.Join(domain.ErrExternalDependency, err))
	}
	b, err := NewEVMBackend(client, desc, opts, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return b, client, nil
}

// NewEVMBackend builds a backend over an existing RPC client.
func NewEVMBackend(client RPC, desc chain.Descriptor, opts EVMOptions, logger *slog.Logger) (*EVMBackend, error) {
	parsed, err := abi.JSON(strings.NewReader(ledgerABI))
	if err != nil {
		return nil, fmt.Errorf("market: parse abi: %w", err)
	}
	if desc.ContractAddress == (common.Address{}) {
		return nil, fmt.Errorf("market: chain %s: %w: contract address not configured", desc.Key, domain.ErrValidation)
	}
	if opts.GasMultiplierPct == 0 {
		opts.GasMultiplierPct = 120
	}
	if opts.ReceiptPoll <= 0 {
		opts.ReceiptPoll = 2 * time.Second
	}
	if opts.MaxLogRange == 0 {
		opts.MaxLogRange = 5000
	}
	return &EVMBackend{
		rpc:      client,
		desc:     desc,
		contract: parsed,
		opts:     opts,
		logger:   logger.With(slog.String("component", "evm_backend"), slog.String("chain", desc.Key)),
	}, nil
}

func (b *EVMBackend) CreatePrediction(ctx context.Context, from Account, req domain.CreatePredictionRequest) (domain.TxReceipt, error) {
	target := req.TargetValue
	if target == nil {
		target = new(big.Int)
	}
	rcpt, err := b.transact(ctx, from, nil, "createPrediction",
		req.Title, req.Description, big.NewInt(req.TargetDate.Unix()), target,
		uint8(req.Category), req.Network, req.Emoji, req.AutoResolvable)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	for _, ev := range rcpt.Events {
		if ev.Type == domain.EventPredictionCreated {
			rcpt.PredictionID = ev.PredictionID
		}
	}
	return rcpt, nil
}

func (b *EVMBackend) Vote(ctx context.Context, from Account, id uint64, isYes bool, value *big.Int) (domain.TxReceipt, error) {
	rcpt, err := b.transact(ctx, from, value, "vote", new(big.Int).SetUint64(id), isYes)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	rcpt.PredictionID = id
	return rcpt, nil
}

func (b *EVMBackend) ResolvePrediction(ctx context.Context, from Account, id uint64, outcome domain.Outcome) (domain.TxReceipt, error) {
	rcpt, err := b.transact(ctx, from, nil, "resolvePrediction", new(big.Int).SetUint64(id), uint8(outcome))
	if err != nil {
		return domain.TxReceipt{}, err
	}
	rcpt.PredictionID = id
	return rcpt, nil
}

func (b *EVMBackend) CancelPrediction(ctx context.Context, from Account, id uint64) (domain.TxReceipt, error) {
	rcpt, err := b.transact(ctx, from, nil, "cancelPrediction", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.TxReceipt{}, err
	}
	rcpt.PredictionID = id
	return rcpt, nil
}

func (b *EVMBackend) ClaimReward(ctx context.Context, from Account, id uint64) (domain.TxReceipt, error) {
	return b.claim(ctx, from, "claimReward", id)
}

func (b *EVMBackend) ClaimRefund(ctx context.Context, from Account, id uint64) (domain.TxReceipt, error) {
	return b.claim(ctx, from, "claimRefund", id)
}

func (b *EVMBackend) claim(ctx context.Context, from Account, method string, id uint64) (domain.TxReceipt, error) {
	rcpt, err := b.transact(ctx, from, nil, method, new(big.Int).SetUint64(id))
	if err != nil {
		return domain.TxReceipt{}, err
	}
	rcpt.PredictionID = id
	rcpt.Amount = new(big.Int)
	for _, ev := range rcpt.Events {
		if ev.Amount != nil {
			rcpt.Amount.Set(ev.Amount)
		}
	}
	return rcpt, nil
}

func (b *EVMBackend) CreateChallenge(ctx context.Context, from Account, req domain.CreateChallengeRequest) (domain.TxReceipt, error) {
	rcpt, err := b.transact(ctx, from, nil, "createChallenge",
		req.User, new(big.Int).SetUint64(req.PredictionID), req.ExerciseType, new(big.Int).SetUint64(req.TargetAmount))
	if err != nil {
		return domain.TxReceipt{}, err
	}
	rcpt.PredictionID = req.PredictionID
	for _, ev := range rcpt.Events {
		if ev.Type == domain.EventChallengeCreated {
			rcpt.ChallengeID = ev.ChallengeID
			rcpt.Amount = ev.Amount
		}
	}
	return rcpt, nil
}

func (b *EVMBackend) CompleteChallenge(ctx context.Context, from Account, challengeID uint64) (domain.TxReceipt, error) {
	rcpt, err := b.transact(ctx, from, nil, "completeChallenge", new(big.Int).SetUint64(challengeID))
	if err != nil {
		return domain.TxReceipt{}, err
	}
	rcpt.ChallengeID = challengeID
	for _, ev := range rcpt.Events {
		if ev.Type == domain.EventChallengeCompleted {
			rcpt.PredictionID = ev.PredictionID
			rcpt.Amount = ev.Amount
		}
	}
	return rcpt, nil
}

type predictionTuple struct {
	Id                *big.Int
	Creator           common.Address
	Title             string
	Description       string
	Emoji             string
	Network           string
	TargetDate        *big.Int
	TargetValue       *big.Int
	Category          uint8
	TotalStaked       *big.Int
	YesVotes          *big.Int
	NoVotes           *big.Int
	Status            uint8
	Outcome           uint8
	AutoResolvable    bool
	CreatedAt         *big.Int
	ResolvedAt        *big.Int
	CharityAmount     *big.Int
	MaintenanceAmount *big.Int
	Distributable     *big.Int
}

func (t predictionTuple) toDomain() domain.Prediction {
	p := domain.Prediction{
		ID:                t.Id.Uint64(),
		Creator:           t.Creator,
		Title:             t.Title,
		Description:       t.Description,
		Emoji:             t.Emoji,
		Network:           t.Network,
		TargetDate:        unixTime(t.TargetDate),
		TargetValue:       t.TargetValue,
		Category:          domain.Category(t.Category),
		TotalStaked:       t.TotalStaked,
		YesVotes:          t.YesVotes,
		NoVotes:           t.NoVotes,
		Status:            domain.Status(t.Status),
		Outcome:           domain.Outcome(t.Outcome),
		AutoResolvable:    t.AutoResolvable,
		CreatedAt:         unixTime(t.CreatedAt),
		CharityAmount:     t.CharityAmount,
		MaintenanceAmount: t.MaintenanceAmount,
		Distributable:     t.Distributable,
	}
	if t.ResolvedAt != nil && t.ResolvedAt.Sign() > 0 {
		ts := unixTime(t.ResolvedAt)
		p.ResolvedAt = &ts
	}
	return p
}

func (b *EVMBackend) GetPrediction(ctx context.Context, id uint64) (domain.Prediction, error) {
	var out predictionTuple
	if err := b.call(ctx, &out, "getPrediction", new(big.Int).SetUint64(id)); err != nil {
		return domain.Prediction{}, err
	}
	// A zero id is how a contract without existence checks reports a gap.
	if out.Id == nil || out.Id.Sign() == 0 {
		return domain.Prediction{}, domain.ErrPredictionNotFound
	}
	return out.toDomain(), nil
}

func (b *EVMBackend) GetUserVote(ctx context.Context, id uint64, user common.Address) (domain.Vote, error) {
	var out struct {
		IsYes   bool
		Amount  *big.Int
		Claimed bool
	}
	if err := b.call(ctx, &out, "getUserVote", new(big.Int).SetUint64(id), user); err != nil {
		return domain.Vote{}, err
	}
	if out.Amount == nil {
		out.Amount = new(big.Int)
	}
	return domain.Vote{IsYes: out.IsYes, Amount: out.Amount, Claimed: out.Claimed}, nil
}

func (b *EVMBackend) GetFeeInfo(ctx context.Context) (domain.FeeInfo, error) {
	var out struct {
		CharityFeePercentage     *big.Int
		MaintenanceFeePercentage *big.Int
		CharityAddress           common.Address
		MaintenanceAddress       common.Address
	}
	if err := b.call(ctx, &out, "getFeeInfo"); err != nil {
		return domain.FeeInfo{}, err
	}
	c, m := out.CharityFeePercentage.Uint64(), out.MaintenanceFeePercentage.Uint64()
	return domain.FeeInfo{
		CharityFeePercentage:     c,
		MaintenanceFeePercentage: m,
		TotalFeePercentage:       c + m,
		CharityAddress:           out.CharityAddress,
		MaintenanceAddress:       out.MaintenanceAddress,
	}, nil
}

// ListPredictions walks ids 1..predictionCount. The chain has no status
// index; callers that list often should read the Postgres index instead.
func (b *EVMBackend) ListPredictions(ctx context.Context, statuses ...domain.Status) ([]domain.Prediction, error) {
	count, err := b.callUint(ctx, "predictionCount")
	if err != nil {
		return nil, err
	}
	want := make(map[domain.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []domain.Prediction
	for id := uint64(1); id <= count; id++ {
		p, err := b.GetPrediction(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(want) == 0 || want[p.Status] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (b *EVMBackend) CanCreateSweatEquity(ctx context.Context, id uint64, user common.Address) (bool, error) {
	res, err := b.callRaw(ctx, "canCreateSweatEquity", new(big.Int).SetUint64(id), user)
	if err != nil {
		return false, err
	}
	ok, _ := res[0].(bool)
	return ok, nil
}

func (b *EVMBackend) GetChallenge(ctx context.Context, id uint64) (domain.Challenge, error) {
	var out struct {
		User           common.Address
		PredictionId   *big.Int
		ExerciseType   string
		TargetAmount   *big.Int
		Deadline       *big.Int
		Completed      bool
		StakeAmount    *big.Int
		RecoveryAmount *big.Int
		CreatedAt      *big.Int
		CompletedAt    *big.Int
	}
	if err := b.call(ctx, &out, "getChallenge", new(big.Int).SetUint64(id)); err != nil {
		return domain.Challenge{}, err
	}
	if out.User == (common.Address{}) {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	c := domain.Challenge{
		ID:             id,
		User:           out.User,
		PredictionID:   out.PredictionId.Uint64(),
		ExerciseType:   out.ExerciseType,
		TargetAmount:   out.TargetAmount.Uint64(),
		Deadline:       unixTime(out.Deadline),
		Completed:      out.Completed,
		StakeAmount:    out.StakeAmount,
		RecoveryAmount: out.RecoveryAmount,
		CreatedAt:      unixTime(out.CreatedAt),
	}
	if out.CompletedAt != nil && out.CompletedAt.Sign() > 0 {
		ts := unixTime(out.CompletedAt)
		c.CompletedAt = &ts
	}
	return c, nil
}

// Events uses the next block number to scan as the cursor. A zero cursor
// starts at EVMOptions.StartBlock.
func (b *EVMBackend) Events(ctx context.Context, cursor uint64) ([]domain.Event, uint64, error) {
	from := cursor
	if from == 0 {
		from = b.opts.StartBlock
	}
	head, err := b.rpc.BlockNumber(ctx)
	if err != nil {
		return nil, cursor, b.networkErr("block number", err)
	}
	if from > head {
		return nil, cursor, nil
	}
	to := head
	if to-from+1 > b.opts.MaxLogRange {
		to = from + b.opts.MaxLogRange - 1
	}
	logs, err := b.rpc.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{b.desc.ContractAddress},
	})
	if err != nil {
		return nil, cursor, b.networkErr("filter logs", err)
	}
	events := make([]domain.Event, 0, len(logs))
	for _, lg := range logs {
		ev, ok, err := b.decodeLog(lg)
		if err != nil {
			b.logger.Warn("undecodable log",
				slog.String("tx_hash", lg.TxHash.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events, to + 1, nil
}

// transact packs, signs, submits, and waits for the receipt of one call.
func (b *EVMBackend) transact(ctx context.Context, from Account, value *big.Int, method string, args ...any) (domain.TxReceipt, error) {
	data, err := b.contract.Pack(method, args...)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("market: pack %s: %w", method, errors.Join(domain.ErrValidation, err))
	}
	if value == nil {
		value = new(big.Int)
	}
	sender := from.Address()
	to := b.desc.ContractAddress
	msg := ethereum.CallMsg{From: sender, To: &to, Value: value, Data: data}

	gas, err := b.rpc.EstimateGas(ctx, msg)
	if err != nil {
		// Estimation executes the call, so contract reverts surface here
		// before anything is broadcast.
		return domain.TxReceipt{}, b.decodeCallErr(method, err)
	}
	gas = gas * b.opts.GasMultiplierPct / 100

	gasPrice, err := b.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return domain.TxReceipt{}, b.networkErr("gas price", err)
	}

	b.nonceMu.Lock()
	nonce, err := b.rpc.PendingNonceAt(ctx, sender)
	if err != nil {
		b.nonceMu.Unlock()
		return domain.TxReceipt{}, b.networkErr("nonce", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := from.SignTx(tx, new(big.Int).SetUint64(b.desc.ChainID))
	if err != nil {
		b.nonceMu.Unlock()
		return domain.TxReceipt{}, fmt.Errorf("market: sign %s: %w", method, err)
	}
	err = b.rpc.SendTransaction(ctx, signed)
	b.nonceMu.Unlock()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
			return domain.TxReceipt{}, fmt.Errorf("market: send %s: %w", method, errors.Join(domain.ErrInsufficientBalance, err))
		}
		return domain.TxReceipt{}, b.networkErr("send "+method, err)
	}

	b.logger.Info("transaction submitted",
		slog.String("method", method),
		slog.String("tx_hash", signed.Hash().Hex()),
	)

	receipt, err := b.waitMined(ctx, signed.Hash())
	if err != nil {
		return domain.TxReceipt{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.TxReceipt{}, b.replayRevert(ctx, msg, receipt, method)
	}

	out := domain.TxReceipt{TxHash: signed.Hash()}
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != b.desc.ContractAddress {
			continue
		}
		ev, ok, err := b.decodeLog(*lg)
		if err != nil || !ok {
			continue
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}

func (b *EVMBackend) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(b.opts.ReceiptPoll)
	defer ticker.Stop()
	for {
		receipt, err := b.rpc.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, b.networkErr("receipt "+hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("market: wait %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// replayRevert re-executes a failed transaction at its block to recover the
// revert reason.
func (b *EVMBackend) replayRevert(ctx context.Context, msg ethereum.CallMsg, receipt *types.Receipt, method string) error {
	_, err := b.rpc.CallContract(ctx, msg, receipt.BlockNumber)
	if err == nil {
		return fmt.Errorf("market: %s: %w", method, &domain.LedgerError{Kind: domain.ErrReverted, Reason: "execution reverted"})
	}
	return b.decodeCallErr(method, err)
}

func (b *EVMBackend) call(ctx context.Context, out any, method string, args ...any) error {
	data, err := b.contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("market: pack %s: %w", method, errors.Join(domain.ErrValidation, err))
	}
	to := b.desc.ContractAddress
	res, err := b.rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return b.decodeCallErr(method, err)
	}
	if err := b.contract.UnpackIntoInterface(out, method, res); err != nil {
		return fmt.Errorf("market: unpack %s: %w", method, errors.Join(domain.ErrExternalDependency, err))
	}
	return nil
}

func (b *EVMBackend) callRaw(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := b.contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("market: pack %s: %w", method, errors.Join(domain.ErrValidation, err))
	}
	to := b.desc.ContractAddress
	res, err := b.rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, b.decodeCallErr(method, err)
	}
	values, err := b.contract.Unpack(method, res)
	if err != nil || len(values) == 0 {
		return nil, fmt.Errorf("market: unpack %s: %w", method, errors.Join(domain.ErrExternalDependency, err))
	}
	return values, nil
}

func (b *EVMBackend) callUint(ctx context.Context, method string, args ...any) (uint64, error) {
	values, err := b.callRaw(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("market: %s: %w: unexpected output %T", method, domain.ErrExternalDependency, values[0])
	}
	return n.Uint64(), nil
}

// decodeCallErr turns a node error carrying revert data into the matching
// ledger error. Anything else is a network failure.
func (b *EVMBackend) decodeCallErr(method string, err error) error {
	if reason, ok := revertReason(err); ok {
		return fmt.Errorf("market: %s: %w", method, domain.ParseRevert(reason))
	}
	if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
		return fmt.Errorf("market: %s: %w", method, errors.Join(domain.ErrInsufficientBalance, err))
	}
	return b.networkErr(method, err)
}

func (b *EVMBackend) networkErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("market: %s: %w", op, err)
	}
	return fmt.Errorf("market: %s: %w", op, errors.Join(domain.ErrExternalDependency, err))
}

// revertReason extracts an Error(string) reason from a JSON-RPC error.
func revertReason(err error) (string, bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		if hexData, ok := de.ErrorData().(string); ok {
			if reason, uerr := abi.UnpackRevert(common.FromHex(hexData)); uerr == nil {
				return reason, true
			}
		}
	}
	const marker = "execution reverted"
	msg := err.Error()
	if i := strings.Index(msg, marker); i >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len(marker):], ":"))
		if reason == "" {
			reason = marker
		}
		return reason, true
	}
	return "", false
}

// decodeLog maps a contract log onto a domain event. ok is false for logs
// this backend does not know.
func (b *EVMBackend) decodeLog(lg types.Log) (domain.Event, bool, error) {
	if len(lg.Topics) == 0 {
		return domain.Event{}, false, nil
	}
	abiEvent, err := b.contract.EventByID(lg.Topics[0])
	if err != nil {
		return domain.Event{}, false, nil
	}
	fields := make(map[string]any)
	if len(lg.Data) > 0 {
		if err := abiEvent.Inputs.NonIndexed().UnpackIntoMap(fields, lg.Data); err != nil {
			return domain.Event{}, false, fmt.Errorf("market: decode %s: %w", abiEvent.Name, err)
		}
	}
	var indexed abi.Arguments
	for _, arg := range abiEvent.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
		return domain.Event{}, false, fmt.Errorf("market: decode %s topics: %w", abiEvent.Name, err)
	}

	ev := domain.Event{
		Type:   domain.EventType(abiEvent.Name),
		Seq:    lg.BlockNumber,
		Chain:  b.desc.Key,
		TxHash: lg.TxHash,
	}
	ev.PredictionID = bigField(fields, "predictionId").Uint64()
	ev.ChallengeID = bigField(fields, "challengeId").Uint64()
	for _, key := range []string{"creator", "voter", "user"} {
		if addr, ok := fields[key].(common.Address); ok {
			ev.Account = addr
		}
	}
	if s, ok := fields["title"].(string); ok {
		ev.Title = s
	}
	if s, ok := fields["network"].(string); ok {
		ev.Network = s
	}
	if v, ok := fields["isYes"].(bool); ok {
		ev.IsYes = v
	}
	if v, ok := fields["category"].(uint8); ok {
		ev.Category = domain.Category(v)
	}
	if v, ok := fields["outcome"].(uint8); ok {
		ev.Outcome = domain.Outcome(v)
	}
	if _, ok := fields["targetDate"]; ok {
		ev.TargetDate = unixTime(bigField(fields, "targetDate"))
	}
	for _, key := range []string{"amount", "recoveryAmount"} {
		if v, ok := fields[key].(*big.Int); ok {
			ev.Amount = v
		}
	}
	return ev, true, nil
}

func bigField(fields map[string]any, key string) *big.Int {
	if v, ok := fields[key].(*big.Int); ok && v != nil {
		return v
	}
	return new(big.Int)
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
