// Package ledger is the in-process settlement substrate for prediction
// markets. All transactions are applied in one global order under a single
// lock, and every transaction is all-or-nothing: writes are staged while the
// transaction validates and are applied only when validation succeeds.
package ledger

import (
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/fees"
)

// Config holds the ledger's deployment parameters.
type Config struct {
	Owner                    common.Address
	CharityAddress           common.Address
	MaintenanceAddress       common.Address
	CharityFeePercentage     uint64
	MaintenanceFeePercentage uint64
	ChallengeWindow          time.Duration // from resolution to challenge deadline
	RecoveryPercentage       uint64        // of the losing stake
	OpenCreation             bool          // anyone may create predictions
	Clock                    func() time.Time
}

type challengeKey struct {
	predictionID uint64
	user         common.Address
}

// Ledger holds prediction records, stakes, and challenge records, and is the
// custodian of staked funds.
type Ledger struct {
	cfg    Config
	logger *slog.Logger

	mu               sync.Mutex
	charityPct       uint64
	maintenancePct   uint64
	bots             map[common.Address]bool
	nextPredictionID uint64
	nextChallengeID  uint64
	predictions      map[uint64]*domain.Prediction
	votes            map[uint64]map[common.Address]*domain.Vote
	challenges       map[uint64]*domain.Challenge
	challengeByPair  map[challengeKey]uint64
	balances         map[common.Address]*big.Int
	custody          *big.Int
	reserve          *big.Int
	nonces           map[common.Address]uint64
	eventSeq         uint64
	log              []domain.Event

	subMu sync.Mutex
	subs  map[int]chan domain.Event
	subID int
}

// New creates an empty ledger.
func New(cfg Config, logger *slog.Logger) (*Ledger, error) {
	if err := fees.ValidatePercentages(cfg.CharityFeePercentage, cfg.MaintenanceFeePercentage); err != nil {
		return nil, fmt.Errorf("ledger: new: %w", err)
	}
	if cfg.RecoveryPercentage > 100 {
		return nil, fmt.Errorf("ledger: new: %w: recovery percentage above 100", domain.ErrValidation)
	}
	if cfg.ChallengeWindow <= 0 {
		cfg.ChallengeWindow = 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		cfg:              cfg,
		logger:           logger.With(slog.String("component", "ledger")),
		charityPct:       cfg.CharityFeePercentage,
		maintenancePct:   cfg.MaintenanceFeePercentage,
		bots:             make(map[common.Address]bool),
		nextPredictionID: 1,
		nextChallengeID:  1,
		predictions:      make(map[uint64]*domain.Prediction),
		votes:            make(map[uint64]map[common.Address]*domain.Vote),
		challenges:       make(map[uint64]*domain.Challenge),
		challengeByPair:  make(map[challengeKey]uint64),
		balances:         make(map[common.Address]*big.Int),
		custody:          new(big.Int),
		reserve:          new(big.Int),
		nonces:           make(map[common.Address]uint64),
		subs:             make(map[int]chan domain.Event),
	}, nil
}

// Owner returns the ledger owner.
func (l *Ledger) Owner() common.Address { return l.cfg.Owner }

// txn is one transaction in flight. Writes are staged and applied only if
// the transaction body returns nil.
type txn struct {
	from   common.Address
	method string
	value  *big.Int
	args   []string

	writes       []func()
	events       []domain.Event
	predictionID uint64
	challengeID  uint64
	amount       *big.Int
}

func (t *txn) stage(fn func()) { t.writes = append(t.writes, fn) }

func (t *txn) emit(ev domain.Event) { t.events = append(t.events, ev) }

type envelope struct {
	Nonce  uint64
	From   common.Address
	Method string
	Value  *big.Int
	Args   []string
}

// exec runs body under the ledger lock. On success the staged writes are
// applied, the transaction gets a hash, and its events are logged and
// published in commit order.
func (l *Ledger) exec(from common.Address, method string, value *big.Int, args []string, body func(t *txn) error) (domain.TxReceipt, error) {
	if value == nil {
		value = new(big.Int)
	}
	t := &txn{from: from, method: method, value: value, args: args}

	l.mu.Lock()
	if err := body(t); err != nil {
		l.mu.Unlock()
		return domain.TxReceipt{}, fmt.Errorf("ledger: %s: %w", method, err)
	}
	for _, w := range t.writes {
		w()
	}

	nonce := l.nonces[from]
	l.nonces[from] = nonce + 1
	hash, err := txHash(envelope{Nonce: nonce, From: from, Method: method, Value: value, Args: args})
	if err != nil {
		// Encoding only fails on unsupported types; the envelope has none.
		l.logger.Error("tx hash encode failed", slog.String("method", method), slog.String("error", err.Error()))
	}
	now := l.now()
	for i := range t.events {
		l.eventSeq++
		t.events[i].Seq = l.eventSeq
		t.events[i].TxHash = hash
		t.events[i].Timestamp = now
	}
	l.log = append(l.log, t.events...)
	// Hand over to the subscriber lock before releasing the ledger so
	// subscribers see events in commit order.
	l.subMu.Lock()
	l.mu.Unlock()
	l.publishLocked(t.events)
	l.subMu.Unlock()

	rcpt := domain.TxReceipt{
		TxHash:       hash,
		PredictionID: t.predictionID,
		ChallengeID:  t.challengeID,
		Amount:       t.amount,
		Events:       t.events,
	}
	if rcpt.Amount == nil {
		rcpt.Amount = new(big.Int)
	}
	return rcpt, nil
}

func txHash(env envelope) (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(env)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

func (l *Ledger) now() time.Time { return l.cfg.Clock() }

func (l *Ledger) isOwner(a common.Address) bool { return a == l.cfg.Owner }

func (l *Ledger) balance(a common.Address) *big.Int {
	if b, ok := l.balances[a]; ok {
		return b
	}
	return new(big.Int)
}

func (l *Ledger) credit(a common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	b, ok := l.balances[a]
	if !ok {
		b = new(big.Int)
		l.balances[a] = b
	}
	b.Add(b, amount)
}

func (l *Ledger) debit(a common.Address, amount *big.Int) {
	l.balances[a].Sub(l.balances[a], amount)
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

// Deposit credits native funds to an account. It stands in for funds
// arriving from outside the ledger.
func (l *Ledger) Deposit(to common.Address, amount *big.Int) (domain.TxReceipt, error) {
	return l.exec(to, "deposit", amount, nil, func(t *txn) error {
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("%w: deposit must be positive", domain.ErrValidation)
		}
		amt := new(big.Int).Set(amount)
		t.stage(func() { l.credit(to, amt) })
		t.amount = amt
		return nil
	})
}

// BalanceOf returns the free balance of an account.
func (l *Ledger) BalanceOf(a common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(a))
}

// Custody returns the funds held on behalf of stakers.
func (l *Ledger) Custody() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.custody)
}

// AuthorizeBot grants or revokes bot authority. Owner only.
func (l *Ledger) AuthorizeBot(from, bot common.Address, enabled bool) (domain.TxReceipt, error) {
	return l.exec(from, "authorizeBot", nil, []string{bot.Hex(), strconv.FormatBool(enabled)}, func(t *txn) error {
		if !l.isOwner(from) {
			return domain.ErrNotOwner
		}
		t.stage(func() {
			if enabled {
				l.bots[bot] = true
			} else {
				delete(l.bots, bot)
			}
		})
		return nil
	})
}

// IsBot reports whether a is an authorized bot identity.
func (l *Ledger) IsBot(a common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bots[a]
}

// SetFees replaces the fee percentages. Owner only. Predictions already
// resolved keep the split computed when they resolved.
func (l *Ledger) SetFees(from common.Address, charityPct, maintenancePct uint64) (domain.TxReceipt, error) {
	return l.exec(from, "setFees", nil, []string{u64(charityPct), u64(maintenancePct)}, func(t *txn) error {
		if !l.isOwner(from) {
			return domain.ErrNotOwner
		}
		if err := fees.ValidatePercentages(charityPct, maintenancePct); err != nil {
			return err
		}
		t.stage(func() {
			l.charityPct = charityPct
			l.maintenancePct = maintenancePct
		})
		return nil
	})
}

// GetTotalFeePercentage returns charity plus maintenance percentage.
func (l *Ledger) GetTotalFeePercentage() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.charityPct + l.maintenancePct
}

// FeeInfo returns the fee configuration in force.
func (l *Ledger) FeeInfo() domain.FeeInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.FeeInfo{
		CharityFeePercentage:     l.charityPct,
		MaintenanceFeePercentage: l.maintenancePct,
		TotalFeePercentage:       l.charityPct + l.maintenancePct,
		CharityAddress:           l.cfg.CharityAddress,
		MaintenanceAddress:       l.cfg.MaintenanceAddress,
	}
}
