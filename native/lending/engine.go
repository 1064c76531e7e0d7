package lending

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"quadlend/core/events"
	"quadlend/crypto"
	nativecommon "quadlend/native/common"
)

const moduleName = "lending"

var (
	lenderPrefix   = []byte("lending/lender/")
	borrowerPrefix = []byte("lending/borrower/")
	scorePrefix    = []byte("lending/score/")
	totalsKey      = []byte("lending/totals")
	lenderIndexKey = []byte("lending/index/lenders")
	markedIndexKey = []byte("lending/index/marked")
)

// ParamsKeyConfig is the parameter store key the active configuration is
// persisted under.
const ParamsKeyConfig = "lending.config"

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	IsPaused(module string) bool
	SetModulePaused(module string, paused bool) error
}

// discardNotifier is implemented by stores that can roll back in-memory state
// when a staged overlay is dropped.
type discardNotifier interface {
	OnDiscard(fn func())
}

// Vault moves base and collateral assets between accounts and the pool's
// custody addresses.
type Vault interface {
	BalanceOf(asset string, addr crypto.Address) (*big.Int, error)
	Transfer(asset string, from, to crypto.Address, amount *big.Int) error
	Burn(asset string, from crypto.Address, amount *big.Int) error
}

// PriceOracle quotes collateral assets by feed identifier.
type PriceOracle interface {
	Price(feed string) (Price, error)
}

// CreditVerifier checks an off-ledger credit proof and reports the score it
// attests to.
type CreditVerifier interface {
	VerifyScore(account crypto.Address, proof []byte) (uint8, error)
}

// ConfigStore persists the active configuration document.
type ConfigStore interface {
	PutJSON(name string, value interface{}) error
}

// Engine is the lending pool: lender deposits and withdrawals, borrower
// collateral and debt, interest accrual and the delayed liquidation process.
type Engine struct {
	state    engineState
	vault    Vault
	oracle   PriceOracle
	verifier CreditVerifier
	params   ConfigStore
	emitter  events.Emitter
	logger   *slog.Logger
	nowFn    func() time.Time

	cfgMu             sync.RWMutex
	cfg               Config
	moduleAddress     crypto.Address
	collateralAddress crypto.Address

	lock nativecommon.ReentrancyGuard
}

// NewEngine constructs a lending engine holding base-asset liquidity at
// moduleAddr and collateral at collateralAddr.
func NewEngine(moduleAddr, collateralAddr crypto.Address, cfg Config) (*Engine, error) {
	cfg = cfg.Clone()
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:               cfg,
		moduleAddress:     moduleAddr,
		collateralAddress: collateralAddr,
		emitter:           events.NoopEmitter{},
		logger:            slog.Default(),
		nowFn:             func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetVault wires the asset ledger used for every value transfer.
func (e *Engine) SetVault(vault Vault) { e.vault = vault }

// SetOracle wires the collateral price source.
func (e *Engine) SetOracle(oracle PriceOracle) { e.oracle = oracle }

// SetCreditVerifier wires the proof checker used by SubmitCreditProof.
func (e *Engine) SetCreditVerifier(verifier CreditVerifier) { e.verifier = verifier }

// SetConfigStore wires persistence for configuration changes.
func (e *Engine) SetConfigStore(store ConfigStore) { e.params = store }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		e.logger = slog.Default()
		return
	}
	e.logger = logger.With("module", moduleName)
}

// SetNowFunc overrides the clock. Nil restores the default UTC clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.Clone()
}

func (e *Engine) setConfig(cfg Config) {
	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()
}

// ModuleAddress returns the base asset custody address.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

// CollateralAddress returns the collateral custody address.
func (e *Engine) CollateralAddress() crypto.Address { return e.collateralAddress }

func (e *Engine) now() uint64 {
	if e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// enter acquires the reentrancy guard after checking the engine is wired.
func (e *Engine) enter() (func(), error) {
	if e == nil || e.state == nil || e.vault == nil {
		return nil, ErrStateNotConfigured
	}
	return e.lock.Enter()
}

func (e *Engine) emit(event *lendingEvent) {
	if e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(*event)
}

func addrKey(prefix []byte, addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x", prefix, addr[:]))
}

func (e *Engine) loadLender(addr crypto.Address) (*LenderPosition, error) {
	pos := new(LenderPosition)
	ok, err := e.state.KVGet(addrKey(lenderPrefix, addr), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newLenderPosition(addr), nil
	}
	pos.normalize()
	pos.Account = addr
	return pos, nil
}

func (e *Engine) storeLender(pos *LenderPosition) error {
	return e.state.KVPut(addrKey(lenderPrefix, pos.Account), pos)
}

func (e *Engine) loadBorrower(addr crypto.Address) (*BorrowerPosition, error) {
	pos := new(BorrowerPosition)
	ok, err := e.state.KVGet(addrKey(borrowerPrefix, addr), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newBorrowerPosition(addr), nil
	}
	pos.normalize()
	pos.Account = addr
	return pos, nil
}

func (e *Engine) storeBorrower(pos *BorrowerPosition) error {
	return e.state.KVPut(addrKey(borrowerPrefix, pos.Account), pos)
}

func (e *Engine) loadTotals() (*PoolTotals, error) {
	totals := new(PoolTotals)
	ok, err := e.state.KVGet(totalsKey, totals)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newPoolTotals(), nil
	}
	totals.normalize()
	return totals, nil
}

func (e *Engine) storeTotals(totals *PoolTotals) error {
	return e.state.KVPut(totalsKey, totals)
}

func (e *Engine) loadIndex(key []byte) ([]crypto.Address, error) {
	var list []crypto.Address
	if _, err := e.state.KVGet(key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (e *Engine) storeIndex(key []byte, list []crypto.Address) error {
	if len(list) == 0 {
		return e.state.KVDelete(key)
	}
	return e.state.KVPut(key, list)
}

func (e *Engine) indexAdd(key []byte, addr crypto.Address) error {
	list, err := e.loadIndex(key)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == addr {
			return nil
		}
	}
	return e.storeIndex(key, append(list, addr))
}

func (e *Engine) indexRemove(key []byte, addr crypto.Address) error {
	list, err := e.loadIndex(key)
	if err != nil {
		return err
	}
	out := list[:0]
	for _, existing := range list {
		if existing != addr {
			out = append(out, existing)
		}
	}
	return e.storeIndex(key, out)
}

type scoreRecord struct {
	Score uint8
}

// CreditScore returns the stored score for account. Unscored accounts report
// zero and false.
func (e *Engine) CreditScore(account crypto.Address) (uint8, bool, error) {
	if e == nil || e.state == nil {
		return 0, false, ErrStateNotConfigured
	}
	var rec scoreRecord
	ok, err := e.state.KVGet(addrKey(scorePrefix, account), &rec)
	if err != nil {
		return 0, false, err
	}
	return rec.Score, ok, nil
}

// CanLend reports whether account meets the lender eligibility threshold.
func (e *Engine) CanLend(account crypto.Address) (bool, error) {
	if e.cfg.MinLenderScore == 0 {
		return true, nil
	}
	score, ok, err := e.CreditScore(account)
	if err != nil {
		return false, err
	}
	return ok && score >= e.cfg.MinLenderScore, nil
}

// requireFunds fails when from cannot cover amount of asset.
func (e *Engine) requireFunds(asset string, from crypto.Address, amount *big.Int) error {
	balance, err := e.vault.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (e *Engine) requireTimelock(caller crypto.Address) error {
	if e.cfg.Timelock.IsZero() || caller != e.cfg.Timelock {
		return ErrOnlyTimelock
	}
	return nil
}

// Lender returns the stored lender position.
func (e *Engine) Lender(addr crypto.Address) (*LenderPosition, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateNotConfigured
	}
	return e.loadLender(addr)
}

// Borrower returns the stored borrower position.
func (e *Engine) Borrower(addr crypto.Address) (*BorrowerPosition, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateNotConfigured
	}
	return e.loadBorrower(addr)
}

// Totals returns the pool-wide accounting.
func (e *Engine) Totals() (*PoolTotals, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateNotConfigured
	}
	return e.loadTotals()
}

// Lenders returns the iterable lender index.
func (e *Engine) Lenders() ([]crypto.Address, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateNotConfigured
	}
	return e.loadIndex(lenderIndexKey)
}

// MarkedAccounts returns accounts currently marked for liquidation.
func (e *Engine) MarkedAccounts() ([]crypto.Address, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateNotConfigured
	}
	return e.loadIndex(markedIndexKey)
}

// Paused reports whether deposits and borrows are halted.
func (e *Engine) Paused() bool {
	return e != nil && e.state != nil && e.state.IsPaused(moduleName)
}

// Utilisation returns the current borrowed / lent ratio as an 18-decimal
// fraction.
func (e *Engine) Utilisation() (*big.Int, error) {
	totals, err := e.Totals()
	if err != nil {
		return nil, err
	}
	return Utilisation(totals.TotalBorrowed, totals.TotalLent), nil
}

func isEngineError(err error) bool {
	return Classify(err) != ClassUnknown || errors.Is(err, ErrStateNotConfigured)
}
