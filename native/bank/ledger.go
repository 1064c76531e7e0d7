package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"quadlend/core/events"
	"quadlend/crypto"
)

// stateStore abstracts the subset of state functionality required by the ledger.
type stateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	balancePrefix = []byte("bank/balance/")
	supplyPrefix  = []byte("bank/supply/")
)

var (
	ErrInvalidAsset        = errors.New("bank: asset required")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrStateNotConfigured  = errors.New("bank: state not configured")
)

// ReceiveHook is invoked after value lands at a hooked address. It models the
// callback surface a value transfer exposes to the recipient.
type ReceiveHook func(asset string, from crypto.Address, amount *big.Int)

// Ledger tracks multi-asset balances for every account and module custody
// address.
type Ledger struct {
	store   stateStore
	emitter events.Emitter
	hooks   map[crypto.Address]ReceiveHook
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store stateStore) *Ledger {
	return &Ledger{
		store:   store,
		emitter: events.NoopEmitter{},
		hooks:   make(map[crypto.Address]ReceiveHook),
	}
}

// SetEmitter configures the event sink. Nil restores the no-op emitter.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetReceiveHook registers a callback for transfers into addr. Nil removes it.
func (l *Ledger) SetReceiveHook(addr crypto.Address, hook ReceiveHook) {
	if hook == nil {
		delete(l.hooks, addr)
		return
	}
	l.hooks[addr] = hook
}

func normalizeAsset(asset string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(asset))
	if trimmed == "" {
		return "", ErrInvalidAsset
	}
	return trimmed, nil
}

func balanceKey(asset string, addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%s/%x", balancePrefix, asset, addr[:]))
}

func supplyKey(asset string) []byte {
	return []byte(fmt.Sprintf("%s%s", supplyPrefix, asset))
}

func (l *Ledger) load(key []byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, ErrStateNotConfigured
	}
	value := new(big.Int)
	ok, err := l.store.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

// BalanceOf returns the balance of addr in asset.
func (l *Ledger) BalanceOf(asset string, addr crypto.Address) (*big.Int, error) {
	normalized, err := normalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	return l.load(balanceKey(normalized, addr))
}

// TotalSupply returns the outstanding supply of asset.
func (l *Ledger) TotalSupply(asset string) (*big.Int, error) {
	normalized, err := normalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	return l.load(supplyKey(normalized))
}

// Transfer moves amount of asset from one address to another.
func (l *Ledger) Transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	normalized, err := normalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBal, err := l.load(balanceKey(normalized, from))
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from != to {
		toBal, err := l.load(balanceKey(normalized, to))
		if err != nil {
			return err
		}
		if err := l.store.KVPut(balanceKey(normalized, from), fromBal.Sub(fromBal, amount)); err != nil {
			return err
		}
		if err := l.store.KVPut(balanceKey(normalized, to), toBal.Add(toBal, amount)); err != nil {
			return err
		}
	}
	l.emitter.Emit(events.Transfer{Asset: normalized, From: from, To: to, Amount: new(big.Int).Set(amount)})
	if hook, ok := l.hooks[to]; ok {
		hook(normalized, from, new(big.Int).Set(amount))
	}
	return nil
}

// Mint credits new supply to addr.
func (l *Ledger) Mint(asset string, to crypto.Address, amount *big.Int) error {
	normalized, err := normalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	bal, err := l.load(balanceKey(normalized, to))
	if err != nil {
		return err
	}
	supply, err := l.load(supplyKey(normalized))
	if err != nil {
		return err
	}
	if err := l.store.KVPut(balanceKey(normalized, to), bal.Add(bal, amount)); err != nil {
		return err
	}
	if err := l.store.KVPut(supplyKey(normalized), supply.Add(supply, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.Supply{Kind: events.TypeMint, Asset: normalized, Account: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Burn destroys amount of asset held by from.
func (l *Ledger) Burn(asset string, from crypto.Address, amount *big.Int) error {
	normalized, err := normalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	bal, err := l.load(balanceKey(normalized, from))
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := l.load(supplyKey(normalized))
	if err != nil {
		return err
	}
	if supply.Cmp(amount) < 0 {
		supply.SetInt64(0)
	} else {
		supply.Sub(supply, amount)
	}
	if err := l.store.KVPut(balanceKey(normalized, from), bal.Sub(bal, amount)); err != nil {
		return err
	}
	if err := l.store.KVPut(supplyKey(normalized), supply); err != nil {
		return err
	}
	l.emitter.Emit(events.Supply{Kind: events.TypeBurn, Asset: normalized, Account: from, Amount: new(big.Int).Set(amount)})
	return nil
}
