package votetoken

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"quadlend/core/events"
	"quadlend/core/types"
	"quadlend/crypto"
)

const (
	EventTypeMinted     = "votetoken.minted"
	EventTypeBurned     = "votetoken.burned"
	EventTypeDelegated  = "votetoken.delegated"
	EventTypeReputation = "votetoken.reputation"
)

var (
	ErrStateNotConfigured = errors.New("votetoken: state not configured")
	ErrOnlyMinter         = errors.New("votetoken: caller is not the minter")
	ErrOnlyGovernance     = errors.New("votetoken: caller is not governance")
	ErrInvalidAmount      = errors.New("votetoken: amount must be positive")
	ErrAmountOverflow     = errors.New("votetoken: amount exceeds 256 bits")
	ErrInsufficientFunds  = errors.New("votetoken: insufficient balance")
	ErrZeroAddress        = errors.New("votetoken: zero address")
	ErrNoReputationSink   = errors.New("votetoken: reputation sink not configured")
)

var (
	balancePrefix    = []byte("votetoken/balance/")
	delegatePrefix   = []byte("votetoken/delegate/")
	checkpointPrefix = []byte("votetoken/checkpoints/")
	supplyKey        = []byte("votetoken/supply")
)

type stateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// ReputationSink receives reputation adjustments. The token passes its own
// address as caller so the sink can restrict who may adjust.
type ReputationSink interface {
	AdjustReputation(caller, account crypto.Address, delta int64) error
}

// Checkpoint records an account's voting weight from Timestamp onwards.
type Checkpoint struct {
	Timestamp uint64
	Votes     *uint256.Int
}

// Token is the non-transferable governance token. Balances can only be minted
// by the minter or burned by their holder, and voting weight follows
// delegation.
type Token struct {
	state      stateStore
	address    crypto.Address
	minter     crypto.Address
	governance crypto.Address
	sink       ReputationSink
	emitter    events.Emitter
	nowFn      func() time.Time
}

// NewToken constructs a token living at address with a single authorised
// minter.
func NewToken(address, minter crypto.Address) *Token {
	return &Token{
		address: address,
		minter:  minter,
		emitter: events.NoopEmitter{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (t *Token) SetState(state stateStore) { t.state = state }

// SetGovernance names the engine allowed to adjust reputation and the sink the
// adjustments are forwarded to.
func (t *Token) SetGovernance(addr crypto.Address, sink ReputationSink) {
	t.governance = addr
	t.sink = sink
}

func (t *Token) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		t.emitter = events.NoopEmitter{}
		return
	}
	t.emitter = emitter
}

func (t *Token) SetNowFunc(now func() time.Time) {
	if now == nil {
		t.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	t.nowFn = now
}

// Address returns the token's own address.
func (t *Token) Address() crypto.Address { return t.address }

func (t *Token) now() uint64 {
	ts := t.nowFn().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func accountKey(prefix []byte, addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x", prefix, addr[:]))
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return v, nil
}

func (t *Token) loadUint(key []byte) (*uint256.Int, error) {
	if t == nil || t.state == nil {
		return nil, ErrStateNotConfigured
	}
	v := new(uint256.Int)
	if _, err := t.state.KVGet(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// BalanceOf returns the token balance held by addr.
func (t *Token) BalanceOf(addr crypto.Address) (*big.Int, error) {
	v, err := t.loadUint(accountKey(balancePrefix, addr))
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}

// TotalSupply returns the current supply.
func (t *Token) TotalSupply() (*big.Int, error) {
	v, err := t.loadUint(supplyKey)
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}

// DelegateOf returns who receives addr's voting weight. Accounts that never
// delegated vote for themselves.
func (t *Token) DelegateOf(addr crypto.Address) (crypto.Address, error) {
	if t == nil || t.state == nil {
		return crypto.Address{}, ErrStateNotConfigured
	}
	var delegate crypto.Address
	ok, err := t.state.KVGet(accountKey(delegatePrefix, addr), &delegate)
	if err != nil {
		return crypto.Address{}, err
	}
	if !ok || delegate.IsZero() {
		return addr, nil
	}
	return delegate, nil
}

// Mint credits amount to to. Only the minter may call it.
func (t *Token) Mint(caller, to crypto.Address, amount *big.Int) error {
	if t == nil || t.state == nil {
		return ErrStateNotConfigured
	}
	if caller != t.minter {
		return ErrOnlyMinter
	}
	if to.IsZero() {
		return ErrZeroAddress
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	balance, err := t.loadUint(accountKey(balancePrefix, to))
	if err != nil {
		return err
	}
	supply, err := t.loadUint(supplyKey)
	if err != nil {
		return err
	}
	if _, overflow := supply.AddOverflow(supply, value); overflow {
		return ErrAmountOverflow
	}
	balance.Add(balance, value)
	if err := t.state.KVPut(accountKey(balancePrefix, to), balance); err != nil {
		return err
	}
	if err := t.state.KVPut(supplyKey, supply); err != nil {
		return err
	}
	if err := t.writeSupplyCheckpoint(supply); err != nil {
		return err
	}
	delegate, err := t.DelegateOf(to)
	if err != nil {
		return err
	}
	if err := t.moveVotes(crypto.Address{}, delegate, value); err != nil {
		return err
	}
	t.emit(EventTypeMinted, map[string]string{"account": to.String(), "amount": value.Dec()})
	return nil
}

// Burn destroys amount of the holder's balance.
func (t *Token) Burn(holder crypto.Address, amount *big.Int) error {
	if t == nil || t.state == nil {
		return ErrStateNotConfigured
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	balance, err := t.loadUint(accountKey(balancePrefix, holder))
	if err != nil {
		return err
	}
	if balance.Lt(value) {
		return ErrInsufficientFunds
	}
	supply, err := t.loadUint(supplyKey)
	if err != nil {
		return err
	}
	balance.Sub(balance, value)
	supply.Sub(supply, value)
	if err := t.state.KVPut(accountKey(balancePrefix, holder), balance); err != nil {
		return err
	}
	if err := t.state.KVPut(supplyKey, supply); err != nil {
		return err
	}
	if err := t.writeSupplyCheckpoint(supply); err != nil {
		return err
	}
	delegate, err := t.DelegateOf(holder)
	if err != nil {
		return err
	}
	if err := t.moveVotes(delegate, crypto.Address{}, value); err != nil {
		return err
	}
	t.emit(EventTypeBurned, map[string]string{"account": holder.String(), "amount": value.Dec()})
	return nil
}

// Delegate moves holder's voting weight to delegatee.
func (t *Token) Delegate(holder, delegatee crypto.Address) error {
	if t == nil || t.state == nil {
		return ErrStateNotConfigured
	}
	if delegatee.IsZero() {
		return ErrZeroAddress
	}
	current, err := t.DelegateOf(holder)
	if err != nil {
		return err
	}
	if current == delegatee {
		return nil
	}
	balance, err := t.loadUint(accountKey(balancePrefix, holder))
	if err != nil {
		return err
	}
	if err := t.state.KVPut(accountKey(delegatePrefix, holder), delegatee); err != nil {
		return err
	}
	if !balance.IsZero() {
		if err := t.moveVotes(current, delegatee, balance); err != nil {
			return err
		}
	}
	t.emit(EventTypeDelegated, map[string]string{
		"account": holder.String(),
		"from":    current.String(),
		"to":      delegatee.String(),
		"weight":  balance.Dec(),
	})
	return nil
}

func (t *Token) loadCheckpoints(key []byte) ([]Checkpoint, error) {
	var list []Checkpoint
	if _, err := t.state.KVGet(key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// writeCheckpoint records value at the current time, overwriting an existing
// checkpoint from the same second.
func (t *Token) writeCheckpoint(key []byte, value *uint256.Int) error {
	list, err := t.loadCheckpoints(key)
	if err != nil {
		return err
	}
	now := t.now()
	cp := Checkpoint{Timestamp: now, Votes: new(uint256.Int).Set(value)}
	if n := len(list); n > 0 && list[n-1].Timestamp == now {
		list[n-1] = cp
	} else {
		list = append(list, cp)
	}
	return t.state.KVPut(key, list)
}

func (t *Token) writeSupplyCheckpoint(supply *uint256.Int) error {
	return t.writeCheckpoint(append([]byte(nil), checkpointPrefix...), supply)
}

func (t *Token) moveVotes(from, to crypto.Address, amount *uint256.Int) error {
	if !from.IsZero() {
		key := accountKey(checkpointPrefix, from)
		current, err := t.latest(key)
		if err != nil {
			return err
		}
		next := new(uint256.Int)
		if current.Gt(amount) {
			next.Sub(current, amount)
		}
		if err := t.writeCheckpoint(key, next); err != nil {
			return err
		}
	}
	if !to.IsZero() {
		key := accountKey(checkpointPrefix, to)
		current, err := t.latest(key)
		if err != nil {
			return err
		}
		if err := t.writeCheckpoint(key, new(uint256.Int).Add(current, amount)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Token) latest(key []byte) (*uint256.Int, error) {
	list, err := t.loadCheckpoints(key)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(list[len(list)-1].Votes), nil
}

// lookup returns the last checkpoint value at or before ts.
func lookup(list []Checkpoint, ts uint64) *uint256.Int {
	lo, hi := 0, len(list)
	for lo < hi {
		mid := (lo + hi) / 2
		if list[mid].Timestamp > ts {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(list[lo-1].Votes)
}

// Votes returns the current voting weight delegated to account.
func (t *Token) Votes(account crypto.Address) (*uint256.Int, error) {
	if t == nil || t.state == nil {
		return nil, ErrStateNotConfigured
	}
	return t.latest(accountKey(checkpointPrefix, account))
}

// VotesAt returns the voting weight delegated to account as of ts.
func (t *Token) VotesAt(account crypto.Address, ts uint64) (*uint256.Int, error) {
	if t == nil || t.state == nil {
		return nil, ErrStateNotConfigured
	}
	list, err := t.loadCheckpoints(accountKey(checkpointPrefix, account))
	if err != nil {
		return nil, err
	}
	return lookup(list, ts), nil
}

// TotalSupplyAt returns the supply as of ts.
func (t *Token) TotalSupplyAt(ts uint64) (*uint256.Int, error) {
	if t == nil || t.state == nil {
		return nil, ErrStateNotConfigured
	}
	list, err := t.loadCheckpoints(checkpointPrefix)
	if err != nil {
		return nil, err
	}
	return lookup(list, ts), nil
}

// PenalizeReputation lowers account's reputation by delta. Only governance may
// call it.
func (t *Token) PenalizeReputation(caller, account crypto.Address, delta uint64) error {
	return t.adjustReputation(caller, account, -clampDelta(delta))
}

// RewardReputation raises account's reputation by delta. Only governance may
// call it.
func (t *Token) RewardReputation(caller, account crypto.Address, delta uint64) error {
	return t.adjustReputation(caller, account, clampDelta(delta))
}

func clampDelta(delta uint64) int64 {
	const limit = 1 << 62
	if delta > limit {
		return limit
	}
	return int64(delta)
}

func (t *Token) adjustReputation(caller, account crypto.Address, delta int64) error {
	if t.governance.IsZero() || caller != t.governance {
		return ErrOnlyGovernance
	}
	if t.sink == nil {
		return ErrNoReputationSink
	}
	if err := t.sink.AdjustReputation(t.address, account, delta); err != nil {
		return err
	}
	t.emit(EventTypeReputation, map[string]string{
		"account": account.String(),
		"delta":   strconv.FormatInt(delta, 10),
	})
	return nil
}

type tokenEvent struct {
	evt *types.Event
}

func (e tokenEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e tokenEvent) Event() *types.Event { return e.evt }

func (t *Token) emit(kind string, attrs map[string]string) {
	if t.emitter == nil {
		return
	}
	t.emitter.Emit(tokenEvent{evt: &types.Event{Type: kind, Attributes: attrs}})
}
