package timelock

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"quadlend/core/events"
	"quadlend/core/types"
	"quadlend/crypto"
)

const (
	EventTypeScheduled = "timelock.scheduled"
	EventTypeExecuted  = "timelock.executed"
	EventTypeCancelled = "timelock.cancelled"
	EventTypeDelay     = "timelock.delayUpdated"
)

var (
	ErrStateNotConfigured = errors.New("timelock: state not configured")
	ErrUnauthorized       = errors.New("timelock: caller not authorised")
	ErrDelayTooShort      = errors.New("timelock: delay below minimum")
	ErrUnknownTarget      = errors.New("timelock: unknown target")
	ErrOperationNotFound  = errors.New("timelock: operation not found")
	ErrOperationNotReady  = errors.New("timelock: operation not ready")
	ErrOperationDone      = errors.New("timelock: operation already executed")
	ErrOperationCancelled = errors.New("timelock: operation cancelled")
	ErrUnknownSelector    = errors.New("timelock: unknown selector")
)

var (
	operationPrefix = []byte("timelock/op/")
	nonceKey        = []byte("timelock/nonce")
	delayKey        = []byte("timelock/minDelay")

	selectorUpdateDelay = Selector("updateDelay(uint64)")
)

type stateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Target receives calls dispatched by executed operations. caller is always
// the timelock's own address.
type Target interface {
	HandleCall(caller crypto.Address, selector [4]byte, args []byte) error
}

// Operation is a scheduled call.
type Operation struct {
	ID        [32]byte       `json:"id"`
	Proposer  crypto.Address `json:"proposer"`
	Target    crypto.Address `json:"target"`
	Data      []byte         `json:"data"`
	ReadyAt   uint64         `json:"readyAt"`
	Executed  bool           `json:"executed"`
	Cancelled bool           `json:"cancelled"`
}

// Engine holds privileged calls until their delay has elapsed and then
// dispatches them to registered targets.
type Engine struct {
	state     stateStore
	address   crypto.Address
	minDelay  uint64
	proposers map[crypto.Address]struct{}
	executors map[crypto.Address]struct{}
	targets   map[crypto.Address]Target
	emitter   events.Emitter
	nowFn     func() time.Time
}

// NewEngine constructs a timelock living at address. minDelay is the default
// floor for scheduled operations until a stored value overrides it.
func NewEngine(address crypto.Address, minDelay uint64) *Engine {
	return &Engine{
		address:   address,
		minDelay:  minDelay,
		proposers: make(map[crypto.Address]struct{}),
		executors: make(map[crypto.Address]struct{}),
		targets:   make(map[crypto.Address]Target),
		emitter:   events.NoopEmitter{},
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) SetState(state stateStore) { e.state = state }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

// Address returns the identity privileged setters compare callers against.
func (e *Engine) Address() crypto.Address { return e.address }

// AddProposer allows addr to schedule and cancel operations.
func (e *Engine) AddProposer(addr crypto.Address) { e.proposers[addr] = struct{}{} }

// AddExecutor restricts execution to the registered executors. With none
// registered anyone may execute a ready operation.
func (e *Engine) AddExecutor(addr crypto.Address) { e.executors[addr] = struct{}{} }

// RegisterTarget makes target callable at addr.
func (e *Engine) RegisterTarget(addr crypto.Address, target Target) {
	if target == nil {
		delete(e.targets, addr)
		return
	}
	e.targets[addr] = target
}

func (e *Engine) now() uint64 {
	return uint64(e.nowFn().Unix())
}

// MinDelay returns the current minimum delay.
func (e *Engine) MinDelay() (uint64, error) {
	if e.state == nil {
		return 0, ErrStateNotConfigured
	}
	var stored uint64
	ok, err := e.state.KVGet(delayKey, &stored)
	if err != nil {
		return 0, err
	}
	if !ok {
		return e.minDelay, nil
	}
	return stored, nil
}

func operationKey(id [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", operationPrefix, id[:]))
}

// Operation loads a scheduled operation.
func (e *Engine) Operation(id [32]byte) (*Operation, error) {
	if e.state == nil {
		return nil, ErrStateNotConfigured
	}
	op := new(Operation)
	ok, err := e.state.KVGet(operationKey(id), op)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOperationNotFound
	}
	return op, nil
}

// Schedule queues data for target after delay seconds.
func (e *Engine) Schedule(caller, target crypto.Address, data []byte, delay uint64) ([32]byte, error) {
	var id [32]byte
	if e.state == nil {
		return id, ErrStateNotConfigured
	}
	if _, ok := e.proposers[caller]; !ok {
		return id, ErrUnauthorized
	}
	minDelay, err := e.MinDelay()
	if err != nil {
		return id, err
	}
	if delay < minDelay {
		return id, ErrDelayTooShort
	}
	if _, ok := e.targets[target]; !ok && target != e.address {
		return id, ErrUnknownTarget
	}
	if _, _, err := SplitCall(data); err != nil {
		return id, err
	}
	var nonce uint64
	if _, err := e.state.KVGet(nonceKey, &nonce); err != nil {
		return id, err
	}
	nonce++
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	copy(id[:], ethcrypto.Keccak256(target[:], data, nonceBytes[:]))

	op := &Operation{
		ID:       id,
		Proposer: caller,
		Target:   target,
		Data:     append([]byte(nil), data...),
		ReadyAt:  e.now() + delay,
	}
	if err := e.state.KVPut(nonceKey, nonce); err != nil {
		return id, err
	}
	if err := e.state.KVPut(operationKey(id), op); err != nil {
		return id, err
	}
	e.emitter.Emit(newOperationEvent(EventTypeScheduled, op))
	return id, nil
}

// Execute dispatches a ready operation to its target.
func (e *Engine) Execute(caller crypto.Address, id [32]byte) error {
	if len(e.executors) > 0 {
		if _, ok := e.executors[caller]; !ok {
			return ErrUnauthorized
		}
	}
	op, err := e.Operation(id)
	if err != nil {
		return err
	}
	if op.Executed {
		return ErrOperationDone
	}
	if op.Cancelled {
		return ErrOperationCancelled
	}
	if e.now() < op.ReadyAt {
		return ErrOperationNotReady
	}
	selector, args, err := SplitCall(op.Data)
	if err != nil {
		return err
	}
	op.Executed = true
	if err := e.state.KVPut(operationKey(id), op); err != nil {
		return err
	}
	if op.Target == e.address {
		err = e.HandleCall(e.address, selector, args)
	} else {
		target, ok := e.targets[op.Target]
		if !ok {
			return ErrUnknownTarget
		}
		err = target.HandleCall(e.address, selector, args)
	}
	if err != nil {
		op.Executed = false
		if putErr := e.state.KVPut(operationKey(id), op); putErr != nil {
			return putErr
		}
		return fmt.Errorf("timelock: execute %x: %w", id[:4], err)
	}
	e.emitter.Emit(newOperationEvent(EventTypeExecuted, op))
	return nil
}

// Cancel drops a pending operation.
func (e *Engine) Cancel(caller crypto.Address, id [32]byte) error {
	if _, ok := e.proposers[caller]; !ok {
		return ErrUnauthorized
	}
	op, err := e.Operation(id)
	if err != nil {
		return err
	}
	if op.Executed {
		return ErrOperationDone
	}
	if op.Cancelled {
		return ErrOperationCancelled
	}
	op.Cancelled = true
	if err := e.state.KVPut(operationKey(id), op); err != nil {
		return err
	}
	e.emitter.Emit(newOperationEvent(EventTypeCancelled, op))
	return nil
}

// HandleCall serves calls the timelock schedules against itself.
func (e *Engine) HandleCall(caller crypto.Address, selector [4]byte, args []byte) error {
	if caller != e.address {
		return ErrUnauthorized
	}
	switch selector {
	case selectorUpdateDelay:
		var in struct{ Delay uint64 }
		if err := DecodeArgs(args, &in); err != nil {
			return err
		}
		if err := e.state.KVPut(delayKey, in.Delay); err != nil {
			return err
		}
		e.emitter.Emit(timelockEvent{evt: &types.Event{Type: EventTypeDelay, Attributes: map[string]string{
			"minDelay": strconv.FormatUint(in.Delay, 10),
		}}})
		return nil
	default:
		return ErrUnknownSelector
	}
}

type timelockEvent struct {
	evt *types.Event
}

func (t timelockEvent) EventType() string {
	if t.evt == nil {
		return ""
	}
	return t.evt.Type
}

func (t timelockEvent) Event() *types.Event { return t.evt }

func newOperationEvent(kind string, op *Operation) timelockEvent {
	attrs := map[string]string{
		"id":      hex.EncodeToString(op.ID[:]),
		"target":  op.Target.String(),
		"readyAt": strconv.FormatUint(op.ReadyAt, 10),
	}
	if len(op.Data) >= 4 {
		attrs["selector"] = hex.EncodeToString(op.Data[:4])
	}
	return timelockEvent{evt: &types.Event{Type: kind, Attributes: attrs}}
}
