package lending

import (
	"math/big"
	"strconv"

	"quadlend/core/types"
	"quadlend/crypto"
)

const (
	EventTypeFundsDeposited         = "lending.fundsDeposited"
	EventTypeWithdrawalRequested    = "lending.withdrawalRequested"
	EventTypeWithdrawalCancelled    = "lending.withdrawalCancelled"
	EventTypeFundsWithdrawn         = "lending.fundsWithdrawn"
	EventTypeEarlyWithdrawalPenalty = "lending.earlyWithdrawalPenalty"
	EventTypeInterestClaimed        = "lending.interestClaimed"
	EventTypeCollateralDeposited    = "lending.collateralDeposited"
	EventTypeCollateralWithdrawn    = "lending.collateralWithdrawn"
	EventTypeBorrowed               = "lending.borrowed"
	EventTypeRepaid                 = "lending.repaid"
	EventTypeLiquidationStarted     = "lending.liquidationStarted"
	EventTypeLiquidationRecovered   = "lending.liquidationRecovered"
	EventTypeLiquidationExecuted    = "lending.liquidationExecuted"
	EventTypeCreditScoreUpdated     = "lending.creditScoreUpdated"
	EventTypeParamsUpdated          = "lending.paramsUpdated"
	EventTypeLendersAdded           = "lending.lendersAdded"
)

type lendingEvent struct {
	evt *types.Event
}

func (l lendingEvent) EventType() string {
	if l.evt == nil {
		return ""
	}
	return l.evt.Type
}

func (l lendingEvent) Event() *types.Event { return l.evt }

// eventBuilder accumulates attributes for a single event.
type eventBuilder struct {
	kind  string
	attrs map[string]string
}

func newEvent(kind string) *eventBuilder {
	return &eventBuilder{kind: kind, attrs: make(map[string]string)}
}

func (b *eventBuilder) addr(key string, addr crypto.Address) *eventBuilder {
	b.attrs[key] = addr.String()
	return b
}

func (b *eventBuilder) amount(key string, v *big.Int) *eventBuilder {
	if v == nil {
		b.attrs[key] = "0"
		return b
	}
	b.attrs[key] = v.String()
	return b
}

func (b *eventBuilder) uint(key string, v uint64) *eventBuilder {
	b.attrs[key] = strconv.FormatUint(v, 10)
	return b
}

func (b *eventBuilder) str(key, v string) *eventBuilder {
	if v != "" {
		b.attrs[key] = v
	}
	return b
}

func (b *eventBuilder) flag(key string, v bool) *eventBuilder {
	b.attrs[key] = strconv.FormatBool(v)
	return b
}

func (b *eventBuilder) build() *lendingEvent {
	return &lendingEvent{evt: &types.Event{Type: b.kind, Attributes: b.attrs}}
}
