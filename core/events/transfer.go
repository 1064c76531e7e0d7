package events

import (
	"math/big"

	"quadlend/core/types"
	"quadlend/crypto"
)

const (
	// TypeTransfer is emitted for every vault balance movement.
	TypeTransfer = "vault.transfer"
	// TypeMint is emitted when vault balances are created.
	TypeMint = "vault.mint"
	// TypeBurn is emitted when vault balances are destroyed.
	TypeBurn = "vault.burn"
)

type Transfer struct {
	Asset  string
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	attrs["from"] = e.From.String()
	attrs["to"] = e.To.String()
	attrs["amount"] = formatAmount(e.Amount)
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

// Supply covers both mint and burn; Kind selects the event type.
type Supply struct {
	Kind    string
	Asset   string
	Account crypto.Address
	Amount  *big.Int
}

func (e Supply) EventType() string { return e.Kind }

func (e Supply) Event() *types.Event {
	attrs := map[string]string{
		"account": e.Account.String(),
		"amount":  formatAmount(e.Amount),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	return &types.Event{Type: e.Kind, Attributes: attrs}
}

// Recorder keeps every emitted event in order. It is used by daemons that
// surface recent activity and by tests.
type Recorder struct {
	Events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(e Event) {
	if r == nil || e == nil {
		return
	}
	r.Events = append(r.Events, e)
}

// Types returns the event types in emission order.
func (r *Recorder) Types() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.EventType())
	}
	return out
}

// Last returns the most recent event of the given type.
func (r *Recorder) Last(eventType string) (Event, bool) {
	if r == nil {
		return nil, false
	}
	for i := len(r.Events) - 1; i >= 0; i-- {
		if r.Events[i].EventType() == eventType {
			return r.Events[i], true
		}
	}
	return nil, false
}
