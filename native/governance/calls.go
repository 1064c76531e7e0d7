package governance

import (
	"fmt"
	"strconv"

	"quadlend/crypto"
	"quadlend/native/timelock"
)

// Signatures served by HandleCall. Each is reachable only through an executed
// proposal.
const (
	SigSetBootstrapMode   = "setBootstrapMode(bool)"
	SigSetQuorumBps       = "setQuorumBps(uint64)"
	SigSetWhitelisted     = "setWhitelisted(address,bytes4,bool)"
	SigPenalizeReputation = "penalizeReputation(address,uint64)"
	SigRewardReputation   = "rewardReputation(address,uint64)"
)

var (
	selSetBootstrapMode   = timelock.Selector(SigSetBootstrapMode)
	selSetQuorumBps       = timelock.Selector(SigSetQuorumBps)
	selSetWhitelisted     = timelock.Selector(SigSetWhitelisted)
	selPenalizeReputation = timelock.Selector(SigPenalizeReputation)
	selRewardReputation   = timelock.Selector(SigRewardReputation)
)

type BootstrapArgs struct {
	Enabled bool
}

type QuorumArgs struct {
	Bps uint64
}

type WhitelistArgs struct {
	Target   crypto.Address
	Selector [4]byte
	Allowed  bool
}

type ReputationArgs struct {
	Account crypto.Address
	Delta   uint64
}

// ReputationToken is the token surface reputation proposals are forwarded to.
type ReputationToken interface {
	PenalizeReputation(caller, account crypto.Address, delta uint64) error
	RewardReputation(caller, account crypto.Address, delta uint64) error
}

// HandleCall applies a timelocked call. It runs inside Execute, so it does
// not take the reentrancy guard.
func (e *Engine) HandleCall(caller crypto.Address, selector [4]byte, args []byte) error {
	if e.state == nil {
		return ErrStateNotConfigured
	}
	if e.timelock == nil || caller != e.timelock.Address() {
		return ErrOnlyTimelock
	}
	switch selector {
	case selSetBootstrapMode:
		var in BootstrapArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.setBootstrapMode(in.Enabled)
	case selSetQuorumBps:
		var in QuorumArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.setQuorumBps(in.Bps)
	case selSetWhitelisted:
		var in WhitelistArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		if err := e.setWhitelisted(in.Target, in.Selector, in.Allowed); err != nil {
			return err
		}
		e.emitter.Emit(newParamsEvent(EventTypeParamsUpdated, map[string]string{
			"param":    "whitelist",
			"target":   in.Target.String(),
			"selector": fmt.Sprintf("%x", in.Selector[:]),
			"allowed":  strconv.FormatBool(in.Allowed),
		}))
		return nil
	case selPenalizeReputation, selRewardReputation:
		var in ReputationArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		token, ok := e.token.(ReputationToken)
		if !ok {
			return ErrTokenNotConfigured
		}
		if selector == selPenalizeReputation {
			return token.PenalizeReputation(e.address, in.Account, in.Delta)
		}
		return token.RewardReputation(e.address, in.Account, in.Delta)
	default:
		return fmt.Errorf("%w: %x", timelock.ErrUnknownSelector, selector[:])
	}
}

func (e *Engine) setBootstrapMode(enabled bool) error {
	p, err := e.params()
	if err != nil {
		return err
	}
	p.BootstrapMode = enabled
	if err := e.putParams(p); err != nil {
		return err
	}
	e.logger.Warn("bootstrap mode changed", "enabled", enabled)
	e.emitter.Emit(newParamsEvent(EventTypeBootstrapChanged, map[string]string{
		"enabled": strconv.FormatBool(enabled),
	}))
	return nil
}

func (e *Engine) setQuorumBps(bps uint64) error {
	if bps == 0 || bps > 10_000 {
		return fmt.Errorf("%w: quorum bps %d", ErrInvalidConfig, bps)
	}
	p, err := e.params()
	if err != nil {
		return err
	}
	p.QuorumBps = bps
	if err := e.putParams(p); err != nil {
		return err
	}
	e.emitter.Emit(newParamsEvent(EventTypeParamsUpdated, map[string]string{
		"param":     "quorumBps",
		"quorumBps": strconv.FormatUint(bps, 10),
	}))
	return nil
}
