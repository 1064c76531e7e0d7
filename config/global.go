package config

import (
	"time"

	"quadlend/crypto"
)

// Module addresses derived from fixed names so every node agrees on them.
var (
	TimelockAddress   = crypto.ModuleAddress("timelock")
	GovernanceAddress = crypto.ModuleAddress("governance")
	TokenAddress      = crypto.ModuleAddress("votetoken")
	PoolAddress       = crypto.ModuleAddress("lending")
	CustodyAddress    = crypto.ModuleAddress("lending/collateral")
)

// OracleInterval is the price refresh cadence.
func (p *Protocol) OracleInterval() time.Duration {
	return time.Duration(p.Oracle.IntervalSeconds) * time.Second
}

// OracleMaxAge is the oldest quote the oracle manager accepts.
func (p *Protocol) OracleMaxAge() time.Duration {
	return time.Duration(p.Oracle.MaxAgeSeconds) * time.Second
}

// KeeperInterval is the upkeep cadence.
func (p *Protocol) KeeperInterval() time.Duration {
	return time.Duration(p.Keeper.IntervalSeconds) * time.Second
}

// Minter returns the account allowed to mint governance tokens, falling back
// to the governance engine.
func (p *Protocol) Minter() crypto.Address {
	if p.Token.Minter.IsZero() {
		return GovernanceAddress
	}
	return p.Token.Minter
}
