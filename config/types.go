package config

import (
	"math/big"

	"quadlend/crypto"
	"quadlend/native/governance"
	"quadlend/native/lending"
)

// Timelock configures the delayed executor that every privileged call passes
// through.
type Timelock struct {
	MinDelaySeconds uint64 `toml:"MinDelaySeconds"`
}

// Allocation mints governance tokens to an account when the ledger is first
// initialised.
type Allocation struct {
	Account crypto.Address `toml:"Account"`
	Amount  *big.Int       `toml:"Amount"`
}

// Token describes the governance token ledger.
type Token struct {
	Minter      crypto.Address `toml:"Minter"`
	Allocations []Allocation   `toml:"allocations"`
}

// Oracle controls the price feed service.
type Oracle struct {
	// DSN selects the price store: a postgres:// URL or a SQLite file path.
	// Empty places a SQLite file under the node data directory.
	DSN             string `toml:"DSN"`
	IntervalSeconds uint64 `toml:"IntervalSeconds"`
	MaxAgeSeconds   uint64 `toml:"MaxAgeSeconds"`
	MinFeeds        int    `toml:"MinFeeds"`
	// Static maps source name to feed to decimal rate.
	Static map[string]map[string]string `toml:"static"`
}

// Keeper controls the automation loop.
type Keeper struct {
	Disabled        bool   `toml:"Disabled"`
	IntervalSeconds uint64 `toml:"IntervalSeconds"`
	CreditEvery     int    `toml:"CreditEvery"`
}

// Protocol bundles every on-ledger module configuration loaded from the
// protocol TOML file.
type Protocol struct {
	Lending    lending.Config    `toml:"lending"`
	Governance governance.Config `toml:"governance"`
	Timelock   Timelock          `toml:"timelock"`
	Token      Token             `toml:"token"`
	Oracle     Oracle            `toml:"oracle"`
	Keeper     Keeper            `toml:"keeper"`
}
