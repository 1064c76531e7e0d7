package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quadlend/crypto"
	"quadlend/native/lending"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "protocol.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesSections(t *testing.T) {
	signer := crypto.ModuleAddress("signer-1")
	holder := crypto.ModuleAddress("holder")
	path := writeConfig(t, `
[lending]
BaseAsset = "qusd"
RepayPolicy = "lenient"
AllowedCollateral = ["weth"]
MaxBatchSize = 25

[lending.price_feeds]
weth = "WETH/QUSD"

[governance]
VotingPeriodSeconds = 7200
TimelockDelaySeconds = 172800
BootstrapQuorum = "250"
QuorumBps = 500
VetoSigners = ["`+signer.String()+`"]
VetoThreshold = 1

[timelock]
MinDelaySeconds = 86400

[[token.allocations]]
Account = "`+holder.Hex()+`"
Amount = "1000000000000000000000"

[oracle]
MinFeeds = 2

[oracle.static.primary]
"WETH/QUSD" = "2000"

[oracle.static.backup]
"WETH/QUSD" = "2001.5"

[keeper]
IntervalSeconds = 15
CreditEvery = 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Lending.BaseAsset != "QUSD" {
		t.Fatalf("base asset not normalised: %q", cfg.Lending.BaseAsset)
	}
	if cfg.Lending.RepayPolicy != lending.RepayLenient {
		t.Fatalf("unexpected repay policy %q", cfg.Lending.RepayPolicy)
	}
	if cfg.Lending.PriceFeeds["WETH"] != "WETH/QUSD" {
		t.Fatalf("unexpected price feeds %v", cfg.Lending.PriceFeeds)
	}
	if cfg.Lending.MaxBatchSize != 25 {
		t.Fatalf("unexpected batch size %d", cfg.Lending.MaxBatchSize)
	}
	if cfg.Lending.Timelock != TimelockAddress {
		t.Fatalf("lending timelock not defaulted")
	}
	if cfg.Lending.PeriodSeconds != 86_400 {
		t.Fatalf("expected default period, got %d", cfg.Lending.PeriodSeconds)
	}
	if cfg.Governance.BootstrapQuorum.Cmp(big.NewInt(250)) != 0 || cfg.Governance.QuorumBps != 500 {
		t.Fatalf("unexpected governance quorum %s/%d", cfg.Governance.BootstrapQuorum, cfg.Governance.QuorumBps)
	}
	if !cfg.Governance.BootstrapMode {
		t.Fatalf("bootstrap mode should keep its default")
	}
	if len(cfg.Governance.VetoSigners) != 1 || cfg.Governance.VetoSigners[0] != signer {
		t.Fatalf("unexpected veto signers %v", cfg.Governance.VetoSigners)
	}
	if len(cfg.Token.Allocations) != 1 || cfg.Token.Allocations[0].Account != holder {
		t.Fatalf("unexpected allocations %+v", cfg.Token.Allocations)
	}
	if cfg.Minter() != GovernanceAddress {
		t.Fatalf("expected governance minter")
	}
	if got := cfg.Feeds(); len(got) != 1 || got[0] != "WETH/QUSD" {
		t.Fatalf("unexpected feeds %v", got)
	}
	if cfg.Oracle.Static["backup"]["WETH/QUSD"] != "2001.5" {
		t.Fatalf("unexpected static sources %v", cfg.Oracle.Static)
	}
	if cfg.OracleInterval().Seconds() != 30 || cfg.KeeperInterval().Seconds() != 15 {
		t.Fatalf("unexpected intervals %s %s", cfg.OracleInterval(), cfg.KeeperInterval())
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "protocol.toml")
	created, err := Load(path)
	if err != nil {
		t.Fatalf("create default: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default not persisted: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if reloaded.Lending.MinDeposit.Cmp(created.Lending.MinDeposit) != 0 {
		t.Fatalf("min deposit changed across reload")
	}
	if reloaded.Governance.TimelockDelaySeconds != created.Governance.TimelockDelaySeconds {
		t.Fatalf("timelock delay changed across reload")
	}
	if len(reloaded.Lending.RiskTiers) != len(lending.DefaultRiskTiers()) {
		t.Fatalf("risk tiers lost across reload")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[lending]\nFlashLoans = true\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "lending.FlashLoans") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateProtocol(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Protocol)
		want   string
	}{
		{"timelock delay", func(p *Protocol) { p.Governance.TimelockDelaySeconds = 60 }, "below timelock minimum"},
		{"short voting", func(p *Protocol) { p.Governance.VotingPeriodSeconds = 60 }, "voting period"},
		{"lending", func(p *Protocol) { p.Lending.EarlyWithdrawalPenaltyBps = 20_000 }, "lending"},
		{"missing feed", func(p *Protocol) { p.Lending.AllowedCollateral = []string{"WBTC"} }, "no price feed"},
		{"allocation", func(p *Protocol) {
			p.Token.Allocations = []Allocation{{Account: crypto.ModuleAddress("x"), Amount: big.NewInt(0)}}
		}, "amount"},
		{"min feeds", func(p *Protocol) {
			p.Oracle.MinFeeds = 3
			p.Oracle.Static = map[string]map[string]string{"one": {"A": "1"}}
		}, "min feeds"},
		{"keeper", func(p *Protocol) { p.Keeper.IntervalSeconds = 0 }, "keeper"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.normalize()
			if err := ValidateProtocol(cfg); err != nil {
				t.Fatalf("default invalid: %v", err)
			}
			tc.mutate(cfg)
			err := ValidateProtocol(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}

	cfg := Default()
	cfg.normalize()
	cfg.Keeper = Keeper{Disabled: true}
	if err := ValidateProtocol(cfg); err != nil {
		t.Fatalf("disabled keeper should skip checks: %v", err)
	}
}
