package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"quadlend/native/governance"
	"quadlend/native/lending"
)

// Default returns the protocol configuration used when no file exists.
func Default() *Protocol {
	return &Protocol{
		Lending:    lending.DefaultConfig(),
		Governance: governance.DefaultConfig(),
		Timelock:   Timelock{MinDelaySeconds: 2 * 86_400},
		Oracle: Oracle{
			IntervalSeconds: 30,
			MaxAgeSeconds:   300,
			MinFeeds:        1,
			Static:          map[string]map[string]string{},
		},
		Keeper: Keeper{IntervalSeconds: 60, CreditEvery: 60},
	}
}

// Load reads the protocol configuration at path. Keys absent from the file
// keep their defaults; a missing file is created from Default.
func Load(path string) (*Protocol, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.normalize()
	if err := ValidateProtocol(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (p *Protocol) normalize() {
	p.Lending.EnsureDefaults()
	if p.Lending.Timelock.IsZero() {
		p.Lending.Timelock = TimelockAddress
	}
	if p.Oracle.Static == nil {
		p.Oracle.Static = map[string]map[string]string{}
	}
	p.Oracle.DSN = strings.TrimSpace(p.Oracle.DSN)
	if p.Oracle.MinFeeds <= 0 {
		p.Oracle.MinFeeds = 1
	}
}

func createDefault(path string) (*Protocol, error) {
	cfg := Default()
	cfg.normalize()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Protocol) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
