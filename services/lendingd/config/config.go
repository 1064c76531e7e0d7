package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quadlend/observability/logging"
)

// Config captures the runtime settings for the lending daemon.
type Config struct {
	ListenAddress string              `yaml:"listen"`
	DataDir       string              `yaml:"data_dir"`
	ProtocolPath  string              `yaml:"protocol"`
	Environment   string              `yaml:"env"`
	Log           LogConfig           `yaml:"log"`
	Auth          AuthConfig          `yaml:"auth"`
	Credit        CreditConfig        `yaml:"credit"`
	TLS           TLSConfig           `yaml:"tls"`
	RateLimits    map[string]RateSpec `yaml:"rate_limits"`
	LogRequests   bool                `yaml:"log_requests"`
}

// LogConfig selects the log level and optional rotated file output.
type LogConfig struct {
	Level string             `yaml:"level"`
	File  logging.FileConfig `yaml:"file"`
}

// AuthConfig describes the HMAC JWTs accepted on write routes. The token
// subject is the caller's address.
type AuthConfig struct {
	HMACSecret    string        `yaml:"hmac_secret"`
	HMACSecretEnv string        `yaml:"hmac_secret_env"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clock_skew"`
}

// CreditConfig configures the attester whose signed score tokens are accepted
// as credit proofs. An empty secret disables proof submission.
type CreditConfig struct {
	AttesterSecret    string `yaml:"attester_secret"`
	AttesterSecretEnv string `yaml:"attester_secret_env"`
	Issuer            string `yaml:"issuer"`
}

// TLSConfig holds the listener certificate. A client CA turns on mutual TLS.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	ClientCAPath  string `yaml:"client_ca"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// Enabled reports whether a certificate pair is configured.
func (cfg TLSConfig) Enabled() bool {
	return cfg.CertPath != "" && cfg.KeyPath != ""
}

// RateSpec limits requests per client for a route class.
type RateSpec struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8088",
		DataDir:       "./quadlend-data",
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize(baseDir string) {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8088"
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.ProtocolPath = strings.TrimSpace(cfg.ProtocolPath)
	if cfg.ProtocolPath == "" {
		cfg.ProtocolPath = filepath.Join(cfg.DataDir, "protocol.toml")
	} else if !filepath.IsAbs(cfg.ProtocolPath) && baseDir != "" {
		cfg.ProtocolPath = filepath.Join(baseDir, cfg.ProtocolPath)
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Auth.normalize()
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.TLS.ClientCAPath = strings.TrimSpace(cfg.TLS.ClientCAPath)
	cfg.Credit.normalize()
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateSpec{}
	}
	if _, ok := cfg.RateLimits["read"]; !ok {
		cfg.RateLimits["read"] = RateSpec{RequestsPerMinute: 600, Burst: 50}
	}
	if _, ok := cfg.RateLimits["write"]; !ok {
		cfg.RateLimits["write"] = RateSpec{RequestsPerMinute: 60, Burst: 10}
	}
}

func (cfg *Config) validate() error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir required")
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if (cfg.TLS.CertPath == "") != (cfg.TLS.KeyPath == "") {
		return fmt.Errorf("tls: cert and key must be set together")
	}
	if cfg.TLS.ClientCAPath != "" && !cfg.TLS.Enabled() {
		return fmt.Errorf("tls: client_ca requires a certificate")
	}
	for name, spec := range cfg.RateLimits {
		if spec.RequestsPerMinute <= 0 || spec.Burst <= 0 {
			return fmt.Errorf("rate_limits.%s: requests_per_minute and burst must be positive", name)
		}
	}
	return nil
}

func (cfg *AuthConfig) normalize() {
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	if cfg.HMACSecret == "" && cfg.HMACSecretEnv != "" {
		cfg.HMACSecret = strings.TrimSpace(os.Getenv(cfg.HMACSecretEnv))
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
}

func (cfg AuthConfig) validate() error {
	if cfg.HMACSecret == "" {
		return fmt.Errorf("hmac_secret or hmac_secret_env must be configured")
	}
	if len(cfg.HMACSecret) < 32 {
		return fmt.Errorf("hmac_secret must be at least 32 bytes")
	}
	return nil
}

func (cfg *CreditConfig) normalize() {
	cfg.AttesterSecret = strings.TrimSpace(cfg.AttesterSecret)
	if cfg.AttesterSecret == "" && cfg.AttesterSecretEnv != "" {
		cfg.AttesterSecret = strings.TrimSpace(os.Getenv(cfg.AttesterSecretEnv))
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
}
