package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvOverride names the environment variable that overrides Environment.
const EnvOverride = "BRIDGE_ENV"

// Config is the bridged node configuration.
type Config struct {
	ListenAddress        string       `toml:"ListenAddress" yaml:"listenAddress"`
	DataDir              string       `toml:"DataDir" yaml:"dataDir"`
	Environment          string       `toml:"Environment" yaml:"environment"`
	LogLevel             string       `toml:"LogLevel" yaml:"logLevel"`
	RelayerKeystorePath  string       `toml:"RelayerKeystorePath" yaml:"relayerKeystorePath"`
	RelayerPassphraseEnv string       `toml:"RelayerPassphraseEnv" yaml:"relayerPassphraseEnv"`
	AuditDSN             string       `toml:"AuditDSN" yaml:"auditDSN"`
	LevelDBCacheMB       int          `toml:"LevelDBCacheMB" yaml:"levelDBCacheMB"`
	Gateway              Gateway      `toml:"gateway" yaml:"gateway"`
	RateLimit            RateLimit    `toml:"rate_limit" yaml:"rateLimit"`
	Consensus            Consensus    `toml:"consensus" yaml:"consensus"`
	Stream               Stream       `toml:"stream" yaml:"stream"`
	Telemetry            Telemetry    `toml:"telemetry" yaml:"telemetry"`
	Genesis              []Allocation `toml:"genesis,omitempty" yaml:"genesis,omitempty"`
}

// Default returns the configuration written for a fresh node. The gateway
// addresses are left empty and must be filled in before the node starts.
func Default() *Config {
	return &Config{
		ListenAddress:        ":8480",
		DataDir:              "./bridge-data",
		Environment:          "local",
		LogLevel:             "info",
		RelayerPassphraseEnv: "BRIDGE_RELAYER_PASSPHRASE",
		LevelDBCacheMB:       64,
		Gateway: Gateway{
			TokenDecimals: 18,
			Bounty:        "0",
			Supersession:  "strict",
			ValueSymbol:   "OST",
			BountySymbol:  "OST",
		},
		RateLimit: RateLimit{RequestsPerMinute: 600, Burst: 60},
		Consensus: Consensus{SecretEnv: "BRIDGE_CONSENSUS_SECRET", Issuer: "bridge-consensus"},
		Stream:    Stream{History: 1024},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
	}
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML, anything else as TOML. A missing file is created with
// defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return createDefault(path)
	}
	if err != nil {
		return nil, err
	}
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.Decode(string(raw), cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: %s has unknown key %s", path, undecoded[0].String())
		}
	}
	cfg.applyDefaults(path)
	if env := strings.TrimSpace(os.Getenv(EnvOverride)); env != "" {
		cfg.Environment = env
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults(path string) {
	def := Default()
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = def.ListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = def.DataDir
	}
	if strings.TrimSpace(c.RelayerKeystorePath) == "" {
		c.RelayerKeystorePath = defaultKeystorePath(path)
	}
	if strings.TrimSpace(c.AuditDSN) == "" {
		c.AuditDSN = filepath.Join(c.DataDir, "audit.db")
	}
	if strings.TrimSpace(c.Gateway.Supersession) == "" {
		c.Gateway.Supersession = def.Gateway.Supersession
	}
	if strings.TrimSpace(c.Gateway.BountySymbol) == "" {
		c.Gateway.BountySymbol = c.Gateway.ValueSymbol
	}
}

// createDefault writes a default configuration to path and returns it. The
// result fails Validate until the gateway section is completed.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	cfg.RelayerKeystorePath = defaultKeystorePath(path)
	if err := Save(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults(path)
	return cfg, nil
}

// Save persists cfg in the format implied by the file extension.
func Save(path string, cfg *Config) error {
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

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "relayer.keystore")
}
