package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"stakebridge/crypto"
	"stakebridge/native/bridge/gateway"
	"stakebridge/native/bridge/messagebus"
	"stakebridge/observability/logging"
)

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.LevelDBCacheMB < 0 {
		return fmt.Errorf("config: LevelDBCacheMB must not be negative")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate_limit values must not be negative")
	}
	if c.Stream.History < 0 {
		return fmt.Errorf("config: stream.History must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: telemetry.SampleRatio must be within [0,1]")
	}
	if c.Consensus.Enabled && strings.TrimSpace(c.Consensus.SecretEnv) == "" {
		return fmt.Errorf("config: consensus.SecretEnv required when the feed is enabled")
	}
	if _, err := c.Gateway.EngineConfig(); err != nil {
		return err
	}
	if _, err := c.Gateway.VaultAddress(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Gateway.ValueSymbol) == "" {
		return fmt.Errorf("config: gateway.ValueSymbol required")
	}
	for i, alloc := range c.Genesis {
		if _, err := alloc.Parse(); err != nil {
			return fmt.Errorf("config: genesis[%d]: %w", i, err)
		}
	}
	return nil
}

// ParsedAllocation is an Allocation with decoded values.
type ParsedAllocation struct {
	Account   common.Address
	Symbol    string
	Amount    *big.Int
	Allowance *big.Int
}

// Parse decodes the allocation.
func (a Allocation) Parse() (ParsedAllocation, error) {
	var out ParsedAllocation
	addr, err := crypto.ParseAddress(a.Account)
	if err != nil {
		return out, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(a.Symbol))
	if symbol == "" {
		return out, fmt.Errorf("symbol required")
	}
	amount, err := parseAmount("Amount", a.Amount)
	if err != nil {
		return out, err
	}
	allowance, err := parseAmount("Allowance", a.Allowance)
	if err != nil {
		return out, err
	}
	return ParsedAllocation{Account: addr, Symbol: symbol, Amount: amount, Allowance: allowance}, nil
}

func parseAddress(field, raw string, required bool) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		if required {
			return common.Address{}, fmt.Errorf("config: gateway.%s required", field)
		}
		return common.Address{}, nil
	}
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("config: gateway.%s: %w", field, err)
	}
	return addr, nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("config: gateway.%s: invalid amount %q", field, raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("config: gateway.%s must not be negative", field)
	}
	if value.BitLen() > 256 {
		return nil, fmt.Errorf("config: gateway.%s exceeds 256 bits", field)
	}
	return value, nil
}

// EngineConfig converts the gateway section into the engine configuration.
func (g Gateway) EngineConfig() (gateway.Config, error) {
	var cfg gateway.Config
	var err error
	if cfg.Channel.Gateway, err = parseAddress("Address", g.Address, true); err != nil {
		return cfg, err
	}
	if cfg.Channel.CoGateway, err = parseAddress("CoGateway", g.CoGateway, true); err != nil {
		return cfg, err
	}
	if cfg.ValueToken, err = parseAddress("ValueToken", g.ValueToken, true); err != nil {
		return cfg, err
	}
	if cfg.UtilityToken, err = parseAddress("UtilityToken", g.UtilityToken, false); err != nil {
		return cfg, err
	}
	if cfg.Organization, err = parseAddress("Organization", g.Organization, false); err != nil {
		return cfg, err
	}
	if cfg.Bounty, err = parseAmount("Bounty", g.Bounty); err != nil {
		return cfg, err
	}
	if cfg.Supersession, err = gateway.ParseSupersessionPolicy(g.Supersession); err != nil {
		return cfg, fmt.Errorf("config: gateway.Supersession: %w", err)
	}
	cfg.TokenName = g.TokenName
	cfg.TokenSymbol = g.TokenSymbol
	cfg.TokenDecimals = g.TokenDecimals
	cfg.Layout = messagebus.Layout{Offset: g.MessageOffset}
	cfg.RelayOverheadGas = g.RelayOverheadGas
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: gateway: %w", err)
	}
	return cfg, nil
}

// VaultAddress returns the custody vault account. It defaults to the gateway
// address when unset.
func (g Gateway) VaultAddress() (common.Address, error) {
	if strings.TrimSpace(g.Vault) == "" {
		return parseAddress("Address", g.Address, true)
	}
	return parseAddress("Vault", g.Vault, true)
}
