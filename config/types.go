package config

// Gateway describes one bridge channel and the ledger bindings of its
// gateway. Addresses are 0x-prefixed hex; Bounty is a decimal base-unit amount.
type Gateway struct {
	Address          string `toml:"Address" yaml:"address"`
	CoGateway        string `toml:"CoGateway" yaml:"coGateway"`
	ValueToken       string `toml:"ValueToken" yaml:"valueToken"`
	UtilityToken     string `toml:"UtilityToken" yaml:"utilityToken"`
	TokenName        string `toml:"TokenName" yaml:"tokenName"`
	TokenSymbol      string `toml:"TokenSymbol" yaml:"tokenSymbol"`
	TokenDecimals    uint8  `toml:"TokenDecimals" yaml:"tokenDecimals"`
	Bounty           string `toml:"Bounty" yaml:"bounty"`
	Organization     string `toml:"Organization,omitempty" yaml:"organization,omitempty"`
	Vault            string `toml:"Vault" yaml:"vault"`
	MessageOffset    uint64 `toml:"MessageOffset" yaml:"messageOffset"`
	RelayOverheadGas uint64 `toml:"RelayOverheadGas" yaml:"relayOverheadGas"`
	Supersession     string `toml:"Supersession" yaml:"supersession"`
	// ValueSymbol and BountySymbol name the host ledger balances the gateway
	// moves. They may be equal.
	ValueSymbol  string `toml:"ValueSymbol" yaml:"valueSymbol"`
	BountySymbol string `toml:"BountySymbol" yaml:"bountySymbol"`
}

// RateLimit bounds requests per client on the HTTP surface.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute" yaml:"requestsPerMinute"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// Consensus configures the authenticated feed that commits counterpart state
// roots. The HMAC secret is read from SecretEnv.
type Consensus struct {
	Enabled   bool   `toml:"Enabled" yaml:"enabled"`
	SecretEnv string `toml:"SecretEnv" yaml:"secretEnv"`
	Issuer    string `toml:"Issuer" yaml:"issuer"`
	Audience  string `toml:"Audience" yaml:"audience"`
}

// Stream configures the websocket event stream.
type Stream struct {
	History int      `toml:"History" yaml:"history"`
	Origins []string `toml:"Origins,omitempty" yaml:"origins,omitempty"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers,omitempty" yaml:"headers,omitempty"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// Allocation seeds a host ledger balance, and optionally an allowance for the
// gateway, when the node state is first created.
type Allocation struct {
	Account   string `toml:"Account" yaml:"account"`
	Symbol    string `toml:"Symbol" yaml:"symbol"`
	Amount    string `toml:"Amount" yaml:"amount"`
	Allowance string `toml:"Allowance,omitempty" yaml:"allowance,omitempty"`
}
