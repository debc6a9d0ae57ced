// Package chainconfig loads the per-network configuration a starknode
// instance runs with: chain id, fee tokens, protocol version, L1 settlement
// details, and the bouncer limits block production enforces.
//
// Grounded on the teacher's params.ChainConfig (a plain struct loaded from
// genesis/flags, then mutated field-by-field by override helpers in
// params/config_extra.go) and on github.com/NethermindEth/juno's config
// package (a real Starknet node, present in the retrieval pack's
// other_examples/manifests), which loads its own YAML config through
// gopkg.in/yaml.v3 and spf13/viper the same way this package does.
package chainconfig

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/exec"
	"github.com/lux/starknode/internal/felt"
)

// Config is the full set of network parameters a node needs, unmarshaled
// from a YAML chain-config file and then overlaid with environment
// variables and --chain-config-override flags.
type Config struct {
	ChainID         string `yaml:"chain_id"`
	ProtocolVersion string `yaml:"protocol_version"`

	// FeeTokenEth/FeeTokenStrk are 0x-prefixed hex addresses; Felt itself
	// has no exported fields for yaml to populate, so the wire
	// representation is a hex string, parsed on demand by ChainInfo.
	FeeTokenEth  string `yaml:"fee_token_eth"`
	FeeTokenStrk string `yaml:"fee_token_strk"`

	// LegacyBlockNumber is the block below which the pre-0.13.1.1 tx-hash
	// formula applies; spec.md §4.4 fixes this at 1470 on main chain only,
	// but test networks may need their own value (spec.md §9's open
	// question 1), hence it being configurable rather than a bare constant.
	LegacyBlockNumber uint64 `yaml:"legacy_block_number"`

	Bouncer exec.BouncerConfig `yaml:"bouncer"`

	// L1MessagingStartBlock seeds internal/l1sync's resume cursor on a
	// store that has never synced L1 messages before.
	L1MessagingStartBlock uint64 `yaml:"l1_messaging_start_block"`

	FeederGatewayURL string `yaml:"feeder_gateway_url"`
	GatewayURL       string `yaml:"gateway_url"`
}

// ChainInfo projects the parts of Config exec.BlockContext needs.
func (c Config) ChainInfo() exec.ChainInfo {
	return exec.ChainInfo{
		ChainID: c.ChainID,
		FeeTokenAddresses: exec.FeeTokenAddresses{
			Eth:  parseFeltHex(c.FeeTokenEth),
			Strk: parseFeltHex(c.FeeTokenStrk),
		},
	}
}

// parseFeltHex decodes a 0x-prefixed hex address into a Felt, returning
// felt.Zero for an empty or malformed string — an unset fee token address
// is a configuration gap the node's bouncer/fee logic surfaces on its own,
// not something this loader needs to reject up front.
func parseFeltHex(s string) felt.Felt {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return felt.Zero
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return felt.Zero
	}
	return felt.FromBytes(b)
}

// mainnetChainID mirrors the network the legacy tx-hash cutover applies to
// (spec.md §4.4's MAIN_CHAIN_ID = "SN_MAIN").
const mainnetChainID = "SN_MAIN"

// Default returns the built-in mainnet configuration used when no
// --chain-config-path is given; --devnet uses it unchanged, bouncer limits
// included, and only swaps in an in-memory store.
func Default() Config {
	return Config{
		ChainID:               mainnetChainID,
		ProtocolVersion:       exec.FallbackVersion,
		LegacyBlockNumber:     1470,
		Bouncer:               exec.BouncerConfig{MaxSteps: 4_000_000, MaxEvents: 1000, MaxStateDiffSize: 2_000_000},
		L1MessagingStartBlock: 0,
	}
}

// Load reads a YAML chain-config file from path, starting from Default()
// and overlaying whatever fields the file sets (zero-value fields in the
// file leave the default untouched is NOT the semantics here — yaml.Unmarshal
// overwrites every field the document names; fields it omits keep the
// Default() value since Unmarshal is called against that base value).
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("chainconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("chainconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWithEnv behaves like Load but additionally overlays environment
// variables prefixed STARKNODE_ (e.g. STARKNODE_CHAIN_ID), using viper the
// same way juno's config package binds its own env prefix ahead of
// unmarshaling.
func LoadWithEnv(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("starknode")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if val := v.GetString("chain_id"); val != "" {
		cfg.ChainID = val
	}
	if val := v.GetString("protocol_version"); val != "" {
		cfg.ProtocolVersion = val
	}
	if val := v.GetString("feeder_gateway_url"); val != "" {
		cfg.FeederGatewayURL = val
	}
	if val := v.GetString("gateway_url"); val != "" {
		cfg.GatewayURL = val
	}
	return cfg, nil
}

// ApplyOverride parses one --chain-config-override key=value pair and
// mutates the matching field on cfg, mirroring params/config_extra.go's
// field-by-field override plumbing. An unrecognized key is fatal (spec.md
// §6: "unknown key ⇒ fatal"), returned here as an error for the CLI layer
// to report and exit on.
func ApplyOverride(cfg *Config, raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	if !ok {
		return fmt.Errorf("chainconfig: override %q must be of the form key=value", raw)
	}

	switch key {
	case "chain_id":
		cfg.ChainID = value
	case "protocol_version":
		cfg.ProtocolVersion = value
	case "legacy_block_number":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("chainconfig: override %s: %w", key, err)
		}
		cfg.LegacyBlockNumber = n
	case "l1_messaging_start_block":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("chainconfig: override %s: %w", key, err)
		}
		cfg.L1MessagingStartBlock = n
	case "bouncer.max_steps":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("chainconfig: override %s: %w", key, err)
		}
		cfg.Bouncer.MaxSteps = n
	case "bouncer.max_events":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("chainconfig: override %s: %w", key, err)
		}
		cfg.Bouncer.MaxEvents = n
	case "bouncer.max_state_diff_size":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("chainconfig: override %s: %w", key, err)
		}
		cfg.Bouncer.MaxStateDiffSize = n
	case "feeder_gateway_url":
		cfg.FeederGatewayURL = value
	case "gateway_url":
		cfg.GatewayURL = value
	default:
		return fmt.Errorf("chainconfig: unknown override key %q", key)
	}
	return nil
}

// IsLegacyTxHash reports whether blockNumber predates the legacy tx-hash
// cutover on this chain — true only on SN_MAIN, per spec.md §4.4 and §9's
// open question 1 (test networks always use the modern formula).
func (c Config) IsLegacyTxHash(blockNumber uint64) bool {
	return c.ChainID == mainnetChainID && blockNumber < c.LegacyBlockNumber
}

// GasPricesZero is the zero-value GasPrices a freshly-initialized chain
// starts pending blocks with before the first L1 gas price poll lands.
var GasPricesZero = blockstore.GasPrices{}
