package chainconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lux/starknode/internal/felt"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadOverlaysOntoDefault(t *testing.T) {
	path := writeConfig(t, "chain_id: SN_SEPOLIA\nprotocol_version: \"0.13.2\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "SN_SEPOLIA", cfg.ChainID)
	require.Equal(t, "0.13.2", cfg.ProtocolVersion)
	// fields the file didn't mention keep Default()'s values.
	require.Equal(t, uint64(1470), cfg.LegacyBlockNumber)
	require.Equal(t, uint64(4_000_000), cfg.Bouncer.MaxSteps)
}

func TestIsLegacyTxHashAppliesToMainChainOnly(t *testing.T) {
	main := Default()
	require.True(t, main.IsLegacyTxHash(0))
	require.True(t, main.IsLegacyTxHash(1469))
	require.False(t, main.IsLegacyTxHash(1470))

	other := Default()
	other.ChainID = "SN_SEPOLIA"
	require.False(t, other.IsLegacyTxHash(0), "the legacy cutover never applies off main chain")
}

func TestApplyOverrideMutatesKnownField(t *testing.T) {
	cfg := Default()
	require.NoError(t, ApplyOverride(&cfg, "bouncer.max_steps=123"))
	require.Equal(t, uint64(123), cfg.Bouncer.MaxSteps)

	require.NoError(t, ApplyOverride(&cfg, "chain_id=SN_SEPOLIA"))
	require.Equal(t, "SN_SEPOLIA", cfg.ChainID)
}

func TestApplyOverrideRejectsUnknownKey(t *testing.T) {
	cfg := Default()
	err := ApplyOverride(&cfg, "not_a_real_field=1")
	require.Error(t, err)
}

func TestApplyOverrideRejectsMalformedPair(t *testing.T) {
	cfg := Default()
	err := ApplyOverride(&cfg, "no-equals-sign")
	require.Error(t, err)
}

func TestChainInfoParsesFeeTokenHexAddresses(t *testing.T) {
	cfg := Default()
	cfg.FeeTokenEth = "0x049d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7"

	info := cfg.ChainInfo()
	require.False(t, info.FeeTokenAddresses.Eth.Equal(felt.Zero))
}
