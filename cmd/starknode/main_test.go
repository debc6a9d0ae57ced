package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/lux/starknode/internal/chainconfig"
)

func contextWithOverrides(t *testing.T, overrides ...string) *cli.Context {
	t.Helper()
	flagSet := flag.NewFlagSet("test", 0)
	flagSet.String(chainConfigPathFlag.Name, "", "test")
	val := cli.NewStringSlice(overrides...)
	flagSet.Var(val, chainConfigOverrideFlag.Name, "test")
	flagSet.Bool(devnetFlag.Name, false, "test")
	return cli.NewContext(nil, flagSet, nil)
}

func TestResolveChainConfigDefaultsToMainnet(t *testing.T) {
	cliCtx := contextWithOverrides(t)
	cfg, err := resolveChainConfig(cliCtx)
	require.NoError(t, err)
	require.Equal(t, chainconfig.Default(), cfg)
}

func TestResolveChainConfigAppliesOverrides(t *testing.T) {
	cliCtx := contextWithOverrides(t, "chain_id=SN_SEPOLIA", "bouncer.max_steps=9")
	cfg, err := resolveChainConfig(cliCtx)
	require.NoError(t, err)
	require.Equal(t, "SN_SEPOLIA", cfg.ChainID)
	require.Equal(t, uint64(9), cfg.Bouncer.MaxSteps)
}

func TestResolveChainConfigRejectsUnknownOverrideKey(t *testing.T) {
	cliCtx := contextWithOverrides(t, "not_a_real_key=1")
	_, err := resolveChainConfig(cliCtx)
	require.Error(t, err)
}

func TestOpenStoreDevnetUsesMemStore(t *testing.T) {
	flagSet := flag.NewFlagSet("test", 0)
	flagSet.Bool(devnetFlag.Name, true, "test")
	flagSet.String(basePathFlag.Name, "", "test")
	cliCtx := cli.NewContext(nil, flagSet, nil)

	store, err := openStore(cliCtx)
	require.NoError(t, err)
	defer store.Close()
}

func TestOpenStoreOnDiskUsesBasePath(t *testing.T) {
	flagSet := flag.NewFlagSet("test", 0)
	flagSet.Bool(devnetFlag.Name, false, "test")
	flagSet.String(basePathFlag.Name, t.TempDir(), "test")
	cliCtx := cli.NewContext(nil, flagSet, nil)

	store, err := openStore(cliCtx)
	require.NoError(t, err)
	defer store.Close()
}
