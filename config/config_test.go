package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/base", "test-chain.a1b2c3", ModeValidator)

	require.Equal(t, DefaultWasmDir, cfg.WasmDir)
	require.Equal(t, "1970-01-01T00:00:00Z", cfg.Ledger.GenesisTime)
	require.Equal(t, ChainID("test-chain.a1b2c3"), cfg.Ledger.ChainID)

	shell := cfg.Ledger.Shell
	require.Equal(t, "/tmp/base", shell.BaseDir)
	require.Equal(t, "127.0.0.1:26658", shell.LedgerAddress.String())
	require.Nil(t, shell.BlockCacheBytes)
	require.Nil(t, shell.VPWasmCompilationCacheBytes)
	require.Nil(t, shell.TxWasmCompilationCacheBytes)
	require.Equal(t, DBDirName, shell.DBDir)
	require.Equal(t, TendermintDirName, shell.TendermintDir)

	tm := cfg.Ledger.Tendermint
	require.Equal(t, "127.0.0.1:26657", tm.RPCAddress.String())
	require.Equal(t, "127.0.0.1:26656", tm.P2PAddress.String())
	require.Empty(t, tm.P2PPersistentPeers)
	require.True(t, tm.P2PPex)
	require.False(t, tm.P2PAllowDuplicateIP)
	require.True(t, tm.P2PAddrBookStrict)
	require.Equal(t, time.Second, tm.ConsensusTimeoutCommit.Duration())
	require.Equal(t, ModeValidator, tm.TendermintMode)
	require.False(t, tm.InstrumentationPrometheus)
	require.Equal(t, "127.0.0.1:26661", tm.InstrumentationPrometheusListenAddr.String())
	require.Equal(t, "anoman_tm", tm.InstrumentationNamespace)

	gossiper := cfg.IntentGossiper
	require.Equal(t, "/ip4/0.0.0.0/tcp/26659", gossiper.Address.String())
	require.Equal(t, []string{"asset_v0"}, gossiper.Topics)
	require.Equal(t, "127.0.0.1:26661", gossiper.MatchmakersServerAddr.String())
	require.True(t, gossiper.SubscriptionFilter.IsRegex())
	require.Equal(t, `asset_v\d{1,2}`, gossiper.SubscriptionFilter.RegexPattern)
	require.Empty(t, gossiper.SeedPeers)
	require.Nil(t, gossiper.RPC)
	require.NotNil(t, gossiper.DiscoverPeer)
	require.Equal(t, uint64(16), gossiper.DiscoverPeer.MaxDiscoveryPeers)
	require.True(t, gossiper.DiscoverPeer.Kademlia)
	require.False(t, gossiper.DiscoverPeer.MDNS)

	require.Equal(t, Matchmaker{}, cfg.Matchmaker)
}

func TestPathHelpers(t *testing.T) {
	cfg := DefaultConfig("/tmp/base", "test-chain.a1b2c3", ModeFull)
	ledger := &cfg.Ledger

	require.Equal(t, filepath.Join("/tmp/base", "test-chain.a1b2c3"), ledger.ChainDir())
	require.Equal(t, filepath.Join("/tmp/base", "test-chain.a1b2c3", "db"), ledger.DBDir())
	require.Equal(t, filepath.Join("/tmp/base", "test-chain.a1b2c3", "tendermint"), ledger.TendermintDir())
	require.Equal(t,
		filepath.Join("/tmp/base", "test-chain.a1b2c3", FileName),
		FilePath("/tmp/base", "test-chain.a1b2c3"),
	)
}

func TestModeFromString(t *testing.T) {
	require.Equal(t, ModeFull, ModeFromString("full"))
	require.Equal(t, ModeValidator, ModeFromString("validator"))
	require.Equal(t, ModeSeed, ModeFromString("seed"))
	require.Panics(t, func() { ModeFromString("observer") })
}

func TestModeUnmarshalText(t *testing.T) {
	var mode TendermintMode
	require.NoError(t, mode.UnmarshalText([]byte("seed")))
	require.Equal(t, ModeSeed, mode)
	require.Error(t, mode.UnmarshalText([]byte("observer")))
}

func TestTimeoutText(t *testing.T) {
	timeout := Timeout(1500 * time.Millisecond)
	text, err := timeout.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "1.5s", string(text))

	var parsed Timeout
	require.NoError(t, parsed.UnmarshalText([]byte("2s")))
	require.Equal(t, 2*time.Second, parsed.Duration())
	require.Error(t, parsed.UnmarshalText([]byte("not-a-duration")))
}
