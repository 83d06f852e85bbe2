package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/anoma/anoma/shared/fileutil"
	"github.com/anoma/anoma/shared/testutil"
)

const testChainID = ChainID("e2e-test.1f6a19a0b1b7b6469c")

func TestReadGeneratesMissingConfig(t *testing.T) {
	baseDir := t.TempDir()

	cfg, err := Read(baseDir, testChainID, nil)
	require.NoError(t, err)
	require.True(t, fileutil.FileExists(FilePath(baseDir, testChainID)))
	require.Equal(t, DefaultConfig(baseDir, testChainID, ModeFull), cfg)
}

func TestReadRoundTripsDefaults(t *testing.T) {
	baseDir := t.TempDir()
	mode := ModeValidator

	generated, err := Generate(baseDir, testChainID, mode, false)
	require.NoError(t, err)

	loaded, err := Read(baseDir, testChainID, &mode)
	require.NoError(t, err)
	require.Equal(t, generated, loaded)
}

func TestGenerateIsIdempotent(t *testing.T) {
	baseDir := t.TempDir()

	_, err := Generate(baseDir, testChainID, ModeFull, true)
	require.NoError(t, err)
	first, err := os.ReadFile(FilePath(baseDir, testChainID))
	require.NoError(t, err)

	_, err = Generate(baseDir, testChainID, ModeFull, true)
	require.NoError(t, err)
	second, err := os.ReadFile(FilePath(baseDir, testChainID))
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestWriteRefusesToReplaceExisting(t *testing.T) {
	baseDir := t.TempDir()

	cfg, err := Generate(baseDir, testChainID, ModeFull, false)
	require.NoError(t, err)
	before, err := os.ReadFile(FilePath(baseDir, testChainID))
	require.NoError(t, err)

	cfg.Ledger.GenesisTime = "2021-09-30T10:00:00Z"
	err = cfg.Write(baseDir, testChainID, false)

	var existsErr *AlreadyExistingConfig
	require.ErrorAs(t, err, &existsErr)
	require.Equal(t, FilePath(baseDir, testChainID), existsErr.Path)

	after, err := os.ReadFile(FilePath(baseDir, testChainID))
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestReadMergesFileOverDefaults(t *testing.T) {
	baseDir := t.TempDir()

	cfg := DefaultConfig(baseDir, testChainID, ModeFull)
	cfg.Ledger.Shell.LedgerAddress = netip.MustParseAddrPort("1.2.3.4:1000")
	cfg.Ledger.Tendermint.ConsensusTimeoutCommit = Timeout(10 * time.Second)
	require.NoError(t, cfg.Write(baseDir, testChainID, false))

	loaded, err := Read(baseDir, testChainID, nil)
	require.NoError(t, err)
	require.Equal(t, "1.2.3.4:1000", loaded.Ledger.Shell.LedgerAddress.String())
	require.Equal(t, 10*time.Second, loaded.Ledger.Tendermint.ConsensusTimeoutCommit.Duration())
	// Keys the file does not touch keep their default values.
	require.Equal(t, "127.0.0.1:26657", loaded.Ledger.Tendermint.RPCAddress.String())
	require.Equal(t, []string{"asset_v0"}, loaded.IntentGossiper.Topics)
}

func TestReadEnvOverridesFile(t *testing.T) {
	baseDir := t.TempDir()

	cfg := DefaultConfig(baseDir, testChainID, ModeFull)
	cfg.Ledger.Shell.LedgerAddress = netip.MustParseAddrPort("1.2.3.4:1000")
	require.NoError(t, cfg.Write(baseDir, testChainID, false))

	t.Setenv("ANOMA__LEDGER__SHELL__LEDGER_ADDRESS", "5.6.7.8:2000")
	t.Setenv("ANOMA__LEDGER__TENDERMINT__P2P_PEX", "false")
	t.Setenv("ANOMA__LEDGER__TENDERMINT__TENDERMINT_MODE", "seed")

	loaded, err := Read(baseDir, testChainID, nil)
	require.NoError(t, err)
	require.Equal(t, "5.6.7.8:2000", loaded.Ledger.Shell.LedgerAddress.String())
	require.False(t, loaded.Ledger.Tendermint.P2PPex)
	require.Equal(t, ModeSeed, loaded.Ledger.Tendermint.TendermintMode)
}

func TestReadRewritesBaseDir(t *testing.T) {
	baseDir := t.TempDir()

	cfg := DefaultConfig("/somewhere/else", testChainID, ModeFull)
	require.NoError(t, cfg.Write(baseDir, testChainID, false))

	loaded, err := Read(baseDir, testChainID, nil)
	require.NoError(t, err)
	require.Equal(t, baseDir, loaded.Ledger.Shell.BaseDir)
}

func TestReadSeedPeersAndWhitelistFilter(t *testing.T) {
	baseDir := t.TempDir()
	seed := "/ip4/1.2.3.4/tcp/26656/p2p/" + testPeerID

	cfg := DefaultConfig(baseDir, testChainID, ModeFull)
	peer, err := ParsePeerAddress(seed)
	require.NoError(t, err)
	cfg.IntentGossiper.SeedPeers = []PeerAddress{peer}
	cfg.IntentGossiper.SubscriptionFilter = WhitelistFilter([]string{"asset_v0", "asset_v1"})
	require.NoError(t, cfg.Write(baseDir, testChainID, false))

	loaded, err := Read(baseDir, testChainID, nil)
	require.NoError(t, err)
	require.Len(t, loaded.IntentGossiper.SeedPeers, 1)
	require.Equal(t, seed, loaded.IntentGossiper.SeedPeers[0].String())
	require.False(t, loaded.IntentGossiper.SubscriptionFilter.IsRegex())
	require.Equal(t, []string{"asset_v0", "asset_v1"}, loaded.IntentGossiper.SubscriptionFilter.Whitelist)
}

func TestReadSchemaMismatch(t *testing.T) {
	for name, raw := range map[string]string{
		"bad socket address": "[ledger.shell]\nledger_address = \"not a socket address\"\n",
		"bad mode token":     "[ledger.tendermint]\ntendermint_mode = \"observer\"\n",
		"bad filter regex":   "[intent_gossiper]\nsubscription_filter = \"(\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			baseDir := t.TempDir()
			filePath := FilePath(baseDir, testChainID)
			require.NoError(t, fileutil.MkdirAll(filepath.Dir(filePath)))
			require.NoError(t, os.WriteFile(filePath, []byte(raw), 0o644))

			var deserErr *DeserializationError
			_, err := Read(baseDir, testChainID, nil)
			require.ErrorAs(t, err, &deserErr)
		})
	}
}

type misorderedNested struct {
	I int `toml:"i"`
}

type misorderedLayout struct {
	Nested misorderedNested `toml:"nested"`
	Simple int              `toml:"simple"`
}

func TestEncodeRejectsValueAfterTable(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	_, err := encodeToml(&misorderedLayout{Nested: misorderedNested{I: 1}, Simple: 2})

	var tomlErr *TomlError
	require.ErrorAs(t, err, &tomlErr)
	require.ErrorIs(t, err, errValueAfterTable)
	require.Contains(t, err.Error(), `field "simple" follows table "nested"`)
	testutil.AssertLogsContain(t, hook, "followed by simple fields")
}

func TestDefaultConfigFieldOrder(t *testing.T) {
	require.NoError(t, checkFieldOrder(
		reflect.TypeOf(DefaultConfig(t.TempDir(), testChainID, ModeFull)),
	))
}

func TestGlobalConfigRoundTrip(t *testing.T) {
	baseDir := t.TempDir()

	global := NewGlobalConfig(testChainID)
	require.NoError(t, global.Write(baseDir))

	loaded, err := ReadGlobal(baseDir)
	require.NoError(t, err)
	require.Equal(t, global, loaded)
}

func TestReadGlobalMissing(t *testing.T) {
	var readErr *ReadError
	_, err := ReadGlobal(t.TempDir())
	require.ErrorAs(t, err, &readErr)
}
