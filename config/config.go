// Package config defines the typed configuration tree for a node driving
// the consensus engine, the intent gossip overlay and the optional
// matchmaker worker, along with its on-disk TOML format, the layered
// defaults -> file -> environment loader and the write-back path.
package config

import (
	"fmt"
	"net/netip"
	"path/filepath"
	"time"
)

const (
	// DefaultBaseDir contains the global config and chain directories.
	DefaultBaseDir = ".anoma"
	// DefaultWasmDir is nested inside a chain directory.
	DefaultWasmDir = "wasm"
	// DefaultWasmChecksumsFile lists hashes of built WASMs, inside the WASM dir.
	DefaultWasmChecksumsFile = "checksums.json"
	// FileName is the chain-specific config file name, nested in chain dirs.
	FileName = "config.toml"
	// TendermintDirName is the consensus engine home, nested in chain dirs.
	TendermintDirName = "tendermint"
	// DBDirName is the chain-specific DB, nested in chain dirs.
	DBDirName = "db"
)

// ChainID is an opaque identifier of a chain, used as a directory name and
// as a routing key.
type ChainID string

func (c ChainID) String() string { return string(c) }

// TendermintMode determines the consensus engine's peer discovery policy.
type TendermintMode string

const (
	ModeFull      TendermintMode = "full"
	ModeValidator TendermintMode = "validator"
	ModeSeed      TendermintMode = "seed"
)

// ModeFromString converts a mode token. An unknown token is a programmer
// error, not a user input path, hence the panic.
func ModeFromString(s string) TendermintMode {
	switch TendermintMode(s) {
	case ModeFull, ModeValidator, ModeSeed:
		return TendermintMode(s)
	default:
		panic(fmt.Sprintf("unrecognized tendermint mode %q", s))
	}
}

func (m TendermintMode) String() string { return string(m) }

// MarshalText implements encoding.TextMarshaler.
func (m TendermintMode) MarshalText() ([]byte, error) {
	return []byte(m), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unlike ModeFromString
// this is a user input path and reports unknown tokens as errors.
func (m *TendermintMode) UnmarshalText(text []byte) error {
	switch mode := TendermintMode(text); mode {
	case ModeFull, ModeValidator, ModeSeed:
		*m = mode
		return nil
	default:
		return fmt.Errorf("unrecognized tendermint mode %q", text)
	}
}

// Timeout is a duration with a human readable text form such as "1s".
type Timeout time.Duration

func (t Timeout) Duration() time.Duration { return time.Duration(t) }

func (t Timeout) String() string { return time.Duration(t).String() }

// MarshalText implements encoding.TextMarshaler.
func (t Timeout) MarshalText() ([]byte, error) {
	return []byte(time.Duration(t).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Timeout) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*t = Timeout(d)
	return nil
}

// Config is the top-level tree persisted to config.toml inside a chain
// directory. Table-valued fields must be declared after scalar fields, see
// the write path for the enforced ordering invariant.
type Config struct {
	// WasmDir is relative to the chain directory.
	WasmDir string `toml:"wasm_dir" mapstructure:"wasm_dir"`

	Ledger         Ledger         `toml:"ledger" mapstructure:"ledger"`
	IntentGossiper IntentGossiper `toml:"intent_gossiper" mapstructure:"intent_gossiper"`
	Matchmaker     Matchmaker     `toml:"matchmaker" mapstructure:"matchmaker"`
}

// Ledger holds the chain and node level settings.
type Ledger struct {
	// GenesisTime is an RFC-3339 timestamp string.
	GenesisTime string  `toml:"genesis_time" mapstructure:"genesis_time"`
	ChainID     ChainID `toml:"chain_id" mapstructure:"chain_id"`

	Shell      Shell      `toml:"shell" mapstructure:"shell"`
	Tendermint Tendermint `toml:"tendermint" mapstructure:"tendermint"`
}

// Shell holds local filesystem and memory budget knobs.
type Shell struct {
	BaseDir       string         `toml:"base_dir" mapstructure:"base_dir"`
	LedgerAddress netip.AddrPort `toml:"ledger_address" mapstructure:"ledger_address"`
	// BlockCacheBytes is the block cache maximum size in bytes. When not
	// set, consumers default it to 1/3 of the available memory.
	BlockCacheBytes *uint64 `toml:"block_cache_bytes,omitempty" mapstructure:"block_cache_bytes"`
	// VPWasmCompilationCacheBytes is the VP WASM compilation cache maximum
	// size in bytes. When not set, consumers default it to 1/6 of the
	// available memory.
	VPWasmCompilationCacheBytes *uint64 `toml:"vp_wasm_compilation_cache_bytes,omitempty" mapstructure:"vp_wasm_compilation_cache_bytes"`
	// TxWasmCompilationCacheBytes is the tx WASM compilation cache maximum
	// size in bytes. When not set, consumers default it to 1/6 of the
	// available memory.
	TxWasmCompilationCacheBytes *uint64 `toml:"tx_wasm_compilation_cache_bytes,omitempty" mapstructure:"tx_wasm_compilation_cache_bytes"`
	// DBDir is relative to the chain dir. Use Ledger.DBDir to read the
	// resolved path.
	DBDir string `toml:"db_dir" mapstructure:"db_dir"`
	// TendermintDir is relative to the chain dir. Use Ledger.TendermintDir
	// to read the resolved path.
	TendermintDir string `toml:"tendermint_dir" mapstructure:"tendermint_dir"`
}

// Tendermint holds the consensus engine subsettings.
type Tendermint struct {
	RPCAddress netip.AddrPort `toml:"rpc_address" mapstructure:"rpc_address"`
	P2PAddress netip.AddrPort `toml:"p2p_address" mapstructure:"p2p_address"`
	// P2PPersistentPeers addresses must include the node ID.
	P2PPersistentPeers []string `toml:"p2p_persistent_peers" mapstructure:"p2p_persistent_peers"`
	// P2PPex turns the peer exchange reactor on or off. A validator node
	// will want the pex turned off.
	P2PPex bool `toml:"p2p_pex" mapstructure:"p2p_pex"`
	// P2PAllowDuplicateIP disables the guard against peers connecting from
	// the same IP.
	P2PAllowDuplicateIP bool `toml:"p2p_allow_duplicate_ip" mapstructure:"p2p_allow_duplicate_ip"`
	// P2PAddrBookStrict enforces strict address routability rules. Set
	// false for private or local networks.
	P2PAddrBookStrict bool `toml:"p2p_addr_book_strict" mapstructure:"p2p_addr_book_strict"`
	// ConsensusTimeoutCommit is how long to wait after committing a block
	// before starting on the new height.
	ConsensusTimeoutCommit Timeout        `toml:"consensus_timeout_commit" mapstructure:"consensus_timeout_commit"`
	TendermintMode         TendermintMode `toml:"tendermint_mode" mapstructure:"tendermint_mode"`

	InstrumentationPrometheus           bool           `toml:"instrumentation_prometheus" mapstructure:"instrumentation_prometheus"`
	InstrumentationPrometheusListenAddr netip.AddrPort `toml:"instrumentation_prometheus_listen_addr" mapstructure:"instrumentation_prometheus_listen_addr"`
	InstrumentationNamespace            string         `toml:"instrumentation_namespace" mapstructure:"instrumentation_namespace"`
}

// DefaultConfig returns a fully populated default tree.
func DefaultConfig(baseDir string, chainID ChainID, mode TendermintMode) *Config {
	return &Config{
		WasmDir:        DefaultWasmDir,
		Ledger:         DefaultLedger(baseDir, chainID, mode),
		IntentGossiper: DefaultIntentGossiper(),
		Matchmaker:     Matchmaker{},
	}
}

// DefaultLedger returns the default chain and node level settings.
func DefaultLedger(baseDir string, chainID ChainID, mode TendermintMode) Ledger {
	return Ledger{
		GenesisTime: "1970-01-01T00:00:00Z",
		ChainID:     chainID,
		Shell: Shell{
			BaseDir:       baseDir,
			LedgerAddress: netip.MustParseAddrPort("127.0.0.1:26658"),
			DBDir:         DBDirName,
			TendermintDir: TendermintDirName,
		},
		Tendermint: Tendermint{
			RPCAddress:                          netip.MustParseAddrPort("127.0.0.1:26657"),
			P2PAddress:                          netip.MustParseAddrPort("127.0.0.1:26656"),
			P2PPersistentPeers:                  []string{},
			P2PPex:                              true,
			P2PAllowDuplicateIP:                 false,
			P2PAddrBookStrict:                   true,
			ConsensusTimeoutCommit:              Timeout(time.Second),
			TendermintMode:                      mode,
			InstrumentationPrometheus:           false,
			InstrumentationPrometheusListenAddr: netip.MustParseAddrPort("127.0.0.1:26661"),
			InstrumentationNamespace:            "anoman_tm",
		},
	}
}

// FilePath returns the path of the config file under the chain directory.
func FilePath(baseDir string, chainID ChainID) string {
	return filepath.Join(baseDir, chainID.String(), FileName)
}

// ChainDir returns the chain directory path.
func (l *Ledger) ChainDir() string {
	return filepath.Join(l.Shell.BaseDir, l.ChainID.String())
}

// DBDir returns the directory path to the DB.
func (l *Ledger) DBDir() string {
	return l.Shell.dbDir(l.ChainID)
}

// TendermintDir returns the directory path to the consensus engine home.
func (l *Ledger) TendermintDir() string {
	return l.Shell.tendermintDir(l.ChainID)
}

func (s *Shell) dbDir(chainID ChainID) string {
	return filepath.Join(s.BaseDir, chainID.String(), s.DBDir)
}

func (s *Shell) tendermintDir(chainID ChainID) string {
	return filepath.Join(s.BaseDir, chainID.String(), s.TendermintDir)
}
