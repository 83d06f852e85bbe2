// Package endtoend materializes ephemeral networks for end to end tests:
// it derives a chain from a genesis document, spawns the packaged binaries
// under pseudo-terminals, drives them with pattern-matched expectations and
// tears everything down deterministically.
package endtoend

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/pkg/errors"

	"github.com/anoma/anoma/config"
	"github.com/anoma/anoma/shared/fileutil"
)

const (
	// EnvVarDebug switches the harness to debug build artifacts.
	EnvVarDebug = "ANOMA_E2E_DEBUG"
	// EnvVarKeepTemp retains the temporary test directories when set to
	// anything but "false".
	EnvVarKeepTemp = "ANOMA_E2E_KEEP_TEMP"
	// EnvVarUsePrebuiltBinaries holds the path to a folder of prebuilt
	// binaries.
	EnvVarUsePrebuiltBinaries = "ANOMA_E2E_USE_PREBUILT_BINARIES"
	// EnvVarTendermint points at a compatible consensus engine binary, as
	// an alternative to having one on PATH.
	EnvVarTendermint = "TENDERMINT"
)

// SingleNodeNetGenesis is the bundled genesis source. It must contain a
// single validator with alias "validator-0"; use AddValidators inside the
// NewNetwork closure to grow the set.
const SingleNodeNetGenesis = "genesis/e2e-tests-single-node.toml"

const (
	chainPrefix         = "e2e-test"
	genesisSrcFileName  = "e2e-test-genesis-src.toml"
	netAccountsDir      = "setup"
	netOtherAccountsDir = "other"
	walletFileName      = "wallet.toml"
)

// Network is an ephemeral test network.
type Network struct {
	ChainID config.ChainID
}

// TestDir holds a temporary directory path. The retained variant, selected
// by ANOMA_E2E_KEEP_TEMP, survives the test run.
type TestDir struct {
	path     string
	retained bool
}

// NewTestDir sets up a temporary directory. It is deleted by Cleanup
// unless ANOMA_E2E_KEEP_TEMP is set to anything but "false".
func NewTestDir() (*TestDir, error) {
	path, err := os.MkdirTemp("", "anoma-e2e-*")
	if err != nil {
		return nil, errors.Wrap(err, "could not create test directory")
	}
	keepVal, keepSet := os.LookupEnv(EnvVarKeepTemp)
	retained := keepSet && !strings.EqualFold(keepVal, "false")
	if retained {
		fmt.Printf("%s: %q\n", aurora.Underline(aurora.Yellow("Keeping test directory at")), path)
	}
	return &TestDir{path: path, retained: retained}, nil
}

// Path returns the directory path.
func (d *TestDir) Path() string { return d.path }

// Retained reports whether the directory survives the test run.
func (d *TestDir) Retained() bool { return d.retained }

// Cleanup removes the temporary variant and prints the path of the
// retained variant.
func (d *TestDir) Cleanup() {
	if d.retained {
		fmt.Printf("%s: %q\n", aurora.Underline(aurora.Yellow("Keeping test directory at")), d.path)
		return
	}
	_ = os.RemoveAll(d.path)
}

// Who is the identity a command runs under and selects its base dir.
type Who struct {
	validatorIndex *uint64
}

// AsNonValidator runs a command against the test's own base dir.
func AsNonValidator() Who { return Who{} }

// AsValidator runs a command as a genesis validator with the given index,
// starting from 0.
func AsValidator(index uint64) Who {
	return Who{validatorIndex: &index}
}

func (w Who) mode() config.TendermintMode {
	if w.validatorIndex != nil {
		return config.ModeValidator
	}
	return config.ModeFull
}

// Test aggregates the working directory, the temporary workspace, the
// derived network and the genesis document used to bootstrap it.
type Test struct {
	// WorkingDir is where tests run from, usually the repo root dir.
	WorkingDir string
	// TestDir is the default base dir for the spawned commands.
	TestDir *TestDir
	Net     *Network
	Genesis *GenesisDoc
}

// Close tears down the test workspace.
func (t *Test) Close() {
	t.TestDir.Cleanup()
}

// BaseDir returns the base dir used for commands running under the given
// identity.
func (t *Test) BaseDir(who Who) string {
	if who.validatorIndex == nil {
		return t.TestDir.Path()
	}
	return filepath.Join(
		t.TestDir.Path(),
		t.Net.ChainID.String(),
		netAccountsDir,
		fmt.Sprintf("validator-%d", *who.validatorIndex),
		config.DefaultBaseDir,
	)
}

// Run spawns a binary as a non-validator, capturing this call site for
// diagnostics. The timeout, when non-zero, bounds every expectation.
func (t *Test) Run(bin Bin, args []string, timeout time.Duration) (*Cmd, error) {
	return t.runAs(AsNonValidator(), bin, args, timeout, callerLoc(1))
}

// RunAs spawns a binary under the given identity, capturing this call site
// for diagnostics.
func (t *Test) RunAs(who Who, bin Bin, args []string, timeout time.Duration) (*Cmd, error) {
	return t.runAs(who, bin, args, timeout, callerLoc(1))
}

func (t *Test) runAs(who Who, bin Bin, args []string, timeout time.Duration, loc string) (*Cmd, error) {
	return RunCmd(bin, args, timeout, t.WorkingDir, t.BaseDir(who), who.mode(), loc)
}

func callerLoc(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// SingleNodeNet sets up a network with a single genesis validator node.
func SingleNodeNet() (*Test, error) {
	return NewNetwork(func(g *GenesisDoc) *GenesisDoc { return g }, "")
}

// NewNetwork materializes an ephemeral network: it loads the bundled
// genesis source, lets updateGenesis rewrite it, runs the client's
// init-network to derive the chain and distributes wallets and WASM
// artifacts so every node can boot.
func NewNetwork(updateGenesis func(*GenesisDoc) *GenesisDoc, consensusTimeoutCommit string) (*Test, error) {
	initDiagnostics()

	workingDir, err := findWorkingDir()
	if err != nil {
		return nil, err
	}
	testDir, err := NewTestDir()
	if err != nil {
		return nil, err
	}

	genesis, err := OpenGenesis(filepath.Join(workingDir, SingleNodeNetGenesis))
	if err != nil {
		return nil, err
	}
	genesis = updateGenesis(genesis)

	genesisFile := filepath.Join(testDir.Path(), genesisSrcFileName)
	if err := genesis.Write(genesisFile); err != nil {
		return nil, err
	}

	// Derive the finalized genesis, keys and addresses and update the WASM
	// checksums.
	args := []string{
		"utils", "init-network",
		"--unsafe-dont-encrypt",
		"--genesis-path", genesisFile,
		"--chain-prefix", chainPrefix,
		"--localhost",
		"--dont-archive",
		"--allow-duplicate-ip",
		"--wasm-checksums-path", filepath.Join(workingDir, config.DefaultWasmDir, config.DefaultWasmChecksumsFile),
	}
	if consensusTimeoutCommit != "" {
		args = append(args, "--consensus-timeout-commit", consensusTimeoutCommit)
	}
	initNetwork, err := RunCmd(
		BinClient, args, 5*time.Second,
		workingDir, testDir.Path(), config.ModeValidator, callerLoc(0),
	)
	if err != nil {
		return nil, err
	}
	defer initNetwork.Close()

	unread, matched, err := initNetwork.ExpectRegex(`Derived chain ID: .*\n`)
	if err != nil {
		return nil, err
	}
	chainIDRaw := strings.TrimPrefix(strings.TrimSpace(matched), "Derived chain ID:")
	net := &Network{ChainID: config.ChainID(strings.TrimSpace(chainIDRaw))}
	log.Infof("'init-network' output: %s", unread)

	// Move the "others" accounts wallet up to the chain directory root, so
	// that non-validator commands can find it.
	chainDir := filepath.Join(testDir.Path(), net.ChainID.String())
	if err := os.Rename(
		filepath.Join(chainDir, netAccountsDir, netOtherAccountsDir, walletFileName),
		filepath.Join(chainDir, walletFileName),
	); err != nil {
		return nil, errors.Wrap(err, "could not move the non-validator wallet")
	}

	var validatorAliases []string
	for alias := range genesis.Validators() {
		validatorAliases = append(validatorAliases, alias)
	}
	if err := copyWasmToChainDir(workingDir, chainDir, net.ChainID, validatorAliases); err != nil {
		return nil, err
	}

	return &Test{
		WorkingDir: workingDir,
		TestDir:    testDir,
		Net:        net,
		Genesis:    genesis,
	}, nil
}

// findWorkingDir canonicalizes the parent of the current directory and
// checks that a consensus engine binary is reachable, either on PATH or
// through the TENDERMINT env variable.
func findWorkingDir() (string, error) {
	workingDir, err := filepath.Abs("..")
	if err != nil {
		return "", errors.Wrap(err, "could not resolve the working directory")
	}
	workingDir, err = filepath.EvalSymlinks(workingDir)
	if err != nil {
		return "", errors.Wrap(err, "could not resolve the working directory")
	}

	if os.Getenv(EnvVarTendermint) == "" {
		if _, err := exec.LookPath("tendermint"); err != nil {
			return "", errors.New(
				"the TENDERMINT env variable must be set and point to a local " +
					"build of the tendermint abci++ branch, or the tendermint " +
					"binary must be on PATH",
			)
		}
	}
	return workingDir, nil
}

// copyWasmToChainDir distributes the built WASM files into the shared
// chain WASM directory and into every validator's per-chain WASM
// directory.
func copyWasmToChainDir(workingDir, chainDir string, chainID config.ChainID, validatorAliases []string) error {
	builtWasmDir := filepath.Join(workingDir, config.DefaultWasmDir)
	wasmFiles, err := fileutil.FilesWithExt(builtWasmDir, ".wasm")
	if err != nil {
		return err
	}
	if len(wasmFiles) == 0 {
		return errors.Errorf(
			"no WASM files found in %s, build or download them first", builtWasmDir,
		)
	}

	targetDirs := []string{filepath.Join(chainDir, config.DefaultWasmDir)}
	for _, alias := range validatorAliases {
		targetDirs = append(targetDirs, filepath.Join(
			chainDir,
			netAccountsDir,
			alias,
			config.DefaultBaseDir,
			chainID.String(),
			config.DefaultWasmDir,
		))
	}
	for _, targetDir := range targetDirs {
		if err := fileutil.MkdirAll(targetDir); err != nil {
			return errors.Wrapf(err, "could not create WASM dir %s", targetDir)
		}
		for _, name := range wasmFiles {
			if err := fileutil.CopyFile(
				filepath.Join(builtWasmDir, name),
				filepath.Join(targetDir, name),
			); err != nil {
				return errors.Wrapf(err, "could not copy %s into %s", name, targetDir)
			}
		}
	}
	return nil
}
