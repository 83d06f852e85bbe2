package endtoend

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anoma/anoma/config"
)

// spawnShell runs a shell one-liner under a PTY the same way the packaged
// binaries are run.
func spawnShell(t *testing.T, timeout time.Duration, script string) *Cmd {
	t.Helper()
	cmd, err := spawn(
		"/bin/sh", []string{"-c", script},
		timeout, t.TempDir(), t.TempDir(), "sh", callerLoc(1),
	)
	require.NoError(t, err)
	return cmd
}

func TestExpectString(t *testing.T) {
	cmd := spawnShell(t, 5*time.Second, "echo before needle after")

	before, err := cmd.ExpectString("needle")
	require.NoError(t, err)
	require.Contains(t, before, "before")
	require.NoError(t, cmd.AssertSuccess())
}

func TestExpectStringTimeout(t *testing.T) {
	cmd := spawnShell(t, time.Second, "sleep 5")
	defer cmd.Close()

	started := time.Now()
	_, err := cmd.ExpectString("never printed")
	require.Error(t, err)
	require.Less(t, time.Since(started), 3*time.Second)
	require.Contains(t, err.Error(), "pattern not observed within 1s")
	require.Contains(t, err.Error(), "command_test.go:")
	require.Contains(t, err.Error(), "never printed")
}

func TestExpectStringPastEOF(t *testing.T) {
	cmd := spawnShell(t, 5*time.Second, "echo done")

	_, err := cmd.ExpectString("never printed")
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected needle not found before EOF")
}

func TestExpectRegex(t *testing.T) {
	cmd := spawnShell(t, 5*time.Second, `echo "Derived chain ID: e2e-test.1f6a19a0b1b7b6469c"`)

	_, matched, err := cmd.ExpectRegex(`Derived chain ID: .*\n`)
	require.NoError(t, err)
	require.Contains(t, matched, "e2e-test.1f6a19a0b1b7b6469c")
	require.NoError(t, cmd.AssertSuccess())
}

func TestExpectEOF(t *testing.T) {
	cmd := spawnShell(t, 5*time.Second, "printf hello")

	output, err := cmd.ExpectEOF()
	require.NoError(t, err)
	require.Contains(t, output, "hello")
	require.NoError(t, cmd.AssertSuccess())
}

func TestExpectEOFWithoutOutput(t *testing.T) {
	cmd := spawnShell(t, 5*time.Second, "exit 0")

	_, err := cmd.ExpectEOF()
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected output before EOF")
}

func TestSendLine(t *testing.T) {
	cmd := spawnShell(t, 5*time.Second, `read line; echo "got:$line"`)

	require.NoError(t, cmd.SendLine("ping"))
	_, err := cmd.ExpectString("got:ping")
	require.NoError(t, err)
	require.NoError(t, cmd.AssertSuccess())
}

func TestSendControl(t *testing.T) {
	cmd := spawnShell(t, 5*time.Second, "cat")

	require.NoError(t, cmd.SendLine("still here"))
	_, err := cmd.ExpectString("still here")
	require.NoError(t, err)

	// The interrupt terminates cat with a non-zero status.
	require.NoError(t, cmd.SendControl('c'))
	require.NoError(t, cmd.AssertFailure())

	require.Error(t, cmd.SendControl('1'))
}

func TestAssertExitStatus(t *testing.T) {
	require.NoError(t, spawnShell(t, 5*time.Second, "exit 0").AssertSuccess())
	require.NoError(t, spawnShell(t, 5*time.Second, "exit 3").AssertFailure())

	err := spawnShell(t, 5*time.Second, "exit 1").AssertSuccess()
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected success")

	err = spawnShell(t, 5*time.Second, "exit 0").AssertFailure()
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected failure")
}

func TestBackgroundForeground(t *testing.T) {
	cmd := spawnShell(t, 5*time.Second, "echo first; sleep 1; echo second")

	_, err := cmd.ExpectString("first")
	require.NoError(t, err)

	bg := cmd.Background()
	time.Sleep(1500 * time.Millisecond)
	fg := bg.Foreground()
	require.Same(t, cmd, fg)
	require.NoError(t, fg.AssertSuccess())

	// The background reader discards its buffer but the log file keeps the
	// full session.
	logged, err := os.ReadFile(cmd.LogPath)
	require.NoError(t, err)
	require.Contains(t, string(logged), "first")
	require.Contains(t, string(logged), "second")
}

func TestClose(t *testing.T) {
	cmd := spawnShell(t, 2*time.Second, "sleep 30")
	cmd.Close()
	require.NotNil(t, cmd.cmd.ProcessState)
}

func TestRunCmdNodeEarlyExit(t *testing.T) {
	binDir := t.TempDir()
	script := "#!/bin/sh\necho failed to boot\nexit 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "namadan"), []byte(script), 0o755))
	t.Setenv(EnvVarUsePrebuiltBinaries, binDir)
	baseDir := t.TempDir()

	_, err := RunCmd(
		BinNode, []string{"ledger"}, time.Second,
		t.TempDir(), baseDir, config.ModeValidator, "test-location",
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exit code: 1")
	require.Contains(t, err.Error(), "failed to boot")

	// The session's output survives in the per-command log file.
	logs, err := filepath.Glob(filepath.Join(baseDir, "logs", "*-namadan-*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	logged, err := os.ReadFile(logs[0])
	require.NoError(t, err)
	require.Contains(t, string(logged), "failed to boot")
}

func TestRunCmdMissingBinary(t *testing.T) {
	t.Setenv(EnvVarUsePrebuiltBinaries, t.TempDir())

	_, err := RunCmd(
		BinNode, []string{"ledger"}, time.Second,
		t.TempDir(), t.TempDir(), config.ModeValidator, "test-location",
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to run")
	require.Contains(t, err.Error(), "test-location")
}

func TestBinName(t *testing.T) {
	require.Equal(t, "namadan", BinNode.name())
	require.Equal(t, "namadac", BinClient.name())
	require.Equal(t, "namadaw", BinWallet.name())
	require.Panics(t, func() { Bin(42).name() })
}
