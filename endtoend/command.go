package endtoend

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/creack/pty"
	"github.com/logrusorgru/aurora"
	"github.com/pkg/errors"

	"github.com/anoma/anoma/config"
	"github.com/anoma/anoma/shared/fileutil"
)

// Bin selects one of the packaged binaries under test.
type Bin int

const (
	// BinNode is the node daemon.
	BinNode Bin = iota
	// BinClient is the client CLI.
	BinClient
	// BinWallet is the key wallet CLI.
	BinWallet
)

func (b Bin) name() string {
	switch b {
	case BinNode:
		return "namadan"
	case BinClient:
		return "namadac"
	case BinWallet:
		return "namadaw"
	default:
		panic(fmt.Sprintf("unknown binary %d", int(b)))
	}
}

// Cmd is a spawned CLI under a pseudo-terminal. Call Close when done with
// it to interrupt the child and drain its remaining output.
type Cmd struct {
	// CmdStr is the rendered command line, used in every diagnostic.
	CmdStr string
	// LogPath is the file the PTY output is teed into.
	LogPath string

	cmd     *exec.Cmd
	ptmx    *os.File
	logFile *os.File
	loc     string
	timeout time.Duration

	// buf holds output pulled from the PTY but not yet consumed by an
	// expectation.
	buf bytes.Buffer
	eof bool

	// waitCh is closed once the child has been reaped.
	waitCh chan struct{}
}

func (c *Cmd) String() string {
	return fmt.Sprintf("%s\nLogs: %s", c.CmdStr, c.LogPath)
}

// RunCmd spawns one of the packaged binaries attached to a pseudo-terminal
// session. Release artifacts are used unless ANOMA_E2E_DEBUG is "true", and
// ANOMA_E2E_USE_PREBUILT_BINARIES overrides the lookup entirely. The
// timeout, when non-zero, bounds every subsequent expectation on the
// returned command.
func RunCmd(
	bin Bin,
	args []string,
	timeout time.Duration,
	workingDir, baseDir string,
	mode config.TendermintMode,
	loc string,
) (*Cmd, error) {
	initDiagnostics()

	binPath := binaryPath(workingDir, bin)
	full := append([]string{"--base-dir", baseDir, "--mode", mode.String()}, args...)
	cmd, err := spawn(binPath, full, timeout, workingDir, baseDir, bin.name(), loc)
	if err != nil {
		return nil, err
	}

	if bin == BinNode {
		// A node command needs a moment before its status is meaningful.
		Sleep(1)
		select {
		case <-cmd.waitCh:
			if code := cmd.cmd.ProcessState.ExitCode(); code != 0 {
				output, drainErr := cmd.drainEOF()
				if drainErr != nil {
					output = fmt.Sprintf("no output found, error: %v", drainErr)
				}
				_ = cmd.logFile.Close()
				_ = cmd.ptmx.Close()
				return nil, errors.Errorf(
					"failed to run: %s\nlocation: %s\nexit code: %d\noutput: %s",
					cmd.CmdStr, loc, code, output,
				)
			}
		default:
		}
	}
	return cmd, nil
}

// spawn starts an arbitrary binary under a PTY and tees its output into a
// per-command log file under <base_dir>/logs.
func spawn(
	binPath string,
	args []string,
	timeout time.Duration,
	workingDir, baseDir, logName, loc string,
) (*Cmd, error) {
	execCmd := exec.Command(binPath, args...)
	execCmd.Dir = workingDir
	execCmd.Env = append(os.Environ(),
		"ANOMA_LOG=info",
		"TM_LOG_LEVEL=info",
		"ANOMA_LOG_COLOR=false",
	)
	cmdStr := binPath + " " + strings.Join(args, " ")

	ptmx, err := pty.Start(execCmd)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to run: %s\nlocation: %s", cmdStr, loc)
	}

	logDir := filepath.Join(baseDir, "logs")
	if err := fileutil.MkdirAll(logDir); err != nil {
		_ = ptmx.Close()
		return nil, errors.Wrapf(err, "could not create log dir for: %s", cmdStr)
	}
	logPath := filepath.Join(logDir, fmt.Sprintf(
		"%d-%s-%d.log", time.Now().UnixMicro(), logName, rand.Uint64(),
	))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		_ = ptmx.Close()
		return nil, errors.Wrapf(err, "could not create log file for: %s", cmdStr)
	}

	cmd := &Cmd{
		CmdStr:  cmdStr,
		LogPath: logPath,
		cmd:     execCmd,
		ptmx:    ptmx,
		logFile: logFile,
		loc:     loc,
		timeout: timeout,
		waitCh:  make(chan struct{}),
	}
	go func() {
		_ = execCmd.Wait()
		close(cmd.waitCh)
	}()

	fmt.Printf("%s:\n%s\n", aurora.Underline(aurora.Green("> Running")), cmd)
	return cmd, nil
}

func binaryPath(workingDir string, bin Bin) string {
	if prebuilt := os.Getenv(EnvVarUsePrebuiltBinaries); prebuilt != "" {
		return filepath.Join(prebuilt, bin.name())
	}
	profile := "release"
	if strings.ToLower(os.Getenv(EnvVarDebug)) == "true" {
		profile = "debug"
	}
	return filepath.Join(workingDir, "target", profile, bin.name())
}

// ExpectString blocks until the literal needle appears on the child's
// output and returns everything consumed before it.
func (c *Cmd) ExpectString(needle string) (string, error) {
	deadline := c.deadline()
	for {
		if i := bytes.Index(c.buf.Bytes(), []byte(needle)); i >= 0 {
			return c.consume(i, i+len(needle)), nil
		}
		if err := c.readChunk(deadline); err != nil {
			return "", c.expectErr(err, needle)
		}
	}
}

// ExpectRegex blocks until the pattern matches the child's output and
// returns the text consumed before the match along with the matched text.
func (c *Cmd) ExpectRegex(pattern string) (string, string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", "", errors.Wrapf(err, "command: %s", c)
	}
	deadline := c.deadline()
	for {
		if loc := re.FindIndex(c.buf.Bytes()); loc != nil {
			matched := string(c.buf.Bytes()[loc[0]:loc[1]])
			before := c.consume(loc[0], loc[1])
			return before, matched, nil
		}
		if err := c.readChunk(deadline); err != nil {
			return "", "", c.expectErr(err, pattern)
		}
	}
}

// ExpectEOF blocks until the child closes its side of the PTY and returns
// all remaining output. Empty output is an error.
func (c *Cmd) ExpectEOF() (string, error) {
	output, err := c.drainEOF()
	if err != nil {
		return "", err
	}
	if output == "" {
		return "", errors.Errorf("expected output before EOF\ncommand: %s", c)
	}
	return output, nil
}

// drainEOF reads until EOF, tolerating empty output.
func (c *Cmd) drainEOF() (string, error) {
	deadline := c.deadline()
	for !c.eof {
		if err := c.readChunk(deadline); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", c.expectErr(err, "EOF")
		}
	}
	output := c.buf.String()
	c.buf.Reset()
	return output, nil
}

// SendLine writes a line to the PTY.
func (c *Cmd) SendLine(line string) error {
	if _, err := c.ptmx.WriteString(line + "\n"); err != nil {
		return errors.Wrapf(err, "command: %s", c)
	}
	return nil
}

// SendControl sends a control code to the running process, e.g.
// SendControl('c') sends ctrl-c. Case does not matter.
func (c *Cmd) SendControl(ch rune) error {
	upper := unicode.ToUpper(ch)
	if upper < 'A' || upper > 'Z' {
		return errors.Errorf("cannot send control '%c'\ncommand: %s", ch, c)
	}
	if _, err := c.ptmx.Write([]byte{byte(upper-'A') + 1}); err != nil {
		return errors.Wrapf(err, "command: %s", c)
	}
	return nil
}

// AssertSuccess drains the remaining output, waits for the child to exit
// and fails unless the exit code is zero.
func (c *Cmd) AssertSuccess() error {
	if _, err := c.drainEOF(); err != nil {
		return err
	}
	<-c.waitCh
	if code := c.cmd.ProcessState.ExitCode(); code != 0 {
		return errors.Errorf("expected success, child exited with %d\ncommand: %s", code, c)
	}
	return nil
}

// AssertFailure drains the remaining output, waits for the child to exit
// and fails if the exit code is zero.
func (c *Cmd) AssertFailure() error {
	if _, err := c.drainEOF(); err != nil {
		return err
	}
	<-c.waitCh
	if code := c.cmd.ProcessState.ExitCode(); code == 0 {
		return errors.Errorf("expected failure, child exited with 0\ncommand: %s", c)
	}
	return nil
}

// Close attempts to clean up the child: it sends an interrupt, drains the
// remaining output and prints a summary. Expectation timeouts never kill
// the child, this is the canonical cancellation.
func (c *Cmd) Close() {
	fmt.Printf("%s: %s\n", aurora.Underline(aurora.Yellow("> Sending interrupt to command")), c.CmdStr)
	_ = c.SendControl('c')

	output, err := c.drainEOF()
	if err != nil {
		fmt.Printf("\n%s: %s\n%s: %v\n",
			aurora.Underline(aurora.Red("> Error ensuring command is finished")), c.CmdStr,
			aurora.Underline(aurora.Red("Error")), err,
		)
		_ = c.cmd.Process.Kill()
	} else {
		fmt.Printf("\n%s: %s\n", aurora.Underline(aurora.Green("> Command finished")), c.CmdStr)
		output = strings.TrimSpace(output)
		if output != "" {
			fmt.Printf("\n%s: %s\n\n%s\n",
				aurora.Underline(aurora.Yellow("> Unread output for command")), c.CmdStr, output,
			)
		} else {
			fmt.Printf("\n%s: %s\n",
				aurora.Underline(aurora.Green("> No unread output for command")), c.CmdStr,
			)
		}
	}

	<-c.waitCh
	_ = c.logFile.Close()
	_ = c.ptmx.Close()
}

// BgCmd is a command moved to a background reader that keeps the PTY
// buffer drained so the child can never block on writes.
type BgCmd struct {
	join  chan *Cmd
	abort chan struct{}
}

// Background moves the command to a background reader. Call Foreground on
// the returned BgCmd to stop the loop and get the command back.
func (c *Cmd) Background() *BgCmd {
	abort := make(chan struct{})
	join := make(chan *Cmd, 1)
	go func() {
		for {
			select {
			case <-abort:
				join <- c
				return
			default:
			}
			if c.eof {
				// Nothing left to drain, wait for the abort.
				<-abort
				join <- c
				return
			}
			_ = c.readChunk(time.Now().Add(50 * time.Millisecond))
			// Drained bytes are discarded, the log file keeps everything.
			c.buf.Reset()
		}
	}()
	return &BgCmd{join: join, abort: abort}
}

// Foreground sends the abort, joins the reader and returns the original
// command.
func (bg *BgCmd) Foreground() *Cmd {
	close(bg.abort)
	return <-bg.join
}

func (c *Cmd) deadline() time.Time {
	if c.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.timeout)
}

// readChunk pulls whatever the PTY has into the buffer, teeing it into the
// log file. It returns io.EOF once the child has closed its side and
// os.ErrDeadlineExceeded when the expect deadline passes first.
func (c *Cmd) readChunk(deadline time.Time) error {
	if c.eof {
		return io.EOF
	}
	if err := c.ptmx.SetReadDeadline(deadline); err != nil {
		return err
	}
	chunk := make([]byte, 4096)
	n, err := c.ptmx.Read(chunk)
	if n > 0 {
		c.buf.Write(chunk[:n])
		_, _ = c.logFile.Write(chunk[:n])
	}
	if err != nil {
		if isPtyEOF(err) {
			c.eof = true
			return io.EOF
		}
		return err
	}
	return nil
}

// A Linux PTY master reports a closed slave side as EIO rather than EOF.
func isPtyEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO)
}

// consume cuts the buffer at the end of a match and returns the text
// before the match's start.
func (c *Cmd) consume(matchStart, matchEnd int) string {
	b := c.buf.Bytes()
	before := string(b[:matchStart])
	rest := append([]byte(nil), b[matchEnd:]...)
	c.buf.Reset()
	c.buf.Write(rest)
	return before
}

func (c *Cmd) expectErr(err error, needle string) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return errors.Errorf(
			"pattern not observed within %s\ncommand: %s\nlocation: %s\nneedle: %s",
			c.timeout, c, c.loc, needle,
		)
	}
	if errors.Is(err, io.EOF) {
		return errors.Errorf(
			"expected needle not found before EOF\ncommand: %s\nlocation: %s\nneedle: %s",
			c, c.loc, needle,
		)
	}
	return errors.Wrapf(err, "command: %s\nlocation: %s", c, c.loc)
}

// Sleep pauses the calling goroutine for the given seconds.
func Sleep(seconds uint64) {
	time.Sleep(time.Duration(seconds) * time.Second)
}
