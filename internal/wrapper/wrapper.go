// Package wrapper implements the process that stands in for a compiler
// during an intercepted build. It runs the real program, reports its start
// and end to the session's event directory, and exits with the program's
// status.
package wrapper

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/melonattacker/buildtrace/internal/config"
	"github.com/melonattacker/buildtrace/internal/model"
	"github.com/melonattacker/buildtrace/internal/protocol"
)

var ErrNotIntercepting = errors.New("not running under buildtrace: " + config.EnvReportDir + " is not set")

// Exit statuses used by shells for command lookup failures.
const (
	ExitNotFound      = 127
	ExitNotExecutable = 126
)

type Options struct {
	Name   string   // basename the wrapper was invoked as
	Args   []string // arguments, without argv[0]
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
}

func (o *Options) defaults() {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
}

// Run executes the wrapped program and returns the status the wrapper should
// exit with. A non-nil error means the program could not be run or its
// events could not be recorded.
func Run(opts Options) (int, error) {
	opts.defaults()

	reportDir := opts.Getenv(config.EnvReportDir)
	if strings.TrimSpace(reportDir) == "" {
		return 1, ErrNotIntercepting
	}
	var pubOpts []protocol.PublisherOption
	if opts.Getenv(config.EnvStagedWrite) == "1" {
		pubOpts = append(pubOpts, protocol.WithStagedWrite())
	}
	pub, err := protocol.Bind(reportDir, pubOpts...)
	if err != nil {
		return 1, err
	}

	program, err := LookPath(opts.Name, opts.Getenv("PATH"), opts.Getenv(config.EnvWrapperDir))
	if err != nil {
		return ExitNotFound, err
	}
	slog.Debug("resolved wrapped program", "name", opts.Name, "path", program)

	cwd, err := os.Getwd()
	if err != nil {
		return 1, fmt.Errorf("getwd: %w", err)
	}

	argv := append([]string{opts.Name}, opts.Args...)
	cmd := &exec.Cmd{
		Path:   program,
		Args:   argv,
		Stdin:  opts.Stdin,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
	}

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, forwardedSignals...)
	defer signal.Stop(sigCh)

	if err := cmd.Start(); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return ExitNotExecutable, fmt.Errorf("start %s: %w", program, err)
		}
		return ExitNotFound, fmt.Errorf("start %s: %w", program, err)
	}
	pid := model.ProcessID(cmd.Process.Pid)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				_ = cmd.Process.Signal(sig)
			case <-done:
				return
			}
		}
	}()

	err = pub.Publish(model.NewEnvelope(pid, model.Started{
		PPID:       model.ProcessID(os.Getppid()),
		Cwd:        cwd,
		Executable: program,
		Arguments:  argv,
	}))
	if err != nil {
		// A build step that cannot be recorded must not pass silently.
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return 1, err
	}

	waitErr := cmd.Wait()
	if cmd.ProcessState == nil {
		return 1, fmt.Errorf("wait %s: %w", program, waitErr)
	}
	ev, status := ExitEvent(cmd.ProcessState)
	if err := pub.Publish(model.NewEnvelope(pid, ev)); err != nil {
		return 1, err
	}
	return status, nil
}

// LookPath finds name on pathList, skipping skipDir (the wrapper directory)
// and any entry that resolves to the running executable.
func LookPath(name, pathList, skipDir string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		return "", fmt.Errorf("wrapper name %q must not contain a path separator", name)
	}
	self := resolve(selfExecutable())
	skip := ""
	if skipDir != "" {
		skip = resolve(skipDir)
	}
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			dir = "."
		}
		if skip != "" && resolve(dir) == skip {
			continue
		}
		p := filepath.Join(dir, name)
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() || fi.Mode().Perm()&0o111 == 0 {
			continue
		}
		if self != "" && resolve(p) == self {
			continue
		}
		return p, nil
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

func selfExecutable() string {
	p, err := os.Executable()
	if err != nil {
		return ""
	}
	return p
}

func resolve(p string) string {
	if p == "" {
		return ""
	}
	if r, err := filepath.EvalSymlinks(p); err == nil {
		p = r
	}
	if a, err := filepath.Abs(p); err == nil {
		p = a
	}
	return filepath.Clean(p)
}
