// Package intercept runs a build with compiler wrappers on PATH and collects
// the events they report.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/melonattacker/buildtrace/internal/config"
	"github.com/melonattacker/buildtrace/internal/logging"
	"github.com/melonattacker/buildtrace/internal/model"
	"github.com/melonattacker/buildtrace/internal/protocol"
	"github.com/melonattacker/buildtrace/internal/wrapper"
)

const wrapperDirPrefix = "buildtrace-wrap-"

// How long a cancelled build gets between the interrupt and the kill.
const cancelGrace = 10 * time.Second

// EnvelopeSink receives the collected envelopes, oldest first.
type EnvelopeSink interface {
	Append(env model.Envelope) error
}

type Options struct {
	Command   []string
	Config    *config.Config
	Sink      EnvelopeSink
	SessionID string // generated when empty
	Verbose   bool

	// Executable is linked into the wrapper directory under every wrapper
	// name. Defaults to the running binary.
	Executable string
	// TempDir is the parent of the event and wrapper directories. Defaults to
	// os.TempDir().
	TempDir string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

type Result struct {
	SessionID string
	ExitCode  int
	Envelopes int
}

func (o *Options) validate() error {
	if len(o.Command) == 0 {
		return errors.New("missing build command")
	}
	if o.Config == nil {
		return errors.New("missing config")
	}
	if o.Sink == nil {
		return errors.New("missing envelope sink")
	}
	if o.SessionID == "" {
		o.SessionID = uuid.NewString()
	}
	if o.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate buildtrace executable: %w", err)
		}
		o.Executable = exe
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return nil
}

// Run executes the build and stores every envelope reported during it in
// opts.Sink. The returned exit code is the build's; a non-nil error means the
// build could not be run or its events could not be collected.
func Run(ctx context.Context, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	res := Result{SessionID: opts.SessionID, ExitCode: 1}

	store, err := protocol.NewStoreIn(opts.TempDir)
	if err != nil {
		return res, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("remove event directory failed", "dir", store.Path(), "error", err)
		}
	}()

	wrapDir, err := makeWrapperDir(opts.TempDir, opts.Executable, opts.Config.Intercept.Wrappers)
	if err != nil {
		return res, err
	}
	defer func() {
		if err := os.RemoveAll(wrapDir); err != nil {
			slog.Warn("remove wrapper directory failed", "dir", wrapDir, "error", err)
		}
	}()

	pubOpts := []protocol.PublisherOption{}
	if opts.Config.Intercept.StagedWrite {
		pubOpts = append(pubOpts, protocol.WithStagedWrite())
	}
	pub, err := protocol.Bind(store.Path(), pubOpts...)
	if err != nil {
		return res, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return res, fmt.Errorf("getwd: %w", err)
	}

	env := buildEnv(os.Environ(), wrapDir, store.Path(), opts.Verbose, opts.Config.Intercept.StagedWrite)
	program, err := lookPath(opts.Command[0], env)
	if err != nil {
		return res, err
	}

	cmd := exec.CommandContext(ctx, program, opts.Command[1:]...)
	cmd.Args[0] = opts.Command[0]
	cmd.Env = env
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = cancelGrace

	slog.Debug("starting build", "session", opts.SessionID, "command", opts.Command, "events", store.Path(), "wrappers", wrapDir)
	if err := cmd.Start(); err != nil {
		return res, fmt.Errorf("start build: %w", err)
	}
	pid := model.ProcessID(cmd.Process.Pid)
	if err := pub.Publish(model.NewEnvelope(pid, model.Started{
		PPID:       model.ProcessID(os.Getpid()),
		Cwd:        cwd,
		Executable: program,
		Arguments:  slices.Clone(opts.Command),
	})); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return res, err
	}

	waitErr := cmd.Wait()
	if cmd.ProcessState == nil {
		return res, fmt.Errorf("wait build: %w", waitErr)
	}
	ev, status := wrapper.ExitEvent(cmd.ProcessState)
	res.ExitCode = status
	if err := pub.Publish(model.NewEnvelope(pid, ev)); err != nil {
		return res, err
	}
	slog.Debug("build finished", "session", opts.SessionID, "exit_code", status)

	n, err := drain(store, opts.Sink)
	res.Envelopes = n
	if err != nil {
		return res, err
	}
	return res, nil
}

// drain moves every envelope of the store into sink, ordered by timestamp.
func drain(store *protocol.Store, sink EnvelopeSink) (int, error) {
	seq, err := store.OpenSequence()
	if err != nil {
		return 0, err
	}
	defer seq.Close()

	var envs []model.Envelope
	for env := range seq.All() {
		envs = append(envs, env)
	}
	slices.SortStableFunc(envs, func(a, b model.Envelope) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	for i, env := range envs {
		if err := sink.Append(env); err != nil {
			return i, fmt.Errorf("store envelope: %w", err)
		}
	}
	return len(envs), nil
}

func makeWrapperDir(parent, exe string, names []string) (string, error) {
	dir, err := os.MkdirTemp(parent, wrapperDirPrefix)
	if err != nil {
		return "", fmt.Errorf("create wrapper directory: %w", err)
	}
	for _, name := range names {
		if err := os.Symlink(exe, filepath.Join(dir, name)); err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("link wrapper %s: %w", name, err)
		}
	}
	return dir, nil
}

// buildEnv returns base with the wrapper directory in front of PATH and the
// variables wrappers read set. Earlier values of those variables are dropped.
func buildEnv(base []string, wrapDir, reportDir string, verbose, staged bool) []string {
	path := ""
	out := make([]string, 0, len(base)+5)
	for _, kv := range base {
		k, v, _ := strings.Cut(kv, "=")
		switch {
		case k == "PATH":
			path = v
			continue
		case strings.HasPrefix(k, "BUILDTRACE_"):
			continue
		}
		out = append(out, kv)
	}
	if path == "" {
		path = wrapDir
	} else {
		path = wrapDir + string(os.PathListSeparator) + path
	}
	stagedVal := "0"
	if staged {
		stagedVal = "1"
	}
	return append(out,
		"PATH="+path,
		config.EnvReportDir+"="+reportDir,
		config.EnvWrapperDir+"="+wrapDir,
		config.EnvStagedWrite+"="+stagedVal,
		logging.VerboseEnv(verbose),
	)
}

// lookPath resolves the build command against the PATH the build will see,
// so a build invoked as a bare compiler name goes through its wrapper too.
func lookPath(name string, env []string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		return name, nil
	}
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			for _, dir := range filepath.SplitList(v) {
				if dir == "" {
					dir = "."
				}
				p := filepath.Join(dir, name)
				if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() && fi.Mode().Perm()&0o111 != 0 {
					return p, nil
				}
			}
		}
	}
	return "", fmt.Errorf("build command %s: %w", name, exec.ErrNotFound)
}
