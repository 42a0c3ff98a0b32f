package intercept

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/melonattacker/buildtrace/internal/config"
	"github.com/melonattacker/buildtrace/internal/model"
)

type sliceSink struct{ envs []model.Envelope }

func (s *sliceSink) Append(env model.Envelope) error {
	s.envs = append(s.envs, env)
	return nil
}

// fakeWrapper stands in for the buildtrace binary: it drops one report into
// the event directory the way a real wrapper would.
const fakeWrapper = `#!/bin/sh
printf '{"pid":77,"timestamp":"2000-01-01T00:00:00Z","event":{"type":"continued","detail":{}}}' > "$BUILDTRACE_REPORT_DIR/report-000000000000000000000077.json"
`

func setup(t *testing.T, wrappers ...string) (Options, *sliceSink) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	tmp := t.TempDir()
	exe := filepath.Join(tmp, "fake-buildtrace")
	require.NoError(t, os.WriteFile(exe, []byte(fakeWrapper), 0o755))

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Intercept.Wrappers = wrappers

	sink := &sliceSink{}
	return Options{
		Config:     cfg,
		Sink:       sink,
		Executable: exe,
		TempDir:    tmp,
		Stdout:     &bytes.Buffer{},
		Stderr:     &bytes.Buffer{},
	}, sink
}

func TestRunReportsRootProcess(t *testing.T) {
	opts, sink := setup(t)
	opts.Command = []string{"sh", "-c", "exit 3"}

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
	require.Equal(t, 2, res.Envelopes)
	require.NotEmpty(t, res.SessionID)

	require.Len(t, sink.envs, 2)
	started, ok := sink.envs[0].Event.(model.Started)
	require.True(t, ok)
	require.Equal(t, []string{"sh", "-c", "exit 3"}, started.Arguments)
	require.Equal(t, model.ProcessID(os.Getpid()), started.PPID)
	require.Equal(t, model.Terminated{Status: 3}, sink.envs[1].Event)
	require.Equal(t, sink.envs[0].PID, sink.envs[1].PID)
}

func TestRunCollectsWrapperReports(t *testing.T) {
	opts, sink := setup(t, "fakecc")
	opts.SessionID = "session-1"
	opts.Command = []string{"sh", "-c", `case "$PATH" in "$BUILDTRACE_WRAPPER_DIR"*) fakecc ;; *) exit 9 ;; esac`}

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "session-1", res.SessionID)
	require.Equal(t, 3, res.Envelopes)

	// Sorted by time: the fake report is stamped in 2000.
	require.Equal(t, model.ProcessID(77), sink.envs[0].PID)
	require.Equal(t, model.Continued{}, sink.envs[0].Event)

	ents, err := os.ReadDir(opts.TempDir)
	require.NoError(t, err)
	for _, e := range ents {
		require.False(t, strings.HasPrefix(e.Name(), "buildtrace-"), "temporary directory %s left behind", e.Name())
	}
}

func TestRunSignaledBuild(t *testing.T) {
	opts, sink := setup(t)
	opts.Command = []string{"sh", "-c", "kill -TERM $$"}

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, 128+15, res.ExitCode)
	require.Equal(t, model.Signaled{Signal: "SIGTERM"}, sink.envs[len(sink.envs)-1].Event)
}

func TestRunCancelled(t *testing.T) {
	opts, _ := setup(t)
	opts.Command = []string{"sleep", "30"}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	res, err := Run(ctx, opts)
	require.NoError(t, err)
	require.Equal(t, 128+2, res.ExitCode)
	require.Less(t, time.Since(start), cancelGrace)
}

func TestRunCommandNotFound(t *testing.T) {
	opts, sink := setup(t)
	opts.Command = []string{"no-such-build-tool"}

	_, err := Run(context.Background(), opts)
	require.Error(t, err)
	require.Empty(t, sink.envs)
}

func TestRunValidatesOptions(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	require.Error(t, err)
}

func TestBuildEnv(t *testing.T) {
	env := buildEnv([]string{"HOME=/h", "PATH=/usr/bin", "BUILDTRACE_REPORT_DIR=/stale"}, "/w", "/r", true, false)
	require.Contains(t, env, "HOME=/h")
	require.Contains(t, env, "PATH=/w"+string(os.PathListSeparator)+"/usr/bin")
	require.Contains(t, env, config.EnvReportDir+"=/r")
	require.Contains(t, env, config.EnvWrapperDir+"=/w")
	require.Contains(t, env, config.EnvVerbose+"=1")
	require.Contains(t, env, config.EnvStagedWrite+"=0")
	require.NotContains(t, env, "BUILDTRACE_REPORT_DIR=/stale")
}
