package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/melonattacker/buildtrace/internal/config"
	"github.com/melonattacker/buildtrace/internal/intercept"
	"github.com/melonattacker/buildtrace/internal/storage"
)

func InterceptCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("intercept", args, interceptUsage)
	var eventsPath string
	var indexPath string
	fs.StringVarP(&eventsPath, "output", "o", "events.jsonl", "events file, one envelope per line")
	fs.StringVar(&indexPath, "index", "", "also index the session into this SQLite database")
	common := addCommonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	command, err := splitCommand(fs)
	if err != nil {
		fs.Usage()
		return err
	}
	cfg, err := common.setup("intercept")
	if err != nil {
		return err
	}

	res, err := interceptBuild(ctx, interceptParams{
		command:    command,
		config:     cfg,
		eventsPath: eventsPath,
		indexPath:  indexPath,
		verbose:    common.verbose,
	})
	if err != nil {
		return err
	}
	return exitStatus(res.ExitCode)
}

type interceptParams struct {
	command    []string
	config     *config.Config
	eventsPath string
	indexPath  string
	verbose    bool
}

// interceptBuild runs the build and exports its session. The sink is closed
// on every path so a failed build still leaves a readable events file.
func interceptBuild(ctx context.Context, p interceptParams) (intercept.Result, error) {
	sessionID := uuid.NewString()
	cwd, err := os.Getwd()
	if err != nil {
		return intercept.Result{}, fmt.Errorf("getwd: %w", err)
	}
	sink, err := storage.Open(storage.OpenParams{
		SessionID:  sessionID,
		EventsPath: p.eventsPath,
		IndexPath:  p.indexPath,
		StartTS:    storage.NowUnixNanos(),
		Command:    strings.Join(p.command, " "),
		Cwd:        cwd,
	})
	if err != nil {
		return intercept.Result{}, err
	}

	res, runErr := intercept.Run(ctx, intercept.Options{
		Command:   p.command,
		Config:    p.config,
		Sink:      sink,
		SessionID: sessionID,
		Verbose:   p.verbose,
	})
	closeErr := sink.Close(storage.NowUnixNanos(), res.ExitCode)
	if err := errors.Join(runErr, closeErr); err != nil {
		return res, err
	}
	slog.Info("build intercepted", "session", res.SessionID, "exit_code", res.ExitCode, "events", res.Envelopes)
	return res, nil
}

func interceptUsage(w io.Writer, fs *pflag.FlagSet) {
	prog := progName()
	fmt.Fprintf(w, "%s intercept: run a build and record its compiler calls\n\n", prog)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s intercept [flags] -- <build command...>\n\n", prog)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  Use '--' to separate buildtrace flags from the build command.")
	fmt.Fprintf(w, "  Compilers are wrapped by putting links to %s first on PATH.\n", prog)
	fmt.Fprintln(w, "  The exit status is the build's.")
	fmt.Fprintln(w)
	printFlags(w, fs)
}
