package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

func RunCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("run", args, runUsage)
	var outputPath string
	var eventsPath string
	var indexPath string
	var keepEvents bool
	var appendOut bool
	fs.StringVarP(&outputPath, "output", "o", "compile_commands.json", "compilation database to write")
	fs.StringVar(&eventsPath, "events", "events.jsonl", "events file, written only with --keep-events")
	fs.BoolVar(&keepEvents, "keep-events", false, "keep the events file after writing the database")
	fs.StringVar(&indexPath, "index", "", "also index the session into this SQLite database")
	fs.BoolVarP(&appendOut, "append", "a", false, "keep the entries already in the output file")
	common := addCommonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	command, err := splitCommand(fs)
	if err != nil {
		fs.Usage()
		return err
	}
	cfg, err := common.setup("run")
	if err != nil {
		return err
	}

	if !keepEvents {
		tmp, err := os.MkdirTemp("", "buildtrace-run-")
		if err != nil {
			return fmt.Errorf("create events directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		eventsPath = filepath.Join(tmp, "events.jsonl")
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
	if res.ExitCode != 0 {
		slog.Warn("build failed, writing the compilations recorded so far", "exit_code", res.ExitCode)
	}
	if _, err := citnames(cfg, eventsPath, outputPath, appendOut); err != nil {
		return err
	}
	return exitStatus(res.ExitCode)
}

func runUsage(w io.Writer, fs *pflag.FlagSet) {
	prog := progName()
	fmt.Fprintf(w, "%s run: run a build and write compile_commands.json\n\n", prog)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s run [flags] -- <build command...>\n\n", prog)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  Same as intercept followed by citnames.")
	fmt.Fprintln(w, "  The exit status is the build's.")
	fmt.Fprintln(w)
	printFlags(w, fs)
}
