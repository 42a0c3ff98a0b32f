package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/melonattacker/buildtrace/internal/cli"
	"github.com/melonattacker/buildtrace/internal/config"
	"github.com/melonattacker/buildtrace/internal/logging"
	"github.com/melonattacker/buildtrace/internal/wrapper"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	prog := filepath.Base(os.Args[0])
	if prog != config.ProgramName && os.Getenv(config.EnvReportDir) != "" {
		return wrapperMain(prog)
	}
	if len(os.Args) < 2 {
		cli.PrintRootHelp(os.Stderr)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		err = cli.RunCommand(ctx, normalizeSubcommandHelpArgs(args))
	case "intercept":
		err = cli.InterceptCommand(ctx, normalizeSubcommandHelpArgs(args))
	case "citnames":
		err = cli.CitnamesCommand(normalizeSubcommandHelpArgs(args))
	case "sessions":
		err = cli.SessionsCommand(normalizeSubcommandHelpArgs(args))
	case "help", "-h", "--help":
		return runHelp(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		cli.PrintRootHelp(os.Stderr)
		return 2
	}

	if err != nil {
		var exitErr *cli.ExitStatusError
		switch {
		case errors.Is(err, pflag.ErrHelp):
			return 0
		case errors.As(err, &exitErr):
			return exitErr.Code
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// wrapperMain stands in for the compiler the binary was invoked as.
func wrapperMain(prog string) int {
	logging.Setup(os.Stderr, logging.Options{Verbose: logging.VerboseFromEnv(), Component: "wrapper"})
	status, err := wrapper.Run(wrapper.Options{Name: prog, Args: os.Args[1:]})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s: %v\n", config.ProgramName, prog, err)
	}
	return status
}

func normalizeSubcommandHelpArgs(args []string) []string {
	// Support: `buildtrace <subcommand> help`
	if len(args) > 0 && args[0] == "help" {
		return []string{"-h"}
	}
	return args
}

func runHelp(ctx context.Context, args []string) int {
	if len(args) == 0 {
		cli.PrintRootHelp(os.Stdout)
		return 0
	}
	switch sub := args[0]; sub {
	case "run":
		_ = cli.RunCommand(ctx, []string{"-h"})
	case "intercept":
		_ = cli.InterceptCommand(ctx, []string{"-h"})
	case "citnames":
		_ = cli.CitnamesCommand([]string{"-h"})
	case "sessions":
		_ = cli.SessionsCommand([]string{"-h"})
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", sub)
		cli.PrintRootHelp(os.Stderr)
		return 2
	}
	return 0
}
