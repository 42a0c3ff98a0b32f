package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/melonattacker/buildtrace/internal/config"
)

func progName() string {
	if len(os.Args) == 0 {
		return config.ProgramName
	}
	return filepath.Base(os.Args[0])
}

func isHelpRequest(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		switch a {
		case "-h", "--help", "help":
			return true
		}
	}
	return false
}

func usageWriter(args []string) io.Writer {
	if isHelpRequest(args) {
		return os.Stdout
	}
	return os.Stderr
}

// newFlagSet creates a FlagSet that:
// - prints usage to stdout for help requests, stderr otherwise
// - suppresses pflag's own error printing (main prints errors once)
func newFlagSet(name string, args []string, usage func(w io.Writer, fs *pflag.FlagSet)) *pflag.FlagSet {
	w := usageWriter(args)
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	fs.Usage = func() { usage(w, fs) }
	return fs
}

func printFlags(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, fs.FlagUsages())
}

// PrintRootHelp describes every subcommand.
func PrintRootHelp(w io.Writer) {
	prog := progName()
	fmt.Fprintf(w, "%s: record compiler calls of a build and write a compilation database\n\n", prog)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s <command> [args]\n", prog)
	fmt.Fprintf(w, "  %s help [command]\n\n", prog)

	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run         Run a build and write compile_commands.json.")
	fmt.Fprintln(w, "  intercept   Run a build and record its compiler calls as events.")
	fmt.Fprintln(w, "  citnames    Turn recorded events into compile_commands.json.")
	fmt.Fprintln(w, "  sessions    List builds and events stored in a SQLite index.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  %s run -- make -j8\n", prog)
	fmt.Fprintf(w, "  %s intercept --output events.jsonl --index events.sqlite -- ninja\n", prog)
	fmt.Fprintf(w, "  %s citnames --input events.jsonl --append\n", prog)
	fmt.Fprintf(w, "  %s sessions --index events.sqlite\n\n", prog)

	fmt.Fprintln(w, "Environment (set for wrapped compilers):")
	fmt.Fprintf(w, "  %-24s Directory wrappers report events into\n", config.EnvReportDir)
	fmt.Fprintf(w, "  %-24s Wrapper directory skipped when resolving compilers\n", config.EnvWrapperDir)
	fmt.Fprintf(w, "  %-24s Debug logging in wrappers when 1\n", config.EnvVerbose)
	fmt.Fprintf(w, "  %-24s Write-then-rename reports when 1\n", config.EnvStagedWrite)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Help:")
	fmt.Fprintf(w, "  %s -h\n", prog)
	fmt.Fprintf(w, "  %s <command> -h\n", prog)
}
