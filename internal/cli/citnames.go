package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/melonattacker/buildtrace/internal/compdb"
	"github.com/melonattacker/buildtrace/internal/config"
	"github.com/melonattacker/buildtrace/internal/execution"
	"github.com/melonattacker/buildtrace/internal/storage"
)

func CitnamesCommand(args []string) error {
	fs := newFlagSet("citnames", args, citnamesUsage)
	var inputPath string
	var outputPath string
	var appendOut bool
	fs.StringVarP(&inputPath, "input", "i", "events.jsonl", "events file written by intercept")
	fs.StringVarP(&outputPath, "output", "o", "compile_commands.json", "compilation database to write")
	fs.BoolVarP(&appendOut, "append", "a", false, "keep the entries already in the output file")
	common := addCommonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		fs.Usage()
		return err
	}
	cfg, err := common.setup("citnames")
	if err != nil {
		return err
	}
	_, err = citnames(cfg, inputPath, outputPath, appendOut)
	return err
}

// citnames converts the events file at input into a compilation database at
// output and returns the number of entries written.
func citnames(cfg *config.Config, input, output string, appendOut bool) (int, error) {
	envs, err := storage.ReadJSONL(input)
	if err != nil {
		return 0, err
	}
	execs := execution.Build(envs)
	entries := compdb.FromExecutions(execs, compdb.NewRecognizer(cfg))
	slog.Debug("recognized compilations", "executions", len(execs), "entries", len(entries))

	if appendOut {
		prev, err := compdb.Read(output)
		switch {
		case err == nil:
			entries = compdb.Merge(prev, entries)
		case os.IsNotExist(err):
		default:
			return 0, err
		}
	}
	if err := compdb.Write(output, entries); err != nil {
		return 0, err
	}
	slog.Info("compilation database written", "path", output, "entries", len(entries))
	return len(entries), nil
}

func citnamesUsage(w io.Writer, fs *pflag.FlagSet) {
	prog := progName()
	fmt.Fprintf(w, "%s citnames: write compile_commands.json from recorded events\n\n", prog)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s citnames [flags]\n\n", prog)
	printFlags(w, fs)
}
