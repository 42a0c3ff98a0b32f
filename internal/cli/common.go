package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/melonattacker/buildtrace/internal/config"
	"github.com/melonattacker/buildtrace/internal/logging"
)

// ExitStatusError reports that the build finished with a non-zero status.
// main exits with Code and prints nothing, the build has already spoken.
type ExitStatusError struct {
	Code int
}

func (e *ExitStatusError) Error() string {
	return fmt.Sprintf("build exited with status %d", e.Code)
}

func exitStatus(code int) error {
	if code == 0 {
		return nil
	}
	return &ExitStatusError{Code: code}
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath string
	verbose    bool
	logFormat  string
}

func addCommonFlags(fs *pflag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVarP(&c.configPath, "config", "c", "", "YAML configuration overlaying the built-in defaults")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging, also enabled in wrapped compilers")
	fs.StringVar(&c.logFormat, "log-format", string(logging.FormatText), "log format: text or json")
	return c
}

// setup installs the logger and loads the configuration.
func (c *commonFlags) setup(component string) (*config.Config, error) {
	format, err := logging.ParseFormat(c.logFormat)
	if err != nil {
		return nil, err
	}
	logging.Setup(os.Stderr, logging.Options{Verbose: c.verbose, Format: format, Component: component})
	return config.Load(c.configPath)
}

// splitCommand returns the arguments after "--", rejecting stray positional
// arguments before it.
func splitCommand(fs *pflag.FlagSet) ([]string, error) {
	dash := fs.ArgsLenAtDash()
	if dash == -1 {
		if fs.NArg() > 0 {
			return nil, fmt.Errorf("%s expects '-- <build command...>' before %q", fs.Name(), fs.Arg(0))
		}
		return nil, fmt.Errorf("%s expects '-- <build command...>'", fs.Name())
	}
	if dash > 0 {
		return nil, fmt.Errorf("unexpected argument %q before '--'", fs.Arg(0))
	}
	cmd := fs.Args()
	if len(cmd) == 0 {
		return nil, errors.New("no build command provided")
	}
	return cmd, nil
}

func noArgs(fs *pflag.FlagSet) error {
	if fs.NArg() > 0 {
		return fmt.Errorf("%s takes no arguments, got %q", fs.Name(), fs.Arg(0))
	}
	return nil
}
