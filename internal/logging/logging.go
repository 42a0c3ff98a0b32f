// Package logging configures the process-wide slog logger. Every buildtrace
// process, including each wrapped compiler, calls Setup once at startup.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/melonattacker/buildtrace/internal/config"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type Options struct {
	Verbose   bool
	Format    Format
	Component string
}

// ParseFormat accepts "text" or "json"; empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown log format %q", s)
	}
}

// Setup installs a logger writing to w as the slog default and returns it.
func Setup(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if opts.Format == FormatJSON {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	l := slog.New(h)
	if opts.Component != "" {
		l = l.With("component", opts.Component)
	}
	slog.SetDefault(l)
	return l
}

// VerboseFromEnv reports whether the parent process asked for debug logs.
func VerboseFromEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(config.EnvVerbose))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// VerboseEnv returns the environment entry that forwards verbosity to child
// processes.
func VerboseEnv(verbose bool) string {
	if verbose {
		return config.EnvVerbose + "=1"
	}
	return config.EnvVerbose + "=0"
}
