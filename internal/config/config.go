package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment passed from the orchestrator to wrapped processes.
const (
	EnvReportDir  = "BUILDTRACE_REPORT_DIR"
	EnvWrapperDir = "BUILDTRACE_WRAPPER_DIR"
	EnvVerbose    = "BUILDTRACE_VERBOSE"

	// EnvStagedWrite selects the write-then-rename publisher in wrappers.
	EnvStagedWrite = "BUILDTRACE_STAGED_WRITE"
)

// ProgramName is the basename under which the binary runs its own CLI.
// Any other basename selects wrapper mode.
const ProgramName = "buildtrace"

const builtinDefaultsFile = "defaults.yaml"

//go:embed defaults.yaml
var defaultsYAML []byte

var ErrNoCompilers = errors.New("no compilers configured")

type Config struct {
	Intercept Intercept  `yaml:"intercept"`
	Compilers []Compiler `yaml:"compilers"`
	Sources   Sources    `yaml:"sources"`
	Output    Output     `yaml:"output"`
}

type Intercept struct {
	Wrappers    []string `yaml:"wrappers"`
	StagedWrite bool     `yaml:"staged_write"`
}

type Compiler struct {
	Name        string   `yaml:"name"`
	Executables []string `yaml:"executables"`
}

type Sources struct {
	Extensions []string `yaml:"extensions"`
}

type Output struct {
	Exclude []string `yaml:"exclude"`
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(defaultsYAML, &c); err != nil {
		return nil, fmt.Errorf("parse builtin config (%s): %w", builtinDefaultsFile, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("builtin config: %w", err)
	}
	return &c, nil
}

// Load returns the built-in configuration overlaid with the file at path.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse overlays b on the defaults.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	seenWrapper := map[string]struct{}{}
	for i, w := range c.Intercept.Wrappers {
		w = strings.TrimSpace(w)
		if w == "" {
			return errors.New("intercept.wrappers: empty name")
		}
		if strings.ContainsRune(w, '/') || w == "." || w == ".." {
			return fmt.Errorf("intercept.wrappers: %q is not a plain executable name", w)
		}
		if w == ProgramName {
			return fmt.Errorf("intercept.wrappers: %q would shadow this program", w)
		}
		if _, ok := seenWrapper[w]; ok {
			return fmt.Errorf("intercept.wrappers: duplicate %q", w)
		}
		seenWrapper[w] = struct{}{}
		c.Intercept.Wrappers[i] = w
	}

	if len(c.Compilers) == 0 {
		return ErrNoCompilers
	}
	seen := map[string]struct{}{}
	for i := range c.Compilers {
		cc := &c.Compilers[i]
		cc.Name = strings.TrimSpace(cc.Name)
		if cc.Name == "" {
			return fmt.Errorf("compilers[%d]: missing name", i)
		}
		if _, ok := seen[cc.Name]; ok {
			return fmt.Errorf("duplicate compiler %q", cc.Name)
		}
		seen[cc.Name] = struct{}{}
		if len(cc.Executables) == 0 {
			return fmt.Errorf("compiler %q: no executables", cc.Name)
		}
		for _, p := range cc.Executables {
			if _, err := filepath.Match(p, ""); err != nil {
				return fmt.Errorf("compiler %q: bad pattern %q: %w", cc.Name, p, err)
			}
		}
	}

	for _, ext := range c.Sources.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("sources.extensions: invalid extension %q", ext)
		}
	}

	for i, p := range c.Output.Exclude {
		p = strings.TrimSpace(p)
		if p == "" {
			return errors.New("output.exclude: empty path")
		}
		c.Output.Exclude[i] = filepath.Clean(p)
	}
	return nil
}
