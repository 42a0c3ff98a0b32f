package compdb

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/melonattacker/buildtrace/internal/config"
	"github.com/melonattacker/buildtrace/internal/execution"
)

// Entry is one record of a JSON compilation database.
type Entry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments"`
	Output    string   `json:"output,omitempty"`
}

// Recognizer decides which executions are compiler calls and turns them
// into entries.
type Recognizer struct {
	compilers  []config.Compiler
	extensions map[string]struct{}
	exclude    []string
}

func NewRecognizer(cfg *config.Config) *Recognizer {
	r := &Recognizer{
		compilers:  cfg.Compilers,
		extensions: make(map[string]struct{}, len(cfg.Sources.Extensions)),
		exclude:    cfg.Output.Exclude,
	}
	for _, ext := range cfg.Sources.Extensions {
		r.extensions[ext] = struct{}{}
	}
	return r
}

// Match returns the configured compiler name for the given program path.
func (r *Recognizer) Match(program string) (string, bool) {
	base := filepath.Base(program)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", false
	}
	for _, c := range r.compilers {
		for _, pat := range c.Executables {
			if ok, _ := filepath.Match(pat, base); ok {
				return c.Name, true
			}
		}
	}
	return "", false
}

func (r *Recognizer) isSource(arg string) bool {
	_, ok := r.extensions[filepath.Ext(arg)]
	return ok
}

func (r *Recognizer) excluded(file string) bool {
	for _, p := range r.exclude {
		if file == p || strings.HasPrefix(file, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// flagsWithValue take their value as the following argument.
var flagsWithValue = map[string]struct{}{
	"-o": {}, "-I": {}, "-D": {}, "-U": {}, "-L": {}, "-J": {}, "-x": {},
	"-include": {}, "-imacros": {}, "-isystem": {}, "-iquote": {}, "-idirafter": {},
	"-iprefix": {}, "-iwithprefix": {}, "-iwithprefixbefore": {}, "-isysroot": {},
	"-MF": {}, "-MT": {}, "-MQ": {}, "-aux-info": {}, "--param": {}, "-arch": {},
	"-target": {}, "--sysroot": {}, "-gcc-toolchain": {}, "-Xlinker": {},
	"-Xpreprocessor": {}, "-Xassembler": {}, "-Xclang": {}, "-ccbin": {},
	"-module-dir": {},
}

// preprocessOnly flags mean no object is compiled.
var preprocessOnly = map[string]struct{}{
	"-E": {}, "-M": {}, "-MM": {},
}

// Entries returns one entry per source file compiled by e. Executions that
// are not compiler calls, that only preprocess, or that only link yield
// nothing.
func (r *Recognizer) Entries(e execution.Execution) []Entry {
	program := e.Executable
	if _, ok := r.Match(program); !ok {
		if len(e.Arguments) == 0 {
			return nil
		}
		if _, ok := r.Match(e.Arguments[0]); !ok {
			return nil
		}
		program = e.Arguments[0]
	}
	if len(e.Arguments) == 0 {
		return nil
	}

	var sources []int
	var output string
	args := e.Arguments
	for i := 1; i < len(args); i++ {
		a := args[i]
		if _, ok := preprocessOnly[a]; ok {
			return nil
		}
		if _, ok := flagsWithValue[a]; ok {
			if a == "-o" && i+1 < len(args) {
				output = args[i+1]
			}
			i++
			continue
		}
		if strings.HasPrefix(a, "-o") && len(a) > 2 {
			output = a[2:]
			continue
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		if r.isSource(a) {
			sources = append(sources, i)
		}
	}
	if len(sources) == 0 {
		return nil
	}

	dir := e.Cwd
	out := make([]Entry, 0, len(sources))
	for _, si := range sources {
		file := args[si]
		if !filepath.IsAbs(file) && dir != "" {
			file = filepath.Join(dir, file)
		}
		file = filepath.Clean(file)
		if r.excluded(file) {
			continue
		}

		cmd := make([]string, 0, len(args))
		cmd = append(cmd, program)
		for i := 1; i < len(args); i++ {
			if i != si && slices.Contains(sources, i) {
				continue
			}
			cmd = append(cmd, args[i])
		}
		out = append(out, Entry{Directory: dir, File: file, Arguments: cmd, Output: output})
	}
	return out
}

// FromExecutions collects the entries of every recognized execution, in
// execution order.
func FromExecutions(execs []execution.Execution, r *Recognizer) []Entry {
	var out []Entry
	for _, e := range execs {
		out = append(out, r.Entries(e)...)
	}
	return out
}
