package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Contains(t, c.Intercept.Wrappers, "cc")
	require.Contains(t, c.Sources.Extensions, ".cpp")
	require.False(t, c.Intercept.StagedWrite)

	names := map[string]bool{}
	for _, cc := range c.Compilers {
		names[cc.Name] = true
	}
	for _, n := range []string{"gnu", "clang", "fortran", "cray-ftnfe", "cuda"} {
		require.True(t, names[n], "missing compiler %s", n)
	}
}

func TestLoadEmptyPathIsDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	d, err := Default()
	require.NoError(t, err)
	require.Equal(t, d, c)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildtrace.yaml")
	body := `
intercept:
  wrappers: [mycc]
  staged_write: true
output:
  exclude: ["/usr/include/", " /opt/sdk "]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"mycc"}, c.Intercept.Wrappers)
	require.True(t, c.Intercept.StagedWrite)
	require.Equal(t, []string{"/usr/include", "/opt/sdk"}, c.Output.Exclude)
	// Untouched sections keep their defaults.
	require.NotEmpty(t, c.Compilers)
	require.Contains(t, c.Sources.Extensions, ".c")
}

func TestParseEmptyDocument(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	require.NotEmpty(t, c.Compilers)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown field":      "intercep:\n  wrappers: [cc]\n",
		"slash in wrapper":   "intercept:\n  wrappers: [/usr/bin/cc]\n",
		"self wrapper":       "intercept:\n  wrappers: [buildtrace]\n",
		"duplicate wrapper":  "intercept:\n  wrappers: [cc, cc]\n",
		"compiler no name":   "compilers:\n  - executables: [cc]\n",
		"compiler no exe":    "compilers:\n  - name: x\n",
		"bad pattern":        "compilers:\n  - name: x\n    executables: ['[']\n",
		"duplicate compiler": "compilers:\n  - {name: x, executables: [a]}\n  - {name: x, executables: [b]}\n",
		"bad extension":      "sources:\n  extensions: [c]\n",
		"empty exclude":      "output:\n  exclude: ['']\n",
		"not yaml":           "intercept: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestParseNoCompilers(t *testing.T) {
	_, err := Parse([]byte("compilers: []\n"))
	require.ErrorIs(t, err, ErrNoCompilers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
