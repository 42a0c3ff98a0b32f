package protocol

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/melonattacker/buildtrace/internal/model"
)

const (
	ReportPrefix = "report-"
	ReportSuffix = ".json"

	// stagingPrefix marks files still being written by SaveStaged. Readers
	// ignore them.
	stagingPrefix = "."
	stagingSuffix = ".tmp"

	randBytes   = 12
	createTries = 16
)

// randomName returns prefix + 24 hex chars + suffix. The random part only
// has to avoid collisions between concurrent writers.
func randomName(prefix, suffix string) (string, error) {
	b := make([]byte, randBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return prefix + hex.EncodeToString(b) + suffix, nil
}

// createExclusive creates a new file named prefix<random>suffix in dir,
// retrying on name collisions.
func createExclusive(dir, prefix, suffix string) (*os.File, error) {
	for i := 0; i < createTries; i++ {
		name, err := randomName(prefix, suffix)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("create report in %s: too many name collisions", dir)
}

// Save writes env into a new uniquely named report file inside dir and
// returns its path. The file is created under its final name; if any step
// fails the file is removed again so no partial record is left behind.
func Save(dir string, env model.Envelope) (path string, err error) {
	f, err := createExclusive(dir, ReportPrefix, ReportSuffix)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	path = f.Name()

	keep := false
	defer func() {
		if !keep {
			_ = f.Close()
			_ = os.Remove(path)
		}
	}()

	if err := encode(f, env); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	keep = true
	return path, nil
}

// SaveStaged is the stricter variant of Save: the record is written under a
// hidden staging name and renamed into place, so a listing never shows an
// incomplete report under its final name.
func SaveStaged(dir string, env model.Envelope) (path string, err error) {
	f, err := createExclusive(dir, stagingPrefix+ReportPrefix, ReportSuffix+stagingSuffix)
	if err != nil {
		return "", fmt.Errorf("create staging report: %w", err)
	}
	staged := f.Name()

	done := false
	defer func() {
		if !done {
			_ = f.Close()
			_ = os.Remove(staged)
		}
	}()

	if err := encode(f, env); err != nil {
		return "", fmt.Errorf("write %s: %w", staged, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", staged, err)
	}

	base := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(staged), stagingPrefix), stagingSuffix)
	path = filepath.Join(dir, base)
	if err := os.Rename(staged, path); err != nil {
		return "", fmt.Errorf("rename %s: %w", staged, err)
	}
	done = true
	return path, nil
}

func encode(f *os.File, env model.Envelope) error {
	w := bufio.NewWriter(f)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Load reads a single report file.
func Load(path string) (model.Envelope, error) {
	var env model.Envelope
	f, err := os.Open(path)
	if err != nil {
		return env, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads exactly one envelope from r. Trailing non-whitespace data is
// an error.
func Decode(r io.Reader) (model.Envelope, error) {
	var env model.Envelope
	dec := json.NewDecoder(bufio.NewReader(r))
	if err := dec.Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return env, io.ErrUnexpectedEOF
		}
		return env, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return model.Envelope{}, errors.New("trailing data after envelope")
	}
	return env, nil
}

// isReportName reports whether name follows the report naming convention.
func isReportName(name string) bool {
	return strings.HasPrefix(name, ReportPrefix) && strings.HasSuffix(name, ReportSuffix)
}

func isStagingName(name string) bool {
	return strings.HasPrefix(name, stagingPrefix)
}
