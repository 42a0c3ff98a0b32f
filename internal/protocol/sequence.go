package protocol

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/melonattacker/buildtrace/internal/model"
)

const (
	readBatch = 64
	// maxListErrors bounds consecutive listing failures before the pass is
	// abandoned.
	maxListErrors = 8
)

// Sequence is a lazy, single-pass view over the reports in an event
// directory. Only regular files named like reports are read; entries that
// cannot be listed or decoded are skipped. Reports
// created after the listing has moved past their position may or may not
// be seen.
type Sequence struct {
	dir    string
	f      *os.File
	buf    []os.DirEntry
	done   bool
	errs   int
	closed error

	owner  *Store
	logger *slog.Logger
}

// NewSequence opens dir for listing.
func NewSequence(dir string) (*Sequence, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open event directory: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat event directory: %w", err)
	}
	if !fi.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open event directory: %s is not a directory", dir)
	}
	return &Sequence{dir: dir, f: f, logger: slog.Default()}, nil
}

// Next returns the next decodable envelope. It returns false once the
// listing is exhausted, and keeps returning false after that.
func (s *Sequence) Next() (model.Envelope, bool) {
	for {
		ent, ok := s.nextEntry()
		if !ok {
			return model.Envelope{}, false
		}
		name := ent.Name()
		// Only regular files are opened: a FIFO or device would block.
		if !ent.Type().IsRegular() || isStagingName(name) || !isReportName(name) {
			continue
		}
		path := filepath.Join(s.dir, name)
		env, err := Load(path)
		if err != nil {
			s.logger.Debug("candidate failed to read", "file", path, "error", err)
			continue
		}
		s.logger.Debug("candidate read", "file", path, "envelope", env.String())
		return env, true
	}
}

func (s *Sequence) nextEntry() (os.DirEntry, bool) {
	for len(s.buf) == 0 {
		if s.done {
			return nil, false
		}
		ents, err := s.f.ReadDir(readBatch)
		s.buf = ents
		switch {
		case err == nil:
			s.errs = 0
		case errors.Is(err, io.EOF):
			s.finish()
		default:
			s.errs++
			s.logger.Debug("listing event directory failed", "dir", s.dir, "error", err)
			if s.errs >= maxListErrors {
				s.finish()
			}
		}
	}
	ent := s.buf[0]
	s.buf = s.buf[1:]
	return ent, true
}

func (s *Sequence) finish() {
	if s.done {
		return
	}
	s.done = true
	s.closed = s.f.Close()
	s.owner = nil
}

// All adapts the sequence to a range-over-func iterator. Breaking out of the
// loop leaves the sequence positioned after the last yielded envelope.
func (s *Sequence) All() iter.Seq[model.Envelope] {
	return func(yield func(model.Envelope) bool) {
		for {
			env, ok := s.Next()
			if !ok {
				return
			}
			if !yield(env) {
				return
			}
		}
	}
}

// Close releases the directory handle. Remaining entries are dropped.
func (s *Sequence) Close() error {
	s.buf = nil
	s.finish()
	return s.closed
}
