package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	storePrefix = "buildtrace-"
	storeTries  = 16
)

var ErrStoreClosed = errors.New("event store closed")

// Store owns a uniquely named temporary directory that publishers write
// reports into. The directory exists from NewStore until Close. If a Store
// is dropped without Close, the directory is removed once the Store is
// garbage collected.
type Store struct {
	dir string

	mu      sync.Mutex
	closed  bool
	cleanup runtime.Cleanup
}

// NewStore creates the event directory under os.TempDir().
func NewStore() (*Store, error) {
	return NewStoreIn("")
}

// NewStoreIn creates the event directory under parent. An empty parent means
// os.TempDir().
func NewStoreIn(parent string) (*Store, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	dir, err := mkdirUnique(parent)
	if err != nil {
		return nil, fmt.Errorf("create event directory: %w", err)
	}
	s := &Store{dir: dir}
	s.cleanup = runtime.AddCleanup(s, removeDir, dir)
	slog.Debug("created event directory", "dir", dir)
	return s, nil
}

func mkdirUnique(parent string) (string, error) {
	for i := 0; i < storeTries; i++ {
		name, err := randomName(storePrefix, "")
		if err != nil {
			return "", err
		}
		dir := filepath.Join(parent, name)
		err = os.Mkdir(dir, 0o700)
		if err == nil {
			return dir, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return "", err
	}
	return "", fmt.Errorf("unable to allocate unique directory under %s", parent)
}

func removeDir(dir string) {
	_ = os.RemoveAll(dir)
}

// Path returns the event directory. Publishers bind to it.
func (s *Store) Path() string { return s.dir }

// Sequence opens a fresh pass over the reports currently in the directory.
// It panics if the directory is gone: the store guarantees it exists until
// Close, so a missing directory means something outside removed it.
func (s *Store) Sequence() *Sequence {
	seq, err := s.OpenSequence()
	if err != nil {
		panic(fmt.Errorf("event directory does not seem to exist: %w", err))
	}
	return seq
}

// OpenSequence is Sequence for callers that prefer an error.
func (s *Store) OpenSequence() (*Sequence, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrStoreClosed
	}
	seq, err := NewSequence(s.dir)
	if err != nil {
		return nil, err
	}
	// Keep the store reachable while the sequence is in use.
	seq.owner = s
	return seq, nil
}

// Close removes the event directory and everything in it. It is safe to
// call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cleanup.Stop()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove event directory %s: %w", s.dir, err)
	}
	slog.Debug("removed event directory", "dir", s.dir)
	return nil
}
