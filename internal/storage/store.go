package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/melonattacker/buildtrace/internal/model"
)

// Sink persists the envelopes collected for one session into an events
// file and, optionally, a SQLite index.
type Sink struct {
	mu sync.Mutex

	sessionID string
	seq       int64

	jsonl *JSONLWriter
	sql   *SQLite
}

type OpenParams struct {
	SessionID  string
	EventsPath string // empty disables the JSONL file
	IndexPath  string // empty disables the SQLite index
	StartTS    int64
	Command    string
	Cwd        string
}

func Open(p OpenParams) (*Sink, error) {
	if p.EventsPath == "" && p.IndexPath == "" {
		return nil, errors.New("open sink: neither events file nor index requested")
	}
	s := &Sink{sessionID: p.SessionID}
	if p.EventsPath != "" {
		jsonl, err := NewJSONLWriter(p.EventsPath)
		if err != nil {
			return nil, err
		}
		s.jsonl = jsonl
	}
	if p.IndexPath != "" {
		sqlite, err := OpenSQLite(p.IndexPath)
		if err != nil {
			_ = s.closeJSONL()
			return nil, err
		}
		if err := sqlite.InsertSession(Session{
			ID:      p.SessionID,
			StartTS: p.StartTS,
			Command: p.Command,
			Cwd:     p.Cwd,
		}); err != nil {
			_ = sqlite.Close()
			_ = s.closeJSONL()
			return nil, fmt.Errorf("insert session: %w", err)
		}
		s.sql = sqlite
	}
	return s, nil
}

// Append stores one envelope.
func (s *Sink) Append(env model.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	if s.jsonl != nil {
		if err := s.jsonl.Append(env); err != nil {
			return err
		}
	}
	if s.sql != nil {
		if err := s.sql.InsertEnvelope(s.sessionID, s.seq, env); err != nil {
			return fmt.Errorf("index envelope: %w", err)
		}
	}
	return nil
}

func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.seq)
}

// Close finalizes the session row and flushes both outputs.
func (s *Sink) Close(endTS int64, exitCode int) error {
	s.mu.Lock()
	count := int(s.seq)
	s.mu.Unlock()

	var errs []error
	if s.sql != nil {
		if err := s.sql.UpdateSessionEnd(s.sessionID, endTS, exitCode, count); err != nil {
			errs = append(errs, err)
		}
		if err := s.sql.Close(); err != nil {
			errs = append(errs, err)
		}
		s.sql = nil
	}
	if err := s.closeJSONL(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Sink) closeJSONL() error {
	if s.jsonl == nil {
		return nil
	}
	err := s.jsonl.Close()
	s.jsonl = nil
	return err
}
