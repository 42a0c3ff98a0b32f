package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/melonattacker/buildtrace/internal/model"
)

import (
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

type SQLite struct {
	DB *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	// Some environments restrict SQLite creating new files but allow opening
	// an existing one. Pre-create the DB file to avoid SQLITE_CANTOPEN.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("precreate sqlite db %s: %w", path, err)
	}
	_ = f.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{DB: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.DB.Close() }

func (s *SQLite) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA foreign_keys=ON;`,
	}
	for _, st := range stmts {
		if _, err := s.DB.Exec(st); err != nil {
			return fmt.Errorf("sqlite pragma: %w", err)
		}
	}

	var userVersion int
	if err := s.DB.QueryRow(`PRAGMA user_version;`).Scan(&userVersion); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if userVersion == 0 {
		if err := s.migrateToV1(); err != nil {
			return err
		}
		if _, err := s.DB.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		userVersion = schemaVersion
	}
	if userVersion != schemaVersion {
		return fmt.Errorf("unsupported sqlite schema version %d", userVersion)
	}
	return nil
}

func (s *SQLite) migrateToV1() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS sessions(
			id TEXT PRIMARY KEY,
			start_ts INTEGER,
			end_ts INTEGER,
			command TEXT,
			cwd TEXT,
			exit_code INTEGER,
			envelope_count INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS envelopes(
			session_id TEXT REFERENCES sessions(id),
			seq INTEGER,
			ts INTEGER,
			pid INTEGER,
			kind TEXT,
			executable TEXT,
			event_json TEXT,
			PRIMARY KEY(session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_envelopes_session_ts ON envelopes(session_id, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_envelopes_session_pid ON envelopes(session_id, pid);`,
		`CREATE INDEX IF NOT EXISTS idx_envelopes_session_kind ON envelopes(session_id, kind);`,
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range ddl {
		if _, err := tx.Exec(st); err != nil {
			return fmt.Errorf("sqlite ddl: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) InsertSession(r Session) error {
	_, err := s.DB.Exec(
		`INSERT INTO sessions(id, start_ts, end_ts, command, cwd, exit_code, envelope_count)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartTS, r.EndTS, r.Command, r.Cwd, r.ExitCode, r.EnvelopeCount,
	)
	return err
}

func (s *SQLite) UpdateSessionEnd(id string, endTS int64, exitCode, count int) error {
	_, err := s.DB.Exec(
		`UPDATE sessions SET end_ts=?, exit_code=?, envelope_count=? WHERE id=?`,
		endTS, exitCode, count, id,
	)
	return err
}

func (s *SQLite) InsertEnvelope(sessionID string, seq int64, env model.Envelope) error {
	ev, err := model.MarshalEvent(env.Event)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(
		`INSERT INTO envelopes(session_id, seq, ts, pid, kind, executable, event_json)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		sessionID, seq, env.Timestamp.UnixNano(), int64(env.PID), string(env.Event.Kind()),
		nullStr(executableOf(env.Event)), string(ev),
	)
	return err
}

func executableOf(ev model.Event) string {
	switch e := ev.(type) {
	case model.Started:
		return e.Executable
	case model.Exec:
		return e.Executable
	}
	return ""
}

func (s *SQLite) Sessions() ([]Session, error) {
	rows, err := s.DB.Query(
		`SELECT id, start_ts, end_ts, command, cwd, exit_code, envelope_count FROM sessions ORDER BY start_ts, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var r Session
		if err := rows.Scan(&r.ID, &r.StartTS, &r.EndTS, &r.Command, &r.Cwd, &r.ExitCode, &r.EnvelopeCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type QueryOptions struct {
	SessionID  string
	PID        model.ProcessID
	Kind       model.Kind
	SinceTS    int64
	UntilTS    int64
	Executable string // substring match
	Limit      int
}

func (s *SQLite) QueryEnvelopes(opts QueryOptions) ([]Record, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100000 {
		limit = 100000
	}

	where := []string{`1=1`}
	var args []any
	if opts.SessionID != "" {
		where = append(where, `session_id=?`)
		args = append(args, opts.SessionID)
	}
	if opts.PID != 0 {
		where = append(where, `pid=?`)
		args = append(args, int64(opts.PID))
	}
	if opts.Kind != "" {
		where = append(where, `kind=?`)
		args = append(args, string(opts.Kind))
	}
	if opts.SinceTS > 0 {
		where = append(where, `ts>=?`)
		args = append(args, opts.SinceTS)
	}
	if opts.UntilTS > 0 {
		where = append(where, `ts<=?`)
		args = append(args, opts.UntilTS)
	}
	if e := strings.TrimSpace(opts.Executable); e != "" {
		where = append(where, `executable LIKE ?`)
		args = append(args, "%"+e+"%")
	}

	q := fmt.Sprintf(
		`SELECT session_id, seq, ts, pid, event_json FROM envelopes WHERE %s ORDER BY ts, seq LIMIT ?`,
		strings.Join(where, " AND "),
	)
	args = append(args, limit)

	rows, err := s.DB.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, 256)
	for rows.Next() {
		var r Record
		var ts, pid int64
		var evJSON string
		if err := rows.Scan(&r.SessionID, &r.Seq, &ts, &pid, &evJSON); err != nil {
			return nil, err
		}
		ev, err := model.UnmarshalEvent(json.RawMessage(evJSON))
		if err != nil {
			return nil, fmt.Errorf("decode envelope %s/%d: %w", r.SessionID, r.Seq, err)
		}
		r.Envelope = model.CreateEnvelope(model.ProcessID(pid), time.Unix(0, ts), ev)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
