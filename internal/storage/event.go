package storage

import (
	"time"

	"github.com/melonattacker/buildtrace/internal/model"
)

// Record is an envelope as stored in the SQLite index.
type Record struct {
	SessionID string
	Seq       int64
	Envelope  model.Envelope
}

// Session describes one intercepted build.
type Session struct {
	ID            string
	StartTS       int64 // unix nanos
	EndTS         int64
	Command       string
	Cwd           string
	ExitCode      int
	EnvelopeCount int
}

func NowUnixNanos() int64 { return time.Now().UTC().UnixNano() }
