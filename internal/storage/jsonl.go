package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/melonattacker/buildtrace/internal/model"
)

// JSONLWriter writes one envelope per line.
type JSONLWriter struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
	n  int
}

func NewJSONLWriter(path string) (*JSONLWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &JSONLWriter{f: f, w: bufio.NewWriterSize(f, 256*1024)}, nil
}

func (jw *JSONLWriter) Append(env model.Envelope) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if _, err := jw.w.Write(b); err != nil {
		return err
	}
	if err := jw.w.WriteByte('\n'); err != nil {
		return err
	}
	jw.n++
	return nil
}

// Count returns the number of envelopes appended so far.
func (jw *JSONLWriter) Count() int {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.n
}

func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	var ret error
	if jw.w != nil {
		if err := jw.w.Flush(); err != nil {
			ret = err
		}
		jw.w = nil
	}
	if jw.f != nil {
		if err := jw.f.Sync(); err != nil && ret == nil {
			ret = err
		}
		if err := jw.f.Close(); err != nil && ret == nil {
			ret = err
		}
		jw.f = nil
	}
	return ret
}
