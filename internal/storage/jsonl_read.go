package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/melonattacker/buildtrace/internal/model"
)

// ReadJSONL loads an events file written by JSONLWriter, ordered by
// timestamp and then pid. Unlike the event directory, the file is produced
// in one piece, so a malformed line is an error.
func ReadJSONL(path string) ([]model.Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 8*1024*1024)
	out := make([]model.Envelope, 0, 1024)
	line := 0
	for s.Scan() {
		line++
		if strings.TrimSpace(s.Text()) == "" {
			continue
		}
		var env model.Envelope
		if err := json.Unmarshal(s.Bytes(), &env); err != nil {
			return nil, fmt.Errorf("unmarshal %s:%d: %w", path, line, err)
		}
		out = append(out, env)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].PID < out[j].PID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}
