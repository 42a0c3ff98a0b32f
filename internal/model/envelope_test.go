package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeJSONRoundtrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.FixedZone("CET", 3600))
	cases := []Event{
		Started{PPID: 1, Cwd: "/src", Executable: "/usr/bin/cc", Arguments: []string{"cc", "-c", "a.c"}},
		Started{Cwd: "/", Arguments: []string{}, Environment: map[string]string{}},
		Started{Cwd: "/", Environment: map[string]string{"PATH": "/usr/bin", "EMPTY": ""}},
		Exec{Cwd: "/src", Executable: "/usr/bin/ld", Arguments: []string{"ld", "a.o"}},
		Stopped{Signal: "SIGTSTP"},
		Continued{},
		Signaled{Signal: "SIGKILL"},
		Terminated{Status: 2},
	}
	for _, ev := range cases {
		t.Run(string(ev.Kind()), func(t *testing.T) {
			in := CreateEnvelope(42, ts, ev)
			b, err := json.Marshal(in)
			require.NoError(t, err)

			var out Envelope
			require.NoError(t, json.Unmarshal(b, &out))
			require.True(t, in.Equal(out), "got %v want %v", out, in)
			require.Equal(t, in, out)
		})
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	in := CreateEnvelope(7, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Continued{})
	b, err := json.Marshal(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"pid":7,"timestamp":"2026-01-02T03:04:05Z","event":{"type":"continued","detail":{}}}`, string(b))
}

func TestEnvelopeDecodeRejectsIncomplete(t *testing.T) {
	cases := map[string]string{
		"missing pid":       `{"timestamp":"2026-01-02T03:04:05Z","event":{"type":"continued","detail":{}}}`,
		"missing timestamp": `{"pid":1,"event":{"type":"continued","detail":{}}}`,
		"missing event":     `{"pid":1,"timestamp":"2026-01-02T03:04:05Z"}`,
		"missing detail":    `{"pid":1,"timestamp":"2026-01-02T03:04:05Z","event":{"type":"continued"}}`,
		"truncated":         `{"pid":1,"timestamp":"2026-01-02T03:04:05Z","event":{"type":"contin`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			var out Envelope
			require.Error(t, json.Unmarshal([]byte(in), &out))
		})
	}
}

func TestEnvelopeDecodeUnknownKind(t *testing.T) {
	var out Envelope
	err := json.Unmarshal([]byte(`{"pid":1,"timestamp":"2026-01-02T03:04:05Z","event":{"type":"forked","detail":{}}}`), &out)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownEventKind))
}

func TestNewEnvelopeStripsMonotonic(t *testing.T) {
	env := NewEnvelope(3, Terminated{Status: 0})
	require.Equal(t, time.UTC, env.Timestamp.Location())
	require.Equal(t, env.Timestamp, env.Timestamp.Round(0))
	require.True(t, IsTerminal(env.Event))
	require.False(t, IsTerminal(Continued{}))
}

func TestPointerEvents(t *testing.T) {
	env := CreateEnvelope(9, time.Unix(1, 0), &Terminated{Status: 1})
	require.Equal(t, Terminated{Status: 1}, env.Event)

	b, err := json.Marshal(env)
	require.NoError(t, err)
	var out Envelope
	require.NoError(t, json.Unmarshal(b, &out))
	require.True(t, env.Equal(out))

	_, err = MarshalEvent(&Started{Cwd: "/"})
	require.Error(t, err)
	_, err = json.Marshal(Envelope{PID: 1, Timestamp: time.Unix(1, 0), Event: &Continued{}})
	require.Error(t, err)
	_, err = MarshalEvent(nil)
	require.Error(t, err)
}
