package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProcessID identifies an operating-system process. PIDs are reused by the
// kernel, so a ProcessID is only meaningful together with the timestamp of
// the envelope that carries it.
type ProcessID uint32

type Kind string

const (
	KindStarted    Kind = "started"
	KindExec       Kind = "exec"
	KindStopped    Kind = "stopped"
	KindContinued  Kind = "continued"
	KindSignaled   Kind = "signaled"
	KindTerminated Kind = "terminated"
)

var ErrUnknownEventKind = errors.New("unknown event kind")

// Event is one lifecycle transition of a traced process. The set of
// variants is closed: only the value types declared in this package are
// valid events. Pointers to them satisfy the interface but are rejected by
// MarshalEvent; CreateEnvelope dereferences them.
// Event values hold no resources and are safe to copy across goroutines.
type Event interface {
	Kind() Kind
	isEvent()
}

// Started reports a new process.
type Started struct {
	PPID        ProcessID         `json:"ppid"`
	Cwd         string            `json:"cwd"`
	Executable  string            `json:"executable"`
	Arguments   []string          `json:"arguments"`
	Environment map[string]string `json:"environment"`
}

// Exec reports that a process replaced its image.
type Exec struct {
	Cwd        string   `json:"cwd"`
	Executable string   `json:"executable"`
	Arguments  []string `json:"arguments"`
}

type Stopped struct {
	Signal string `json:"signal"`
}

type Continued struct{}

// Signaled reports termination by a signal.
type Signaled struct {
	Signal string `json:"signal"`
}

// Terminated reports a normal exit.
type Terminated struct {
	Status int `json:"status"`
}

func (Started) Kind() Kind    { return KindStarted }
func (Exec) Kind() Kind       { return KindExec }
func (Stopped) Kind() Kind    { return KindStopped }
func (Continued) Kind() Kind  { return KindContinued }
func (Signaled) Kind() Kind   { return KindSignaled }
func (Terminated) Kind() Kind { return KindTerminated }

func (Started) isEvent()    {}
func (Exec) isEvent()       {}
func (Stopped) isEvent()    {}
func (Continued) isEvent()  {}
func (Signaled) isEvent()   {}
func (Terminated) isEvent() {}

// IsTerminal reports whether the event ends the life of a process.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Terminated, Signaled:
		return true
	}
	return false
}

// deref returns the value form of a pointer event. Nil pointers are left
// as they are.
func deref(ev Event) Event {
	switch e := ev.(type) {
	case *Started:
		if e != nil {
			return *e
		}
	case *Exec:
		if e != nil {
			return *e
		}
	case *Stopped:
		if e != nil {
			return *e
		}
	case *Continued:
		if e != nil {
			return *e
		}
	case *Signaled:
		if e != nil {
			return *e
		}
	case *Terminated:
		if e != nil {
			return *e
		}
	}
	return ev
}

type taggedEvent struct {
	Type   Kind            `json:"type"`
	Detail json.RawMessage `json:"detail"`
}

// MarshalEvent encodes ev as {"type": <kind>, "detail": {...}}.
func MarshalEvent(ev Event) ([]byte, error) {
	switch ev.(type) {
	case Started, Exec, Stopped, Continued, Signaled, Terminated:
	case nil:
		return nil, errors.New("marshal event: nil event")
	default:
		return nil, fmt.Errorf("marshal event: unsupported type %T", ev)
	}
	detail, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s detail: %w", ev.Kind(), err)
	}
	return json.Marshal(taggedEvent{Type: ev.Kind(), Detail: detail})
}

// UnmarshalEvent decodes the tagged representation written by MarshalEvent.
func UnmarshalEvent(b []byte) (Event, error) {
	var te taggedEvent
	if err := json.Unmarshal(b, &te); err != nil {
		return nil, err
	}
	if len(te.Detail) == 0 || string(te.Detail) == "null" {
		return nil, fmt.Errorf("event %q: missing detail", te.Type)
	}
	switch te.Type {
	case KindStarted:
		return decodeDetail[Started](te.Detail)
	case KindExec:
		return decodeDetail[Exec](te.Detail)
	case KindStopped:
		return decodeDetail[Stopped](te.Detail)
	case KindContinued:
		return decodeDetail[Continued](te.Detail)
	case KindSignaled:
		return decodeDetail[Signaled](te.Detail)
	case KindTerminated:
		return decodeDetail[Terminated](te.Detail)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, te.Type)
	}
}

func decodeDetail[T Event](raw json.RawMessage) (Event, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s detail: %w", v.Kind(), err)
	}
	return v, nil
}
