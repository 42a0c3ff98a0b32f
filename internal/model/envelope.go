package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// Envelope tags an Event with the reporting process and the instant it was
// observed. It is the unit written to and read from the event directory.
type Envelope struct {
	PID       ProcessID
	Timestamp time.Time
	Event     Event
}

// NewEnvelope stamps ev with the current time.
func NewEnvelope(pid ProcessID, ev Event) Envelope {
	return CreateEnvelope(pid, time.Now(), ev)
}

// CreateEnvelope builds an envelope with an explicit timestamp. The time is
// normalized to UTC without a monotonic reading so that a decoded copy
// compares equal to the original. Pointer events are stored by value.
func CreateEnvelope(pid ProcessID, ts time.Time, ev Event) Envelope {
	return Envelope{PID: pid, Timestamp: ts.UTC().Round(0), Event: deref(ev)}
}

// Equal reports whether both envelopes carry the same pid, instant and event.
func (e Envelope) Equal(o Envelope) bool {
	return e.PID == o.PID && e.Timestamp.Equal(o.Timestamp) && reflect.DeepEqual(e.Event, o.Event)
}

func (e Envelope) String() string {
	kind := Kind("<nil>")
	if e.Event != nil {
		kind = e.Event.Kind()
	}
	return fmt.Sprintf("pid=%d ts=%s %s", e.PID, e.Timestamp.Format(time.RFC3339Nano), kind)
}

type envelopeJSON struct {
	PID       *ProcessID      `json:"pid"`
	Timestamp *time.Time      `json:"timestamp"`
	Event     json.RawMessage `json:"event"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	ev, err := MarshalEvent(e.Event)
	if err != nil {
		return nil, err
	}
	pid := e.PID
	ts := e.Timestamp
	return json.Marshal(envelopeJSON{PID: &pid, Timestamp: &ts, Event: ev})
}

// UnmarshalJSON requires all three fields to be present.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.PID == nil {
		return errors.New("envelope: missing pid")
	}
	if raw.Timestamp == nil {
		return errors.New("envelope: missing timestamp")
	}
	if len(raw.Event) == 0 || string(raw.Event) == "null" {
		return errors.New("envelope: missing event")
	}
	ev, err := UnmarshalEvent(raw.Event)
	if err != nil {
		return fmt.Errorf("envelope: %w", err)
	}
	*e = CreateEnvelope(*raw.PID, *raw.Timestamp, ev)
	return nil
}
