package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/melonattacker/buildtrace/internal/model"
)

// EventSink receives lifecycle events from a tracer.
type EventSink interface {
	Report(pid model.ProcessID, ev model.Event)
}

// Publisher writes envelopes into an event directory. It holds no open
// handles; every Publish creates and closes one file. The directory must
// exist by the time Publish is called, not at Bind.
type Publisher struct {
	dir    string
	staged bool
	logger *slog.Logger
}

type PublisherOption func(*Publisher)

// WithStagedWrite makes the publisher write under a hidden name and rename
// into place.
func WithStagedWrite() PublisherOption {
	return func(p *Publisher) { p.staged = true }
}

func WithLogger(l *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = l }
}

func Bind(dir string, opts ...PublisherOption) (*Publisher, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("bind publisher: empty directory path")
	}
	p := &Publisher{dir: dir, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Publisher) Dir() string { return p.dir }

// Publish durably stores env as a new report file.
func (p *Publisher) Publish(env model.Envelope) error {
	p.logger.Debug("event to save", "envelope", env.String())
	save := Save
	if p.staged {
		save = SaveStaged
	}
	name, err := save(p.dir, env)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	p.logger.Debug("event saved", "file", name)
	return nil
}

// MustPublish is Publish for callers that cannot continue after losing an
// event. It panics when the record cannot be written.
func (p *Publisher) MustPublish(env model.Envelope) {
	if err := p.Publish(env); err != nil {
		p.logger.Error("persist event on filesystem failed", "dir", p.dir, "error", err)
		panic(err)
	}
}

// Report implements EventSink.
func (p *Publisher) Report(pid model.ProcessID, ev model.Event) {
	p.MustPublish(model.NewEnvelope(pid, ev))
}
