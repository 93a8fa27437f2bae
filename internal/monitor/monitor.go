// Package monitor keeps the device registry in step with the udev event
// feed and tells observers what changed.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gajzzs/blockd/internal/device"
)

// DefaultInterval bounds how stale the registry can get without flooding
// the metadata source.
const DefaultInterval = time.Second

var ErrNoSource = errors.New("no device event source")

// Uevent is one notification from the device event feed.
type Uevent struct {
	Action  string
	DevName string
	Env     map[string]string
}

// Source delivers device events. Start opens the subscription; the returned
// channel is drained by the monitor and may be closed by the source when it
// ends.
type Source interface {
	Start() (<-chan Uevent, error)
	Close() error
}

type Kind int

const (
	Added Kind = iota + 1
	Changed
	Removed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is what observers receive. For Removed the record is the last one
// known before the device went away.
type Event struct {
	Kind   Kind
	Record device.Record
}

type Handler func(Event)

type Monitor struct {
	registry *device.Registry
	probe    device.Prober
	source   Source
	clock    clockwork.Clock
	interval time.Duration

	events <-chan Uevent

	mu       sync.Mutex
	handlers []Handler
}

type Option func(*Monitor)

func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func New(registry *device.Registry, probe device.Prober, source Source, opts ...Option) *Monitor {
	m := &Monitor{
		registry: registry,
		probe:    probe,
		source:   source,
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers h. Handlers run on the monitor goroutine, in
// registration order, after the registry has been updated.
func (m *Monitor) Subscribe(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Start opens the event subscription. There is no retry: when it fails the
// registry simply keeps its startup snapshot.
func (m *Monitor) Start() error {
	if m.source == nil {
		return ErrNoSource
	}
	events, err := m.source.Start()
	if err != nil {
		return fmt.Errorf("could not setup disk monitor: %w", err)
	}
	m.events = events
	return nil
}

// Run drains the event queue on every tick until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	if m.events == nil {
		return
	}

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := m.Drain(); n > 0 {
				log.Debug().Int("events", n).Msg("drained device events")
			}
		}
	}
}

// Drain handles every event queued right now and returns how many there
// were. It never waits for new events.
func (m *Monitor) Drain() int {
	n := 0
	for {
		select {
		case ev, ok := <-m.events:
			if !ok {
				log.Warn().Msg("device event feed closed")
				m.events = nil
				return n
			}
			m.handle(ev)
			n++
		default:
			return n
		}
	}
}

func (m *Monitor) Close() error {
	if m.source == nil {
		return nil
	}
	return m.source.Close()
}

func (m *Monitor) handle(ev Uevent) {
	name := device.NodePath(ev.DevName)

	switch ev.Action {
	case "add":
		rec := m.probe.Probe(name)
		if !rec.Valid() {
			return
		}
		// a device seen twice without a remove in between must not be duplicated
		if _, known := m.registry.Lookup(rec.Name); known {
			m.registry.Replace(rec)
		} else {
			m.registry.Insert(rec)
		}
		log.Debug().Str("disk", rec.Name).Msg("added")
		m.notify(Event{Kind: Added, Record: rec})

	case "change":
		rec := m.probe.Probe(name)
		if !rec.Valid() {
			return
		}
		m.registry.Replace(rec)
		log.Debug().Str("disk", rec.Name).Msg("changed")
		m.notify(Event{Kind: Changed, Record: rec})

	case "remove":
		// the device is gone and cannot be probed, use what was tracked
		rec, known := m.registry.Lookup(name)
		if !known {
			return
		}
		m.registry.Remove(rec)
		log.Debug().Str("disk", rec.Name).Msg("removed")
		m.notify(Event{Kind: Removed, Record: rec})

	case "bind", "unbind":
		// driver (re)binding, presence is unchanged

	default:
		log.Warn().Str("action", ev.Action).Str("disk", name).Msg("unknown action")
	}
}

func (m *Monitor) notify(ev Event) {
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
