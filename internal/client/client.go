// Package client talks to the blockd daemon over the system bus. It is what
// unprivileged programs use to mount and unmount devices.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"

	"github.com/gajzzs/blockd/internal/device"
	"github.com/gajzzs/blockd/internal/monitor"
	"github.com/gajzzs/blockd/internal/service"
)

var ErrCallFailed = errors.New("daemon reported failure")

// BusObject is the subset of dbus.BusObject used by the client.
type BusObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
	GetProperty(p string) (dbus.Variant, error)
}

// Bus is the subset of *dbus.Conn used by the client.
type Bus interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

type Client struct {
	busName    string
	objectPath dbus.ObjectPath
	dial       func() (Bus, error)

	mu  sync.Mutex
	bus Bus
	obj BusObject
}

type Option func(*Client)

func WithBusName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.busName = name
		}
	}
}

func WithObjectPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.objectPath = dbus.ObjectPath(path)
		}
	}
}

// WithBus replaces the system bus connection.
func WithBus(bus Bus) Option {
	return func(c *Client) {
		c.dial = func() (Bus, error) { return bus, nil }
	}
}

// New does not connect; the system bus is opened on first use and reused.
func New(opts ...Option) *Client {
	c := &Client{
		busName:    service.DefaultBusName,
		objectPath: service.DefaultObjectPath,
		dial: func() (Bus, error) {
			return dbus.SystemBus()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) object() (BusObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.obj != nil {
		return c.obj, nil
	}
	bus, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	c.bus = bus
	c.obj = bus.Object(c.busName, c.objectPath)
	return c.obj, nil
}

func (c *Client) member(name string) string {
	return c.busName + "." + name
}

func (c *Client) call(ctx context.Context, method string, out interface{}, args ...interface{}) error {
	obj, err := c.object()
	if err != nil {
		return err
	}
	call := obj.CallWithContext(ctx, c.member(method), 0, args...)
	if call.Err != nil {
		return fmt.Errorf("%s: %w", method, call.Err)
	}
	if out == nil {
		return nil
	}
	if err := call.Store(out); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (c *Client) callBool(ctx context.Context, method string, args ...interface{}) error {
	var ok bool
	if err := c.call(ctx, method, &ok, args...); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", method, ErrCallFailed)
	}
	return nil
}

// UserMount asks the daemon to mount r to its default directory. Only the
// device name is sent.
func (c *Client) UserMount(r device.Record) bool {
	if err := c.callBool(context.Background(), "mount", r.Name); err != nil {
		log.Error().Err(err).Str("disk", r.Name).Msg("user mount failed")
		return false
	}
	return true
}

func (c *Client) UserUnmount(r device.Record) bool {
	if err := c.callBool(context.Background(), "unmount", r.Name); err != nil {
		log.Error().Err(err).Str("disk", r.Name).Msg("user unmount failed")
		return false
	}
	return true
}

func (c *Client) Info(ctx context.Context, name string) (device.Record, error) {
	var w service.WireRecord
	if err := c.call(ctx, "info", &w, name); err != nil {
		return device.Record{}, err
	}
	return w.Record(), nil
}

func (c *Client) Rescan(ctx context.Context) error {
	return c.callBool(ctx, "rescan")
}

func (c *Client) Fsck(ctx context.Context, name string) error {
	return c.callBool(ctx, "fsck", name)
}

func (c *Client) Mkfs(ctx context.Context, name, fstype string) error {
	return c.callBool(ctx, "mkfs", name, fstype)
}

func (c *Client) Disks() ([]device.Record, error) {
	var wire []service.WireRecord
	if err := c.property(service.PropDisks, &wire); err != nil {
		return nil, err
	}
	out := make([]device.Record, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.Record())
	}
	return out, nil
}

func (c *Client) Supported() ([]string, error) {
	var types []string
	if err := c.property(service.PropSupported, &types); err != nil {
		return nil, err
	}
	return types, nil
}

func (c *Client) property(name string, out interface{}) error {
	obj, err := c.object()
	if err != nil {
		return err
	}
	v, err := obj.GetProperty(c.member(name))
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := dbus.Store([]interface{}{v.Value()}, out); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

// Watch calls fn for every Added, Changed or Removed signal until ctx ends.
func (c *Client) Watch(ctx context.Context, fn func(monitor.Event)) error {
	if _, err := c.object(); err != nil {
		return err
	}
	c.mu.Lock()
	bus := c.bus
	c.mu.Unlock()

	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(c.objectPath),
		dbus.WithMatchInterface(c.busName),
	}
	if err := bus.AddMatchSignal(match...); err != nil {
		return fmt.Errorf("failed to add signal match: %w", err)
	}
	defer func() { _ = bus.RemoveMatchSignal(match...) }()

	signals := make(chan *dbus.Signal, 16)
	bus.Signal(signals)
	defer bus.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if ev, ok := c.decodeSignal(sig); ok {
				fn(ev)
			}
		}
	}
}

func (c *Client) decodeSignal(sig *dbus.Signal) (monitor.Event, bool) {
	if sig == nil || sig.Path != c.objectPath {
		return monitor.Event{}, false
	}

	var kind monitor.Kind
	switch sig.Name {
	case c.member(service.SignalAdded):
		kind = monitor.Added
	case c.member(service.SignalChanged):
		kind = monitor.Changed
	case c.member(service.SignalRemoved):
		kind = monitor.Removed
	default:
		return monitor.Event{}, false
	}

	var w service.WireRecord
	if err := dbus.Store(sig.Body, &w); err != nil {
		log.Debug().Err(err).Str("signal", sig.Name).Msg("malformed signal body")
		return monitor.Event{}, false
	}
	return monitor.Event{Kind: kind, Record: w.Record()}, true
}
