//go:build linux

package monitor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

const queueSize = 256

// UdevSource subscribes to the udev netlink multicast group, keeping only
// block subsystem events.
type UdevSource struct {
	conn      *netlink.UEventConn
	quit      chan struct{}
	events    chan Uevent
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewUdevSource() *UdevSource {
	return &UdevSource{
		events: make(chan Uevent, queueSize),
		stop:   make(chan struct{}),
	}
}

func (s *UdevSource) Start() (<-chan Uevent, error) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, fmt.Errorf("connecting to udev netlink: %w", err)
	}
	s.conn = conn

	raw := make(chan netlink.UEvent, queueSize)
	errs := make(chan error, 1)
	matcher := &netlink.RuleDefinitions{
		Rules: []netlink.RuleDefinition{
			{Env: map[string]string{"SUBSYSTEM": "block"}},
		},
	}
	s.quit = conn.Monitor(raw, errs, matcher)

	s.wg.Add(1)
	go s.forward(raw, errs)

	return s.events, nil
}

// forward is the only sender on s.events and closes it when the feed ends,
// either by Close or because the netlink reader gave up.
func (s *UdevSource) forward(raw <-chan netlink.UEvent, errs <-chan error) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-raw:
			if !ok {
				log.Error().Msg("udev monitor stopped")
				return
			}
			select {
			case s.events <- Uevent{Action: string(ev.Action), DevName: ev.Env["DEVNAME"], Env: ev.Env}:
			case <-s.stop:
				return
			}
		case err := <-errs:
			if !readerStopped(err) {
				log.Warn().Err(err).Msg("udev monitor dropped an event")
				continue
			}
			log.Error().Err(err).Msg("udev monitor stopped")
			return
		}
	}
}

// readerStopped reports whether err ended the go-udev reader goroutine.
// Only parse failures let it carry on.
func readerStopped(err error) bool {
	return !strings.HasPrefix(err.Error(), "Unable to parse uevent")
}

func (s *UdevSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		if s.conn == nil {
			return
		}
		select {
		case s.quit <- struct{}{}:
		default:
		}
		err = s.conn.Close()
	})
	return err
}
