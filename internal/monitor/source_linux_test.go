//go:build linux

package monitor

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startForward(t *testing.T) (*UdevSource, chan netlink.UEvent, chan error) {
	t.Helper()

	s := NewUdevSource()
	raw := make(chan netlink.UEvent)
	errs := make(chan error, 1)
	s.wg.Add(1)
	go s.forward(raw, errs)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s, raw, errs
}

func requireFeedClosed(t *testing.T, s *UdevSource) {
	t.Helper()

	select {
	case ev, ok := <-s.events:
		require.False(t, ok, "unexpected event %+v", ev)
	case <-time.After(2 * time.Second):
		t.Fatal("event feed still open")
	}
}

func TestUdevSource_ForwardsEvents(t *testing.T) {
	s, raw, _ := startForward(t)

	raw <- netlink.UEvent{
		Action: netlink.ADD,
		KObj:   "/devices/pci0000:00/usb1/1-1/host6/block/sdb/sdb1",
		Env:    map[string]string{"SUBSYSTEM": "block", "DEVNAME": "sdb1"},
	}

	select {
	case ev := <-s.events:
		assert.Equal(t, "add", ev.Action)
		assert.Equal(t, "sdb1", ev.DevName)
		assert.Equal(t, "block", ev.Env["SUBSYSTEM"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not forwarded")
	}
}

func TestUdevSource_CloseEndsFeed(t *testing.T) {
	s, _, _ := startForward(t)

	require.NoError(t, s.Close())
	requireFeedClosed(t, s)
}

func TestUdevSource_ReadErrorEndsFeed(t *testing.T) {
	s, _, errs := startForward(t)

	errs <- fmt.Errorf("Unable to read uevent, err: %w", errors.New("recvfrom: no buffer space available"))
	requireFeedClosed(t, s)
}

func TestUdevSource_ClosedQueueEndsFeed(t *testing.T) {
	s, raw, _ := startForward(t)

	close(raw)
	requireFeedClosed(t, s)
}

func TestUdevSource_ParseErrorIsSkipped(t *testing.T) {
	s, raw, errs := startForward(t)

	errs <- fmt.Errorf("Unable to parse uevent, err: %w", errors.New("unknow kobject action (got: frob)"))
	raw <- netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"DEVNAME": "sdb1"}}

	select {
	case ev, ok := <-s.events:
		require.True(t, ok)
		assert.Equal(t, "remove", ev.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("feed stopped after a parse error")
	}
}
