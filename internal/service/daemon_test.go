package service

import (
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gajzzs/blockd/internal/config"
	"github.com/gajzzs/blockd/internal/monitor"
)

type chanSource struct {
	ch      chan monitor.Uevent
	err     error
	closed  bool
	onStart func()
}

func (s *chanSource) Start() (<-chan monitor.Uevent, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.onStart != nil {
		s.onStart()
	}
	return s.ch, nil
}

func (s *chanSource) Close() error {
	s.closed = true
	return nil
}

func writeDevice(t *testing.T, fs afero.Fs) {
	t.Helper()

	require.NoError(t, afero.WriteFile(fs, "/sys/class/block/sdb1/uevent",
		[]byte("MAJOR=8\nMINOR=17\nDEVNAME=sdb1\nDEVTYPE=partition\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/run/udev/data/b8:17",
		[]byte("E:ID_FS_UUID=ABCD-1234\nE:ID_FS_TYPE=vfat\nE:ID_PART_ENTRY_SIZE=4096\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/proc/mounts", nil, 0o444))
}

func newTestDaemon(t *testing.T, src *chanSource, conn *fakeConn) *Daemon {
	t.Helper()

	fs := afero.NewMemMapFs()
	writeDevice(t, fs)

	cfg := config.Default()
	cfg.PollInterval = "10ms"

	d := NewDaemon(cfg)
	d.fs = fs
	d.newSource = func() monitor.Source { return src }
	d.connect = func() (Conn, error) { return conn, nil }
	return d
}

func TestDaemon_StartStop(t *testing.T) {
	t.Parallel()

	src := &chanSource{ch: make(chan monitor.Uevent, 4)}
	conn := newFakeConn()
	d := newTestDaemon(t, src, conn)

	require.NoError(t, d.Start(nil))
	require.ErrorIs(t, d.Start(nil), ErrAlreadyRunning)

	reg := d.Registry()
	require.NotNil(t, reg)
	assert.Equal(t, 1, reg.Len())
	assert.Contains(t, conn.exports, DefaultBusName)

	exists, err := afero.Exists(d.fs, d.cfg.PidFile)
	require.NoError(t, err)
	assert.True(t, exists)

	// a removal travels through the monitor to the bus
	src.ch <- monitor.Uevent{Action: "remove", DevName: "/dev/sdb1"}
	assert.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.emits) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, d.Stop(nil))
	assert.True(t, src.closed)
	assert.Nil(t, d.Registry())
	assert.Empty(t, conn.exports)
	assert.Equal(t, []string{DefaultBusName}, conn.released)

	exists, err = afero.Exists(d.fs, d.cfg.PidFile)
	require.NoError(t, err)
	assert.False(t, exists)

	require.ErrorIs(t, d.Stop(nil), ErrNotRunning)
}

func TestDaemon_MonitorFailureKeepsSnapshot(t *testing.T) {
	t.Parallel()

	src := &chanSource{err: errors.New("netlink: permission denied")}
	d := newTestDaemon(t, src, newFakeConn())

	require.NoError(t, d.Start(nil))
	assert.Equal(t, 1, d.Registry().Len())
	require.NoError(t, d.Stop(nil))
}

func TestDaemon_BusFailure(t *testing.T) {
	t.Parallel()

	src := &chanSource{ch: make(chan monitor.Uevent)}
	d := newTestDaemon(t, src, nil)
	d.connect = func() (Conn, error) { return nil, errors.New("no system bus") }

	require.Error(t, d.Start(nil))
	assert.True(t, src.closed)
	assert.Nil(t, d.Registry())

	conn := newFakeConn()
	conn.reply = dbus.RequestNameReplyExists
	d.connect = func() (Conn, error) { return conn, nil }
	require.ErrorIs(t, d.Start(nil), ErrNameTaken)
}

func TestDaemon_DeviceAppearingDuringStartupIsTracked(t *testing.T) {
	t.Parallel()

	src := &chanSource{ch: make(chan monitor.Uevent, 4)}
	d := newTestDaemon(t, src, newFakeConn())

	// sdc1 shows up once the subscription exists; its add event went
	// out before, so only the scan can find it
	src.onStart = func() {
		require.NoError(t, afero.WriteFile(d.fs, "/sys/class/block/sdc1/uevent",
			[]byte("MAJOR=8\nMINOR=33\nDEVNAME=sdc1\nDEVTYPE=partition\n"), 0o644))
		require.NoError(t, afero.WriteFile(d.fs, "/run/udev/data/b8:33",
			[]byte("E:ID_FS_UUID=0F0F-3333\nE:ID_FS_TYPE=vfat\nE:ID_PART_ENTRY_SIZE=4096\n"), 0o644))
	}

	require.NoError(t, d.Start(nil))
	defer func() { require.NoError(t, d.Stop(nil)) }()

	reg := d.Registry()
	assert.Equal(t, 2, reg.Len())
	rec, ok := reg.Lookup("/dev/sdc1")
	require.True(t, ok)
	assert.Equal(t, "0F0F-3333", rec.FSUUID)

	// the add that raced the scan is queued as well and must not duplicate
	src.ch <- monitor.Uevent{Action: "add", DevName: "sdc1"}
	assert.Eventually(t, func() bool { return len(src.ch) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return reg.Len() != 2 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestDaemon_RestartOnSameConnection(t *testing.T) {
	t.Parallel()

	src := &chanSource{ch: make(chan monitor.Uevent)}
	conn := newFakeConn()
	d := newTestDaemon(t, src, conn)

	require.NoError(t, d.Start(nil))
	require.NoError(t, d.Stop(nil))
	assert.Equal(t, []string{DefaultBusName}, conn.released)

	require.NoError(t, d.Start(nil))
	assert.Contains(t, conn.exports, DefaultBusName)
	assert.Equal(t, 1, d.Registry().Len())
	require.NoError(t, d.Stop(nil))
	assert.Len(t, conn.released, 2)
}
