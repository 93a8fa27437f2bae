package system

import (
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemMonitor_Host(t *testing.T) {
	t.Parallel()

	sm := &SystemMonitor{hostInfo: func() (*host.InfoStat, error) {
		return &host.InfoStat{Hostname: "box", OS: "linux", Platform: "debian", KernelVersion: "6.1.0", Uptime: 42}, nil
	}}

	info, err := sm.Host()
	require.NoError(t, err)
	assert.Equal(t, HostInfo{Hostname: "box", OS: "linux", Platform: "debian", KernelVersion: "6.1.0", Uptime: 42}, info)

	sm.hostInfo = func() (*host.InfoStat, error) { return nil, errors.New("no /proc") }
	_, err = sm.Host()
	require.Error(t, err)
}

func TestSystemMonitor_Usage(t *testing.T) {
	t.Parallel()

	var asked string
	sm := &SystemMonitor{usage: func(path string) (*disk.UsageStat, error) {
		asked = path
		return &disk.UsageStat{Path: path, Total: 1000, Used: 250, UsedPercent: 25}, nil
	}}

	u, err := sm.Usage("/mnt/ABCD-1234")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/ABCD-1234", asked)
	assert.Equal(t, Usage{Total: 1000, Used: 250, UsedPercent: 25}, u)
}
