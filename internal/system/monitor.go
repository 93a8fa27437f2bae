package system

import (
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
)

type HostInfo struct {
	Hostname      string
	OS            string
	Platform      string
	KernelVersion string
	Uptime        uint64
}

// Usage of a mounted filesystem in bytes.
type Usage struct {
	Total       uint64
	Used        uint64
	UsedPercent float64
}

type SystemMonitor struct {
	hostInfo func() (*host.InfoStat, error)
	usage    func(path string) (*disk.UsageStat, error)
}

func NewSystemMonitor() *SystemMonitor {
	return &SystemMonitor{
		hostInfo: host.Info,
		usage:    disk.Usage,
	}
}

func (sm *SystemMonitor) Host() (HostInfo, error) {
	info, err := sm.hostInfo()
	if err != nil {
		return HostInfo{}, err
	}
	return HostInfo{
		Hostname:      info.Hostname,
		OS:            info.OS,
		Platform:      info.Platform,
		KernelVersion: info.KernelVersion,
		Uptime:        info.Uptime,
	}, nil
}

// Usage reports how full the filesystem mounted at path is.
func (sm *SystemMonitor) Usage(path string) (Usage, error) {
	u, err := sm.usage(path)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Total: u.Total, Used: u.Used, UsedPercent: u.UsedPercent}, nil
}
