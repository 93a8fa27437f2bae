package service

import (
	"errors"
	"fmt"
	"os"

	"github.com/kardianos/service"
)

const ServiceName = "blockd"

var (
	ErrInstalled    = errors.New("blockd service is already installed, run 'blockd service uninstall' first")
	ErrNotInstalled = errors.New("blockd service is not installed, run 'blockd service install'")
)

type ServiceManager struct {
	service service.Service
	daemon  *Daemon
}

// NewServiceManager wraps daemon as an OS service. configPath is passed back
// to the installed unit so it runs with the same configuration.
func NewServiceManager(daemon *Daemon, configPath string) (*ServiceManager, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"service", "run"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	svcConfig := &service.Config{
		Name:        ServiceName,
		DisplayName: "blockd block device service",
		Description: "Tracks block devices and mounts them on behalf of unprivileged users",
		Executable:  execPath,
		Arguments:   args,
		Dependencies: []string{
			"After=dbus.service systemd-udevd.service",
			"Requires=dbus.service",
		},
		Option: service.KeyValue{
			"Restart": "on-failure",
		},
	}

	svc, err := service.New(daemon, svcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	return &ServiceManager{
		service: svc,
		daemon:  daemon,
	}, nil
}

// Install refuses to overwrite an existing unit.
func (sm *ServiceManager) Install() error {
	if _, err := sm.service.Status(); err == nil {
		return ErrInstalled
	}
	return sm.service.Install()
}

func (sm *ServiceManager) Uninstall() error {
	return sm.installed(sm.service.Uninstall)
}

func (sm *ServiceManager) Start() error {
	return sm.installed(sm.service.Start)
}

func (sm *ServiceManager) Stop() error {
	return sm.installed(sm.service.Stop)
}

func (sm *ServiceManager) Restart() error {
	return sm.installed(sm.service.Restart)
}

// installed runs fn only when a unit exists.
func (sm *ServiceManager) installed(fn func() error) error {
	if _, err := sm.service.Status(); errors.Is(err, service.ErrNotInstalled) {
		return ErrNotInstalled
	}
	return fn()
}

func (sm *ServiceManager) Status() (string, error) {
	status, err := sm.service.Status()
	switch {
	case errors.Is(err, service.ErrNotInstalled):
		return "not installed", nil
	case err != nil:
		return statusName(service.StatusUnknown), err
	}
	return statusName(status), nil
}

func statusName(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	case service.StatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown (%d)", int(status))
	}
}

// Run blocks until the service manager (or, interactively, SIGINT/SIGTERM)
// stops the daemon.
func (sm *ServiceManager) Run() error {
	return sm.service.Run()
}

// Interactive reports whether we run from a terminal rather than under the
// service manager.
func Interactive() bool {
	return service.Interactive()
}

// ConfigPath returns the platform specific unit location.
func ConfigPath() string {
	switch service.Platform() {
	case "linux-systemd":
		return "/etc/systemd/system/" + ServiceName + ".service"
	case "linux-openrc":
		return "/etc/init.d/" + ServiceName
	case "unix-systemv", "linux-upstart":
		return "/etc/init.d/" + ServiceName
	default:
		return "Unknown platform"
	}
}
