package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/kardianos/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/gajzzs/blockd/internal/config"
	"github.com/gajzzs/blockd/internal/device"
	"github.com/gajzzs/blockd/internal/disk"
	"github.com/gajzzs/blockd/internal/monitor"
	"github.com/gajzzs/blockd/internal/platform"
)

var (
	ErrAlreadyRunning = errors.New("daemon already running")
	ErrNotRunning     = errors.New("daemon not running")
)

// Daemon owns the registry, monitor, controller and bus object for one
// run of the service. It implements service.Interface.
type Daemon struct {
	cfg *config.Config
	fs  afero.Fs

	// overridable for tests
	connect   func() (Conn, error)
	newSource func() monitor.Source

	mu       sync.Mutex
	running  bool
	registry *device.Registry
	monitor  *monitor.Monitor
	block    *Block
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewDaemon(cfg *config.Config) *Daemon {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Daemon{
		cfg: cfg,
		fs:  afero.NewOsFs(),
		connect: func() (Conn, error) {
			return dbus.SystemBus()
		},
		newSource: func() monitor.Source {
			return monitor.NewUdevSource()
		},
	}
}

func (d *Daemon) Start(_ service.Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrAlreadyRunning
	}
	log.Info().Msg("blockd daemon starting")

	probe := device.NewSysfsProbe(d.fs, d.cfg.SysfsRoot, d.cfg.UdevDataDir)
	registry := device.NewRegistry()

	// subscribe before scanning so nothing added in between is lost; a
	// queued add for a scanned device replaces it
	mon := monitor.New(registry, probe, d.newSource(), monitor.WithInterval(d.cfg.Interval()))
	if err := mon.Start(); err != nil {
		// keep serving the startup snapshot
		log.Warn().Err(err).Msg("device monitor unavailable")
	}

	for _, r := range device.Scan(probe) {
		registry.Insert(r)
	}
	log.Info().Int("disks", registry.Len()).Msg("initial scan done")

	ctrl := disk.NewController(disk.Config{
		Registry:  registry,
		Probe:     probe,
		Mounts:    platform.NewMountTable(d.fs, d.cfg.MountsFile),
		Fs:        d.fs,
		MountRoot: d.cfg.MountRoot,
		SysfsRoot: d.cfg.SysfsRoot,
	})

	conn, err := d.connect()
	if err != nil {
		_ = mon.Close()
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	block := NewBlock(registry, ctrl, d.cfg.BusName, d.cfg.ObjectPath)
	if err := block.Export(conn); err != nil {
		_ = mon.Close()
		return err
	}
	mon.Subscribe(block.Notify)

	ctx, cancel := context.WithCancel(context.Background())
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		mon.Run(ctx)
	}()

	if err := CreatePidFile(d.fs, d.cfg.PidFile); err != nil {
		log.Warn().Err(err).Msg("could not create pid file")
	}

	d.registry = registry
	d.monitor = mon
	d.block = block
	d.cancel = cancel
	d.running = true

	log.Info().Msg("blockd daemon started")
	return nil
}

func (d *Daemon) Stop(_ service.Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return ErrNotRunning
	}
	log.Info().Msg("stopping blockd daemon")

	d.cancel()
	d.wg.Wait()
	if err := d.monitor.Close(); err != nil {
		log.Warn().Err(err).Msg("closing device monitor")
	}
	if err := d.block.Unexport(); err != nil {
		log.Warn().Err(err).Msg("leaving system bus")
	}
	if err := RemovePidFile(d.fs, d.cfg.PidFile); err != nil {
		log.Warn().Err(err).Msg("could not remove pid file")
	}

	d.registry = nil
	d.monitor = nil
	d.block = nil
	d.running = false
	return nil
}

// Registry is the live registry while running, nil otherwise.
func (d *Daemon) Registry() *device.Registry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry
}
