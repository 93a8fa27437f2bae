package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/gajzzs/blockd/internal/device"
	"github.com/gajzzs/blockd/internal/platform"
)

const DefaultMountRoot = "/mnt"

var (
	ErrInvalidDevice  = errors.New("invalid disk")
	ErrMounted        = errors.New("device is mounted")
	ErrUnsupportedFS  = errors.New("invalid filesystem type")
	ErrToolFailed     = errors.New("external tool failed")
	ErrNoRescanMethod = errors.New("could not open rescan file")
)

// Config carries the collaborators of a Controller. Zero fields get the
// production defaults.
type Config struct {
	Registry  *device.Registry
	Probe     device.Prober
	Mounts    platform.MountTable
	Fs        afero.Fs
	Runner    Runner
	Mounter   Mounter
	MountRoot string
	SysfsRoot string
}

// Controller implements the privileged operations on block devices. It never
// touches the registry; device facts come from the probe and the registry,
// mount facts from the live mount table.
type Controller struct {
	registry  *device.Registry
	probe     device.Prober
	mounts    platform.MountTable
	fs        afero.Fs
	runner    Runner
	mounter   Mounter
	mountRoot string
	sysfsRoot string
}

func NewController(cfg Config) *Controller {
	c := &Controller{
		registry:  cfg.Registry,
		probe:     cfg.Probe,
		mounts:    cfg.Mounts,
		fs:        cfg.Fs,
		runner:    cfg.Runner,
		mounter:   cfg.Mounter,
		mountRoot: cfg.MountRoot,
		sysfsRoot: cfg.SysfsRoot,
	}
	if c.registry == nil {
		c.registry = device.NewRegistry()
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}
	if c.sysfsRoot == "" {
		c.sysfsRoot = device.DefaultSysfsRoot
	}
	if c.probe == nil {
		c.probe = device.NewSysfsProbe(c.fs, c.sysfsRoot, "")
	}
	if c.mounts == nil {
		c.mounts = platform.NewMountTable(c.fs, "")
	}
	if c.runner == nil {
		c.runner = ExecRunner{}
	}
	if c.mounter == nil {
		c.mounter = SysMounter{}
	}
	if c.mountRoot == "" {
		c.mountRoot = DefaultMountRoot
	}
	return c
}

func (c *Controller) Info(name string) device.Record {
	return c.probe.Probe(name)
}

// MountPoint returns where name is currently mounted, "" if it is not.
func (c *Controller) MountPoint(name string) (string, error) {
	mp, err := c.mounts.MountPoint(name)
	if err != nil {
		return "", fmt.Errorf("cannot read mount table: %w", err)
	}
	return mp, nil
}

func (c *Controller) Mounted(name string) bool {
	return c.mounts.Mounted(name)
}

// DefaultMountDir is where Mount puts a device when no directory is given.
func (c *Controller) DefaultMountDir(rec device.Record) string {
	return filepath.Join(c.mountRoot, rec.FSUUID)
}

// Rescan asks the kernel to re-read the partition table of every whole disk
// in the registry. partprobe is preferred, then partx, then the sysfs rescan
// file. The first failing disk aborts the rescan.
func (c *Controller) Rescan() *Task {
	partprobe, _ := c.runner.LookPath("partprobe")
	partx, _ := c.runner.LookPath("partx")
	disks := c.registry.Snapshot()

	log.Info().Int("disks", len(disks)).Msg("scanning for disk changes")

	return startTask(func() error {
		ctx := context.Background()
		for _, d := range disks {
			if d.Class == device.ClassPartition {
				continue
			}

			switch {
			case partprobe != "":
				if err := c.runner.Run(ctx, partprobe, d.Name); err != nil {
					return fmt.Errorf("%w: %w", ErrToolFailed, err)
				}
			case partx != "":
				if err := c.runner.Run(ctx, partx, "-u", d.Name); err != nil {
					return fmt.Errorf("%w: %w", ErrToolFailed, err)
				}
			default:
				if err := c.writeRescanFile(d.Name); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (c *Controller) writeRescanFile(node string) error {
	path := filepath.Join(c.sysfsRoot, "block", filepath.Base(node), "device", "rescan")

	f, err := c.fs.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrNoRescanMethod, path, err)
	}
	defer f.Close()

	if _, err := f.Write([]byte("1")); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Fsck runs "fsck -p" on an unmounted device.
func (c *Controller) Fsck(rec device.Record) *Task {
	if err := c.checkUnmounted(rec); err != nil {
		return failedTask(err)
	}

	log.Info().Object("record", rec).Msg("checking")
	return c.runTool("fsck", "-p", rec.Name)
}

// Mount attaches rec on directory, or on <mount root>/<fs uuid> when
// directory is empty. A device that is already mounted is left alone.
func (c *Controller) Mount(rec device.Record, directory string) error {
	if !rec.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidDevice, rec)
	}

	mp, err := c.MountPoint(rec.Name)
	if err != nil {
		return err
	}
	if mp != "" {
		log.Debug().Object("record", rec).Str("mountpoint", mp).Msg("already mounted")
		return nil
	}

	if directory == "" {
		directory = c.DefaultMountDir(rec)
	}
	if err := c.fs.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("could not create mount point %s: %w", directory, err)
	}

	log.Info().Object("record", rec).Str("mountpoint", directory).Msg("mounting")
	return c.mounter.Mount(rec.Name, directory, rec.FSType)
}

// Unmount lazily detaches rec from wherever the mount table says it is.
func (c *Controller) Unmount(rec device.Record) error {
	if !rec.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidDevice, rec)
	}

	mp, err := c.MountPoint(rec.Name)
	if err != nil {
		return err
	}
	if mp == "" {
		log.Debug().Object("record", rec).Msg("not mounted")
		return nil
	}

	log.Info().Object("record", rec).Str("mountpoint", mp).Msg("unmounting")
	return c.mounter.Unmount(mp)
}

// Mkfs formats rec with fstype, which must be one of Supported.
func (c *Controller) Mkfs(rec device.Record, fstype string) *Task {
	if !rec.Valid() {
		return failedTask(fmt.Errorf("%w: %s", ErrInvalidDevice, rec))
	}
	if !c.IsSupported(fstype) {
		return failedTask(fmt.Errorf("%w: %q", ErrUnsupportedFS, fstype))
	}
	if err := c.checkUnmounted(rec); err != nil {
		return failedTask(err)
	}

	log.Info().Object("record", rec).Str("fstype", fstype).Msg("formatting")
	return c.runTool(mkfsProgram(fstype), rec.Name)
}

func (c *Controller) checkUnmounted(rec device.Record) error {
	if !rec.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidDevice, rec)
	}
	mp, err := c.MountPoint(rec.Name)
	if err != nil {
		return err
	}
	if mp != "" {
		return fmt.Errorf("%w: %s on %s", ErrMounted, rec.Name, mp)
	}
	return nil
}

func (c *Controller) runTool(name string, args ...string) *Task {
	return startTask(func() error {
		if err := c.runner.Run(context.Background(), name, args...); err != nil {
			return fmt.Errorf("%w: %w", ErrToolFailed, err)
		}
		return nil
	})
}
