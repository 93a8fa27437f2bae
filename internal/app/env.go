package app

import (
	"context"
	"errors"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gajzzs/blockd/internal/client"
	"github.com/gajzzs/blockd/internal/config"
	"github.com/gajzzs/blockd/internal/device"
	"github.com/gajzzs/blockd/internal/logging"
	"github.com/gajzzs/blockd/internal/monitor"
	"github.com/gajzzs/blockd/internal/system"
)

var ErrOperationFailed = errors.New("operation failed, see daemon log")

// BlockClient is what the CLI needs from the daemon.
type BlockClient interface {
	Disks() ([]device.Record, error)
	Supported() ([]string, error)
	Info(ctx context.Context, name string) (device.Record, error)
	UserMount(r device.Record) bool
	UserUnmount(r device.Record) bool
	Rescan(ctx context.Context) error
	Fsck(ctx context.Context, name string) error
	Mkfs(ctx context.Context, name, fstype string) error
	Watch(ctx context.Context, fn func(monitor.Event)) error
}

// Env is shared by all commands of one invocation.
type Env struct {
	ConfigPath string

	Fs        afero.Fs
	NewClient func(cfg *config.Config) BlockClient
	System    *system.SystemMonitor

	cfg *config.Config
}

func NewEnv() *Env {
	return &Env{
		ConfigPath: config.ConfigFile,
		Fs:         afero.NewOsFs(),
		NewClient: func(cfg *config.Config) BlockClient {
			return client.New(client.WithBusName(cfg.BusName), client.WithObjectPath(cfg.ObjectPath))
		},
		System: system.NewSystemMonitor(),
	}
}

// Config loads the configuration once per invocation.
func (e *Env) Config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load(e.ConfigPath)
	if err != nil {
		return nil, err
	}
	e.cfg = cfg
	return cfg, nil
}

func (e *Env) Client() (BlockClient, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	return e.NewClient(cfg), nil
}

// Bind adds the global flags to root and sets up console logging before
// any command runs.
func (e *Env) Bind(root *cobra.Command) {
	root.PersistentFlags().StringVar(&e.ConfigPath, "config", e.ConfigPath, "path to the configuration file")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := e.Config()
		if err != nil {
			return err
		}
		return logging.Setup(logging.Options{Level: cfg.Level(), Console: true})
	}
}
