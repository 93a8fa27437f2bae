package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gajzzs/blockd/internal/config"
	"github.com/gajzzs/blockd/internal/logging"
	"github.com/gajzzs/blockd/internal/service"
)

func (e *Env) serviceManager() (*service.ServiceManager, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	return service.NewServiceManager(service.NewDaemon(cfg), e.ConfigPath)
}

// runDaemon runs in the foreground, or under the OS service manager when
// started by it, until stopped.
func (e *Env) runDaemon() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("daemon must be run as root")
	}
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if err := logging.Setup(logging.Options{
		File:    cfg.LogFile,
		Level:   cfg.Level(),
		Console: service.Interactive(),
	}); err != nil {
		return err
	}
	sm, err := e.serviceManager()
	if err != nil {
		return err
	}
	return sm.Run()
}

func NewDaemonCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the blockd daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.runDaemon()
		},
	}
}

func NewServiceCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the blockd system service",
	}

	action := func(use, short, done string, fn func(*service.ServiceManager) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sm, err := env.serviceManager()
				if err != nil {
					return err
				}
				if err := fn(sm); err != nil {
					return fmt.Errorf("%s: %w", use, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), done)
				return nil
			},
		}
	}

	cmd.AddCommand(
		action("install", "Install blockd as a system service", "Service installed and enabled for auto-start",
			(*service.ServiceManager).Install),
		action("uninstall", "Remove the blockd system service", "Service uninstalled",
			(*service.ServiceManager).Uninstall),
		action("start", "Start the blockd system service", "Service started",
			(*service.ServiceManager).Start),
		action("stop", "Stop the blockd system service", "Service stopped",
			(*service.ServiceManager).Stop),
		action("restart", "Restart the blockd system service", "Service restarted",
			(*service.ServiceManager).Restart),
		&cobra.Command{
			Use:   "status",
			Short: "Show system service status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sm, err := env.serviceManager()
				if err != nil {
					return err
				}
				status, err := sm.Status()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service status: %s\n", status)
				fmt.Fprintf(cmd.OutOrStdout(), "Unit: %s\n", service.ConfigPath())
				return nil
			},
		},
		&cobra.Command{
			Use:    "run",
			Short:  "Entry point used by the service manager",
			Hidden: true,
			Args:   cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return env.runDaemon()
			},
		},
	)

	return cmd
}

func NewConfigCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the blockd configuration file",
		// the file may not exist or be broken yet
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exists, err := fileExists(env.ConfigPath)
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", env.ConfigPath)
			}
			if err := config.Default().Save(env.ConfigPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", env.ConfigPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}
