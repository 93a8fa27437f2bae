package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gajzzs/blockd/internal/service"
)

func NewStatusCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:                   "status",
		Short:                 "Show daemon and host status",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Config()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "blockd status")
			fmt.Fprintln(out, "=============")

			fmt.Fprintln(out, "\nDaemon:")
			if running, pid := service.DaemonRunning(env.Fs, cfg.PidFile); running {
				fmt.Fprintf(out, "  Running (pid %d)\n", pid)
			} else {
				fmt.Fprintln(out, "  Stopped")
			}
			fmt.Fprintf(out, "  Bus name: %s\n", cfg.BusName)
			fmt.Fprintf(out, "  Object path: %s\n", cfg.ObjectPath)

			fmt.Fprintln(out, "\nDevices:")
			c, err := env.Client()
			if err != nil {
				return err
			}
			if disks, err := c.Disks(); err == nil {
				fmt.Fprintf(out, "  Tracked: %d\n", len(disks))
			} else {
				fmt.Fprintln(out, "  Tracked: unavailable")
			}
			if types, err := c.Supported(); err == nil {
				fmt.Fprintf(out, "  Supported filesystems: %d\n", len(types))
			}

			fmt.Fprintln(out, "\nSystem Information:")
			if info, err := env.System.Host(); err == nil {
				fmt.Fprintf(out, "  Hostname: %s\n", info.Hostname)
				fmt.Fprintf(out, "  OS: %s (%s)\n", info.OS, info.Platform)
				fmt.Fprintf(out, "  Kernel: %s\n", info.KernelVersion)
				fmt.Fprintf(out, "  Uptime: %s\n", time.Duration(info.Uptime)*time.Second)
			} else {
				fmt.Fprintln(out, "  unavailable")
			}
			return nil
		},
	}
}
