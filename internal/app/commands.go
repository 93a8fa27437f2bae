package app

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gajzzs/blockd/internal/device"
	"github.com/gajzzs/blockd/internal/monitor"
	"github.com/gajzzs/blockd/internal/platform"
)

func NewListCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked block devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Config()
			if err != nil {
				return err
			}
			c, err := env.Client()
			if err != nil {
				return err
			}
			disks, err := c.Disks()
			if err != nil {
				return err
			}

			mounts := platform.NewMountTable(env.Fs, cfg.MountsFile)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DEVICE\tTYPE\tFS\tNAME\tMOUNT\tUSED")
			for _, d := range disks {
				mp, _ := mounts.MountPoint(d.Name)
				used := "-"
				if mp != "" {
					if u, err := env.System.Usage(mp); err == nil {
						used = fmt.Sprintf("%.0f%%", u.UsedPercent)
					}
				} else {
					mp = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", d.Name, d.Class, orDash(d.FSType), d.FancyName(), mp, used)
			}
			return w.Flush()
		},
	}
}

func NewInfoCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "info [device]",
		Short: "Show what the daemon knows about a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.Client()
			if err != nil {
				return err
			}
			rec, err := c.Info(commandContext(cmd), device.NodePath(args[0]))
			if err != nil {
				return err
			}
			if !rec.Valid() {
				return fmt.Errorf("%s: no usable device information", args[0])
			}
			printRecord(cmd, rec)
			return nil
		},
	}
}

func NewMountCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "mount [device]",
		Short: "Mount a device under the mount root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.Client()
			if err != nil {
				return err
			}
			rec := device.Record{Name: device.NodePath(args[0])}
			if !c.UserMount(rec) {
				return fmt.Errorf("mount %s: %w", rec.Name, ErrOperationFailed)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mounted %s\n", rec.Name)
			return nil
		},
	}
}

func NewUnmountCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:     "unmount [device]",
		Aliases: []string{"umount"},
		Short:   "Unmount a device",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.Client()
			if err != nil {
				return err
			}
			rec := device.Record{Name: device.NodePath(args[0])}
			if !c.UserUnmount(rec) {
				return fmt.Errorf("unmount %s: %w", rec.Name, ErrOperationFailed)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unmounted %s\n", rec.Name)
			return nil
		},
	}
}

func NewRescanCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "rescan",
		Short: "Re-read the partition tables of all tracked disks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.Client()
			if err != nil {
				return err
			}
			return c.Rescan(commandContext(cmd))
		},
	}
}

func NewFsckCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "fsck [device]",
		Short: "Check an unmounted filesystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.Client()
			if err != nil {
				return err
			}
			return c.Fsck(commandContext(cmd), device.NodePath(args[0]))
		},
	}
}

func NewMkfsCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "mkfs [device] [fstype]",
		Short: "Create a filesystem on an unmounted device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.Client()
			if err != nil {
				return err
			}
			return c.Mkfs(commandContext(cmd), device.NodePath(args[0]), args[1])
		},
	}
}

func NewSupportedCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "supported",
		Short: "List filesystem types that can be checked and created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.Client()
			if err != nil {
				return err
			}
			types, err := c.Supported()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(types, " "))
			return nil
		},
	}
}

func NewWatchCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print device events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.Client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return c.Watch(ctx, func(ev monitor.Event) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s %s\n", ev.Kind, ev.Record.Name, ev.Record.FancyName())
			})
		},
	}
}

func printRecord(cmd *cobra.Command, rec device.Record) {
	fmt.Fprintf(cmd.OutOrStdout(), "Device: %s\n", rec.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "Type:   %s\n", rec.Class)
	fmt.Fprintf(cmd.OutOrStdout(), "Label:  %s\n", orDash(rec.Label))
	fmt.Fprintf(cmd.OutOrStdout(), "FS:     %s\n", orDash(rec.FSType))
	fmt.Fprintf(cmd.OutOrStdout(), "UUID:   %s\n", rec.FSUUID)
	fmt.Fprintf(cmd.OutOrStdout(), "Size:   %s\n", rec.FancySize())
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
