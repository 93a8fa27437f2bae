package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gajzzs/blockd/internal/app"
)

func newRootCommand(env *app.Env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "blockd",
		Short:         "Block device tracking and mounting service",
		Long:          "blockd tracks block devices through udev and mounts them on behalf of unprivileged users over D-Bus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	env.Bind(rootCmd)

	rootCmd.AddCommand(
		app.NewDaemonCommand(env),
		app.NewServiceCommand(env),
		app.NewListCommand(env),
		app.NewInfoCommand(env),
		app.NewMountCommand(env),
		app.NewUnmountCommand(env),
		app.NewRescanCommand(env),
		app.NewFsckCommand(env),
		app.NewMkfsCommand(env),
		app.NewSupportedCommand(env),
		app.NewWatchCommand(env),
		app.NewStatusCommand(env),
		app.NewConfigCommand(env),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand(app.NewEnv()).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
