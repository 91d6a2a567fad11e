// File: cmd/fleetlink/root.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"github.com/spf13/cobra"
)

// globals shared by every subcommand
type globals struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "fleetlink",
		Short: "Fleet coordination server and host client",
		Long: `fleetlink coordinates a fleet of hosts over TCP and UDP: host and controller
registration, world announcements, map and file distribution, and the
controller state channel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "path to the YAML config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log.level")

	root.AddCommand(newServeCmd(g), newConfigCmd(g), newHostCmd())
	return root
}
