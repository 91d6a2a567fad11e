// File: cmd/fleetlink/host.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-interactive host client commands. Each invocation opens one connection,
// runs its exchanges and exits.

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/client"
)

type hostFlags struct {
	addr    string
	udpAddr string
	timeout time.Duration
	name    string
	id      uint32
}

func newHostCmd() *cobra.Command {
	f := &hostFlags{}
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Talk to a running server as a host",
	}
	cmd.PersistentFlags().StringVar(&f.addr, "addr", "127.0.0.1:8081", "server TCP address")
	cmd.PersistentFlags().StringVar(&f.udpAddr, "udp", "127.0.0.1:8082", "server UDP address")
	cmd.PersistentFlags().DurationVar(&f.timeout, "timeout", 30*time.Second, "overall deadline")

	echo := &cobra.Command{
		Use:   "echo <message>",
		Short: "Round-trip a message over TCP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, f, func(ctx context.Context, c *client.Client) error {
				got, err := c.Echo(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), got)
				return nil
			})
		},
	}

	register := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a host and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, f, func(ctx context.Context, c *client.Client) error {
				id, err := c.RegisterHost(ctx, api.ID(f.id), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	register.Flags().Uint32Var(&f.id, "id", 0, "request a specific host id")

	uploadMap := &cobra.Command{
		Use:   "upload-map <file>",
		Short: "Register a host and upload its map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, size, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			return withClient(cmd, f, func(ctx context.Context, c *client.Client) error {
				id, err := c.RegisterHost(ctx, api.ID(f.id), f.name)
				if err != nil {
					return err
				}
				if err := c.UploadMap(ctx, id, src, size, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d bytes as the map of host %s\n", size, id)
				return nil
			})
		},
	}
	uploadMap.Flags().StringVar(&f.name, "name", "fleetlink-cli", "host name to register")
	uploadMap.Flags().Uint32Var(&f.id, "id", 0, "request a specific host id")

	downloadMap := &cobra.Command{
		Use:   "download-map <host-id> <out-file>",
		Short: "Download the map of a host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, f, func(ctx context.Context, c *client.Client) error {
				return writeOutput(args[1], func(out *os.File) (uint64, error) {
					return c.DownloadMap(ctx, id, out, nil)
				})
			})
		},
	}

	uploadFile := &cobra.Command{
		Use:   "upload-file <file> [name]",
		Short: "Upload a named file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, size, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			name := src.base
			if len(args) == 2 {
				name = args[1]
			}
			return withClient(cmd, f, func(ctx context.Context, c *client.Client) error {
				return c.UploadFile(ctx, name, src, size, nil)
			})
		},
	}

	downloadFile := &cobra.Command{
		Use:   "download-file <name> <out-file>",
		Short: "Download a named file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, f, func(ctx context.Context, c *client.Client) error {
				return writeOutput(args[1], func(out *os.File) (uint64, error) {
					return c.DownloadFile(ctx, args[0], out, nil)
				})
			})
		},
	}

	fetchState := &cobra.Command{
		Use:   "fetch-state <controller-id>",
		Short: "Read a controller rotation over UDP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
			defer cancel()
			sc, err := client.DialState(f.udpAddr, f.timeout)
			if err != nil {
				return err
			}
			defer sc.Close()
			rot, ok, err := sc.FetchState(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("controller %s: %w", id, api.ErrNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %d %d\n", rot[0], rot[1], rot[2])
			return nil
		},
	}

	updateState := &cobra.Command{
		Use:   "update-state <controller-id> <x> <y> <z>",
		Short: "Publish a controller rotation over UDP",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var rot api.Rotation
			for i, s := range args[1:] {
				v, err := strconv.ParseUint(s, 10, 8)
				if err != nil {
					return fmt.Errorf("rotation component %q: %w", s, err)
				}
				rot[i] = byte(v)
			}
			sc, err := client.DialState(f.udpAddr, f.timeout)
			if err != nil {
				return err
			}
			defer sc.Close()
			return sc.UpdateState(id, rot)
		},
	}

	cmd.AddCommand(echo, register, uploadMap, downloadMap, uploadFile, downloadFile, fetchState, updateState)
	return cmd
}

func withClient(cmd *cobra.Command, f *hostFlags, fn func(context.Context, *client.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	defer cancel()
	c, err := client.Dial(ctx, client.Config{Addr: f.addr, HeartbeatInterval: 10 * time.Second})
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func parseID(s string) (api.ID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return api.NoID, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return api.ID(v), nil
}

// input is an opened local file with its base name.
type input struct {
	*os.File
	base string
}

func openInput(path string) (input, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return input{}, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return input{}, 0, err
	}
	return input{File: f, base: fi.Name()}, uint64(fi.Size()), nil
}

func writeOutput(path string, fn func(*os.File) (uint64, error)) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := fn(out); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return err
	}
	return out.Close()
}
