package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/DarkarBlays/inventario/internal/client"
	"github.com/DarkarBlays/inventario/internal/instance"
	"github.com/spf13/cobra"
)

type globals struct {
	instance string
	json     bool
	timeout  time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "inventoryctl",
		Short:         "Control a running inventoryd instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.instance, "instance", "", "instance name (overrides config default)")
	root.PersistentFlags().BoolVar(&g.json, "json", false, "output in JSON format")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		newListCmd(g),
		newGetCmd(g),
		newCreateCmd(g),
		newUpdateCmd(g),
		newDeleteCmd(g),
		newPendingCmd(g),
		newAckCmd(g),
		newReportCmd(g),
		newOutboxCmd(g),
		newStatusCmd(g),
		newWatchCmd(g),
	)
	return root
}

// connect resolves the instance and dials its daemon socket.
func (g *globals) connect() (*client.Client, error) {
	name := instance.Resolve(g.instance)
	if err := instance.ValidateName(name); err != nil {
		return nil, err
	}
	c, err := client.New(instance.SocketPath(name))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon for instance %q: %w", name, err)
	}
	return c, nil
}

// run dials the daemon and calls fn with a bounded context.
func (g *globals) run(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := g.connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()
	return fn(ctx, c)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
