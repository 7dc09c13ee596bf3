// Command casseq mints cluster-wide sequence ids from the command line.
// It is a thin wrapper over the library: one invocation dials the backend,
// runs one operation and exits non-zero on any failure, including the
// no-id-assigned sentinel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/casseq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "casseq:", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	endpoint    string
	backendKind string
	concurrency int
	configPath  string
	verbose     bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "casseq",
		Short: "Cluster-wide sequence ids from a shared coordination backend",
		Long: `casseq hands out monotonically increasing int64 ids, partitioned by
namespace and shared by every process that talks to the same backend.

Counters live in the backend, not in this process: two machines running
"casseq next orders" against the same endpoint never see the same id.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.endpoint, "endpoint", "", "backend address (default "+casseq.DefaultEndpoint+")")
	pf.StringVar(&flags.backendKind, "backend", "", "backend kind: redis, etcd or local (default redis)")
	pf.IntVar(&flags.concurrency, "concurrency", 0, "mutating backend calls in flight at once (default "+strconv.Itoa(casseq.DefaultConcurrency)+")")
	pf.StringVar(&flags.configPath, "config", "", "YAML config file; flags win over file values")
	pf.BoolVar(&flags.verbose, "verbose", false, "log generator activity to stderr")

	cmd.AddCommand(
		newNextCommand(flags),
		newCurrentCommand(flags),
		newSetCommand(flags),
	)
	return cmd
}

func newNextCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "next <namespace>",
		Short: "Claim and print the next id for a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := open(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer gen.Close(cmd.Context())

			id, err := gen.NextID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if id == casseq.IDNotAssigned {
				return fmt.Errorf("no id assigned for %q: backend busy, try again", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newCurrentCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "current <namespace>",
		Short: "Print the last id handed out for a namespace (0 if none)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := open(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer gen.Close(cmd.Context())

			id, err := gen.CurrentID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newSetCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <namespace> <value>",
		Short: "Force a namespace counter to a value (next id will be value+1)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("value %q is not an int64", args[1])
			}
			gen, err := open(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer gen.Close(cmd.Context())

			if _, err := gen.SetValue(cmd.Context(), args[0], v); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}
