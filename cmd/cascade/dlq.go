package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/cascade/dlq"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/store"
)

func dlqCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered jobs",
	}
	cmd.AddCommand(dlqListCmd(g), dlqGetCmd(g), dlqReplayCmd(g))
	return cmd
}

func (g *globals) dlqService(s store.Store) *dlq.Service {
	return dlq.NewService(s, dlq.WithLogger(g.logger))
}

func dlqListCmd(g *globals) *cobra.Command {
	var opts dlq.ListOpts
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withStore(cmd.Context(), func(s store.Store) error {
				entries, err := g.dlqService(s).List(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return writeEntries(cmd.OutOrStdout(), g.output, entries)
			})
		},
	}
	cmd.Flags().StringVar(&opts.JobType, "type", "", "filter by job type")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum entries to show (0 for all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "entries to skip")
	return cmd
}

func dlqGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one dead-lettered job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			return g.withStore(cmd.Context(), func(s store.Store) error {
				e, err := g.dlqService(s).Get(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				if g.output == "json" {
					return writeJSON(cmd.OutOrStdout(), e)
				}
				return writeEntries(cmd.OutOrStdout(), g.output, []*dlq.Entry{e})
			})
		},
	}
}

func dlqReplayCmd(g *globals) *cobra.Command {
	var (
		all     bool
		jobType string
	)
	cmd := &cobra.Command{
		Use:   "replay [job-id]",
		Short: "Return dead-lettered jobs to pending with a fresh retry budget",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("pass exactly one of a job ID or --all")
			}
			return g.withStore(cmd.Context(), func(s store.Store) error {
				svc := g.dlqService(s)
				out := cmd.OutOrStdout()
				if all {
					n, err := svc.ReplayAll(cmd.Context(), jobType)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(out, "replayed %d job(s)\n", n)
					return err
				}

				jobID, err := id.ParseJobID(args[0])
				if err != nil {
					return err
				}
				pendingID, err := svc.Replay(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				if pendingID.String() != jobID.String() {
					_, err = fmt.Fprintf(out, "idempotency key held by %s; dead letter kept\n", pendingID)
					return err
				}
				_, err = fmt.Fprintf(out, "replayed %s\n", jobID)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "replay every dead-lettered job")
	cmd.Flags().StringVar(&jobType, "type", "", "with --all, restrict to one job type")
	return cmd
}
