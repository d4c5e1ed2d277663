package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
	"github.com/xraph/cascade/store"
)

var allStatuses = []job.Status{
	job.StatusPending,
	job.StatusRunning,
	job.StatusSucceeded,
	job.StatusFailed,
	job.StatusDeadLetter,
}

func jobsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect jobs",
	}
	cmd.AddCommand(jobsListCmd(g), jobsGetCmd(g), jobsCountCmd(g))
	return cmd
}

func jobsListCmd(g *globals) *cobra.Command {
	var (
		status string
		opts   job.ListOpts
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := parseStatus(status)
			if err != nil {
				return err
			}
			opts.Status = st
			return g.withStore(cmd.Context(), func(s store.Store) error {
				jobs, err := s.ListJobs(cmd.Context(), opts)
				if err != nil {
					return fmt.Errorf("list jobs: %w", err)
				}
				return writeJobs(cmd.OutOrStdout(), g.output, jobs)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&status, "status", "", "filter by status")
	f.StringVar(&opts.JobType, "type", "", "filter by job type")
	f.StringVar(&opts.ReferenceID, "reference", "", "filter by reference ID")
	f.IntVar(&opts.Limit, "limit", 50, "maximum jobs to show (0 for all)")
	f.IntVar(&opts.Offset, "offset", 0, "jobs to skip")
	return cmd
}

func jobsGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			return g.withStore(cmd.Context(), func(s store.Store) error {
				j, err := s.GetJob(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				return writeJob(cmd.OutOrStdout(), g.output, j)
			})
		},
	}
}

func jobsCountCmd(g *globals) *cobra.Command {
	var jobType string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count jobs per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withStore(cmd.Context(), func(s store.Store) error {
				counts := make(map[job.Status]int64, len(allStatuses))
				for _, st := range allStatuses {
					n, err := s.CountJobs(cmd.Context(), job.CountOpts{Status: st, JobType: jobType})
					if err != nil {
						return fmt.Errorf("count %s: %w", st, err)
					}
					counts[st] = n
				}
				if g.output == "json" {
					return writeJSON(cmd.OutOrStdout(), counts)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STATUS\tCOUNT")
				for _, st := range allStatuses {
					fmt.Fprintf(tw, "%s\t%d\n", st, counts[st])
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "", "restrict to one job type")
	return cmd
}

func parseStatus(s string) (job.Status, error) {
	if s == "" {
		return "", nil
	}
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}
