package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/cron"
	"github.com/xraph/cascade/job"
	"github.com/xraph/cascade/store"
)

func recurringCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Manage recurring jobs",
	}
	cmd.AddCommand(
		recurringListCmd(g),
		recurringToggleCmd(g, "disable", "Stop claims of a recurring job", true),
		recurringToggleCmd(g, "enable", "Resume a disabled recurring job", false),
	)
	return cmd
}

func recurringListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recurring jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withStore(cmd.Context(), func(s store.Store) error {
				all, err := s.ListJobs(cmd.Context(), job.ListOpts{})
				if err != nil {
					return err
				}
				var recurring []*job.Job
				for _, j := range all {
					if j.Recurring() && j.Status != job.StatusDeadLetter {
						recurring = append(recurring, j)
					}
				}
				return writeJobs(cmd.OutOrStdout(), g.output, recurring)
			})
		},
	}
}

func recurringToggleCmd(g *globals, use, short string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job-type>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType := args[0]
			return g.withStore(cmd.Context(), func(s store.Store) error {
				j, err := s.GetJobByKey(cmd.Context(), cron.RecurringKey(jobType))
				if errors.Is(err, job.ErrJobNotFound) {
					return fmt.Errorf("%w: %q", cascade.ErrRecurringNotFound, jobType)
				}
				if err != nil {
					return err
				}
				if err := s.SetJobDisabled(cmd.Context(), j.ID, disabled); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%sd %s (%s)\n", use, jobType, j.ID)
				return err
			})
		},
	}
}
