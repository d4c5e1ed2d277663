package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/xraph/cascade/dlq"
	"github.com/xraph/cascade/job"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJobs(w io.Writer, format string, jobs []*job.Job) error {
	if format == "json" {
		return writeJSON(w, jobs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tATTEMPT\tNEXT RUN\tREFERENCE")
	for _, j := range jobs {
		status := string(j.Status)
		if j.Disabled() {
			status += " (disabled)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.JobType, status, j.Attempt(), j.MaxRetries+1,
			formatTime(j.NextRunAt), j.ReferenceID)
	}
	return tw.Flush()
}

func writeJob(w io.Writer, format string, j *job.Job) error {
	if format == "json" {
		return writeJSON(w, j)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", k, v)
		}
	}
	row("ID", j.ID.String())
	row("Type", j.JobType)
	row("Version", fmt.Sprint(j.Version))
	row("Status", string(j.Status))
	row("Priority", fmt.Sprint(j.Priority))
	row("Retries", fmt.Sprintf("%d/%d", j.RetryCount, j.MaxRetries))
	row("Idempotency key", j.IdempotencyKey)
	row("Reference", j.ReferenceID)
	row("Frequency", j.Frequency)
	row("Next run", formatTime(j.NextRunAt))
	if j.LastRunAt != nil {
		row("Last run", formatTime(*j.LastRunAt))
	}
	if !j.WorkerID.IsNil() {
		row("Worker", j.WorkerID.String())
	}
	if j.DisabledAt != nil {
		row("Disabled at", formatTime(*j.DisabledAt))
	}
	row("Error", j.ErrorMessage)
	row("Error kind", string(j.ErrorKind))
	row("Dead letter reason", j.DeadLetterReason)
	row("Args", strings.TrimSpace(string(j.Args)))
	return tw.Flush()
}

func writeEntries(w io.Writer, format string, entries []*dlq.Entry) error {
	if format == "json" {
		return writeJSON(w, entries)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tREASON\tRETRIES\tDEAD LETTERED\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.JobID, e.JobType, e.Reason, e.RetryCount,
			formatTime(e.DeadLetteredAt), truncate(e.Error, 60))
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
