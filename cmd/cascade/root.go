package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/cascade/store"
)

// Environment variables consulted when the matching flag is unset.
const (
	envDatabaseURL = "CASCADE_DATABASE_URL"
	envRedisAddr   = "CASCADE_REDIS_ADDR"
)

// opener connects to the configured backend.
type opener func(ctx context.Context, g *globals) (store.Store, error)

// globals carries the persistent flags shared by every subcommand.
type globals struct {
	databaseURL string
	redisAddr   string
	logFormat   string
	logLevel    string
	output      string

	open   opener
	logger *slog.Logger
}

func newRootCmd(open opener) *cobra.Command {
	g := &globals{open: open}

	root := &cobra.Command{
		Use:           "cascade",
		Short:         "Operate a cascade job store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(g.logFormat, g.logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			g.logger = logger
			if g.output != "table" && g.output != "json" {
				return fmt.Errorf("unknown output format %q (want table or json)", g.output)
			}
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&g.databaseURL, "database-url", os.Getenv(envDatabaseURL), "PostgreSQL connection string (env "+envDatabaseURL+")")
	f.StringVar(&g.redisAddr, "redis-addr", os.Getenv(envRedisAddr), "Redis address, used when no database URL is set (env "+envRedisAddr+")")
	f.StringVar(&g.logFormat, "log-format", "text", "log format: text or json")
	f.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.StringVarP(&g.output, "output", "o", "table", "output format: table or json")

	root.AddCommand(
		migrateCmd(g),
		jobsCmd(g),
		dlqCmd(g),
		recurringCmd(g),
		monitorCmd(g),
	)
	return root
}

// withStore opens the backend, runs fn and closes the backend.
func (g *globals) withStore(ctx context.Context, fn func(store.Store) error) error {
	s, err := g.open(ctx, g)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			g.logger.Warn("close store", slog.String("error", cerr.Error()))
		}
	}()
	return fn(s)
}

func newLogger(format, level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
