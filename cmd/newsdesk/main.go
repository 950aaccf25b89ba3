// Command newsdesk is the operator CLI: run jobs once, import sources,
// apply migrations and hash trigger tokens.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/Saul-Punybz/newsdesk/internal/app"
	"github.com/Saul-Punybz/newsdesk/internal/config"
	"github.com/Saul-Punybz/newsdesk/internal/db"
	"github.com/Saul-Punybz/newsdesk/internal/jobs"
	"github.com/Saul-Punybz/newsdesk/internal/logging"
	"github.com/Saul-Punybz/newsdesk/internal/seed"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	memory bool
	seed   string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "newsdesk",
		Short:         "Feed aggregation, promotion and trending jobs",
		SilenceUsage:  true,
	}
	root.PersistentFlags().BoolVar(&flags.memory, "memory", false, "use the in-memory store instead of Postgres")
	root.PersistentFlags().StringVar(&flags.seed, "seed", "", "import sources from this YAML file before running")

	root.AddCommand(
		newRunCmd(&flags),
		newSourcesCmd(&flags),
		newMigrateCmd(),
		newHashTokenCmd(),
	)
	return root
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr))
	return cfg, nil
}

func openApp(ctx context.Context, flags *rootFlags) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, app.Options{Memory: flags.memory})
	if err != nil {
		return nil, err
	}
	if flags.seed != "" {
		if _, err := seed.ImportFile(ctx, a.Store, flags.seed); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "run JOB...",
		Short:     "Run one or more jobs once and print their summaries",
		Example:   "  newsdesk run --memory --seed sources.yaml ingest promote rank",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{jobs.Ingest, jobs.Promote, jobs.Rank},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			failed := false
			for _, name := range args {
				sum, err := a.Jobs.Trigger(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				if err := printJSON(cmd.OutOrStdout(), sum); err != nil {
					return err
				}
				if sum.Status != jobs.StatusOK {
					failed = true
				}
			}
			if failed {
				return fmt.Errorf("one or more jobs aborted")
			}
			return nil
		},
	}
}

func newSourcesCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage feed sources",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Upsert sources from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := seed.ImportFile(cmd.Context(), a.Store, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d sources\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			sources, err := a.Store.ListSources(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORY\tENABLED\tAUTO\tINTERVAL\tERRORS\tLAST POLLED\tENDPOINT")
			for _, s := range sources {
				last := "-"
				if s.LastPolledAt != nil {
					last = s.LastPolledAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\t%d\t%s\t%s\n",
					s.Name, s.Category, s.Enabled, s.AutoApprove, s.PollInterval, s.ErrorCount, last, s.Endpoint)
			}
			return tw.Flush()
		},
	})
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := db.Open(cmd.Context(), cfg.DB)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.Migrate(cmd.Context(), pool)
		},
	}
}

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token TOKEN",
		Short: "Print the bcrypt hash to use as AUTH_TRIGGER_TOKEN_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
