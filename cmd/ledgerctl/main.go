package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/textile-erp/ledger/cmd/ledgerctl/cli"
	"github.com/textile-erp/ledger/internal/accounting"
	"github.com/textile-erp/ledger/internal/accounting/posting"
	"github.com/textile-erp/ledger/internal/app"
	"github.com/textile-erp/ledger/internal/platform/db"
)

// exitError carries a command exit code through cobra.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		var code exitError
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		os.Exit(1)
	}
}

type globals struct {
	company string
	json    bool
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Maintenance commands for the textile ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.company, "company", "", "company scope (defaults to LEDGER_COMPANY_ID)")
	rootCmd.PersistentFlags().BoolVar(&g.json, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(
		newSetupCommand(g),
		newVerifyCommand(g),
		newBalanceCommand(g),
		newLedgerCommand(g),
		newJobsCommand(g),
	)
	return rootCmd
}

// session opens the configured store for a single command run.
type session struct {
	cfg      *app.Config
	pool     *pgxpool.Pool
	registry *accounting.Registry
	ledger   *cli.LedgerCLI
}

func openSession(ctx context.Context, g *globals) (*session, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.company == "" {
		g.company = cfg.LedgerCompanyID
	}
	cfg.LedgerCompanies = append(cfg.LedgerCompanies, g.company)
	logger := app.NewLogger(cfg)
	s := &session{cfg: cfg}
	if cfg.LedgerStore == app.StorePostgres {
		s.pool, err = db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		if err := posting.Migrate(ctx, s.pool); err != nil {
			s.pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	} else {
		logger.Warn("ledgerctl is using the in-memory store; changes are discarded on exit")
	}
	s.registry, err = app.NewLedgerRegistry(ctx, app.LedgerDeps{Config: cfg, Logger: logger, Pool: s.pool})
	if err != nil {
		s.close()
		return nil, err
	}
	s.ledger, err = cli.NewLedgerCLI(s.registry)
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	if s.registry != nil {
		s.registry.CloseAll()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func (g *globals) output(cmd *cobra.Command) cli.Output {
	return cli.Output{JSON: g.json, Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
}

func withSession(g *globals, run func(ctx context.Context, s *session) int) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), g)
		if err != nil {
			return err
		}
		defer s.close()
		if code := run(cmd.Context(), s); code != cli.ExitOK {
			return exitError(code)
		}
		return nil
	}
}

func newSetupCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Install the default chart of accounts",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withSession(g, func(ctx context.Context, s *session) int {
		return s.ledger.SetupCommand(ctx, g.company, g.output(cmd))
	})
	return cmd
}

func newVerifyCommand(g *globals) *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay the entry log and compare it with cached balances",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "rebuild cached balances when drift is found")
	cmd.RunE = withSession(g, func(ctx context.Context, s *session) int {
		return s.ledger.VerifyCommand(ctx, g.company, repair, g.output(cmd))
	})
	return cmd
}

func newBalanceCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Print the balance of an account by name or code",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withSession(g, func(ctx context.Context, s *session) int {
			return s.ledger.BalanceCommand(ctx, g.company, args[0], g.output(c))
		})(c, args)
	}
	return cmd
}

func newLedgerCommand(g *globals) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "ledger <customer|supplier|worker> [id]",
		Short: "Print an entity statement or the summaries of an entity type",
		Args:  cobra.RangeArgs(1, 2),
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "statement date (YYYY-MM-DD, defaults to today)")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		opts := cli.LedgerOptions{EntityType: args[0], AsOf: asOf}
		if len(args) > 1 {
			opts.EntityID = args[1]
		}
		return withSession(g, func(ctx context.Context, s *session) int {
			opts.Company = g.company
			return s.ledger.LedgerCommand(ctx, opts, g.output(c))
		})(c, args)
	}
	return cmd
}

func newJobsCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect background jobs",
	}

	var opts cli.TriggerOptions
	enqueue := &cobra.Command{
		Use:   "enqueue <integrity|idempotency-cleanup>",
		Short: "Enqueue a job for the worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withJobs(func(jobsCLI *cli.JobsCLI) error {
				info, err := jobsCLI.Trigger(c.Context(), args[0], opts)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(c.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
				return nil
			})
		},
	}
	enqueue.Flags().StringSliceVar(&opts.Companies, "companies", nil, "companies to check (defaults to every configured company)")
	enqueue.Flags().BoolVar(&opts.Repair, "repair", false, "rebuild drifted balances")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return withJobs(func(jobsCLI *cli.JobsCLI) error {
				st, err := jobsCLI.InspectQueue(c.Context())
				if err != nil {
					return err
				}
				if g.json {
					return cli.Output{JSON: true, Stdout: c.OutOrStdout()}.Encode(st)
				}
				_, _ = fmt.Fprintf(c.OutOrStdout(), "%s: pending=%d active=%d scheduled=%d retry=%d\n",
					st.Queue, st.Pending, st.Active, st.Scheduled, st.Retry)
				return nil
			})
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return withJobs(func(jobsCLI *cli.JobsCLI) error {
				tasks, err := jobsCLI.ListScheduled(c.Context(), size)
				if err != nil {
					return err
				}
				for _, t := range tasks {
					_, _ = fmt.Fprintf(c.OutOrStdout(), "%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "page size")

	cmd.AddCommand(enqueue, stats, scheduled)
	return cmd
}

func withJobs(run func(*cli.JobsCLI) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			slog.Default().Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	return run(jobsCLI)
}
