package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"app/internal/config"
	"app/internal/logger"
	"app/internal/model"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// adminApp holds the wired dependencies shared by the subcommands.
type adminApp struct {
	cfg    *config.Config
	ledger service.LedgerService
	authz  *service.Authorizer
	close  func()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var operator string

	rootCmd := &cobra.Command{
		Use:           "adminctl",
		Short:         "BoostUGC account administration",
		Long:          "adminctl inspects and adjusts account balances and activity directly against the database. Every invocation names its operator, who must be on the admin allow-list.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&operator, "as", "", "operator email (must be allow-listed)")

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if !app.authz.IsAdmin(operator) {
			return fmt.Errorf("operator %q is not on the admin allow-list", operator)
		}
		return nil
	}
	rootCmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		app.close()
	}

	rootCmd.AddCommand(
		newBalanceCmd(app),
		newGrantCmd(app),
		newResetCmd(app),
		newActivityCmd(app),
	)

	return rootCmd
}

func wireApp() (*adminApp, error) {
	log := logger.New()
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: no .env file found")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(context.Background(), cfg.DBConnectionString)
	if err != nil {
		return nil, fmt.Errorf("open DB pool: %w", err)
	}

	ledgerRepo := repository.NewLedgerRepo(pool, model.PlanFree, cfg.FreeCredits)
	activityRepo := repository.NewActivityRepo(pool)
	ledger := service.NewLedgerService(ledgerRepo, activityRepo, pubsub.NopPublisher{}, cfg, log)

	return &adminApp{
		cfg:    cfg,
		ledger: ledger,
		authz:  service.NewAuthorizer(cfg),
		close:  pool.Close,
	}, nil
}

func newBalanceCmd(app *adminApp) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <email>",
		Short: "Show an account's balance and plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := app.ledger.GetBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tplan=%s\tcredits=%d\tstatus=%s\n",
				account.Email, account.Plan, account.Credits, account.SubscriptionStatus)
			return nil
		},
	}
}

func newGrantCmd(app *adminApp) *cobra.Command {
	var amount int
	cmd := &cobra.Command{
		Use:   "grant <email>",
		Short: "Grant extra credits to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if amount <= 0 {
				return fmt.Errorf("--amount must be positive")
			}
			remaining, err := app.ledger.Credit(cmd.Context(), args[0], amount, model.ActivityUpgrade)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tcredits=%d\n", args[0], remaining)
			return nil
		},
	}
	cmd.Flags().IntVar(&amount, "amount", 0, "credits to grant")
	return cmd
}

func newResetCmd(app *adminApp) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <email>",
		Short: "Reset an account's balance to its plan allotment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := app.ledger.GetBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := app.ledger.ApplyPlan(cmd.Context(), account.Email, account.Plan, account.SubscriptionStatus, ""); err != nil {
				return err
			}
			account, err = app.ledger.GetBalance(cmd.Context(), account.Email)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tcredits=%d\n", account.Email, account.Credits)
			return nil
		},
	}
}

func newActivityCmd(app *adminApp) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity <email>",
		Short: "Show an account's recent activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := app.ledger.ListActivity(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, rec := range records {
				meta := ""
				if len(rec.Meta) > 0 {
					if b, err := json.Marshal(rec.Meta); err == nil {
						meta = string(b)
					}
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Type, meta)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max entries to show")
	return cmd
}
