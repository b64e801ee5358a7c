package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/udhaari/khata/internal/config"
	"github.com/udhaari/khata/internal/database"
	"github.com/udhaari/khata/internal/logger"
	"github.com/udhaari/khata/internal/metrics"
	"github.com/udhaari/khata/internal/repository"
	"github.com/udhaari/khata/internal/services"
)

var log zerolog.Logger

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(reconcileCmd)

	verifyCmd.Flags().String("owner", "", "Owner whose customers are checked (required)")
	verifyCmd.Flags().String("customer", "", "Check a single customer")
	verifyCmd.MarkFlagRequired("owner")

	reconcileCmd.Flags().String("owner", "", "Owner whose balances are rebuilt (required)")
	reconcileCmd.Flags().String("customer", "", "Rebuild a single customer; default is every drifted customer")
	reconcileCmd.MarkFlagRequired("owner")
}

var rootCmd = &cobra.Command{
	Use:   "khatactl",
	Short: "Maintenance commands for the khata ledger",
	Long: `khatactl applies the database schema and checks that every cached
customer balance equals the sum of that customer's transaction effects.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfgErr := config.Init()
		log = logger.New(logger.FromViper())
		if cfgErr != nil {
			log.Debug().Err(cfgErr).Msg("no config file, using environment")
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the customers and transactions tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(database.GetConfig(), log)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements\n", len(database.Migrations()))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Report customers whose cached balance drifted from the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		customer, _ := cmd.Flags().GetString("customer")

		return withReconciler(func(r *services.Reconciler) error {
			var drifts []services.Drift
			if customer != "" {
				d, err := r.Verify(cmd.Context(), owner, customer)
				if err != nil {
					return err
				}
				if !d.Consistent() {
					drifts = append(drifts, *d)
				}
			} else {
				var err error
				if drifts, err = r.VerifyOwner(cmd.Context(), owner); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, d := range drifts {
				fmt.Fprintf(out, "%s\tcached=%s\tledger=%s\tdiff=%s\n", d.CustomerID, d.Cached, d.Ledger, d.Difference)
			}
			if len(drifts) > 0 {
				return fmt.Errorf("%d customer(s) drifted", len(drifts))
			}
			fmt.Fprintln(out, "all balances match the ledger")
			return nil
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild cached balances from the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		customer, _ := cmd.Flags().GetString("customer")

		return withReconciler(func(r *services.Reconciler) error {
			ids := []string{customer}
			if customer == "" {
				drifts, err := r.VerifyOwner(cmd.Context(), owner)
				if err != nil {
					return err
				}
				ids = ids[:0]
				for _, d := range drifts {
					ids = append(ids, d.CustomerID)
				}
			}

			out := cmd.OutOrStdout()
			for _, id := range ids {
				d, err := r.Repair(cmd.Context(), owner, id)
				if err != nil {
					return fmt.Errorf("repair %s: %w", id, err)
				}
				if d.Repaired {
					fmt.Fprintf(out, "%s: %s -> %s\n", d.CustomerID, d.Cached, d.Ledger)
				} else {
					fmt.Fprintf(out, "%s: already consistent at %s\n", d.CustomerID, d.Ledger)
				}
			}
			if len(ids) == 0 {
				fmt.Fprintln(out, "all balances match the ledger")
			}
			return nil
		})
	},
}

func withReconciler(fn func(r *services.Reconciler) error) error {
	db, err := database.Open(database.GetConfig(), log)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := database.InitRedis(log)
	if rdb != nil {
		defer rdb.Close()
	}
	return fn(newReconciler(db, rdb))
}

// newReconciler publishes repairs through Redis so running servers refresh
// their watchers. Without Redis nothing is published.
func newReconciler(db *sql.DB, rdb *redis.Client) *services.Reconciler {
	var notifier services.Notifier
	if rdb != nil {
		notifier = services.NewRedisNotifier(rdb)
	}
	return services.NewReconciler(repository.NewPostgresRepository(db), notifier, log, metrics.New())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
