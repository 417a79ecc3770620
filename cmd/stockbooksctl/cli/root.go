// Package cli implements the stockbooksctl commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/stockbooks/stockbooks/internal/accounting/reports"
	"github.com/stockbooks/stockbooks/internal/integration"
	"github.com/stockbooks/stockbooks/internal/transactions"
)

// ReportService renders reports.
type ReportService interface {
	Report(ctx context.Context, ownerID string, kind reports.Kind, filter reports.Filter) (reports.Report, error)
}

// TransactionLoader fetches a stored transaction.
type TransactionLoader interface {
	Get(ctx context.Context, ownerID, id string) (transactions.Transaction, error)
}

// Syncer applies a transaction to inventory.
type Syncer interface {
	Sync(ctx context.Context, tx transactions.Transaction) (integration.Result, error)
}

// JobTrigger enqueues background jobs and inspects the queue.
type JobTrigger interface {
	Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
}

// Deps are the services the commands operate on. Unused fields may be nil.
type Deps struct {
	Reports      ReportService
	Transactions TransactionLoader
	Sync         Syncer
	Jobs         JobTrigger
}

// Loader builds Deps on first use and returns a release function.
type Loader func(ctx context.Context) (*Deps, func(), error)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(load Loader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stockbooksctl",
		Short: "Operate the stockbooks ledger and inventory",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("owner", os.Getenv("STOCKBOOKS_OWNER"), "owner id (defaults to $STOCKBOOKS_OWNER)")

	rootCmd.AddCommand(newReportCommand(load), newSyncCommand(load), newJobsCommand(load))
	return rootCmd
}

func ownerFlag(cmd *cobra.Command) (string, error) {
	owner, _ := cmd.Flags().GetString("owner")
	if owner == "" {
		return "", errors.New("--owner is required")
	}
	return owner, nil
}

func withDeps(cmd *cobra.Command, load Loader, fn func(*Deps) error) error {
	deps, release, err := load(cmd.Context())
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}
	return fn(deps)
}

func newReportCommand(load Loader) *cobra.Command {
	var (
		from, to, accountType, account string
		minAmount, maxAmount           string
		format, out                    string
	)
	cmd := &cobra.Command{
		Use:   "report <kind>",
		Short: "Render a report (ledger, trial-balance, balance-sheet, profit-loss, cash-flow, gst)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ownerFlag(cmd)
			if err != nil {
				return err
			}
			kind, err := reports.ParseKind(args[0])
			if err != nil {
				return err
			}
			filter, err := buildFilter(from, to, accountType, account, minAmount, maxAmount)
			if err != nil {
				return err
			}
			return withDeps(cmd, load, func(deps *Deps) error {
				if deps.Reports == nil {
					return errors.New("reports not configured")
				}
				report, err := deps.Reports.Report(cmd.Context(), owner, kind, filter)
				if err != nil {
					return err
				}
				return writeReport(cmd.OutOrStdout(), report, format, out)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&accountType, "account-type", "", "account type or group")
	cmd.Flags().StringVar(&account, "account", "", "account name contains")
	cmd.Flags().StringVar(&minAmount, "min-amount", "", "minimum transaction amount")
	cmd.Flags().StringVar(&maxAmount, "max-amount", "", "maximum transaction amount")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json or xlsx")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout (required for xlsx)")
	return cmd
}

func buildFilter(from, to, accountType, account, minAmount, maxAmount string) (reports.Filter, error) {
	filter := reports.Filter{AccountType: accountType, Account: account}
	var err error
	if from != "" {
		if filter.From, err = time.Parse("2006-01-02", from); err != nil {
			return reports.Filter{}, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if filter.To, err = time.Parse("2006-01-02", to); err != nil {
			return reports.Filter{}, fmt.Errorf("--to: %w", err)
		}
	}
	if minAmount != "" {
		v, err := decimal.NewFromString(minAmount)
		if err != nil {
			return reports.Filter{}, fmt.Errorf("--min-amount: %w", err)
		}
		filter.MinAmount = &v
	}
	if maxAmount != "" {
		v, err := decimal.NewFromString(maxAmount)
		if err != nil {
			return reports.Filter{}, fmt.Errorf("--max-amount: %w", err)
		}
		filter.MaxAmount = &v
	}
	return filter, nil
}

func writeReport(stdout io.Writer, report reports.Report, format, out string) error {
	w := stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	switch format {
	case "table", "":
		return RenderTable(w, report.Table())
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "xlsx":
		if out == "" {
			return errors.New("xlsx output needs --output")
		}
		return reports.WriteXLSX(w, report.Table())
	}
	return fmt.Errorf("unknown format %q", format)
}

func newSyncCommand(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <transaction-id>",
		Short: "Apply a stored transaction to inventory now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ownerFlag(cmd)
			if err != nil {
				return err
			}
			return withDeps(cmd, load, func(deps *Deps) error {
				if deps.Transactions == nil || deps.Sync == nil {
					return errors.New("inventory sync not configured")
				}
				tx, err := deps.Transactions.Get(cmd.Context(), owner, args[0])
				if err != nil {
					return err
				}
				result, err := deps.Sync.Sync(cmd.Context(), tx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "transaction %s: %s\n", tx.ID, result.Outcome())
				for _, c := range result.Changes {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %+g -> %g\n", c.SKU, c.Delta, c.NewStock)
				}
				for _, s := range result.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s skipped: requested %g, available %g\n", s.SKU, s.Requested, s.Available)
				}
				return nil
			})
		},
	}
}

func newJobsCommand(load Loader) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage background jobs",
	}

	var txID string
	trigger := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue inventory:low-stock-scan or inventory:sync-transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			return withDeps(cmd, load, func(deps *Deps) error {
				if deps.Jobs == nil {
					return errors.New("jobs not configured")
				}
				info, err := deps.Jobs.Trigger(cmd.Context(), args[0], TriggerOptions{OwnerID: owner, TransactionID: txID})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
				return nil
			})
		},
	}
	trigger.Flags().StringVar(&txID, "transaction", "", "transaction id for inventory:sync-transaction")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, load, func(deps *Deps) error {
				if deps.Jobs == nil {
					return errors.New("jobs not configured")
				}
				s, err := deps.Jobs.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
					s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
				return nil
			})
		},
	}

	jobsCmd.AddCommand(trigger, stats)
	return jobsCmd
}
