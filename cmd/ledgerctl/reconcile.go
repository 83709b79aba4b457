package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mycelium-customer-ledger/internal/ledger_engine/service"
)

func newVerifyCmd(a *app) *cobra.Command {
	var customerID string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute ledgers from zero and report cached balances that disagree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(ctx context.Context, recon service.ReconciliationService, log *slog.Logger) error {
				if customerID != "" {
					report, err := recon.VerifyCustomer(ctx, customerID)
					if err != nil {
						return err
					}
					if err := a.printJSON(report); err != nil {
						return err
					}
					if !report.Consistent() {
						return errInconsistent
					}
					return nil
				}

				summary, err := recon.VerifyAll(ctx)
				if err != nil {
					return err
				}
				if err := a.printJSON(summary); err != nil {
					return err
				}
				if summary.Inconsistent > 0 || len(summary.Failures) > 0 {
					log.Warn("Verification found problems",
						"inconsistent", summary.Inconsistent,
						"failures", len(summary.Failures))
					return errInconsistent
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&customerID, "customer", "", "verify a single customer instead of all")
	return cmd
}

func newRepairCmd(a *app) *cobra.Command {
	var (
		customerID string
		all        bool
	)
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Rewrite cached running balances and the debt index from the entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (customerID == "") == !all {
				return errors.New("exactly one of --customer or --all is required")
			}
			return a.withEngine(cmd.Context(), func(ctx context.Context, recon service.ReconciliationService, _ *slog.Logger) error {
				if customerID != "" {
					report, err := recon.RepairCustomer(ctx, customerID)
					if err != nil {
						return err
					}
					return a.printJSON(report)
				}

				summary, err := recon.RepairAll(ctx)
				if err != nil {
					return err
				}
				if err := a.printJSON(summary); err != nil {
					return err
				}
				if len(summary.Failures) > 0 {
					return errors.New("some customers could not be repaired")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&customerID, "customer", "", "repair a single customer")
	cmd.Flags().BoolVar(&all, "all", false, "repair every customer")
	return cmd
}

func (a *app) withEngine(ctx context.Context, run func(context.Context, service.ReconciliationService, *slog.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := a.setup()
	if err != nil {
		return err
	}
	recon, closeFn, err := a.openEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()
	return run(ctx, recon, log)
}
