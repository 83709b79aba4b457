package main

import (
	"errors"

	"github.com/spf13/cobra"
)

// errInconsistent makes verify exit non-zero when any customer's caches disagree with its entries
var errInconsistent = errors.New("ledger inconsistencies found")

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Operate the customer ledger store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.configName, "config", a.configName, "config base name, read from configs/<name>.env")
	root.SetOut(a.out)

	root.AddCommand(
		newMigrateCmd(a),
		newVerifyCmd(a),
		newRepairCmd(a),
	)
	return root
}
