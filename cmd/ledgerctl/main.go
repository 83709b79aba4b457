// Command ledgerctl runs operator tasks against the ledger store: schema migrations
// and the verification and repair of cached balances.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		os.Exit(1)
	}
}
