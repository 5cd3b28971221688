package main

// graeld is the node binary: it assembles a block store, state indexer,
// ledger, minter and replication peer from a config file and runs them
// until interrupted.
//
// Grounded on cmd/synnergy's cobra root and cmd/cli/network.go's
// godotenv+viper+logrus bootstrap middleware, narrowed to this node's own
// subcommands instead of the teacher's per-feature command tree.

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{Use: "graeld", Short: "grael ledger node"}
	root.PersistentFlags().String("config", "", "environment name to merge over cmd/config/default.yaml")

	root.AddCommand(keygenCmd())
	root.AddCommand(genesisCmd())
	root.AddCommand(runCmd())
	root.AddCommand(peerCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
