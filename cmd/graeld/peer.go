package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"grael/pkg/config"
)

func peerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "peer", Short: "inspect this node's configured replication peers"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "print the configured replication peer addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			fmt.Println("self:", cfg.Replication.ListenAddr)
			for _, addr := range cfg.Replication.Peers {
				fmt.Println("peer:", addr, "id:", peerIDFromAddr(addr))
			}
			return nil
		},
	})
	return cmd
}
