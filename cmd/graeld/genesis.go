package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"grael/core"
	"grael/pkg/config"
)

func genesisCmd() *cobra.Command {
	var genesisPath string
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "create the distinguished height-0 block from a genesis file",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			if genesisPath == "" {
				genesisPath = cfg.Node.GenesisFile
			}

			spec, err := core.LoadGenesisSpec(genesisPath)
			if err != nil {
				return err
			}
			minterKey, err := spec.MinterKey()
			if err != nil {
				return err
			}
			script, err := spec.Script(minterKey)
			if err != nil {
				return err
			}

			log := logrus.New()
			lvl, err := logrus.ParseLevel(cfg.Logging.Level)
			if err == nil {
				log.SetLevel(lvl)
			}

			deps, err := openNode(cfg, log)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			blk, err := deps.ledger.CreateGenesisBlock(minterKey, script)
			if err != nil {
				return err
			}
			fmt.Printf("genesis block created: height=%d hash=%x\n", blk.Header.Height, blk.Header.Hash())
			return nil
		},
	}
	cmd.Flags().StringVar(&genesisPath, "genesis-file", "", "path to genesis YAML (defaults to node.genesis_file)")
	return cmd
}
