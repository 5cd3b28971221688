package main

// openNode assembles the block store, indexer, transaction manager and
// ledger shared by the genesis and run subcommands, replaying the block
// log into a fresh indexer on every start since the indexer itself holds
// no on-disk state of its own (spec.md §4.4).

import (
	"github.com/sirupsen/logrus"

	"grael/core"
	"grael/pkg/config"
)

type nodeDeps struct {
	store     *core.BlockStore
	indexer   *core.Indexer
	txManager *core.TxManager
	ledger    *core.Ledger
}

func openNode(cfg *config.Config, log *logrus.Logger) (*nodeDeps, error) {
	store, err := core.OpenBlockStore(cfg.Ledger.BlockLogPath, log)
	if err != nil {
		return nil, err
	}

	idx := core.NewIndexer()
	txm := core.NewTxManager()
	ledger := core.NewLedger(store, idx, txm, log)

	if err := store.ReindexBlocks(ledger.ReplayBlock); err != nil {
		return nil, err
	}
	idx.SetIndexStatus(core.IndexComplete)

	return &nodeDeps{store: store, indexer: idx, txManager: txm, ledger: ledger}, nil
}
