package core

// Minter is the leader-only periodic block producer (spec.md §4.6): on
// each tick it drains the pending-transaction queue, builds a child block
// off the current head, signs it with the minter key, and inserts it
// through the ledger. PushTx validates a submitted transaction in strict
// mode against current state plus everything already queued.
//
// Grounded on core/consensus_start.go's ticker-driven production loop and
// core/txpool_addtx.go's queue-plus-mutex shape.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MinterTickInterval is the leader's block-production period (spec.md §5).
const MinterTickInterval = 3 * time.Second

// Minter produces blocks while this node is the replication leader.
type Minter struct {
	mu     sync.Mutex
	ledger *Ledger
	key    PrivateKey
	queue  []*Tx
	reward Asset
	log    *logrus.Logger
}

// NewMinter wires a Minter that signs with key and credits reward to the
// owner's wallet on every produced block.
func NewMinter(ledger *Ledger, key PrivateKey, reward Asset, log *logrus.Logger) *Minter {
	return &Minter{ledger: ledger, key: key, reward: reward, log: log}
}

// PushTx validates tx against current indexer state plus every transaction
// already queued, and appends it on success. A txid already tracked by the
// ledger's TxManager (accepted earlier and not yet expired) is rejected as
// a replay before any state validation runs.
func (m *Minter) PushTx(tx *Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txid := ComputeTxId(tx)
	if m.ledger.TxManager().Contains(txid) {
		return ErrTxAlreadySeen
	}

	idx := m.ledger.Indexer()
	head := idx.GetChainHead()
	networkFee, err := ComputeNetworkFee(m.ledger.Store(), head.Height+1)
	if err != nil {
		return err
	}

	scratch := newExecScratch(idx)
	for _, queued := range m.queue {
		// Already accepted once; replay to extend scratch state. A
		// validation failure here would indicate prior corruption, not a
		// fact about the new tx, so it is not surfaced to the caller.
		m.ledger.executeTx(queued, scratch, head.Height, networkFee)
	}

	if _, txErr := m.ledger.executeTx(tx, scratch, head.Height, networkFee); txErr != nil {
		return txErr
	}
	if err := m.ledger.TxManager().Insert(txid, tx.Expiry); err != nil {
		return err
	}
	m.queue = append(m.queue, tx)
	return nil
}

// QueueLen reports the number of transactions waiting for the next tick.
func (m *Minter) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Tick drains the pending queue, builds and signs a block atop the current
// head, and inserts it. Transactions that fail re-validation at build time
// are dropped with a logged warning rather than blocking the tick.
func (m *Minter) Tick(now time.Time) (*Block, error) {
	m.ledger.TxManager().PurgeExpired(uint64(now.UnixMilli()))

	m.mu.Lock()
	txs := m.queue
	m.queue = nil
	m.mu.Unlock()

	idx := m.ledger.Indexer()
	head := idx.GetChainHead()
	newHeight := head.Height + 1
	networkFee, err := ComputeNetworkFee(m.ledger.Store(), newHeight)
	if err != nil {
		return nil, err
	}

	owner := idx.GetOwner()
	if owner == nil || owner.Owner == nil {
		return nil, errors.New("minter: no owner established")
	}

	scratch := newExecScratch(idx)
	receipts := make([]Receipt, 0, len(txs))
	for _, tx := range txs {
		effects, txErr := m.ledger.executeTx(tx, scratch, head.Height, networkFee)
		if txErr != nil {
			m.log.WithError(txErr).Warn("minter: dropping tx that failed re-validation at tick")
			continue
		}
		receipts = append(receipts, Receipt{Tx: tx, Log: effects})
	}

	header := Header{
		Height:       newHeight,
		PreviousHash: head.Hash(),
		ReceiptRoot:  calcReceiptRoot(receipts),
		Timestamp:    uint64(now.UnixMilli()),
	}
	blk := &Block{Header: header, Rewards: m.reward, Receipts: receipts}
	blk.SignHeader(m.key)

	if err := m.ledger.InsertBlock(blk); err != nil {
		return nil, err
	}
	return blk, nil
}

// Run ticks every MinterTickInterval until ctx is cancelled, logging (but
// not propagating) per-tick errors so a single bad tick never stops
// production.
func (m *Minter) Run(ctx context.Context) error {
	ticker := time.NewTicker(MinterTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := m.Tick(now); err != nil {
				m.log.WithError(err).Warn("minter: tick failed")
			}
		}
	}
}
