package core

// TxManager is the expiry index used to reject replayed transactions
// (spec.md §4.4): every accepted txid is remembered until its expiry
// timestamp passes, after which PurgeExpired drops it.
//
// Grounded on core/txpool_addtx.go's lookup-map-plus-mutex shape, swapped
// from an unbounded pending-tx pool to a bounded, expiry-driven set.

import (
	"errors"
	"sync"
)

var ErrTxAlreadySeen = errors.New("txmanager: transaction already seen")

// TxManager tracks recently accepted txids and their expiry, in unix
// milliseconds.
type TxManager struct {
	mu      sync.Mutex
	expiry  map[TxId]uint64
}

func NewTxManager() *TxManager {
	return &TxManager{expiry: make(map[TxId]uint64)}
}

// Insert records txid as seen until expiryMs. Returns ErrTxAlreadySeen if
// txid is already tracked, which the ledger treats as a replay.
func (m *TxManager) Insert(txid TxId, expiryMs uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expiry[txid]; ok {
		return ErrTxAlreadySeen
	}
	m.expiry[txid] = expiryMs
	return nil
}

// Contains reports whether txid is currently tracked (not yet purged).
func (m *TxManager) Contains(txid TxId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.expiry[txid]
	return ok
}

// PurgeExpired removes every entry whose expiry is at or before nowMs.
func (m *TxManager) PurgeExpired(nowMs uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for id, exp := range m.expiry {
		if exp <= nowMs {
			delete(m.expiry, id)
			purged++
		}
	}
	return purged
}

// Len reports the number of currently tracked txids.
func (m *TxManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.expiry)
}
