package core

// State indexer (spec.md §4.4): the materialized view derived from the
// block log — balances, token supply, account records, the owner pointer,
// and the chain head. Readers take a brief read lock; every mutation flows
// through a WriteBatch committed atomically under a write lock, so a reader
// never observes a partially-applied block.
//
// Grounded on core/account_and_balance_operations.go's balance map plus
// mutex pattern, generalized from a single global ledger map to the spec's
// {balances, accounts, supply, owner, head} tuple.

import (
	"errors"
	"sync"
)

// Properties is the chain-head summary exposed to clients (spec.md §3).
type Properties struct {
	Height      uint64
	OwnerTx     *Tx
	NetworkFee  Asset
	TokenSupply Asset
}

// Indexer holds the current materialized ledger state. It is shared by
// reference: many concurrent readers, with write-batch exclusivity enforced
// internally.
type Indexer struct {
	mu sync.RWMutex

	balances map[ScriptHash]Asset
	accounts map[AccountId]Account

	tokenSupply Asset
	ownerTx     *Tx
	chainHead   Header
	status      IndexStatus
}

// NewIndexer returns an empty indexer, ready to receive its genesis batch.
func NewIndexer() *Indexer {
	return &Indexer{
		balances: make(map[ScriptHash]Asset),
		accounts: make(map[AccountId]Account),
	}
}

func (idx *Indexer) GetOwner() *Tx {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ownerTx
}

func (idx *Indexer) GetChainHeight() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.chainHead.Height
}

func (idx *Indexer) GetChainHead() Header {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.chainHead
}

func (idx *Indexer) GetTokenSupply() Asset {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tokenSupply
}

func (idx *Indexer) GetAccount(id AccountId) (Account, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	a, ok := idx.accounts[id]
	return a, ok
}

func (idx *Indexer) GetBalance(addr ScriptHash) Asset {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.balances[addr]
}

func (idx *Indexer) GetIndexStatus() IndexStatus {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.status
}

func (idx *Indexer) SetIndexStatus(s IndexStatus) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.status = s
}

func (idx *Indexer) GetProperties(networkFee Asset) Properties {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Properties{
		Height:      idx.chainHead.Height,
		OwnerTx:     idx.ownerTx,
		NetworkFee:  networkFee,
		TokenSupply: idx.tokenSupply,
	}
}

// WriteBatch stages a set of mutations for atomic commit. Balance deltas
// accumulate per address so repeated add_bal/sub_bal calls against the same
// address within one block collapse into a single checked addition.
type WriteBatch struct {
	idx *Indexer

	owner       *Tx
	ownerSet    bool
	supplyDelta Asset
	balDeltas   map[ScriptHash]Asset
	accounts    map[AccountId]Account
	chainHead   *Header
}

// NewWriteBatch stages mutations against idx; nothing is visible to readers
// until Commit.
func (idx *Indexer) NewWriteBatch() *WriteBatch {
	return &WriteBatch{
		idx:       idx,
		balDeltas: make(map[ScriptHash]Asset),
		accounts:  make(map[AccountId]Account),
	}
}

func (b *WriteBatch) SetOwner(tx *Tx) {
	b.owner = tx
	b.ownerSet = true
}

func (b *WriteBatch) AddTokenSupply(delta Asset) error {
	sum, err := b.supplyDelta.Add(delta)
	if err != nil {
		return err
	}
	b.supplyDelta = sum
	return nil
}

func (b *WriteBatch) AddBal(addr ScriptHash, amount Asset) error {
	sum, err := b.balDeltas[addr].Add(amount)
	if err != nil {
		return err
	}
	b.balDeltas[addr] = sum
	return nil
}

func (b *WriteBatch) SubBal(addr ScriptHash, amount Asset) error {
	diff, err := b.balDeltas[addr].Sub(amount)
	if err != nil {
		return err
	}
	b.balDeltas[addr] = diff
	return nil
}

func (b *WriteBatch) InsertOrUpdateAccount(acct Account) {
	b.accounts[acct.Id] = acct
}

func (b *WriteBatch) SetChainHead(h Header) {
	b.chainHead = &h
}

// Commit applies every staged mutation atomically. An error here indicates
// the batch itself was inconsistent (e.g. an overflowing running total) and
// is treated by the ledger as fatal — it implies corruption, not a
// recoverable validation failure (spec.md §7).
func (b *WriteBatch) Commit() error {
	b.idx.mu.Lock()
	defer b.idx.mu.Unlock()

	newSupply, err := b.idx.tokenSupply.Add(b.supplyDelta)
	if err != nil {
		return errors.New("indexer: token supply overflow on commit")
	}

	newBalances := make(map[ScriptHash]Asset, len(b.balDeltas))
	for addr, delta := range b.balDeltas {
		sum, err := b.idx.balances[addr].Add(delta)
		if err != nil {
			return errors.New("indexer: balance overflow on commit")
		}
		newBalances[addr] = sum
	}

	b.idx.tokenSupply = newSupply
	for addr, bal := range newBalances {
		b.idx.balances[addr] = bal
	}
	for id, acct := range b.accounts {
		b.idx.accounts[id] = acct
	}
	if b.ownerSet {
		b.idx.ownerTx = b.owner
	}
	if b.chainHead != nil {
		b.idx.chainHead = *b.chainHead
	}
	return nil
}
