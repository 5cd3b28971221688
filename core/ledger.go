package core

// Ledger is the orchestrator (spec.md §4.5): it owns the exclusive block
// store and a shared-by-reference indexer, validates incoming blocks and
// transactions against current state, and commits a single WriteBatch per
// inserted block. The block-store mutex, which InsertBlock holds across the
// store append and the indexer commit, is the linearization point for a
// block: store append, indexer commit, and
// (upstream, in the replication peer) publication to followers are totally
// ordered through it.
//
// Grounded on core/ledger.go's Indexer+BlockStore composition and
// core/ledger_test.go's insert/verify call shape, replaced end to end with
// the spec's tagged-transaction and receipt-effect model.

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Ledger validates and applies blocks, and answers read queries over the
// indexer and block store.
type Ledger struct {
	store     *BlockStore
	indexer   *Indexer
	txManager *TxManager
	log       *logrus.Logger
}

// NewLedger wires a Ledger over an already-open store, indexer and expiry
// tracker.
func NewLedger(store *BlockStore, indexer *Indexer, txManager *TxManager, log *logrus.Logger) *Ledger {
	return &Ledger{store: store, indexer: indexer, txManager: txManager, log: log}
}

func (l *Ledger) Indexer() *Indexer     { return l.indexer }
func (l *Ledger) Store() *BlockStore    { return l.store }
func (l *Ledger) TxManager() *TxManager { return l.txManager }

// execScratch overlays a single block's in-progress mutations on top of the
// indexer's committed state, so transactions later in the same block see
// the effects of transactions earlier in it, without touching the indexer
// until the whole block has validated.
type execScratch struct {
	idx         *Indexer
	balances    map[ScriptHash]Asset
	accounts    map[AccountId]Account
	ownerTx     *Tx
	ownerSet    bool
	supply      Asset
	supplySet   bool
}

func newExecScratch(idx *Indexer) *execScratch {
	return &execScratch{
		idx:      idx,
		balances: make(map[ScriptHash]Asset),
		accounts: make(map[AccountId]Account),
	}
}

func (s *execScratch) balance(addr ScriptHash) Asset {
	if b, ok := s.balances[addr]; ok {
		return b
	}
	return s.idx.GetBalance(addr)
}
func (s *execScratch) setBalance(addr ScriptHash, v Asset) { s.balances[addr] = v }

func (s *execScratch) account(id AccountId) (Account, bool) {
	if a, ok := s.accounts[id]; ok {
		return a, true
	}
	return s.idx.GetAccount(id)
}
func (s *execScratch) accountExists(id AccountId) bool {
	if _, ok := s.accounts[id]; ok {
		return true
	}
	_, ok := s.idx.GetAccount(id)
	return ok
}
func (s *execScratch) setAccount(a Account) { s.accounts[a.Id] = a }

func (s *execScratch) owner() *Tx {
	if s.ownerSet {
		return s.ownerTx
	}
	return s.idx.GetOwner()
}
func (s *execScratch) setOwner(tx *Tx) { s.ownerTx = tx; s.ownerSet = true }

func (s *execScratch) tokenSupply() Asset {
	if s.supplySet {
		return s.supply
	}
	return s.idx.GetTokenSupply()
}
func (s *execScratch) setTokenSupply(a Asset) { s.supply = a; s.supplySet = true }

// checkPermissions reports whether enough signature pairs in sigPairs match
// perms' keys and verify over msg to satisfy perms' threshold. An immutable
// (frozen) account's permissions never satisfy.
func checkPermissions(perms Permissions, msg []byte, sigPairs []SigPair) bool {
	if perms.Threshold == ImmutableAccountThreshold {
		return false
	}
	matched := 0
	for _, key := range perms.Keys {
		for _, sp := range sigPairs {
			if sp.PublicKey == key {
				if key.Verify(msg, sp.Signature) {
					matched++
				}
				break
			}
		}
	}
	return matched >= int(perms.Threshold)
}

// executeTx validates tx against scratch's working state and, on success,
// mutates scratch and returns the effect log tx's script (if any) produced
// (spec.md §4.3, ledger.execute_tx).
func (l *Ledger) executeTx(tx *Tx, scratch *execScratch, headHeight uint64, networkFee Asset) ([]Effect, *TxErr) {
	if len(tx.SignaturePairs) > MaxTxSignatures {
		return nil, newTxErr(TxErrTooManySignatures)
	}

	switch tx.Variant {
	case TxVariantOwner:
		return l.executeOwner(tx, scratch)
	case TxVariantMint:
		return l.executeMint(tx, scratch)
	case TxVariantCreateAccount:
		return l.executeCreateAccount(tx, scratch, networkFee)
	case TxVariantTransfer:
		return l.executeTransfer(tx, scratch, headHeight, networkFee)
	default:
		return nil, newTxErr(TxErrScriptHashMismatch)
	}
}

func (l *Ledger) executeOwner(tx *Tx, scratch *execScratch) ([]Effect, *TxErr) {
	d := tx.Owner
	if !tx.Fee.IsZero() {
		return nil, newTxErr(TxErrInvalidFeeAmount)
	}
	if len(d.Script) > MaxScriptByteSize {
		return nil, newTxErr(TxErrTxTooLarge)
	}
	if owner := scratch.owner(); owner != nil && owner.Owner != nil {
		if owner.Owner.WalletHash != HashScript(d.Script) {
			return nil, newTxErr(TxErrScriptHashMismatch)
		}
	}
	eng, err := NewEngine(tx, d.Script, nil)
	if err != nil {
		return nil, newTxErr(TxErrTxTooLarge)
	}
	if _, err := eng.Eval(0, nil); err != nil {
		return nil, newTxEvalErr(err)
	}
	scratch.setOwner(tx)
	return nil, nil
}

func (l *Ledger) executeMint(tx *Tx, scratch *execScratch) ([]Effect, *TxErr) {
	d := tx.Mint
	if !tx.Fee.IsZero() {
		return nil, newTxErr(TxErrInvalidFeeAmount)
	}
	if d.Amount.IsNegative() {
		return nil, newTxErr(TxErrInvalidAmount)
	}
	if len(d.Script) > MaxScriptByteSize {
		return nil, newTxErr(TxErrTxTooLarge)
	}
	owner := scratch.owner()
	if owner == nil || owner.Owner == nil {
		return nil, newTxErr(TxErrAccountNotFound)
	}
	if owner.Owner.WalletHash != HashScript(d.Script) {
		return nil, newTxErr(TxErrScriptHashMismatch)
	}
	eng, err := NewEngine(tx, d.Script, nil)
	if err != nil {
		return nil, newTxErr(TxErrTxTooLarge)
	}
	if _, err := eng.Eval(0, nil); err != nil {
		return nil, newTxEvalErr(err)
	}

	newSupply, err := scratch.tokenSupply().Add(d.Amount)
	if err != nil {
		return nil, newTxErr(TxErrArithmetic)
	}
	newBal, err := scratch.balance(d.To).Add(d.Amount)
	if err != nil {
		return nil, newTxErr(TxErrArithmetic)
	}
	scratch.setTokenSupply(newSupply)
	scratch.setBalance(d.To, newBal)
	return []Effect{{Kind: EffectTransfer, To: d.To, Amount: d.Amount}}, nil
}

func (l *Ledger) executeCreateAccount(tx *Tx, scratch *execScratch, networkFee Asset) ([]Effect, *TxErr) {
	d := tx.CreateAccount
	if !d.Account.Permissions.Valid() {
		return nil, newTxErr(TxErrInvalidAccountPermissions)
	}
	if scratch.accountExists(d.Account.Id) {
		return nil, newTxErr(TxErrAccountAlreadyExists)
	}
	creator, ok := scratch.account(d.Creator)
	if !ok {
		return nil, newTxErr(TxErrAccountNotFound)
	}
	msg := tx.CanonicalEncodingNoSigs()
	if !checkPermissions(creator.Permissions, msg, tx.SignaturePairs) {
		return nil, newTxErr(TxErrInvalidAccountPermissions)
	}

	// Resolution of Open Question #1 (SPEC_FULL.md): fee must be at least
	// twice the network fee, and the new account's declared initial
	// balance must be at least twice the fee actually paid.
	requiredFee, err := networkFee.Mul(2)
	if err != nil {
		return nil, newTxErr(TxErrArithmetic)
	}
	if tx.Fee.Raw < requiredFee.Raw {
		return nil, newTxErr(TxErrInvalidFeeAmount)
	}
	minBalance, err := tx.Fee.Mul(2)
	if err != nil {
		return nil, newTxErr(TxErrArithmetic)
	}
	if d.Account.Balance.Raw < minBalance.Raw {
		return nil, newTxErr(TxErrInvalidAmount)
	}

	totalDebit, err := tx.Fee.Add(d.Account.Balance)
	if err != nil {
		return nil, newTxErr(TxErrArithmetic)
	}
	newCreatorBal, err := creator.Balance.Sub(totalDebit)
	if err != nil || newCreatorBal.IsNegative() {
		return nil, newTxErr(TxErrInvalidAmount)
	}

	creator.Balance = newCreatorBal
	scratch.setAccount(creator)
	scratch.setAccount(d.Account)
	return nil, nil
}

func (l *Ledger) executeTransfer(tx *Tx, scratch *execScratch, headHeight uint64, networkFee Asset) ([]Effect, *TxErr) {
	d := tx.Transfer
	if len(d.Memo) > MaxMemoByteSize {
		return nil, newTxErr(TxErrTxTooLarge)
	}
	if d.Amount.IsNegative() {
		return nil, newTxErr(TxErrInvalidAmount)
	}
	if len(d.Script) > MaxScriptByteSize {
		return nil, newTxErr(TxErrTxTooLarge)
	}
	if d.From != HashScript(d.Script) {
		return nil, newTxErr(TxErrScriptHashMismatch)
	}

	addrFee, err := ComputeAddressFee(l.store, headHeight, d.From)
	if err != nil {
		return nil, newTxErr(TxErrArithmetic)
	}
	requiredFee, err := networkFee.Add(addrFee)
	if err != nil {
		return nil, newTxErr(TxErrArithmetic)
	}
	if tx.Fee.Raw < requiredFee.Raw {
		return nil, newTxErr(TxErrInvalidFeeAmount)
	}

	total, err := tx.Fee.Add(d.Amount)
	if err != nil {
		return nil, newTxErr(TxErrArithmetic)
	}
	newFromBal, err := scratch.balance(d.From).Sub(total)
	if err != nil || newFromBal.IsNegative() {
		return nil, newTxErr(TxErrInvalidAmount)
	}

	budget := d.Amount
	eng, err := NewEngine(tx, d.Script, &budget)
	if err != nil {
		return nil, newTxErr(TxErrTxTooLarge)
	}
	effects, err := eng.Eval(d.CallFn, d.Args)
	if err != nil {
		return nil, newTxEvalErr(err)
	}

	scratch.setBalance(d.From, newFromBal)
	for _, e := range effects {
		if e.Kind != EffectTransfer {
			continue
		}
		newBal, err := scratch.balance(e.To).Add(e.Amount)
		if err != nil {
			return nil, newTxErr(TxErrArithmetic)
		}
		scratch.setBalance(e.To, newBal)
	}
	return effects, nil
}

// buildBatch validates every receipt in blk in order against head and the
// current indexer state, folding results into a WriteBatch. It is the
// shared core of VerifyBlock (discards the batch) and InsertBlock (commits
// it), per spec.md §4.5's verify_block/insert_block split.
func (l *Ledger) buildBatch(blk *Block, head Header) (*WriteBatch, error) {
	if blk.Header.Height != head.Height+1 {
		return nil, newBlockErr(BlockErrInvalidBlockHeight)
	}
	if blk.RecomputeReceiptRoot() != blk.Header.ReceiptRoot {
		return nil, newBlockErr(BlockErrInvalidReceiptRoot)
	}
	if blk.Header.PreviousHash != head.Hash() {
		return nil, newBlockErr(BlockErrInvalidPrevHash)
	}

	owner := l.indexer.GetOwner()
	if owner == nil || owner.Owner == nil {
		return nil, newBlockErr(BlockErrInvalidSignature)
	}
	if err := blk.VerifySigner(owner.Owner.MinterPubKey); err != nil {
		return nil, newBlockErr(BlockErrInvalidSignature)
	}

	networkFee, err := ComputeNetworkFee(l.store, blk.Header.Height)
	if err != nil {
		return nil, newBlockTxErr(newTxErr(TxErrArithmetic))
	}

	scratch := newExecScratch(l.indexer)
	for _, rc := range blk.Receipts {
		effects, txErr := l.executeTx(rc.Tx, scratch, head.Height, networkFee)
		if txErr != nil {
			return nil, newBlockTxErr(txErr)
		}
		if !effectsEqual(effects, rc.Log) {
			return nil, newBlockTxErr(newTxErr(TxErrArithmetic))
		}
	}

	batch := l.indexer.NewWriteBatch()
	if owner != nil && owner.Owner != nil {
		if err := batch.AddBal(owner.Owner.WalletHash, blk.Rewards); err != nil {
			return nil, newBlockTxErr(newTxErr(TxErrArithmetic))
		}
	}
	for addr, bal := range scratch.balances {
		cur := l.indexer.GetBalance(addr)
		delta, err := bal.Sub(cur)
		if err != nil {
			return nil, newBlockTxErr(newTxErr(TxErrArithmetic))
		}
		if err := batch.AddBal(addr, delta); err != nil {
			return nil, newBlockTxErr(newTxErr(TxErrArithmetic))
		}
	}
	for _, acct := range scratch.accounts {
		batch.InsertOrUpdateAccount(acct)
	}
	if scratch.ownerSet {
		batch.SetOwner(scratch.ownerTx)
	}
	if scratch.supplySet {
		delta, err := scratch.supply.Sub(l.indexer.GetTokenSupply())
		if err != nil {
			return nil, newBlockTxErr(newTxErr(TxErrArithmetic))
		}
		if err := batch.AddTokenSupply(delta); err != nil {
			return nil, newBlockTxErr(newTxErr(TxErrArithmetic))
		}
	}
	batch.SetChainHead(blk.Header)
	return batch, nil
}

func effectsEqual(a, b []Effect) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].To != b[i].To || a[i].Amount != b[i].Amount {
			return false
		}
	}
	return true
}

// VerifyBlock checks blk against the current chain head without mutating
// any state (spec.md §4.5's verify_block).
func (l *Ledger) VerifyBlock(blk *Block) error {
	head := l.indexer.GetChainHead()
	_, err := l.buildBatch(blk, head)
	return err
}

// InsertBlock verifies blk, appends it to the block store, and commits its
// indexer effects as a single atomic batch (spec.md §4.5's insert_block).
// An indexer commit failure is treated as fatal: it indicates the store and
// the indexer have diverged.
func (l *Ledger) InsertBlock(blk *Block) error {
	head := l.indexer.GetChainHead()
	batch, err := l.buildBatch(blk, head)
	if err != nil {
		return err
	}
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if int64(blk.Header.Height) != l.store.height+1 {
		return errors.New("blockstore: block does not extend current height")
	}
	if err := l.store.appendLocked(blk); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		l.log.WithError(err).Fatal("ledger: fatal indexer commit failure, node state diverged")
	}
	return nil
}

// ReplayBlock applies an already-stored block's effects to the indexer
// without re-appending it to the block store, for rebuilding the indexer
// from the log at startup (spec.md §4.4: the indexer holds no state of its
// own). Height 0 is special-cased exactly as CreateGenesisBlock builds it,
// since buildBatch requires an owner to already be set and genesis is what
// establishes one.
func (l *Ledger) ReplayBlock(blk *Block) error {
	if blk.Header.Height == 0 {
		batch := l.indexer.NewWriteBatch()
		if len(blk.Receipts) > 0 {
			batch.SetOwner(blk.Receipts[0].Tx)
		}
		batch.SetChainHead(blk.Header)
		return batch.Commit()
	}

	head := l.indexer.GetChainHead()
	batch, err := l.buildBatch(blk, head)
	if err != nil {
		return err
	}
	return batch.Commit()
}

// FilteredBlock is either a full block or just its header and signer,
// returned by GetFilteredBlock when the caller's filter does not match any
// receipt in the block (spec.md §4.5, §8 scenario 4).
type FilteredBlock struct {
	Full   *Block
	Header *Header
	Signer *SigPair
}

// GetFilteredBlock returns the full block at height if any receipt matches
// filter (a transfer's from, any effect-log to, or a mint's to); otherwise
// just the header and signer. An empty filter never matches.
func (l *Ledger) GetFilteredBlock(height uint64, filter map[ScriptHash]bool) (*FilteredBlock, error) {
	blk, err := l.store.GetBlock(height)
	if err != nil {
		return nil, err
	}
	if len(filter) > 0 {
		for _, rc := range blk.Receipts {
			if blockReceiptMatchesFilter(rc, filter) {
				return &FilteredBlock{Full: blk}, nil
			}
		}
	}
	h := blk.Header
	return &FilteredBlock{Header: &h, Signer: blk.Signer}, nil
}

func blockReceiptMatchesFilter(rc Receipt, filter map[ScriptHash]bool) bool {
	switch rc.Tx.Variant {
	case TxVariantTransfer:
		if filter[rc.Tx.Transfer.From] {
			return true
		}
	case TxVariantMint:
		if filter[rc.Tx.Mint.To] {
			return true
		}
	}
	for _, e := range rc.Log {
		if filter[e.To] {
			return true
		}
	}
	return false
}

// CreateGenesisBlock builds and inserts the distinguished height-0 block: an
// Owner transaction naming minterKey as the block signer and walletScript
// as the authorizing wallet, with no other receipts (spec.md §4.5).
func (l *Ledger) CreateGenesisBlock(minterKey PrivateKey, walletScript []byte) (*Block, error) {
	if l.indexer.GetChainHead().Height != 0 || l.indexer.GetOwner() != nil {
		return nil, errors.New("ledger: genesis already created")
	}

	ownerTx := &Tx{
		Nonce:  0,
		Expiry: 0,
		Fee:    Asset{},
		Variant: TxVariantOwner,
		Owner: &OwnerData{
			MinterPubKey: minterKey.Public(),
			WalletHash:   HashScript(walletScript),
			Script:       walletScript,
		},
	}
	msg := ownerTx.CanonicalEncodingNoSigs()
	ownerTx.SignaturePairs = []SigPair{{PublicKey: minterKey.Public(), Signature: minterKey.Sign(msg)}}

	receipts := []Receipt{{Tx: ownerTx, Log: nil}}
	header := Header{
		Height:       0,
		PreviousHash: zeroHash,
		ReceiptRoot:  calcReceiptRoot(receipts),
		Timestamp:    0,
	}
	blk := &Block{Header: header, Receipts: receipts}
	blk.SignHeader(minterKey)

	if err := l.store.InsertGenesis(blk); err != nil {
		return nil, err
	}
	batch := l.indexer.NewWriteBatch()
	batch.SetOwner(ownerTx)
	batch.SetChainHead(header)
	if err := batch.Commit(); err != nil {
		return nil, err
	}
	l.indexer.SetIndexStatus(IndexComplete)
	return blk, nil
}
