package core

import (
	"testing"
	"time"
)

func signedMintTx(t *testing.T, ownerKey PrivateKey, to ScriptHash, amount Asset) *Tx {
	t.Helper()
	tx := &Tx{
		Variant: TxVariantMint,
		Mint: &MintData{
			To:     to,
			Amount: amount,
			Script: BuildSingleSigScript(ownerKey.Public()),
		},
	}
	msg := tx.CanonicalEncodingNoSigs()
	tx.SignaturePairs = []SigPair{{PublicKey: ownerKey.Public(), Signature: ownerKey.Sign(msg)}}
	return tx
}

func TestMinterPushTxQueuesValidTx(t *testing.T) {
	ledger, ownerKey := newTestLedger(t)
	minter := NewMinter(ledger, ownerKey, Asset{}, quietLog())

	tx := signedMintTx(t, ownerKey, ScriptHash{1}, NewAsset(5, 0))
	if err := minter.PushTx(tx); err != nil {
		t.Fatalf("PushTx: %v", err)
	}
	if minter.QueueLen() != 1 {
		t.Fatalf("QueueLen() = %d, want 1", minter.QueueLen())
	}
}

func TestMinterPushTxRejectsReplay(t *testing.T) {
	ledger, ownerKey := newTestLedger(t)
	minter := NewMinter(ledger, ownerKey, Asset{}, quietLog())

	tx := signedMintTx(t, ownerKey, ScriptHash{1}, NewAsset(5, 0))
	if err := minter.PushTx(tx); err != nil {
		t.Fatalf("first PushTx: %v", err)
	}
	// The first PushTx registers the txid with the shared TxManager, so
	// pushing the same tx again is a replay.
	txid := ComputeTxId(tx)
	if !ledger.TxManager().Contains(txid) {
		t.Fatalf("expected PushTx to register the txid with the tx manager")
	}
	if err := minter.PushTx(tx); err != ErrTxAlreadySeen {
		t.Fatalf("expected ErrTxAlreadySeen on replay, got %v", err)
	}
}

func TestMinterPushTxRejectsInvalidScript(t *testing.T) {
	ledger, ownerKey := newTestLedger(t)
	minter := NewMinter(ledger, ownerKey, Asset{}, quietLog())

	impostor, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	tx := signedMintTx(t, impostor, ScriptHash{1}, NewAsset(5, 0))
	if err := minter.PushTx(tx); err == nil {
		t.Fatalf("expected an error minting with a script hash that does not match the owner's wallet")
	}
}

func TestMinterTickProducesBlockAndDrainsQueue(t *testing.T) {
	ledger, ownerKey := newTestLedger(t)
	minter := NewMinter(ledger, ownerKey, NewAsset(1, 0), quietLog())

	tx := signedMintTx(t, ownerKey, ScriptHash{1}, NewAsset(5, 0))
	if err := minter.PushTx(tx); err != nil {
		t.Fatalf("PushTx: %v", err)
	}

	blk, err := minter.Tick(time.UnixMilli(1_700_000_000_000))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if blk.Header.Height != 1 {
		t.Fatalf("expected the minted block at height 1, got %d", blk.Header.Height)
	}
	if len(blk.Receipts) != 1 {
		t.Fatalf("expected one receipt in the minted block, got %d", len(blk.Receipts))
	}
	if minter.QueueLen() != 0 {
		t.Fatalf("expected the queue to be drained after Tick, got %d", minter.QueueLen())
	}
	if got := ledger.Indexer().GetBalance(ScriptHash{1}); got != NewAsset(5, 0) {
		t.Fatalf("balance after tick = %v, want 5", got)
	}
}

func TestMinterTickWithNoQueuedTxStillAdvancesHeight(t *testing.T) {
	ledger, ownerKey := newTestLedger(t)
	minter := NewMinter(ledger, ownerKey, Asset{}, quietLog())

	blk, err := minter.Tick(time.UnixMilli(1_700_000_000_000))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if blk.Header.Height != 1 || len(blk.Receipts) != 0 {
		t.Fatalf("unexpected block: %+v", blk.Header)
	}
}
