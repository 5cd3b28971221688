package core

import (
	"math"
	"testing"
)

func TestWriteBatchCommitAppliesBalancesAndSupply(t *testing.T) {
	idx := NewIndexer()
	addr := ScriptHash{1}

	batch := idx.NewWriteBatch()
	if err := batch.AddBal(addr, NewAsset(10, 0)); err != nil {
		t.Fatalf("AddBal: %v", err)
	}
	if err := batch.AddTokenSupply(NewAsset(10, 0)); err != nil {
		t.Fatalf("AddTokenSupply: %v", err)
	}
	batch.SetChainHead(Header{Height: 1})
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got := idx.GetBalance(addr); got != NewAsset(10, 0) {
		t.Fatalf("GetBalance = %v, want 10", got)
	}
	if got := idx.GetTokenSupply(); got != NewAsset(10, 0) {
		t.Fatalf("GetTokenSupply = %v, want 10", got)
	}
	if got := idx.GetChainHeight(); got != 1 {
		t.Fatalf("GetChainHeight = %d, want 1", got)
	}
}

func TestWriteBatchDeltasCollapseWithinOneBatch(t *testing.T) {
	idx := NewIndexer()
	addr := ScriptHash{2}

	batch := idx.NewWriteBatch()
	if err := batch.AddBal(addr, NewAsset(5, 0)); err != nil {
		t.Fatalf("AddBal: %v", err)
	}
	if err := batch.AddBal(addr, NewAsset(3, 0)); err != nil {
		t.Fatalf("AddBal: %v", err)
	}
	if err := batch.SubBal(addr, NewAsset(1, 0)); err != nil {
		t.Fatalf("SubBal: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := idx.GetBalance(addr); got != NewAsset(7, 0) {
		t.Fatalf("GetBalance = %v, want 7", got)
	}
}

func TestWriteBatchNothingVisibleBeforeCommit(t *testing.T) {
	idx := NewIndexer()
	addr := ScriptHash{3}
	batch := idx.NewWriteBatch()
	if err := batch.AddBal(addr, NewAsset(100, 0)); err != nil {
		t.Fatalf("AddBal: %v", err)
	}
	if got := idx.GetBalance(addr); !got.IsZero() {
		t.Fatalf("uncommitted batch mutation should not be visible, got %v", got)
	}
}

func TestWriteBatchOwnerAndAccounts(t *testing.T) {
	idx := NewIndexer()
	tx := &Tx{Nonce: 1}
	acct := Account{Id: 1, Balance: NewAsset(1, 0)}

	batch := idx.NewWriteBatch()
	batch.SetOwner(tx)
	batch.InsertOrUpdateAccount(acct)
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if idx.GetOwner() != tx {
		t.Fatalf("GetOwner did not return the committed tx")
	}
	got, ok := idx.GetAccount(1)
	if !ok || got != acct {
		t.Fatalf("GetAccount(1) = %+v, %v; want %+v, true", got, ok, acct)
	}
}

func TestWriteBatchRejectsOverflowingSupply(t *testing.T) {
	idx := NewIndexer()
	idx.tokenSupply = Asset{Raw: math.MinInt64}
	batch := idx.NewWriteBatch()
	batch.supplyDelta = Asset{Raw: -1}
	if err := batch.Commit(); err == nil {
		t.Fatalf("expected commit to fail when the resulting supply underflows")
	}
}

func TestIndexStatusDefaultsIncomplete(t *testing.T) {
	idx := NewIndexer()
	if idx.GetIndexStatus() != IndexIncomplete {
		t.Fatalf("a fresh indexer should report IndexIncomplete")
	}
	idx.SetIndexStatus(IndexComplete)
	if idx.GetIndexStatus() != IndexComplete {
		t.Fatalf("SetIndexStatus did not take effect")
	}
}
