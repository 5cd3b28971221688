package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func simpleBlock(height uint64, prev [32]byte) *Block {
	h := Header{Height: height, PreviousHash: prev, Timestamp: height}
	h.ReceiptRoot = calcReceiptRoot(nil)
	return &Block{Header: h}
}

func TestBlockStoreInsertAndGetBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.log")
	bs, err := OpenBlockStore(path, quietLog())
	if err != nil {
		t.Fatalf("OpenBlockStore: %v", err)
	}
	defer bs.Close()

	genesis := simpleBlock(0, zeroHash)
	if err := bs.InsertGenesis(genesis); err != nil {
		t.Fatalf("InsertGenesis: %v", err)
	}
	second := simpleBlock(1, genesis.Header.Hash())
	if err := bs.Insert(second); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if got := bs.GetChainHeight(); got != 1 {
		t.Fatalf("GetChainHeight = %d, want 1", got)
	}
	got, err := bs.GetBlock(1)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Header.Height != 1 || got.Header.Timestamp != 1 {
		t.Fatalf("GetBlock returned unexpected block: %+v", got.Header)
	}
}

func TestBlockStoreInsertRejectsHeightGap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.log")
	bs, err := OpenBlockStore(path, quietLog())
	if err != nil {
		t.Fatalf("OpenBlockStore: %v", err)
	}
	defer bs.Close()

	genesis := simpleBlock(0, zeroHash)
	if err := bs.InsertGenesis(genesis); err != nil {
		t.Fatalf("InsertGenesis: %v", err)
	}
	skip := simpleBlock(2, genesis.Header.Hash())
	if err := bs.Insert(skip); err == nil {
		t.Fatalf("expected an error inserting a block that does not extend the chain by one")
	}
}

func TestBlockStoreReopenReindexes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.log")
	bs, err := OpenBlockStore(path, quietLog())
	if err != nil {
		t.Fatalf("OpenBlockStore: %v", err)
	}
	genesis := simpleBlock(0, zeroHash)
	if err := bs.InsertGenesis(genesis); err != nil {
		t.Fatalf("InsertGenesis: %v", err)
	}
	second := simpleBlock(1, genesis.Header.Hash())
	if err := bs.Insert(second); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := bs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenBlockStore(path, quietLog())
	if err != nil {
		t.Fatalf("reopen OpenBlockStore: %v", err)
	}
	defer reopened.Close()
	if got := reopened.GetChainHeight(); got != 1 {
		t.Fatalf("reopened GetChainHeight = %d, want 1", got)
	}
	if reopened.GetIndexStatus() != IndexComplete {
		t.Fatalf("expected index status Complete after reopening")
	}
}

func TestReindexBlocksInvokesCallbackInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.log")
	bs, err := OpenBlockStore(path, quietLog())
	if err != nil {
		t.Fatalf("OpenBlockStore: %v", err)
	}
	defer bs.Close()

	genesis := simpleBlock(0, zeroHash)
	if err := bs.InsertGenesis(genesis); err != nil {
		t.Fatalf("InsertGenesis: %v", err)
	}
	second := simpleBlock(1, genesis.Header.Hash())
	if err := bs.Insert(second); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var seen []uint64
	if err := bs.ReindexBlocks(func(blk *Block) error {
		seen = append(seen, blk.Header.Height)
		return nil
	}); err != nil {
		t.Fatalf("ReindexBlocks: %v", err)
	}
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 1 {
		t.Fatalf("ReindexBlocks visited heights %v, want [0 1]", seen)
	}
}

func TestBlockStoreTruncatesCorruptTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.log")
	bs, err := OpenBlockStore(path, quietLog())
	if err != nil {
		t.Fatalf("OpenBlockStore: %v", err)
	}
	genesis := simpleBlock(0, zeroHash)
	if err := bs.InsertGenesis(genesis); err != nil {
		t.Fatalf("InsertGenesis: %v", err)
	}
	if err := bs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.Write([]byte{0, 0, 0, 10, 0xDE, 0xAD, 0xBE, 0xEF, 1, 2}); err != nil {
		t.Fatalf("Write garbage tail: %v", err)
	}
	f.Close()

	reopened, err := OpenBlockStore(path, quietLog())
	if err != nil {
		t.Fatalf("reopen OpenBlockStore: %v", err)
	}
	defer reopened.Close()
	if got := reopened.GetChainHeight(); got != 0 {
		t.Fatalf("expected corrupt tail to be discarded, GetChainHeight = %d, want 0", got)
	}
}
