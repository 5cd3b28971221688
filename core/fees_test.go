package core

import (
	"errors"
	"testing"
)

var errNoSuchBlock = errors.New("fees_test: no block at that height")

// memHistory is a trivial in-memory HistoryReader fixture for fee curve tests.
type memHistory map[uint64]*Block

func (m memHistory) GetBlock(height uint64) (*Block, error) {
	blk, ok := m[height]
	if !ok {
		return nil, errNoSuchBlock
	}
	return blk, nil
}

func receiptsBlock(n int) *Block {
	receipts := make([]Receipt, n)
	for i := range receipts {
		receipts[i] = Receipt{Tx: &Tx{}}
	}
	return &Block{Receipts: receipts}
}

func TestNetworkFeeWindowHeightAlignsToFive(t *testing.T) {
	cases := map[uint64]uint64{0: 0, 1: 0, 4: 0, 5: 5, 9: 5, 10: 10}
	for h, want := range cases {
		if got := NetworkFeeWindowHeight(h); got != want {
			t.Fatalf("NetworkFeeWindowHeight(%d) = %d, want %d", h, got, want)
		}
	}
}

func TestComputeNetworkFeeEmptyHistoryIsBaseline(t *testing.T) {
	fee, err := ComputeNetworkFee(memHistory{}, 0)
	if err != nil {
		t.Fatalf("ComputeNetworkFee: %v", err)
	}
	want := Asset{Raw: int64(GraelFeeMin.Raw) * int64(GraelFeeNetMult)}
	if fee != want {
		t.Fatalf("empty-history network fee = %v, want %v", fee, want)
	}
}

func TestComputeNetworkFeeRisesWithActivity(t *testing.T) {
	hist := memHistory{0: receiptsBlock(1000)}
	quiet, err := ComputeNetworkFee(memHistory{}, 0)
	if err != nil {
		t.Fatalf("ComputeNetworkFee (quiet): %v", err)
	}
	busy, err := ComputeNetworkFee(hist, 0)
	if err != nil {
		t.Fatalf("ComputeNetworkFee (busy): %v", err)
	}
	if busy.Raw <= quiet.Raw {
		t.Fatalf("fee should rise with trailing receipt volume: quiet=%v busy=%v", quiet, busy)
	}
}

func TestComputeAddressFeeRaisedByRecentSpend(t *testing.T) {
	addr := ScriptHash{1}
	other := ScriptHash{2}
	hist := memHistory{
		0: {Receipts: []Receipt{{Tx: &Tx{Variant: TxVariantTransfer, Transfer: &TransferData{From: addr}}}}},
	}
	fee, err := ComputeAddressFee(hist, 0, addr)
	if err != nil {
		t.Fatalf("ComputeAddressFee: %v", err)
	}
	baseline, err := ComputeAddressFee(memHistory{}, 0, other)
	if err != nil {
		t.Fatalf("ComputeAddressFee baseline: %v", err)
	}
	if fee.Raw <= baseline.Raw {
		t.Fatalf("a recent spend should raise the address fee above baseline: got %v vs %v", fee, baseline)
	}
}

func TestComputeAddressFeeNoHistoryIsBaseline(t *testing.T) {
	fee, err := ComputeAddressFee(memHistory{}, 0, ScriptHash{9})
	if err != nil {
		t.Fatalf("ComputeAddressFee: %v", err)
	}
	want := Asset{Raw: int64(GraelFeeMin.Raw) * int64(GraelFeeMult)}
	if fee != want {
		t.Fatalf("no-history address fee = %v, want %v", fee, want)
	}
}
