package rpc

import (
	"testing"

	"grael/core"
)

func TestEncodeDecodeMsgPing(t *testing.T) {
	m := Msg{ID: 7, IsPing: true, PingVal: 42}
	got, err := DecodeMsg(core.NewReader(EncodeMsg(m)))
	if err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if got.ID != 7 || !got.IsPing || got.PingVal != 42 {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestEncodeDecodeMsgPong(t *testing.T) {
	m := Msg{ID: 8, IsPong: true, PongVal: 99}
	got, err := DecodeMsg(core.NewReader(EncodeMsg(m)))
	if err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if !got.IsPong || got.PongVal != 99 {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestEncodeDecodeMsgError(t *testing.T) {
	kind := ErrTxValidation
	m := Msg{ID: 1, Err: &kind, ErrDetail: "insufficient balance"}
	got, err := DecodeMsg(core.NewReader(EncodeMsg(m)))
	if err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if got.Err == nil || *got.Err != ErrTxValidation || got.ErrDetail != "insufficient balance" {
		t.Fatalf("got %+v", got)
	}
}

func TestEncodeDecodeRequestVariants(t *testing.T) {
	addr := core.ScriptHash{1, 2, 3}
	reqs := []Request{
		GetProperties(),
		GetBlock(5),
		GetFullBlock(6),
		GetBlockRange(1, 10),
		SetBlockFilter([]core.ScriptHash{addr}),
		ClearBlockFilter(),
		GetAccountInfo(core.AccountId(123)),
	}
	for _, req := range reqs {
		m := Msg{ID: 1, Req: &req}
		got, err := DecodeMsg(core.NewReader(EncodeMsg(m)))
		if err != nil {
			t.Fatalf("DecodeMsg(%v): %v", req.Tag, err)
		}
		if got.Req == nil || got.Req.Tag != req.Tag {
			t.Fatalf("tag mismatch for request %+v: got %+v", req, got.Req)
		}
	}
}

func TestEncodeDecodeRequestGetBlockRangePreservesBounds(t *testing.T) {
	req := GetBlockRange(3, 17)
	m := Msg{ID: 1, Req: &req}
	got, err := DecodeMsg(core.NewReader(EncodeMsg(m)))
	if err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if got.Req.RangeLo != 3 || got.Req.RangeHi != 17 {
		t.Fatalf("got %+v, want lo=3 hi=17", got.Req)
	}
}

func TestEncodeDecodeRequestSetBlockFilterPreservesAddrs(t *testing.T) {
	addrs := []core.ScriptHash{{1}, {2}, {3}}
	req := SetBlockFilter(addrs)
	m := Msg{ID: 1, Req: &req}
	got, err := DecodeMsg(core.NewReader(EncodeMsg(m)))
	if err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if len(got.Req.Filter) != 3 {
		t.Fatalf("got %d filter entries, want 3", len(got.Req.Filter))
	}
	for i := range addrs {
		if got.Req.Filter[i] != addrs[i] {
			t.Fatalf("filter[%d] mismatch: got %v, want %v", i, got.Req.Filter[i], addrs[i])
		}
	}
}

func TestEncodeDecodeResponseGetProperties(t *testing.T) {
	res := Response{
		Tag: reqGetProperties,
		Properties: core.Properties{
			Height:      10,
			NetworkFee:  core.NewAsset(1, 0),
			TokenSupply: core.NewAsset(1000, 0),
		},
	}
	m := Msg{ID: 2, Res: &res}
	got, err := DecodeMsg(core.NewReader(EncodeMsg(m)))
	if err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if got.Res.Properties.Height != 10 || got.Res.Properties.TokenSupply != core.NewAsset(1000, 0) {
		t.Fatalf("got %+v", got.Res.Properties)
	}
	if got.Res.Properties.OwnerTx != nil {
		t.Fatalf("expected nil OwnerTx when none was set")
	}
}

func TestEncodeDecodeResponseGetAccountInfoAbsent(t *testing.T) {
	res := Response{Tag: reqGetAccountInfo, Account: nil}
	m := Msg{ID: 3, Res: &res}
	got, err := DecodeMsg(core.NewReader(EncodeMsg(m)))
	if err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if got.Res.Account != nil {
		t.Fatalf("expected nil account, got %+v", got.Res.Account)
	}
}

func TestEncodeDecodeResponseGetAccountInfoPresent(t *testing.T) {
	acct := core.Account{Id: 5, Balance: core.NewAsset(3, 0)}
	res := Response{Tag: reqGetAccountInfo, Account: &acct}
	m := Msg{ID: 3, Res: &res}
	got, err := DecodeMsg(core.NewReader(EncodeMsg(m)))
	if err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if got.Res.Account == nil || got.Res.Account.Id != 5 || got.Res.Account.Balance != core.NewAsset(3, 0) {
		t.Fatalf("got %+v", got.Res.Account)
	}
}

func TestEncodeDecodeResponseGetBlockRangeDone(t *testing.T) {
	res := Response{Tag: reqGetBlockRange, RangeDone: true}
	m := Msg{ID: 4, Res: &res}
	got, err := DecodeMsg(core.NewReader(EncodeMsg(m)))
	if err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if !got.Res.RangeDone {
		t.Fatalf("expected RangeDone true")
	}
}

func TestEncodeDecodeResponseBroadcastCarriesTxId(t *testing.T) {
	id := core.TxId{9, 8, 7}
	res := Response{Tag: reqBroadcast, TxId: id}
	m := Msg{ID: 5, Res: &res}
	got, err := DecodeMsg(core.NewReader(EncodeMsg(m)))
	if err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if got.Res.TxId != id {
		t.Fatalf("got %v, want %v", got.Res.TxId, id)
	}
}

func TestDecodeMsgRejectsUnknownBodyTag(t *testing.T) {
	w := core.NewWriter(5)
	w.PutU32(1)
	w.PutU8(0xFF)
	if _, err := DecodeMsg(core.NewReader(w.Bytes())); err == nil {
		t.Fatalf("expected an error for an unknown message body tag")
	}
}

func TestErrorKindStrings(t *testing.T) {
	cases := map[ErrorKind]string{
		ErrInvalidHeight:  "InvalidHeight",
		ErrBytesRemaining: "BytesRemaining",
		ErrIo:             "Io",
		ErrTxValidation:   "TxValidation",
		ErrorKind(99):     "Unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
