// Package rpc implements the client-facing request/response front-end
// (spec.md §4.8, §6.3): a multiplexed Msg{id, body} stream over Ping/Pong,
// tagged requests, tagged responses, and named error kinds.
package rpc

import (
	"errors"
	"math"

	"grael/core"
)

// ServerMsgID is reserved for server-initiated messages and unrecoverable
// framing errors; no client request ever carries it (spec.md §6.3).
const ServerMsgID = math.MaxUint32

type bodyTag uint8

const (
	bodyPing bodyTag = iota
	bodyPong
	bodyRequest
	bodyResponse
	bodyError
)

type reqTag uint8

const (
	reqGetProperties reqTag = iota
	reqGetBlock
	reqGetFullBlock
	reqGetBlockRange
	reqSetBlockFilter
	reqClearBlockFilter
	reqGetAccountInfo
	reqBroadcast
)

// ErrorKind names why a request could not be answered (spec.md §6.3, §7).
type ErrorKind uint8

const (
	ErrInvalidHeight ErrorKind = iota
	ErrBytesRemaining
	ErrIo
	ErrTxValidation
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidHeight:
		return "InvalidHeight"
	case ErrBytesRemaining:
		return "BytesRemaining"
	case ErrIo:
		return "Io"
	case ErrTxValidation:
		return "TxValidation"
	default:
		return "Unknown"
	}
}

// Request is a tagged union over every client request variant.
type Request struct {
	Tag reqTag

	GetBlock      uint64 // GetBlock, GetFullBlock
	RangeLo       uint64 // GetBlockRange
	RangeHi       uint64
	Filter        []core.ScriptHash // SetBlockFilter
	AccountID     core.AccountId    // GetAccountInfo
	BroadcastTx   *core.Tx          // Broadcast
}

func GetProperties() Request             { return Request{Tag: reqGetProperties} }
func GetBlock(height uint64) Request     { return Request{Tag: reqGetBlock, GetBlock: height} }
func GetFullBlock(height uint64) Request { return Request{Tag: reqGetFullBlock, GetBlock: height} }
func GetBlockRange(lo, hi uint64) Request {
	return Request{Tag: reqGetBlockRange, RangeLo: lo, RangeHi: hi}
}
func SetBlockFilter(addrs []core.ScriptHash) Request {
	return Request{Tag: reqSetBlockFilter, Filter: addrs}
}
func ClearBlockFilter() Request { return Request{Tag: reqClearBlockFilter} }
func GetAccountInfo(id core.AccountId) Request {
	return Request{Tag: reqGetAccountInfo, AccountID: id}
}
func Broadcast(tx *core.Tx) Request { return Request{Tag: reqBroadcast, BroadcastTx: tx} }

func encodeRequest(w *core.Writer, req Request) {
	w.PutU8(uint8(req.Tag))
	switch req.Tag {
	case reqGetProperties, reqClearBlockFilter:
	case reqGetBlock, reqGetFullBlock:
		w.PutU64(req.GetBlock)
	case reqGetBlockRange:
		w.PutU64(req.RangeLo)
		w.PutU64(req.RangeHi)
	case reqSetBlockFilter:
		w.PutU32(uint32(len(req.Filter)))
		for _, sh := range req.Filter {
			sh.Encode(w)
		}
	case reqGetAccountInfo:
		w.PutU64(uint64(req.AccountID))
	case reqBroadcast:
		req.BroadcastTx.Encode(w)
	}
}

func decodeRequest(r *core.Reader) (Request, error) {
	tagByte, err := r.GetU8()
	if err != nil {
		return Request{}, err
	}
	tag := reqTag(tagByte)
	switch tag {
	case reqGetProperties, reqClearBlockFilter:
		return Request{Tag: tag}, nil
	case reqGetBlock, reqGetFullBlock:
		h, err := r.GetU64()
		if err != nil {
			return Request{}, err
		}
		return Request{Tag: tag, GetBlock: h}, nil
	case reqGetBlockRange:
		lo, err := r.GetU64()
		if err != nil {
			return Request{}, err
		}
		hi, err := r.GetU64()
		if err != nil {
			return Request{}, err
		}
		return Request{Tag: tag, RangeLo: lo, RangeHi: hi}, nil
	case reqSetBlockFilter:
		n, err := r.GetU32()
		if err != nil {
			return Request{}, err
		}
		filter := make([]core.ScriptHash, n)
		for i := range filter {
			sh, err := core.DecodeScriptHash(r)
			if err != nil {
				return Request{}, err
			}
			filter[i] = sh
		}
		return Request{Tag: tag, Filter: filter}, nil
	case reqGetAccountInfo:
		id, err := r.GetU64()
		if err != nil {
			return Request{}, err
		}
		return Request{Tag: tag, AccountID: core.AccountId(id)}, nil
	case reqBroadcast:
		tx, err := core.DecodeTx(r)
		if err != nil {
			return Request{}, err
		}
		return Request{Tag: tag, BroadcastTx: tx}, nil
	default:
		return Request{}, errors.New("rpc: unknown request tag")
	}
}

// Response mirrors Request's tag space with the corresponding result data.
type Response struct {
	Tag reqTag

	Properties core.Properties
	Block      *core.FilteredBlock // GetBlock
	FullBlock  *core.Block         // GetFullBlock
	RangeDone  bool                // terminal GetBlockRange marker
	Account    *core.Account       // GetAccountInfo; nil if not found
	TxId       core.TxId           // Broadcast ack
}

func encodeResponse(w *core.Writer, res Response) {
	w.PutU8(uint8(res.Tag))
	switch res.Tag {
	case reqGetProperties:
		w.PutU64(res.Properties.Height)
		w.PutU64(uint64(res.Properties.NetworkFee.Raw))
		w.PutU64(uint64(res.Properties.TokenSupply.Raw))
		if res.Properties.OwnerTx != nil {
			w.PutU8(1)
			res.Properties.OwnerTx.Encode(w)
		} else {
			w.PutU8(0)
		}
	case reqGetBlock:
		if res.Block.Full != nil {
			w.PutU8(1)
			res.Block.Full.Encode(w)
		} else {
			w.PutU8(0)
			res.Block.Header.Encode(w)
			if res.Block.Signer != nil {
				w.PutU8(1)
				res.Block.Signer.Encode(w)
			} else {
				w.PutU8(0)
			}
		}
	case reqGetFullBlock:
		res.FullBlock.Encode(w)
	case reqGetBlockRange:
		if res.RangeDone {
			w.PutU8(1)
		} else {
			w.PutU8(0)
		}
	case reqSetBlockFilter, reqClearBlockFilter, reqBroadcast:
		res.TxId.Encode(w)
	case reqGetAccountInfo:
		if res.Account != nil {
			w.PutU8(1)
			res.Account.Encode(w)
		} else {
			w.PutU8(0)
		}
	}
}

func decodeResponse(r *core.Reader) (Response, error) {
	tagByte, err := r.GetU8()
	if err != nil {
		return Response{}, err
	}
	tag := reqTag(tagByte)
	res := Response{Tag: tag}
	switch tag {
	case reqGetProperties:
		height, err := r.GetU64()
		if err != nil {
			return Response{}, err
		}
		feeRaw, err := r.GetU64()
		if err != nil {
			return Response{}, err
		}
		supplyRaw, err := r.GetU64()
		if err != nil {
			return Response{}, err
		}
		present, err := r.GetU8()
		if err != nil {
			return Response{}, err
		}
		res.Properties = core.Properties{
			Height:      height,
			NetworkFee:  core.Asset{Raw: int64(feeRaw)},
			TokenSupply: core.Asset{Raw: int64(supplyRaw)},
		}
		if present != 0 {
			tx, err := core.DecodeTx(r)
			if err != nil {
				return Response{}, err
			}
			res.Properties.OwnerTx = tx
		}
	case reqGetBlock:
		full, err := r.GetU8()
		if err != nil {
			return Response{}, err
		}
		if full != 0 {
			blk, err := core.DecodeBlock(r)
			if err != nil {
				return Response{}, err
			}
			res.Block = &core.FilteredBlock{Full: blk}
		} else {
			h, err := core.DecodeHeader(r)
			if err != nil {
				return Response{}, err
			}
			present, err := r.GetU8()
			if err != nil {
				return Response{}, err
			}
			fb := &core.FilteredBlock{Header: &h}
			if present != 0 {
				sp, err := core.DecodeSigPair(r)
				if err != nil {
					return Response{}, err
				}
				fb.Signer = &sp
			}
			res.Block = fb
		}
	case reqGetFullBlock:
		blk, err := core.DecodeBlock(r)
		if err != nil {
			return Response{}, err
		}
		res.FullBlock = blk
	case reqGetBlockRange:
		done, err := r.GetU8()
		if err != nil {
			return Response{}, err
		}
		res.RangeDone = done != 0
	case reqSetBlockFilter, reqClearBlockFilter, reqBroadcast:
		id, err := core.DecodeTxId(r)
		if err != nil {
			return Response{}, err
		}
		res.TxId = id
	case reqGetAccountInfo:
		present, err := r.GetU8()
		if err != nil {
			return Response{}, err
		}
		if present != 0 {
			acct, err := core.DecodeAccount(r)
			if err != nil {
				return Response{}, err
			}
			res.Account = &acct
		}
	default:
		return Response{}, errors.New("rpc: unknown response tag")
	}
	return res, nil
}

// Msg is one framed message on the client RPC stream: an id (echoed from
// the matching request, or ServerMsgID) and a tagged body.
type Msg struct {
	ID uint32

	IsPing  bool
	PingVal uint64
	IsPong  bool
	PongVal uint64

	Req *Request
	Res *Response
	Err *ErrorKind
	ErrDetail string // populated only for ErrTxValidation
}

// EncodeMsg serializes m per spec.md §6.3's Msg framing.
func EncodeMsg(m Msg) []byte {
	w := core.NewWriter(128)
	w.PutU32(m.ID)
	switch {
	case m.IsPing:
		w.PutU8(uint8(bodyPing))
		w.PutU64(m.PingVal)
	case m.IsPong:
		w.PutU8(uint8(bodyPong))
		w.PutU64(m.PongVal)
	case m.Req != nil:
		w.PutU8(uint8(bodyRequest))
		encodeRequest(w, *m.Req)
	case m.Res != nil:
		w.PutU8(uint8(bodyResponse))
		encodeResponse(w, *m.Res)
	case m.Err != nil:
		w.PutU8(uint8(bodyError))
		w.PutU8(uint8(*m.Err))
		w.PutBytes([]byte(m.ErrDetail))
	}
	return w.Bytes()
}

// DecodeMsg parses m, returning ErrBytesRemaining-worthy trailing-byte
// information to the caller via r.BytesRemaining() after the call.
func DecodeMsg(r *core.Reader) (Msg, error) {
	id, err := r.GetU32()
	if err != nil {
		return Msg{}, err
	}
	tagByte, err := r.GetU8()
	if err != nil {
		return Msg{}, err
	}
	m := Msg{ID: id}
	switch bodyTag(tagByte) {
	case bodyPing:
		v, err := r.GetU64()
		if err != nil {
			return Msg{}, err
		}
		m.IsPing = true
		m.PingVal = v
	case bodyPong:
		v, err := r.GetU64()
		if err != nil {
			return Msg{}, err
		}
		m.IsPong = true
		m.PongVal = v
	case bodyRequest:
		req, err := decodeRequest(r)
		if err != nil {
			return Msg{}, err
		}
		m.Req = &req
	case bodyResponse:
		res, err := decodeResponse(r)
		if err != nil {
			return Msg{}, err
		}
		m.Res = &res
	case bodyError:
		kindByte, err := r.GetU8()
		if err != nil {
			return Msg{}, err
		}
		detail, err := r.GetBytes()
		if err != nil {
			return Msg{}, err
		}
		kind := ErrorKind(kindByte)
		m.Err = &kind
		m.ErrDetail = string(detail)
	default:
		return Msg{}, errors.New("rpc: unknown message body tag")
	}
	return m, nil
}
