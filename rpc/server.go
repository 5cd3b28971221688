package rpc

// Server answers the client RPC request variants against a ledger and
// minter (spec.md §4.8). One Conn exists per client connection and owns
// that connection's block filter — the only piece of RPC-visible state
// that is not simply read straight off the ledger.
//
// Grounded on core/node.go's request-dispatch switch style, rebuilt around
// the spec's Msg/Request/Response/Error wire model instead of the teacher's
// JSON-RPC handlers.

import (
	"grael/core"

	"github.com/sirupsen/logrus"
)

// Server holds the shared, connection-independent state every Conn
// dispatches against.
type Server struct {
	ledger *core.Ledger
	minter *core.Minter
	log    *logrus.Logger
}

func NewServer(ledger *core.Ledger, minter *core.Minter, log *logrus.Logger) *Server {
	return &Server{ledger: ledger, minter: minter, log: log}
}

// Conn is one client connection's dispatch state: its active block filter.
type Conn struct {
	server *Server
	filter map[core.ScriptHash]bool
}

func (s *Server) NewConn() *Conn {
	return &Conn{server: s}
}

// Handle decodes one framed Msg from raw and returns the response
// message(s) to send back, in order. GetBlockRange returns one GetBlock
// response per height followed by a terminal GetBlockRange response;
// every other request returns exactly one message.
//
// Framing failures follow spec.md §6.3 / §8 scenario 5: a short or
// malformed buffer that fails to decode answers with Error(Io) and
// id == ServerMsgID, even when its id was readable; a buffer that parses
// fully but leaves
// trailing bytes answers with Error(BytesRemaining) and the request's own
// id.
func (c *Conn) Handle(raw []byte) []Msg {
	r := core.NewReader(raw)
	msg, err := DecodeMsg(r)
	if err != nil {
		kind := ErrIo
		return []Msg{{ID: ServerMsgID, Err: &kind}}
	}
	if r.BytesRemaining() {
		kind := ErrBytesRemaining
		return []Msg{{ID: msg.ID, Err: &kind}}
	}
	return c.dispatch(msg)
}

func (c *Conn) dispatch(msg Msg) []Msg {
	id := msg.ID

	if msg.IsPing {
		return []Msg{{ID: id, IsPong: true, PongVal: msg.PingVal}}
	}
	if msg.Req == nil {
		kind := ErrIo
		return []Msg{{ID: id, Err: &kind}}
	}

	req := *msg.Req
	switch req.Tag {
	case reqGetProperties:
		return []Msg{{ID: id, Res: &Response{Tag: reqGetProperties, Properties: c.properties()}}}

	case reqGetBlock:
		fb, err := c.server.ledger.GetFilteredBlock(req.GetBlock, c.filter)
		if err != nil {
			kind := ErrInvalidHeight
			return []Msg{{ID: id, Err: &kind}}
		}
		return []Msg{{ID: id, Res: &Response{Tag: reqGetBlock, Block: fb}}}

	case reqGetFullBlock:
		blk, err := c.server.ledger.Store().GetBlock(req.GetBlock)
		if err != nil {
			kind := ErrInvalidHeight
			return []Msg{{ID: id, Err: &kind}}
		}
		return []Msg{{ID: id, Res: &Response{Tag: reqGetFullBlock, FullBlock: blk}}}

	case reqGetBlockRange:
		var out []Msg
		for h := req.RangeLo; h <= req.RangeHi; h++ {
			fb, err := c.server.ledger.GetFilteredBlock(h, c.filter)
			if err != nil {
				kind := ErrInvalidHeight
				return append(out, Msg{ID: id, Err: &kind})
			}
			out = append(out, Msg{ID: id, Res: &Response{Tag: reqGetBlock, Block: fb}})
		}
		out = append(out, Msg{ID: id, Res: &Response{Tag: reqGetBlockRange, RangeDone: true}})
		return out

	case reqSetBlockFilter:
		c.filter = make(map[core.ScriptHash]bool, len(req.Filter))
		for _, sh := range req.Filter {
			c.filter[sh] = true
		}
		return []Msg{{ID: id, Res: &Response{Tag: reqSetBlockFilter}}}

	case reqClearBlockFilter:
		c.filter = nil
		return []Msg{{ID: id, Res: &Response{Tag: reqClearBlockFilter}}}

	case reqGetAccountInfo:
		acct, ok := c.server.ledger.Indexer().GetAccount(req.AccountID)
		res := &Response{Tag: reqGetAccountInfo}
		if ok {
			res.Account = &acct
		}
		return []Msg{{ID: id, Res: res}}

	case reqBroadcast:
		if c.server.minter == nil {
			kind := ErrTxValidation
			return []Msg{{ID: id, Err: &kind, ErrDetail: "node is not the leader"}}
		}
		if err := c.server.minter.PushTx(req.BroadcastTx); err != nil {
			kind := ErrTxValidation
			return []Msg{{ID: id, Err: &kind, ErrDetail: err.Error()}}
		}
		txid := core.ComputeTxId(req.BroadcastTx)
		return []Msg{{ID: id, Res: &Response{Tag: reqBroadcast, TxId: txid}}}

	default:
		kind := ErrIo
		return []Msg{{ID: id, Err: &kind}}
	}
}

func (c *Conn) properties() core.Properties {
	idx := c.server.ledger.Indexer()
	head := idx.GetChainHead()
	fee, err := core.ComputeNetworkFee(c.server.ledger.Store(), head.Height)
	if err != nil {
		c.server.log.WithError(err).Warn("rpc: network fee computation failed, reporting zero")
	}
	return idx.GetProperties(fee)
}
