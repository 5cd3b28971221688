package replication

// TCPTransport is the default Transport: one short-lived TCP connection per
// outbound request, framed as a big-endian u32 length prefix followed by an
// EncodeRequest/EncodeResponse payload. Replication traffic is low-volume
// and latency-insensitive compared to block production itself, so paying a
// fresh dial per RPC keeps the implementation free of connection-pool
// lifecycle bugs.
//
// Grounded on core/network.go's Dialer (context-aware net.Dialer wrapper);
// the length-prefix framing follows core/codec.go's own length-prefixed
// byte-slice convention (core.Writer.PutBytes/Reader.GetBytes).

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"grael/core"
)

const maxFrameBytes = 16 << 20

func writeFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("replication: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// TCPTransport dials peers by their configured addresses.
type TCPTransport struct {
	dialer *net.Dialer

	mu    sync.RWMutex
	addrs map[uuid.UUID]string

	log *logrus.Logger
}

func NewTCPTransport(addrs map[uuid.UUID]string, log *logrus.Logger) *TCPTransport {
	return &TCPTransport{
		dialer: &net.Dialer{Timeout: 2 * time.Second, KeepAlive: 30 * time.Second},
		addrs:  addrs,
		log:    log,
	}
}

// SetAddr updates or adds the dial address for a peer.
func (t *TCPTransport) SetAddr(peer uuid.UUID, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addrs[peer] = addr
}

func (t *TCPTransport) SendRequest(ctx context.Context, peer uuid.UUID, req Request) (Response, error) {
	t.mu.RLock()
	addr, ok := t.addrs[peer]
	t.mu.RUnlock()
	if !ok {
		return Response{}, ErrPeerUnreachable
	}

	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(5 * time.Second))
	}

	if err := writeFrame(conn, EncodeRequest(req)); err != nil {
		return Response{}, err
	}
	payload, err := readFrame(conn)
	if err != nil {
		return Response{}, err
	}
	r := core.NewReader(payload)
	res, err := DecodeResponse(r)
	if err != nil {
		return Response{}, err
	}
	return res, nil
}

// ListenAndServe accepts inbound connections on addr, decodes one framed
// Request per connection, dispatches it against peer's Handle* methods, and
// writes back the framed Response. It runs until ctx is cancelled or the
// listener fails.
func ListenAndServe(ctx context.Context, addr string, peer *Peer, log *logrus.Logger) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.WithError(err).Warn("replication: accept failed")
				continue
			}
		}
		go handleConn(conn, peer, log)
	}
}

func handleConn(conn net.Conn, peer *Peer, log *logrus.Logger) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	payload, err := readFrame(conn)
	if err != nil {
		log.WithError(err).Debug("replication: frame read failed")
		return
	}
	req, err := DecodeRequest(core.NewReader(payload))
	if err != nil {
		log.WithError(err).Debug("replication: request decode failed")
		return
	}

	var res Response
	switch req.Tag {
	case TagPreVote:
		res = Response{Tag: TagPreVote, PreVote: ptr(peer.HandlePreVoteReq(*req.PreVote))}
	case TagRequestVote:
		res = Response{Tag: TagRequestVote, RequestVote: ptr(peer.HandleRequestVoteReq(*req.RequestVote))}
	case TagAppendEntries:
		res = Response{Tag: TagAppendEntries, AppendEntries: ptr(peer.HandleAppendEntriesReq(*req.AppendEntries))}
	case TagLogSync:
		res = Response{Tag: TagLogSync, LogSync: ptr(peer.HandleLogSyncReq(*req.LogSync))}
	default:
		return
	}

	if err := writeFrame(conn, EncodeResponse(res)); err != nil {
		log.WithError(err).Debug("replication: response write failed")
	}
}

func ptr[T any](v T) *T { return &v }
