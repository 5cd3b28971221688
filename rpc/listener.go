package rpc

// ListenAndServe accepts client RPC connections on addr. Each connection
// gets its own Conn (and therefore its own block filter); one inbound
// frame may produce several outbound frames (GetBlockRange streams one
// GetBlock response per height before its terminal marker).
//
// Framing matches replication's: a big-endian u32 length prefix around an
// EncodeMsg payload (grounded on core/codec.go's length-prefixed
// convention, same choice replication/tcp_transport.go made).

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

const maxMsgFrameBytes = 16 << 20

func writeMsgFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readMsgFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxMsgFrameBytes {
		return nil, fmt.Errorf("rpc: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.WithField("addr", addr).Info("rpc: listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.WithError(err).Warn("rpc: accept failed")
				continue
			}
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(nc net.Conn) {
	defer nc.Close()
	c := s.NewConn()
	for {
		nc.SetReadDeadline(time.Now().Add(5 * time.Minute))
		raw, err := readMsgFrame(nc)
		if err != nil {
			if err != io.EOF {
				s.log.WithError(err).Debug("rpc: connection closed")
			}
			return
		}
		for _, msg := range c.Handle(raw) {
			if err := writeMsgFrame(nc, EncodeMsg(msg)); err != nil {
				s.log.WithError(err).Debug("rpc: write failed")
				return
			}
		}
	}
}
