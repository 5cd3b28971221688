package main

// serveStatus exposes a read-only JSON diagnostics endpoint separate from
// the binary client-RPC protocol: chain height, role, term and commit index,
// useful for health checks and dashboards without speaking the Msg wire
// format. Grounded on cmd/explorer's chi-based read surface, kept to a
// single route rather than a full block explorer.

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"grael/replication"
)

type statusResponse struct {
	Height      uint64 `json:"height"`
	Role        string `json:"role"`
	Term        uint64 `json:"term"`
	CommitIndex uint64 `json:"commit_index"`
}

func serveStatus(ctx context.Context, addr string, deps *nodeDeps, peer *replication.Peer) error {
	r := chi.NewRouter()
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		resp := statusResponse{
			Height:      deps.indexer.GetChainHeight(),
			Role:        peer.CurrentRole().String(),
			Term:        peer.CurrentTermNum(),
			CommitIndex: peer.CommitIndex(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
