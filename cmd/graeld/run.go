package main

// run assembles every long-running subsystem — minter, replication peer,
// client RPC listener, status endpoint — and runs them until interrupted.
//
// Grounded on cmd/cli/network.go's netInit middleware (godotenv + viper +
// logrus bootstrap) and core/consensus_start.go's ticker-driven production
// loop, rebuilt around this spec's leader-minter/replicated-log split
// instead of the teacher's gossip consensus.

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"grael/core"
	"grael/pkg/config"
	"grael/replication"
	"grael/rpc"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the node: minter (if leader), replication peer, RPC and status endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}

			log := logrus.New()
			if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
				log.SetLevel(lvl)
			}

			deps, err := openNode(cfg, log)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			selfID := peerIDFromAddr(cfg.Replication.ListenAddr)
			addrs := map[uuid.UUID]string{}
			peerIDs := make([]uuid.UUID, 0, len(cfg.Replication.Peers))
			for _, addr := range cfg.Replication.Peers {
				id := peerIDFromAddr(addr)
				addrs[id] = addr
				peerIDs = append(peerIDs, id)
			}
			transport := replication.NewTCPTransport(addrs, log)
			peer := replication.NewPeer(selfID, peerIDs, transport, log)

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return replication.ListenAndServe(ctx, cfg.Replication.ListenAddr, peer, log)
			})
			g.Go(func() error {
				peer.RunElectionTimer(ctx)
				return nil
			})
			g.Go(func() error {
				peer.RunHeartbeat(ctx)
				return nil
			})

			server := rpc.NewServer(deps.ledger, nil, log)
			if cfg.Node.IsLeader {
				minterKey, err := core.WifToPrivateKey(cfg.Node.MinterWif)
				if err != nil {
					return err
				}
				reward := core.NewAsset(cfg.Ledger.BlockRewardWhole, 0)
				minter := core.NewMinter(deps.ledger, minterKey, reward, log)
				server = rpc.NewServer(deps.ledger, minter, log)
				g.Go(func() error {
					return runLeaderLoop(ctx, minter, peer, log)
				})
			} else {
				g.Go(func() error {
					return runFollowerApplyLoop(ctx, peer, deps.ledger, log)
				})
			}

			g.Go(func() error {
				return server.ListenAndServe(ctx, cfg.Rpc.ListenAddr)
			})
			g.Go(func() error {
				return serveStatus(ctx, cfg.Rpc.StatusAddr, deps, peer)
			})

			log.WithFields(logrus.Fields{
				"replication_addr": cfg.Replication.ListenAddr,
				"rpc_addr":         cfg.Rpc.ListenAddr,
				"leader":           cfg.Node.IsLeader,
			}).Info("graeld: node started")

			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func peerIDFromAddr(addr string) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(addr))
}

// runLeaderLoop ticks the minter and appends every produced block to the
// replication log; RunHeartbeat (started alongside this loop) is what
// actually ships those entries to followers.
func runLeaderLoop(ctx context.Context, minter *core.Minter, peer *replication.Peer, log *logrus.Logger) error {
	ticker := time.NewTicker(core.MinterTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			blk, err := minter.Tick(now)
			if err != nil {
				log.WithError(err).Warn("graeld: minter tick failed")
				continue
			}
			if blk == nil {
				continue
			}
			w := core.NewWriter(blk.ByteSize())
			blk.Encode(w)
			peer.AppendLocal(w.Bytes())
		}
	}
}

// runFollowerApplyLoop polls for newly committed log entries and applies
// them to the ledger in order. It assumes this node's role is statically
// configured as non-leader; a node that later wins an election would need
// a supervisor to stop this loop and start runLeaderLoop instead, which
// this single-process command does not attempt.
func runFollowerApplyLoop(ctx context.Context, peer *replication.Peer, ledger *core.Ledger, log *logrus.Logger) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				entry, ok := peer.NextApplyEntry()
				if !ok {
					break
				}
				blk, err := core.DecodeBlock(core.NewReader(entry.Data))
				if err != nil {
					log.WithError(err).Error("graeld: committed entry failed to decode as a block")
					return err
				}
				if err := ledger.InsertBlock(blk); err != nil {
					log.WithError(err).WithField("height", blk.Header.Height).Warn("graeld: failed to apply replicated block")
					break
				}
				peer.MarkApplied(entry.Index)
			}
		}
	}
}
