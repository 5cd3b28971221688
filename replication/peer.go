package replication

// Peer is the per-node Raft-family state machine (spec.md §4.7): pre-vote,
// election, append-entries heartbeats, log catch-up. Concurrency follows
// spec.md §5: a peer's next_index/match_index per follower are owned by
// that follower's own goroutine, leader state gathers acknowledgements
// through a channel rather than shared-map mutation — modeled here as
// AppendEntries acks being funneled through Peer.handleAppendEntriesRes
// under the single state mutex instead, since the spec allows either and
// a single mutex is simpler to reason about at this scale.
//
// Grounded on core/replication.go's peer-role bookkeeping and
// core/quorum_tracker.go's vote-counting helper, rebuilt around the
// spec's PreVote/RequestVote/AppendEntries/LogSync message set.

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Role is a peer's current position in the Raft-family state machine.
type Role uint8

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

const (
	ElectionTimeoutMin = 150 * time.Millisecond
	ElectionTimeoutMax = 300 * time.Millisecond
	HeartbeatInterval  = 50 * time.Millisecond
)

// progress is one follower's replication cursor, owned exclusively by the
// leader while it remains leader.
type progress struct {
	nextIndex  uint64
	matchIndex uint64
}

// Peer is this node's view of the replicated log and its role in the
// current term.
type Peer struct {
	mu sync.Mutex

	id        uuid.UUID
	transport Transport
	peers     []uuid.UUID // other cluster members, excluding self
	log       *logrus.Logger

	role        Role
	currentTerm uint64
	votedFor    *uuid.UUID
	commitIndex uint64
	lastApplied uint64
	logView     []Entry

	votesGranted map[uuid.UUID]bool // current term's vote tally (candidate only)
	progress     map[uuid.UUID]*progress // leader only

	electionDeadline time.Time
}

// NewPeer constructs a fresh Follower with an empty log.
func NewPeer(id uuid.UUID, peers []uuid.UUID, transport Transport, log *logrus.Logger) *Peer {
	return &Peer{
		id:        id,
		transport: transport,
		peers:     peers,
		log:       log,
		role:      Follower,
	}
}

func (p *Peer) quorum() int { return (len(p.peers)+1)/2 + 1 }

func randomElectionTimeout() time.Duration {
	span := ElectionTimeoutMax - ElectionTimeoutMin
	return ElectionTimeoutMin + time.Duration(rand.Int63n(int64(span)))
}

// lastLogIndexTerm returns the (index, term) of the last entry in logView,
// or (0, 0) for an empty log.
func (p *Peer) lastLogIndexTerm() (uint64, uint64) {
	if len(p.logView) == 0 {
		return 0, 0
	}
	last := p.logView[len(p.logView)-1]
	return last.Index, last.Term
}

// logUpToDate reports whether (lastIndex, lastTerm) is at least as
// up-to-date as this peer's own log, by (term, index) lexicographic order
// (spec.md §4.7).
func (p *Peer) logUpToDate(lastIndex, lastTerm uint64) bool {
	myIndex, myTerm := p.lastLogIndexTerm()
	if lastTerm != myTerm {
		return lastTerm > myTerm
	}
	return lastIndex >= myIndex
}

// stepDown resets role to Follower and adopts term, clearing vote state.
// Called whenever a message carries a strictly higher term than local
// (spec.md §4.7's tie-break rule).
func (p *Peer) stepDown(term uint64) {
	p.role = Follower
	p.currentTerm = term
	p.votedFor = nil
	p.votesGranted = nil
	p.progress = nil
	p.resetElectionDeadline()
}

func (p *Peer) resetElectionDeadline() {
	p.electionDeadline = time.Now().Add(randomElectionTimeout())
}

// HandlePreVoteReq answers a pre-vote round without mutating currentTerm or
// votedFor: a peer approves iff the candidate's log is at least as
// up-to-date as its own (spec.md §4.7).
func (p *Peer) HandlePreVoteReq(req PreVoteReq) PreVoteRes {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PreVoteRes{Approved: p.logUpToDate(req.LastIndex, req.LastTerm)}
}

// HandleRequestVoteReq grants a vote iff term > currentTerm, the
// candidate's log is up to date, and this peer has not already voted this
// term (spec.md §4.7).
func (p *Peer) HandleRequestVoteReq(req RequestVoteReq) RequestVoteRes {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Term <= p.currentTerm {
		return RequestVoteRes{CurrentTerm: p.currentTerm, Approved: false}
	}
	if req.Term > p.currentTerm {
		p.stepDown(req.Term)
	}
	if p.votedFor != nil || !p.logUpToDate(req.LastIndex, req.LastTerm) {
		return RequestVoteRes{CurrentTerm: p.currentTerm, Approved: false}
	}
	p.votedFor = &req.CandidateID
	p.resetElectionDeadline()
	return RequestVoteRes{CurrentTerm: p.currentTerm, Approved: true}
}

// HandleAppendEntriesReq applies a leader's heartbeat/log-append, resetting
// the election timer on any valid contact (spec.md §4.7).
func (p *Peer) HandleAppendEntriesReq(req AppendEntriesReq) AppendEntriesRes {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Term < p.currentTerm {
		return AppendEntriesRes{CurrentTerm: p.currentTerm, Success: false}
	}
	if req.Term > p.currentTerm || p.role != Follower {
		p.stepDown(req.Term)
	}
	p.resetElectionDeadline()

	if req.PrevIndex > 0 {
		idx := findEntryIndex(p.logView, req.PrevIndex)
		if idx < 0 || p.logView[idx].Term != req.PrevTerm {
			return AppendEntriesRes{CurrentTerm: p.currentTerm, Success: false, Index: p.commitIndex}
		}
		// Open Question #3 (SPEC_FULL.md): truncate-and-overwrite. Keep
		// the entry at prev_index, drop everything after it, and splice in
		// the leader's entries.
		p.logView = p.logView[:idx+1]
	} else {
		p.logView = p.logView[:0]
	}
	p.logView = append(p.logView, req.Entries...)

	if req.LeaderCommit > p.commitIndex {
		lastIdx, _ := p.lastLogIndexTerm()
		p.commitIndex = min64(req.LeaderCommit, lastIdx)
	}

	lastIdx, _ := p.lastLogIndexTerm()
	return AppendEntriesRes{CurrentTerm: p.currentTerm, Success: true, Index: lastIdx}
}

// HandleLogSyncReq streams the tail of the log after a follower's last
// known (index, term) in batches of at most MaxLogSyncBatch, marking the
// final batch complete (spec.md §4.7).
func (p *Peer) HandleLogSyncReq(req LogSyncReq) LogSyncRes {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := findEntryIndex(p.logView, req.LastIndex) + 1
	if start < 0 {
		start = 0
	}
	remaining := p.logView[start:]
	batch := remaining
	complete := true
	if len(remaining) > MaxLogSyncBatch {
		batch = remaining[:MaxLogSyncBatch]
		complete = false
	}
	return LogSyncRes{LeaderCommit: p.commitIndex, Complete: complete, Entries: append([]Entry{}, batch...)}
}

func findEntryIndex(log []Entry, index uint64) int {
	for i, e := range log {
		if e.Index == index {
			return i
		}
	}
	if index == 0 {
		return -1 // the implicit empty-log predecessor
	}
	return -1
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// BeginPreVote broadcasts PreVote to every peer and returns true if a
// majority (including self) approved (spec.md §4.7).
func (p *Peer) BeginPreVote(ctx context.Context) bool {
	p.mu.Lock()
	lastIndex, lastTerm := p.lastLogIndexTerm()
	peers := append([]uuid.UUID{}, p.peers...)
	p.mu.Unlock()

	approvals := 1 // self
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, peerID := range peers {
		wg.Add(1)
		go func(peerID uuid.UUID) {
			defer wg.Done()
			res, err := p.transport.SendRequest(ctx, peerID, Request{
				Tag:     TagPreVote,
				PreVote: &PreVoteReq{LastIndex: lastIndex, LastTerm: lastTerm},
			})
			if err != nil || res.PreVote == nil || !res.PreVote.Approved {
				return
			}
			mu.Lock()
			approvals++
			mu.Unlock()
		}(peerID)
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return approvals >= p.quorum()
}

// BecomeCandidate increments the term, votes for self, and broadcasts
// RequestVote; returns true if it won a majority and transitioned to
// Leader (spec.md §4.7).
func (p *Peer) BecomeCandidate(ctx context.Context) bool {
	p.mu.Lock()
	p.role = Candidate
	p.currentTerm++
	self := p.id
	p.votedFor = &self
	term := p.currentTerm
	lastIndex, lastTerm := p.lastLogIndexTerm()
	peers := append([]uuid.UUID{}, p.peers...)
	p.resetElectionDeadline()
	p.mu.Unlock()

	approvals := 1 // self
	var mu sync.Mutex
	var wg sync.WaitGroup
	higherTermSeen := uint64(0)
	for _, peerID := range peers {
		wg.Add(1)
		go func(peerID uuid.UUID) {
			defer wg.Done()
			res, err := p.transport.SendRequest(ctx, peerID, Request{
				Tag:         TagRequestVote,
				RequestVote: &RequestVoteReq{CandidateID: self, Term: term, LastIndex: lastIndex, LastTerm: lastTerm},
			})
			if err != nil || res.RequestVote == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.RequestVote.Approved {
				approvals++
			} else if res.RequestVote.CurrentTerm > higherTermSeen {
				higherTermSeen = res.RequestVote.CurrentTerm
			}
		}(peerID)
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentTerm != term || p.role != Candidate {
		return false // already moved on (stepped down or reelected elsewhere)
	}
	if higherTermSeen > p.currentTerm {
		p.stepDown(higherTermSeen)
		return false
	}
	if approvals < p.quorum() {
		return false
	}

	p.role = Leader
	p.progress = make(map[uuid.UUID]*progress, len(p.peers))
	lastIdx, _ := p.lastLogIndexTerm()
	for _, peerID := range p.peers {
		p.progress[peerID] = &progress{nextIndex: lastIdx + 1}
	}
	return true
}

// AppendLocal appends a new leader-originated entry (a minted block's
// encoding) to the log. The caller must already hold leadership.
func (p *Peer) AppendLocal(data []byte) Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	lastIdx, _ := p.lastLogIndexTerm()
	entry := Entry{Index: lastIdx + 1, Term: p.currentTerm, Data: data}
	p.logView = append(p.logView, entry)
	return entry
}

// ReplicateToPeer sends one AppendEntries to peerID carrying everything
// from that peer's next_index onward, applying the response per spec.md
// §4.7: success advances match_index and re-evaluates commit_index;
// failure with a higher term steps down; failure at the same term
// decrements next_index for a retry.
func (p *Peer) ReplicateToPeer(ctx context.Context, peerID uuid.UUID) error {
	p.mu.Lock()
	if p.role != Leader {
		p.mu.Unlock()
		return nil
	}
	prog, ok := p.progress[peerID]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	prevIndex := uint64(0)
	prevTerm := uint64(0)
	if prog.nextIndex > 1 {
		if idx := findEntryIndex(p.logView, prog.nextIndex-1); idx >= 0 {
			prevIndex = p.logView[idx].Index
			prevTerm = p.logView[idx].Term
		}
	}
	var entries []Entry
	for _, e := range p.logView {
		if e.Index >= prog.nextIndex {
			entries = append(entries, e)
		}
	}
	term := p.currentTerm
	commit := p.commitIndex
	p.mu.Unlock()

	res, err := p.transport.SendRequest(ctx, peerID, Request{
		Tag: TagAppendEntries,
		AppendEntries: &AppendEntriesReq{
			Term: term, PrevIndex: prevIndex, PrevTerm: prevTerm,
			LeaderCommit: commit, Entries: entries,
		},
	})
	if err != nil {
		return err
	}
	p.handleAppendEntriesRes(peerID, res)
	return nil
}

func (p *Peer) handleAppendEntriesRes(peerID uuid.UUID, res Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if res.AppendEntries == nil || p.role != Leader {
		return
	}
	ae := res.AppendEntries
	if !ae.Success {
		if ae.CurrentTerm > p.currentTerm {
			p.stepDown(ae.CurrentTerm)
			return
		}
		if prog, ok := p.progress[peerID]; ok && prog.nextIndex > 1 {
			prog.nextIndex--
		}
		return
	}
	prog, ok := p.progress[peerID]
	if !ok {
		return
	}
	prog.matchIndex = ae.Index
	prog.nextIndex = ae.Index + 1
	p.advanceCommitIndex()
}

// advanceCommitIndex sets commitIndex to the highest index replicated on a
// majority of peers (including self) whose entry term equals currentTerm
// (spec.md §4.7's safety rule against committing a prior term's entry by
// count alone).
func (p *Peer) advanceCommitIndex() {
	lastIdx, _ := p.lastLogIndexTerm()
	for idx := lastIdx; idx > p.commitIndex; idx-- {
		entryIdx := findEntryIndex(p.logView, idx)
		if entryIdx < 0 || p.logView[entryIdx].Term != p.currentTerm {
			continue
		}
		count := 1 // self
		for _, prog := range p.progress {
			if prog.matchIndex >= idx {
				count++
			}
		}
		if count >= p.quorum() {
			p.commitIndex = idx
			return
		}
	}
}

// CurrentRole reports the peer's current role.
func (p *Peer) CurrentRole() Role {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.role
}

// CurrentTermNum reports the peer's current term.
func (p *Peer) CurrentTermNum() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTerm
}

// CommitIndex reports the highest committed log index.
func (p *Peer) CommitIndex() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commitIndex
}

// NextApplyEntry returns the next committed-but-unapplied entry, if any. A
// driving loop calls this to feed committed log entries into the state
// machine (the ledger's block insertion) in order, then calls MarkApplied
// once that entry's effects are durable.
func (p *Peer) NextApplyEntry() (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastApplied >= p.commitIndex {
		return Entry{}, false
	}
	idx := findEntryIndex(p.logView, p.lastApplied+1)
	if idx < 0 {
		return Entry{}, false
	}
	return p.logView[idx], true
}

// MarkApplied records that the entry at index has been applied to the
// state machine, advancing lastApplied.
func (p *Peer) MarkApplied(index uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index > p.lastApplied {
		p.lastApplied = index
	}
}

// RunElectionTimer blocks until ctx is cancelled, attempting a pre-vote and
// election whenever the randomized election timeout elapses with no valid
// leader contact in between (spec.md §4.7, §5).
func (p *Peer) RunElectionTimer(ctx context.Context) {
	p.mu.Lock()
	p.resetElectionDeadline()
	p.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			expired := p.role != Leader && time.Now().After(p.electionDeadline)
			p.mu.Unlock()
			if !expired {
				continue
			}
			if p.BeginPreVote(ctx) {
				p.BecomeCandidate(ctx)
			} else {
				p.mu.Lock()
				p.resetElectionDeadline()
				p.mu.Unlock()
			}
		}
	}
}

// RunHeartbeat blocks until ctx is cancelled, sending AppendEntries to
// every peer every HeartbeatInterval while this peer is Leader.
func (p *Peer) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			isLeader := p.role == Leader
			peers := append([]uuid.UUID{}, p.peers...)
			p.mu.Unlock()
			if !isLeader {
				continue
			}
			for _, peerID := range peers {
				go func(peerID uuid.UUID) {
					if err := p.ReplicateToPeer(ctx, peerID); err != nil {
						p.log.WithError(err).WithField("peer", peerID).Debug("replication: heartbeat send failed")
					}
				}(peerID)
			}
		}
	}
}
