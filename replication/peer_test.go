package replication

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// stubTransport answers every SendRequest with a canned response keyed by
// peer id, or ErrPeerUnreachable for peers not present in the map.
type stubTransport struct {
	mu        sync.Mutex
	responses map[uuid.UUID]Response
	calls     []Request
}

func newStubTransport() *stubTransport {
	return &stubTransport{responses: make(map[uuid.UUID]Response)}
}

func (s *stubTransport) SendRequest(ctx context.Context, peer uuid.UUID, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	res, ok := s.responses[peer]
	if !ok {
		return Response{}, ErrPeerUnreachable
	}
	return res, nil
}

func newTestPeer(peers ...uuid.UUID) (*Peer, *stubTransport) {
	transport := newStubTransport()
	p := NewPeer(uuid.New(), peers, transport, quietLog())
	return p, transport
}

func TestQuorumArithmetic(t *testing.T) {
	cases := []struct {
		peers int
		want  int
	}{
		{0, 1}, {1, 2}, {2, 2}, {3, 3}, {4, 3},
	}
	for _, c := range cases {
		peers := make([]uuid.UUID, c.peers)
		for i := range peers {
			peers[i] = uuid.New()
		}
		p, _ := newTestPeer(peers...)
		if got := p.quorum(); got != c.want {
			t.Fatalf("quorum() with %d peers = %d, want %d", c.peers, got, c.want)
		}
	}
}

func TestHandlePreVoteReqApprovesWhenCandidateLogIsNewer(t *testing.T) {
	p, _ := newTestPeer()
	p.logView = []Entry{{Index: 1, Term: 1}, {Index: 2, Term: 1}}

	res := p.HandlePreVoteReq(PreVoteReq{LastIndex: 2, LastTerm: 2})
	if !res.Approved {
		t.Fatalf("expected approval for a candidate with a strictly newer term")
	}
}

func TestHandlePreVoteReqRejectsWhenCandidateLogIsStale(t *testing.T) {
	p, _ := newTestPeer()
	p.logView = []Entry{{Index: 1, Term: 3}, {Index: 2, Term: 3}}

	res := p.HandlePreVoteReq(PreVoteReq{LastIndex: 1, LastTerm: 1})
	if res.Approved {
		t.Fatalf("expected rejection for a candidate with a stale log")
	}
}

func TestHandleRequestVoteReqGrantsOncePerTerm(t *testing.T) {
	p, _ := newTestPeer()
	candidateA := uuid.New()
	candidateB := uuid.New()

	first := p.HandleRequestVoteReq(RequestVoteReq{CandidateID: candidateA, Term: 1})
	if !first.Approved {
		t.Fatalf("expected first vote in a new term to be granted")
	}
	second := p.HandleRequestVoteReq(RequestVoteReq{CandidateID: candidateB, Term: 1})
	if second.Approved {
		t.Fatalf("expected a second vote request in the same term to be rejected")
	}
}

func TestHandleRequestVoteReqRejectsStaleTerm(t *testing.T) {
	p, _ := newTestPeer()
	p.currentTerm = 5

	res := p.HandleRequestVoteReq(RequestVoteReq{CandidateID: uuid.New(), Term: 3})
	if res.Approved || res.CurrentTerm != 5 {
		t.Fatalf("expected rejection reporting current term, got %+v", res)
	}
}

func TestHandleRequestVoteReqAdvancesTermAndRecordsCandidate(t *testing.T) {
	p, _ := newTestPeer()
	candidate := uuid.New()

	res := p.HandleRequestVoteReq(RequestVoteReq{CandidateID: candidate, Term: 9})
	if !res.Approved || res.CurrentTerm != 9 {
		t.Fatalf("expected approval at the new term, got %+v", res)
	}
	if p.votedFor == nil || *p.votedFor != candidate {
		t.Fatalf("expected votedFor to record the candidate")
	}
}

func TestHandleAppendEntriesReqRejectsStaleTerm(t *testing.T) {
	p, _ := newTestPeer()
	p.currentTerm = 4

	res := p.HandleAppendEntriesReq(AppendEntriesReq{Term: 2})
	if res.Success || res.CurrentTerm != 4 {
		t.Fatalf("expected rejection for a stale leader term, got %+v", res)
	}
}

func TestHandleAppendEntriesReqAppendsIntoEmptyLog(t *testing.T) {
	p, _ := newTestPeer()
	res := p.HandleAppendEntriesReq(AppendEntriesReq{
		Term:    1,
		Entries: []Entry{{Index: 1, Term: 1, Data: []byte("a")}},
	})
	if !res.Success || res.Index != 1 {
		t.Fatalf("expected success at index 1, got %+v", res)
	}
	if len(p.logView) != 1 {
		t.Fatalf("expected one entry in the log, got %d", len(p.logView))
	}
}

func TestHandleAppendEntriesReqRejectsPrevEntryMismatch(t *testing.T) {
	p, _ := newTestPeer()
	p.logView = []Entry{{Index: 1, Term: 1}}

	res := p.HandleAppendEntriesReq(AppendEntriesReq{Term: 1, PrevIndex: 1, PrevTerm: 2})
	if res.Success {
		t.Fatalf("expected rejection when prev entry's term does not match")
	}
}

func TestHandleAppendEntriesReqTruncatesAndOverwritesOnConflict(t *testing.T) {
	p, _ := newTestPeer()
	p.logView = []Entry{
		{Index: 1, Term: 1, Data: []byte("a")},
		{Index: 2, Term: 1, Data: []byte("stale")},
		{Index: 3, Term: 1, Data: []byte("stale2")},
	}

	res := p.HandleAppendEntriesReq(AppendEntriesReq{
		Term:      2,
		PrevIndex: 1,
		PrevTerm:  1,
		Entries:   []Entry{{Index: 2, Term: 2, Data: []byte("fresh")}},
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(p.logView) != 2 || string(p.logView[1].Data) != "fresh" {
		t.Fatalf("expected conflicting tail to be truncated and replaced, got %+v", p.logView)
	}
}

func TestHandleAppendEntriesReqBoundsCommitIndexByLastEntry(t *testing.T) {
	p, _ := newTestPeer()
	res := p.HandleAppendEntriesReq(AppendEntriesReq{
		Term:         1,
		LeaderCommit: 100,
		Entries:      []Entry{{Index: 1, Term: 1}, {Index: 2, Term: 1}},
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if p.commitIndex != 2 {
		t.Fatalf("commitIndex = %d, want 2 (bounded by last log index)", p.commitIndex)
	}
}

func TestHandleLogSyncReqReturnsTailAfterLastIndex(t *testing.T) {
	p, _ := newTestPeer()
	p.logView = []Entry{{Index: 1, Term: 1}, {Index: 2, Term: 1}, {Index: 3, Term: 1}}
	p.commitIndex = 3

	res := p.HandleLogSyncReq(LogSyncReq{LastIndex: 1, LastTerm: 1})
	if !res.Complete || len(res.Entries) != 2 || res.Entries[0].Index != 2 {
		t.Fatalf("unexpected log sync response: %+v", res)
	}
}

func TestHandleLogSyncReqBatchesAtMaxLogSyncBatch(t *testing.T) {
	p, _ := newTestPeer()
	entries := make([]Entry, MaxLogSyncBatch+10)
	for i := range entries {
		entries[i] = Entry{Index: uint64(i + 1), Term: 1}
	}
	p.logView = entries

	res := p.HandleLogSyncReq(LogSyncReq{LastIndex: 0, LastTerm: 0})
	if res.Complete {
		t.Fatalf("expected an incomplete batch when more entries remain")
	}
	if len(res.Entries) != MaxLogSyncBatch {
		t.Fatalf("len(Entries) = %d, want %d", len(res.Entries), MaxLogSyncBatch)
	}
}

func TestFindEntryIndexEdgeCases(t *testing.T) {
	log := []Entry{{Index: 5, Term: 1}, {Index: 6, Term: 1}}
	if got := findEntryIndex(log, 6); got != 1 {
		t.Fatalf("findEntryIndex(6) = %d, want 1", got)
	}
	if got := findEntryIndex(log, 0); got != -1 {
		t.Fatalf("findEntryIndex(0) = %d, want -1", got)
	}
	if got := findEntryIndex(log, 99); got != -1 {
		t.Fatalf("findEntryIndex(99) = %d, want -1", got)
	}
}

func TestMin64(t *testing.T) {
	if min64(3, 7) != 3 || min64(7, 3) != 3 {
		t.Fatalf("min64 did not return the smaller value")
	}
}

func TestBeginPreVoteApprovesWithMajority(t *testing.T) {
	peerA, peerB := uuid.New(), uuid.New()
	p, transport := newTestPeer(peerA, peerB)
	transport.responses[peerA] = Response{PreVote: &PreVoteRes{Approved: true}}
	transport.responses[peerB] = Response{PreVote: &PreVoteRes{Approved: false}}

	if !p.BeginPreVote(context.Background()) {
		t.Fatalf("expected pre-vote to succeed with self + one approval out of three")
	}
}

func TestBeginPreVoteFailsWithoutMajority(t *testing.T) {
	peerA, peerB := uuid.New(), uuid.New()
	p, transport := newTestPeer(peerA, peerB)
	transport.responses[peerA] = Response{PreVote: &PreVoteRes{Approved: false}}
	// peerB left unreachable

	if p.BeginPreVote(context.Background()) {
		t.Fatalf("expected pre-vote to fail without a majority")
	}
}

func TestBecomeCandidateWinsElectionAndBecomesLeader(t *testing.T) {
	peerA, peerB := uuid.New(), uuid.New()
	p, transport := newTestPeer(peerA, peerB)
	transport.responses[peerA] = Response{RequestVote: &RequestVoteRes{Approved: true}}
	transport.responses[peerB] = Response{RequestVote: &RequestVoteRes{Approved: true}}

	if !p.BecomeCandidate(context.Background()) {
		t.Fatalf("expected candidate to win unanimous election")
	}
	if p.CurrentRole() != Leader {
		t.Fatalf("expected role Leader after winning, got %v", p.CurrentRole())
	}
	if len(p.progress) != 2 {
		t.Fatalf("expected leader progress tracked for every peer")
	}
}

func TestBecomeCandidateStepsDownOnHigherTerm(t *testing.T) {
	peerA := uuid.New()
	p, transport := newTestPeer(peerA)
	transport.responses[peerA] = Response{RequestVote: &RequestVoteRes{Approved: false, CurrentTerm: 50}}

	if p.BecomeCandidate(context.Background()) {
		t.Fatalf("expected election to fail when a peer reports a higher term")
	}
	if p.CurrentRole() != Follower || p.CurrentTermNum() != 50 {
		t.Fatalf("expected step-down to follower at term 50, got role=%v term=%d", p.CurrentRole(), p.CurrentTermNum())
	}
}

func TestBecomeCandidateLosesWithoutMajority(t *testing.T) {
	peerA, peerB, peerC := uuid.New(), uuid.New(), uuid.New()
	p, transport := newTestPeer(peerA, peerB, peerC)
	transport.responses[peerA] = Response{RequestVote: &RequestVoteRes{Approved: false}}
	transport.responses[peerB] = Response{RequestVote: &RequestVoteRes{Approved: false}}
	// peerC unreachable

	if p.BecomeCandidate(context.Background()) {
		t.Fatalf("expected election to fail without a majority")
	}
	if p.CurrentRole() == Leader {
		t.Fatalf("should not have become leader")
	}
}

func TestAppendLocalAssignsSequentialIndexesAtCurrentTerm(t *testing.T) {
	p, _ := newTestPeer()
	p.currentTerm = 3

	first := p.AppendLocal([]byte("one"))
	second := p.AppendLocal([]byte("two"))
	if first.Index != 1 || second.Index != 2 {
		t.Fatalf("expected sequential indexes, got %d, %d", first.Index, second.Index)
	}
	if first.Term != 3 || second.Term != 3 {
		t.Fatalf("expected entries stamped with the current term")
	}
}

func TestReplicateToPeerAdvancesMatchAndCommitIndex(t *testing.T) {
	peerA := uuid.New()
	p, transport := newTestPeer(peerA)
	p.role = Leader
	p.currentTerm = 1
	p.progress = map[uuid.UUID]*progress{peerA: {nextIndex: 1}}
	entry := p.AppendLocal([]byte("block"))

	transport.responses[peerA] = Response{AppendEntries: &AppendEntriesRes{
		CurrentTerm: 1, Success: true, Index: entry.Index,
	}}

	if err := p.ReplicateToPeer(context.Background(), peerA); err != nil {
		t.Fatalf("ReplicateToPeer: %v", err)
	}
	if p.progress[peerA].matchIndex != entry.Index {
		t.Fatalf("matchIndex = %d, want %d", p.progress[peerA].matchIndex, entry.Index)
	}
	if p.CommitIndex() != entry.Index {
		t.Fatalf("commitIndex = %d, want %d (quorum of 1 follower + self)", p.CommitIndex(), entry.Index)
	}
}

func TestReplicateToPeerDecrementsNextIndexOnFailure(t *testing.T) {
	peerA := uuid.New()
	p, transport := newTestPeer(peerA)
	p.role = Leader
	p.currentTerm = 1
	p.progress = map[uuid.UUID]*progress{peerA: {nextIndex: 5}}

	transport.responses[peerA] = Response{AppendEntries: &AppendEntriesRes{CurrentTerm: 1, Success: false}}

	if err := p.ReplicateToPeer(context.Background(), peerA); err != nil {
		t.Fatalf("ReplicateToPeer: %v", err)
	}
	if p.progress[peerA].nextIndex != 4 {
		t.Fatalf("nextIndex = %d, want 4 after a rejected append", p.progress[peerA].nextIndex)
	}
}

func TestReplicateToPeerStepsDownOnHigherTermFailure(t *testing.T) {
	peerA := uuid.New()
	p, transport := newTestPeer(peerA)
	p.role = Leader
	p.currentTerm = 1
	p.progress = map[uuid.UUID]*progress{peerA: {nextIndex: 1}}

	transport.responses[peerA] = Response{AppendEntries: &AppendEntriesRes{CurrentTerm: 7, Success: false}}

	if err := p.ReplicateToPeer(context.Background(), peerA); err != nil {
		t.Fatalf("ReplicateToPeer: %v", err)
	}
	if p.CurrentRole() != Follower || p.CurrentTermNum() != 7 {
		t.Fatalf("expected step-down to follower at term 7, got role=%v term=%d", p.CurrentRole(), p.CurrentTermNum())
	}
}

func TestAdvanceCommitIndexIgnoresPriorTermEntries(t *testing.T) {
	peerA := uuid.New()
	p, _ := newTestPeer(peerA)
	p.role = Leader
	p.currentTerm = 2
	p.logView = []Entry{{Index: 1, Term: 1}, {Index: 2, Term: 2}}
	p.progress = map[uuid.UUID]*progress{peerA: {matchIndex: 2}}

	// Entry 1 is replicated on a quorum too, but it belongs to term 1, not
	// the current term, so it must not be the one that advances commitIndex
	// past entry 2's safe commit.
	p.advanceCommitIndex()
	if p.commitIndex != 2 {
		t.Fatalf("commitIndex = %d, want 2 (only the current-term entry is eligible)", p.commitIndex)
	}
}

func TestAdvanceCommitIndexWithheldWithoutQuorum(t *testing.T) {
	peerA, peerB := uuid.New(), uuid.New()
	p, _ := newTestPeer(peerA, peerB)
	p.role = Leader
	p.currentTerm = 1
	p.logView = []Entry{{Index: 1, Term: 1}}
	p.progress = map[uuid.UUID]*progress{
		peerA: {matchIndex: 0},
		peerB: {matchIndex: 0},
	}

	p.advanceCommitIndex()
	if p.commitIndex != 0 {
		t.Fatalf("commitIndex = %d, want 0 without a replicating quorum", p.commitIndex)
	}
}

func TestNextApplyEntryAndMarkApplied(t *testing.T) {
	p, _ := newTestPeer()
	p.logView = []Entry{{Index: 1, Term: 1, Data: []byte("a")}, {Index: 2, Term: 1, Data: []byte("b")}}
	p.commitIndex = 2

	entry, ok := p.NextApplyEntry()
	if !ok || entry.Index != 1 {
		t.Fatalf("expected first unapplied entry at index 1, got %+v, %v", entry, ok)
	}
	p.MarkApplied(1)

	entry, ok = p.NextApplyEntry()
	if !ok || entry.Index != 2 {
		t.Fatalf("expected next unapplied entry at index 2, got %+v, %v", entry, ok)
	}
	p.MarkApplied(2)

	if _, ok := p.NextApplyEntry(); ok {
		t.Fatalf("expected no more entries to apply once caught up with commitIndex")
	}
}

func TestMarkAppliedNeverMovesBackward(t *testing.T) {
	p, _ := newTestPeer()
	p.MarkApplied(5)
	p.MarkApplied(2)
	if p.lastApplied != 5 {
		t.Fatalf("lastApplied = %d, want 5 (MarkApplied must not regress)", p.lastApplied)
	}
}
