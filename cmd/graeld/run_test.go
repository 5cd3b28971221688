package main

import "testing"

func TestPeerIDFromAddrIsDeterministic(t *testing.T) {
	a := peerIDFromAddr("127.0.0.1:9000")
	b := peerIDFromAddr("127.0.0.1:9000")
	if a != b {
		t.Fatalf("expected the same address to always derive the same peer id")
	}
}

func TestPeerIDFromAddrDiffersAcrossAddrs(t *testing.T) {
	a := peerIDFromAddr("127.0.0.1:9000")
	b := peerIDFromAddr("127.0.0.1:9001")
	if a == b {
		t.Fatalf("expected distinct addresses to derive distinct peer ids")
	}
}
