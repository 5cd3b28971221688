package core

import "testing"

func TestTxManagerInsertAndContains(t *testing.T) {
	m := NewTxManager()
	id := TxId{1}
	if m.Contains(id) {
		t.Fatalf("fresh manager should not contain anything")
	}
	if err := m.Insert(id, 1000); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !m.Contains(id) {
		t.Fatalf("expected id to be tracked after Insert")
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestTxManagerRejectsDuplicateInsert(t *testing.T) {
	m := NewTxManager()
	id := TxId{2}
	if err := m.Insert(id, 1000); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.Insert(id, 2000); err != ErrTxAlreadySeen {
		t.Fatalf("expected ErrTxAlreadySeen on duplicate insert, got %v", err)
	}
}

func TestTxManagerPurgeExpired(t *testing.T) {
	m := NewTxManager()
	early := TxId{3}
	late := TxId{4}
	if err := m.Insert(early, 1000); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.Insert(late, 5000); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	purged := m.PurgeExpired(1000)
	if purged != 1 {
		t.Fatalf("PurgeExpired = %d, want 1", purged)
	}
	if m.Contains(early) {
		t.Fatalf("expired txid should no longer be tracked")
	}
	if !m.Contains(late) {
		t.Fatalf("not-yet-expired txid should still be tracked")
	}
}
