package sessions

import (
	"net"
	"testing"
)

func TestRegistry_AddRemoveCount(t *testing.T) {
	r := New()
	a, peerA := net.Pipe()
	defer peerA.Close()
	b, peerB := net.Pipe()
	defer peerB.Close()

	r.Add(a)
	r.Add(b)
	if got := r.Count(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
	r.Remove(a)
	if got := r.Count(); got != 1 {
		t.Fatalf("count after remove = %d, want 1", got)
	}
	r.Remove(a) // idempotent
	if got := r.Count(); got != 1 {
		t.Fatalf("count after duplicate remove = %d, want 1", got)
	}
}

func TestRegistry_CloseAllClosesEveryConnAndResetsCount(t *testing.T) {
	r := New()
	a, peerA := net.Pipe()
	defer peerA.Close()
	b, peerB := net.Pipe()
	defer peerB.Close()
	r.Add(a)
	r.Add(b)

	r.CloseAll()

	if got := r.Count(); got != 0 {
		t.Fatalf("count after CloseAll = %d, want 0", got)
	}
	one := make([]byte, 1)
	if _, err := a.Read(one); err == nil {
		t.Fatalf("expected a to be closed")
	}
	if _, err := b.Read(one); err == nil {
		t.Fatalf("expected b to be closed")
	}
}
