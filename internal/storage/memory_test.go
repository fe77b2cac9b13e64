package storage

import (
	"testing"

	"github.com/fedepagnotta/lottery-server/internal/betting"
)

func TestMemoryStore_StoreAndLoadPreservesOrder(t *testing.T) {
	s := NewMemoryStore()
	batch1 := []betting.Bet{{AgencyID: "1", Document: "A"}, {AgencyID: "1", Document: "B"}}
	batch2 := []betting.Bet{{AgencyID: "2", Document: "C"}}

	if err := s.StoreBets(batch1); err != nil {
		t.Fatalf("store batch1: %v", err)
	}
	if err := s.StoreBets(batch2); err != nil {
		t.Fatalf("store batch2: %v", err)
	}

	got, err := s.LoadBets()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("got %d bets, want %d", len(got), len(want))
	}
	for i, doc := range want {
		if got[i].Document != doc {
			t.Fatalf("bet %d document = %q, want %q", i, got[i].Document, doc)
		}
	}
}

func TestMemoryStore_LoadReturnsDefensiveCopy(t *testing.T) {
	s := NewMemoryStore()
	_ = s.StoreBets([]betting.Bet{{AgencyID: "1", Document: "A"}})

	got, err := s.LoadBets()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got[0].Document = "mutated"

	again, err := s.LoadBets()
	if err != nil {
		t.Fatalf("load again: %v", err)
	}
	if again[0].Document != "A" {
		t.Fatalf("internal state was mutated through returned slice: got %q", again[0].Document)
	}
}
