package storage

import (
	"path/filepath"
	"testing"

	"github.com/fedepagnotta/lottery-server/internal/betting"
)

func TestFileStore_StoreAndLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bets.csv")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	defer s.Close()

	bets := []betting.Bet{
		{AgencyID: "1", FirstName: "Ada", LastName: "Lovelace", Document: "111", Birthdate: "1990-01-01", Number: "42"},
		{AgencyID: "2", FirstName: "Alan", LastName: "Turing", Document: "222", Birthdate: "1991-02-02", Number: "7"},
	}
	if err := s.StoreBets(bets); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := s.LoadBets()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(bets) {
		t.Fatalf("got %d bets, want %d", len(got), len(bets))
	}
	for i, want := range bets {
		if got[i] != want {
			t.Fatalf("bet %d = %+v, want %+v", i, got[i], want)
		}
	}
}

func TestFileStore_LoadAfterReopenSeesPersistedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bets.csv")
	s1, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := s1.StoreBets([]betting.Bet{{AgencyID: "1", Document: "A", Number: "1"}}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	defer s2.Close()
	got, err := s2.LoadBets()
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if len(got) != 1 || got[0].Document != "A" {
		t.Fatalf("unexpected bets after reopen: %+v", got)
	}

	if err := s2.StoreBets([]betting.Bet{{AgencyID: "1", Document: "B", Number: "2"}}); err != nil {
		t.Fatalf("store second batch: %v", err)
	}
	got, err = s2.LoadBets()
	if err != nil {
		t.Fatalf("load after second store: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bets, want 2", len(got))
	}
}

func TestFileStore_LoadOnEmptyFileReturnsNoBets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bets.csv")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	defer s.Close()

	got, err := s.LoadBets()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no bets, got %d", len(got))
	}
}
