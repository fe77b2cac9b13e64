package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fedepagnotta/lottery-server/internal/betting"
)

// FileStore persists bets as append-only CSV rows, one bet per line, in
// the layout this exercise's reference implementations use:
// agency,first_name,last_name,document,birthdate,number.
//
// A single mutex guards the file the same way MemoryStore guards its
// slice; the file is opened once at construction and kept open for the
// lifetime of the store.
type FileStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileStore opens (creating if absent) the CSV file at path for
// appending and subsequent reads.
func NewFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open bet store %q: %w", path, err)
	}
	return &FileStore{path: path, f: f}, nil
}

func (s *FileStore) StoreBets(bets []betting.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := csv.NewWriter(s.f)
	for _, b := range bets {
		record := []string{b.AgencyID, b.FirstName, b.LastName, b.Document, b.Birthdate, b.Number}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write bet: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush bet store: %w", err)
	}
	return s.f.Sync()
}

func (s *FileStore) LoadBets() ([]betting.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("seek bet store: %w", err)
	}
	r := csv.NewReader(s.f)
	r.FieldsPerRecord = 6
	var bets []betting.Bet
	for {
		record, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read bet store: %w", err)
		}
		bets = append(bets, betting.Bet{
			AgencyID:  record[0],
			FirstName: record[1],
			LastName:  record[2],
			Document:  record[3],
			Birthdate: record[4],
			Number:    record[5],
		})
	}
	if _, err := s.f.Seek(0, 2); err != nil {
		return nil, fmt.Errorf("seek bet store to end: %w", err)
	}
	return bets, nil
}

// Close releases the underlying file handle.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
