package main

import (
	"fmt"
	"log/slog"

	"github.com/fedepagnotta/lottery-server/internal/storage"
)

// initStore constructs the configured storage.Store collaborator. A file
// store's underlying *os.File must be closed at shutdown, so the caller
// gets a cleanup func back alongside the store.
func initStore(cfg *appConfig, l *slog.Logger) (storage.Store, func(), error) {
	switch cfg.store {
	case "file":
		fs, err := storage.NewFileStore(cfg.storePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		l.Info("store_config", "backend", "file", "path", cfg.storePath)
		return fs, func() { _ = fs.Close() }, nil
	default:
		l.Info("store_config", "backend", "memory")
		return storage.NewMemoryStore(), func() {}, nil
	}
}
