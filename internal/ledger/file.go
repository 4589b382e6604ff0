package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is the JSON-file backend, layout-compatible with the legacy
// data files: a single transactions.json holds the whole ledger and HPP
// records are additionally mirrored to hpp-transactions.json, which is what
// older history viewers read. Both files are full rewrites on every
// mutation; at 1000 records that is cheap and keeps the files human-
// readable.
type FileStore struct {
	inner *InMemory

	writeMu sync.Mutex
	path    string
	hppPath string
}

var _ Store = (*FileStore)(nil)

// NewFileStore loads the ledger from dir/transactions.json (missing or
// unreadable files start an empty ledger, matching the legacy loader).
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &FileStore{
		inner:   NewInMemory(),
		path:    filepath.Join(dir, "transactions.json"),
		hppPath: filepath.Join(dir, "hpp-transactions.json"),
	}
	if data, err := os.ReadFile(s.path); err == nil {
		var records []Record
		if err := json.Unmarshal(data, &records); err == nil {
			s.inner.restore(records)
		}
	}
	return s, nil
}

func (s *FileStore) Append(ctx context.Context, rec Record) error {
	if err := s.inner.Append(ctx, rec); err != nil {
		return err
	}
	return s.persist(ctx)
}

func (s *FileStore) FindByOrderID(ctx context.Context, orderID string) (Record, error) {
	return s.inner.FindByOrderID(ctx, orderID)
}

func (s *FileStore) BeginRefund(ctx context.Context, orderID string) (Record, error) {
	return s.inner.BeginRefund(ctx, orderID)
}

func (s *FileStore) AbortRefund(ctx context.Context, orderID string) {
	s.inner.AbortRefund(ctx, orderID)
}

func (s *FileStore) ListRecent(ctx context.Context, n int) ([]Record, error) {
	return s.inner.ListRecent(ctx, n)
}

func (s *FileStore) ListByChannel(ctx context.Context, ch Channel, n int) ([]Record, error) {
	return s.inner.ListByChannel(ctx, ch, n)
}

func (s *FileStore) ListByUser(ctx context.Context, userID string, n int) ([]Record, error) {
	return s.inner.ListByUser(ctx, userID, n)
}

func (s *FileStore) ClearChannel(ctx context.Context, ch Channel) error {
	if err := s.inner.ClearChannel(ctx, ch); err != nil {
		return err
	}
	return s.persist(ctx)
}

// persist rewrites both files from the in-memory window. The write lock
// orders concurrent rewrites; the snapshot itself is taken under the
// inner store's lock.
func (s *FileStore) persist(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	records := s.inner.snapshot()
	if err := writeJSON(s.path, records); err != nil {
		return err
	}

	hpp := make([]Record, 0)
	for _, rec := range records {
		if rec.Channel == ChannelHPP {
			hpp = append(hpp, rec)
		}
	}
	return writeJSON(s.hppPath, hpp)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return os.Rename(tmp, path)
}
