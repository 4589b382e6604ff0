package ledger

import (
	"context"
	"sync"
)

// InMemory implements Store with in-process concurrency safety. It backs
// tests and credential-less demo runs; the file and Postgres stores carry
// the same semantics.
type InMemory struct {
	mu      sync.RWMutex
	records []Record // newest first
	pending map[string]bool
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{pending: make(map[string]bool)}
}

func (s *InMemory) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(rec)
	return nil
}

// append holds the invariants: newest first, window capped, refund
// reservations released on any refund append. Callers hold s.mu.
func (s *InMemory) append(rec Record) {
	s.records = append([]Record{rec}, s.records...)
	if len(s.records) > MaxRecords {
		s.records = s.records[:MaxRecords]
	}
	if rec.Channel == ChannelRefund && rec.OriginalOrderID != "" {
		delete(s.pending, rec.OriginalOrderID)
	}
}

func (s *InMemory) FindByOrderID(ctx context.Context, orderID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByOrderID(orderID)
}

func (s *InMemory) findByOrderID(orderID string) (Record, error) {
	for _, rec := range s.records {
		if rec.OrderID == orderID && rec.Channel != ChannelRefund {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *InMemory) BeginRefund(ctx context.Context, orderID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orig, err := s.findByOrderID(orderID)
	if err != nil {
		return Record{}, err
	}
	if !orig.Success {
		return Record{}, ErrNotRefundable
	}
	for _, rec := range s.records {
		if rec.Channel == ChannelRefund && rec.OriginalOrderID == orderID && rec.Success {
			return Record{}, ErrAlreadyRefunded
		}
	}
	if s.pending[orderID] {
		return Record{}, ErrRefundInFlight
	}
	s.pending[orderID] = true
	return orig, nil
}

func (s *InMemory) AbortRefund(ctx context.Context, orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, orderID)
}

func (s *InMemory) ListRecent(ctx context.Context, n int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return takeFiltered(s.records, n, func(Record) bool { return true }), nil
}

func (s *InMemory) ListByChannel(ctx context.Context, ch Channel, n int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return takeFiltered(s.records, n, func(r Record) bool { return r.Channel == ch }), nil
}

func (s *InMemory) ListByUser(ctx context.Context, userID string, n int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return takeFiltered(s.records, n, func(r Record) bool { return r.UserID == userID }), nil
}

func (s *InMemory) ClearChannel(ctx context.Context, ch Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.Channel != ch {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	return nil
}

// snapshot copies the current window. Used by the file store to persist
// after mutations; callers must not hold s.mu.
func (s *InMemory) snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// restore replaces the window, trimming to MaxRecords. Used at load time.
func (s *InMemory) restore(records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(records) > MaxRecords {
		records = records[:MaxRecords]
	}
	s.records = records
}

func takeFiltered(records []Record, n int, keep func(Record) bool) []Record {
	if n <= 0 {
		n = MaxRecords
	}
	out := make([]Record, 0, n)
	for _, rec := range records {
		if !keep(rec) {
			continue
		}
		out = append(out, rec)
		if len(out) == n {
			break
		}
	}
	return out
}
