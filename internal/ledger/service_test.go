package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func record(orderID string, success bool) Record {
	return Record{
		ID:         orderID + "-id",
		OrderID:    orderID,
		Timestamp:  time.Now().UTC(),
		Amount:     10.01,
		Currency:   "EUR",
		Success:    success,
		ResultCode: "00",
		Channel:    ChannelAPI,
	}
}

func TestAppendNewestFirst(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_ = s.Append(ctx, record("A", true))
	_ = s.Append(ctx, record("B", true))

	got, err := s.ListRecent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].OrderID != "B" || got[1].OrderID != "A" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestAppendTrimsWindow(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	for i := 0; i < MaxRecords+50; i++ {
		_ = s.Append(ctx, record(fmt.Sprintf("ORD-%d", i), true))
	}

	got, _ := s.ListRecent(ctx, 0)
	if len(got) != MaxRecords {
		t.Fatalf("window = %d, want %d", len(got), MaxRecords)
	}
	if got[0].OrderID != fmt.Sprintf("ORD-%d", MaxRecords+49) {
		t.Fatalf("newest record lost: %s", got[0].OrderID)
	}
	// The oldest 50 fell off the window.
	if _, err := s.FindByOrderID(ctx, "ORD-0"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for trimmed record, got %v", err)
	}
}

func TestFindByOrderIDSkipsRefunds(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_ = s.Append(ctx, record("A", true))
	refund := record("REFUND-1", true)
	refund.Channel = ChannelRefund
	refund.OriginalOrderID = "A"
	_ = s.Append(ctx, refund)

	if _, err := s.FindByOrderID(ctx, "REFUND-1"); err != ErrNotFound {
		t.Fatalf("refund records must not resolve as originals, got %v", err)
	}
	if rec, err := s.FindByOrderID(ctx, "A"); err != nil || rec.OrderID != "A" {
		t.Fatalf("original lookup failed: %v", err)
	}
}

func TestBeginRefundStateMachine(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.BeginRefund(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("missing order: got %v", err)
	}

	_ = s.Append(ctx, record("DECLINED", false))
	if _, err := s.BeginRefund(ctx, "DECLINED"); err != ErrNotRefundable {
		t.Fatalf("declined order: got %v", err)
	}

	_ = s.Append(ctx, record("OK", true))
	orig, err := s.BeginRefund(ctx, "OK")
	if err != nil {
		t.Fatal(err)
	}
	if orig.OrderID != "OK" {
		t.Fatalf("wrong original: %+v", orig)
	}

	// A second attempt while the first is in flight is rejected.
	if _, err := s.BeginRefund(ctx, "OK"); err != ErrRefundInFlight {
		t.Fatalf("in-flight refund: got %v", err)
	}

	// Appending the refund record releases the reservation...
	refund := record("REFUND-1", true)
	refund.Channel = ChannelRefund
	refund.OriginalOrderID = "OK"
	_ = s.Append(ctx, refund)

	// ...but the order is now refunded for good.
	if _, err := s.BeginRefund(ctx, "OK"); err != ErrAlreadyRefunded {
		t.Fatalf("second refund: got %v", err)
	}
}

func TestFailedRefundAllowsRetry(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_ = s.Append(ctx, record("OK", true))

	if _, err := s.BeginRefund(ctx, "OK"); err != nil {
		t.Fatal(err)
	}
	failed := record("REFUND-1", false)
	failed.Channel = ChannelRefund
	failed.OriginalOrderID = "OK"
	_ = s.Append(ctx, failed)

	if _, err := s.BeginRefund(ctx, "OK"); err != nil {
		t.Fatalf("retry after failed refund: got %v", err)
	}
}

func TestAbortRefundReleasesReservation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_ = s.Append(ctx, record("OK", true))

	if _, err := s.BeginRefund(ctx, "OK"); err != nil {
		t.Fatal(err)
	}
	s.AbortRefund(ctx, "OK")
	if _, err := s.BeginRefund(ctx, "OK"); err != nil {
		t.Fatalf("after abort: got %v", err)
	}
}

func TestConcurrentBeginRefundAdmitsOne(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_ = s.Append(ctx, record("OK", true))

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.BeginRefund(ctx, "OK"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("%d goroutines acquired the refund reservation, want 1", won)
	}
}

func TestListByChannelAndUser(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	api := record("A", true)
	api.UserID = "u1"
	hpp := record("H", true)
	hpp.Channel = ChannelHPP
	_ = s.Append(ctx, api)
	_ = s.Append(ctx, hpp)

	got, _ := s.ListByChannel(ctx, ChannelHPP, 0)
	if len(got) != 1 || got[0].OrderID != "H" {
		t.Fatalf("channel filter: %+v", got)
	}
	got, _ = s.ListByUser(ctx, "u1", 0)
	if len(got) != 1 || got[0].OrderID != "A" {
		t.Fatalf("user filter: %+v", got)
	}
	got, _ = s.ListRecent(ctx, 1)
	if len(got) != 1 || got[0].OrderID != "H" {
		t.Fatalf("limit: %+v", got)
	}
}

func TestClearChannel(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	api := record("A", true)
	hpp := record("H", true)
	hpp.Channel = ChannelHPP
	_ = s.Append(ctx, api)
	_ = s.Append(ctx, hpp)

	if err := s.ClearChannel(ctx, ChannelHPP); err != nil {
		t.Fatal(err)
	}
	got, _ := s.ListRecent(ctx, 0)
	if len(got) != 1 || got[0].OrderID != "A" {
		t.Fatalf("after clear: %+v", got)
	}
}
