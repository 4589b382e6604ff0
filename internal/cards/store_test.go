package cards

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleCard(token, userID string) Card {
	return Card{
		Token:       token,
		UserID:      userID,
		MaskedPAN:   "426397******1307",
		Brand:       "VISA",
		HolderName:  "Joe Bloggs",
		ExpiryMonth: "12",
		ExpiryYear:  "30",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestSaveFindDelete(t *testing.T) {
	s, err := NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.Save(ctx, sampleCard("tok-1", "u1")); err != nil {
		t.Fatal(err)
	}
	c, err := s.Find(ctx, "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if c.MaskedPAN != "426397******1307" {
		t.Fatalf("unexpected card: %+v", c)
	}

	if err := s.Delete(ctx, "tok-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Find(ctx, "tok-1"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "tok-1"); err != ErrNotFound {
		t.Fatalf("double delete: got %v", err)
	}
}

func TestListByUser(t *testing.T) {
	s, _ := NewStore("")
	ctx := context.Background()
	_ = s.Save(ctx, sampleCard("tok-1", "u1"))
	_ = s.Save(ctx, sampleCard("tok-2", "u2"))
	_ = s.Save(ctx, sampleCard("tok-3", ""))

	all, _ := s.List(ctx)
	if len(all) != 3 {
		t.Fatalf("List = %d cards", len(all))
	}
	mine, _ := s.ListByUser(ctx, "u1")
	if len(mine) != 1 || mine[0].Token != "tok-1" {
		t.Fatalf("ListByUser: %+v", mine)
	}
}

func TestTouchLastUsed(t *testing.T) {
	s, _ := NewStore("")
	ctx := context.Background()
	_ = s.Save(ctx, sampleCard("tok-1", ""))

	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.TouchLastUsed(ctx, "tok-1", stamp); err != nil {
		t.Fatal(err)
	}
	c, _ := s.Find(ctx, "tok-1")
	if c.LastUsed == nil || !c.LastUsed.Equal(stamp) {
		t.Fatalf("lastUsed = %v", c.LastUsed)
	}
	if err := s.TouchLastUsed(ctx, "nope", stamp); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	card := sampleCard("tok-1", "u1")
	card.PayerRef = "payer-1"
	card.CardRef = "card-1"
	card.StoredInVault = true
	_ = s.Save(ctx, card)

	// Legacy field names on disk.
	data, err := os.ReadFile(filepath.Join(dir, "stored-cards.json"))
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw[0]["gatewayPayerRef"] != "payer-1" || raw[0]["maskedCardNumber"] != "426397******1307" {
		t.Fatalf("legacy field names missing: %+v", raw[0])
	}

	reloaded, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	c, err := reloaded.Find(ctx, "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if !c.StoredInVault || c.CardRef != "card-1" {
		t.Fatalf("reloaded card: %+v", c)
	}
}
