package anchor

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestLocalNotaryDeterministic(t *testing.T) {
	n := NewLocalNotary()
	meta := map[string]string{"block": "2", "system": "euystacio"}

	r1, err := n.Notarize(context.Background(), "abc123", meta)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := n.Notarize(context.Background(), "abc123", meta)
	if err != nil {
		t.Fatal(err)
	}

	if r1.ReceiptID != r2.ReceiptID {
		t.Fatal("same content must yield the same receipt ID")
	}
	if r1.Status != StatusConfirmed || r1.Permanence != PermanenceEternal {
		t.Fatalf("unexpected receipt fields: %+v", r1)
	}

	r3, _ := n.Notarize(context.Background(), "def456", meta)
	if r3.ReceiptID == r1.ReceiptID {
		t.Fatal("different digest must yield a different receipt ID")
	}
}

func TestReceiptStoreRoundTrip(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	store, err := NewReceiptStore(db)
	if err != nil {
		t.Fatal(err)
	}

	n := NewLocalNotary()
	r, _ := n.Notarize(context.Background(), "abc123", map[string]string{"block": "2"})
	if err := store.Save(r); err != nil {
		t.Fatal(err)
	}

	got, found, err := store.ByDigest("abc123")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected receipt for anchored digest")
	}
	if got.ReceiptID != r.ReceiptID {
		t.Fatalf("receipt ID mismatch: %s vs %s", got.ReceiptID, r.ReceiptID)
	}

	_, found, err = store.ByDigest("never-anchored")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected no receipt for unknown digest")
	}

	list, err := store.List(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(list))
	}
}
