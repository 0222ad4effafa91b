package testutil

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"nrelay/internal/relay"
)

// Pubkeys used by fixtures that never need a valid signature.
const (
	PubkeyAlice = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	PubkeyBob   = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// Event builds an event with a correctly computed id and no signature.
func Event(t *testing.T, kind int, pubkey string, createdAt int64, content string, tags [][]string) *relay.Event {
	t.Helper()

	e := &relay.Event{
		Kind:      kind,
		Pubkey:    pubkey,
		CreatedAt: createdAt,
		Content:   content,
		Tags:      tags,
	}
	id, err := e.ComputeID()
	if err != nil {
		t.Fatalf("computing event id: %v", err)
	}
	e.ID = id
	return e
}

// NewKeypair generates a signing key and returns it with the hex-encoded
// x-only public key.
func NewKeypair(t *testing.T) (*btcec.PrivateKey, string) {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	pub := hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
	return priv, pub
}

// SignedEvent builds an event for the given key, computes its id and signs it.
func SignedEvent(t *testing.T, priv *btcec.PrivateKey, kind int, createdAt int64, content string, tags [][]string) *relay.Event {
	t.Helper()

	pub := hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
	e := Event(t, kind, pub, createdAt, content, tags)

	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		t.Fatalf("decoding event id: %v", err)
	}
	sig, err := schnorr.Sign(priv, idBytes)
	if err != nil {
		t.Fatalf("signing event: %v", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return e
}
