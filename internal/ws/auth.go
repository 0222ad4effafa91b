package ws

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"nrelay/internal/relay"
)

// authEventMaxAge bounds how stale a client auth event may be relative to
// the relay clock, in either direction.
const authEventMaxAge = 10 * time.Minute

// newChallenge returns a random hex challenge for one connection.
func newChallenge() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating auth challenge: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// verifyAuthEvent checks a client auth event against the challenge issued to
// the connection. On success the event's pubkey is the authenticated identity.
func verifyAuthEvent(e *relay.Event, challenge string, now time.Time) error {
	if e.Kind != relay.KindAuth {
		return fmt.Errorf("auth event has kind %d", e.Kind)
	}
	if challenge == "" || e.Tag("challenge") != challenge {
		return fmt.Errorf("auth event challenge mismatch")
	}

	age := now.Unix() - e.CreatedAt
	if age > int64(authEventMaxAge.Seconds()) || -age > int64(authEventMaxAge.Seconds()) {
		return fmt.Errorf("auth event timestamp out of window")
	}

	id, err := e.ComputeID()
	if err != nil {
		return fmt.Errorf("computing auth event id: %w", err)
	}
	if id != e.ID {
		return fmt.Errorf("auth event id mismatch")
	}

	if err := verifySignature(e); err != nil {
		return fmt.Errorf("auth event signature: %w", err)
	}
	return nil
}

// verifySignature checks the schnorr signature of an event against its id
// and pubkey.
func verifySignature(e *relay.Event) error {
	if len(e.Sig) != 128 || len(e.Pubkey) != 64 {
		return fmt.Errorf("malformed signature or pubkey")
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	pubKeyBytes, err := hex.DecodeString(e.Pubkey)
	if err != nil {
		return fmt.Errorf("decoding pubkey: %w", err)
	}
	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return fmt.Errorf("decoding id: %w", err)
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("parsing signature: %w", err)
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return fmt.Errorf("parsing pubkey: %w", err)
	}

	if !sig.Verify(idBytes, pubKey) {
		return fmt.Errorf("signature does not verify")
	}
	return nil
}
