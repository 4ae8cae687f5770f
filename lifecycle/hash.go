/*
hash.go - Deterministic event hashing

PURPOSE:
  Computes the tamper-evidence hash for ledger events. Each event's hash
  covers the previous event's hash, so any retroactive edit breaks every
  subsequent link in the chain.

DETERMINISM:
  Event data is free-form JSON-ish maps, so the hash input is serialized
  with RFC 8785 (JSON Canonicalization Scheme). Identical content hashes
  identically regardless of map key order, on any platform.

HASH INPUT:
  SHA-256 over: previousEventHash || JCS({aggregate_id, sequence_number,
  event_type, event_data, recorded_at}).

SEE ALSO:
  - ledger.go: Computes hashes at append time, recomputes during
    verification
*/
package lifecycle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ucarion/jcs"
)

// ZeroHash is the previous-hash sentinel for the first event of an
// aggregate: 64 zero hex characters, the width of a SHA-256 digest.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ComputeEventHash returns the chain hash for an event. It reads the
// event's PreviousEventHash and covered fields; EventHash itself is not
// part of the input.
func ComputeEventHash(ev LedgerEvent) (string, error) {
	if len(ev.PreviousEventHash) != len(ZeroHash) {
		return "", fmt.Errorf("previous hash has wrong width: %q", ev.PreviousEventHash)
	}

	payload := map[string]any{
		"aggregate_id":    string(ev.AggregateID),
		"sequence_number": ev.SequenceNumber,
		"event_type":      string(ev.Type),
		"event_data":      ev.Data,
		"recorded_at":     ev.RecordedAt.UTC().Format(time.RFC3339Nano),
	}

	// Round-trip through encoding/json to normalize Go types (ints,
	// time values inside event data) into plain JSON values before
	// canonicalization.
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling hash payload: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return "", fmt.Errorf("normalizing hash payload: %w", err)
	}

	canonical, err := jcs.Format(normalized)
	if err != nil {
		return "", fmt.Errorf("canonicalizing hash payload: %w", err)
	}

	hasher := sha256.New()
	hasher.Write([]byte(ev.PreviousEventHash))
	hasher.Write([]byte(canonical))
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
