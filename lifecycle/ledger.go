/*
ledger.go - Append-only, hash-chained event ledger

PURPOSE:
  The Ledger is the permanent audit record for each aggregate. Every
  transition and domain event lands here with a gapless sequence number
  and a hash that chains to the previous event, making retroactive edits
  detectable.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. GAPLESS: Sequence numbers are exactly 1..N per aggregate
  3. CHAINED: previousEventHash equals the prior event's eventHash
     (ZeroHash for sequence 1)
  4. SERIALIZED: Appends for one aggregate commit in a single order;
     different aggregates proceed fully in parallel

CONCURRENCY:
  The read-last/compute-hash/write-new sequence must be serialized per
  aggregate. This implementation uses a per-aggregate lock table rather
  than a global lock, preserving cross-aggregate parallelism. A
  transactional store with row-level locking could carry the same
  guarantee on its own; the lock table keeps the contract independent of
  the store.

VERIFICATION:
  VerifyChain walks the full ordered history and reports every sequence
  gap, sentinel misuse, broken link, and hash mismatch as a structured
  error naming the offending event. It never repairs anything.

SEE ALSO:
  - hash.go: Hash computation
  - store.go: Persistence contract
  - engine.go: Joins ledger appends with state updates in one transaction
*/
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER - Append and read contract
// =============================================================================

// AppendInput describes one event to append. Sequence number, hashes, id,
// and timestamp are assigned by the ledger at write time.
type AppendInput struct {
	AggregateID      AggregateID
	Type             EventType
	Data             map[string]any
	Actor            Actor
	AuthorityContext map[string]any
	EvidenceRefs     []string

	// Set only for transition events.
	FromState State
	ToState   State
}

// Ledger is the append-only event chain, one chain per aggregate.
type Ledger interface {
	// Append writes one event at the end of the aggregate's chain.
	// Serialized per aggregate; independent across aggregates.
	Append(ctx context.Context, in AppendInput) (*LedgerEvent, error)

	// History returns events selected by the query.
	History(ctx context.Context, id AggregateID, q HistoryQuery) ([]LedgerEvent, error)

	// VerifyChain walks the full history and reports every chain defect.
	VerifyChain(ctx context.Context, id AggregateID) (*VerificationResult, error)
}

// =============================================================================
// VERIFICATION RESULT
// =============================================================================

type ChainErrorKind string

const (
	ChainErrSequence     ChainErrorKind = "sequence_gap"
	ChainErrBadSentinel  ChainErrorKind = "bad_sentinel"
	ChainErrLinkBroken   ChainErrorKind = "link_broken"
	ChainErrHashMismatch ChainErrorKind = "hash_mismatch"
)

// ChainError pinpoints one defect found during verification.
type ChainError struct {
	EventID        EventID
	SequenceNumber int64
	Kind           ChainErrorKind
	Message        string
}

func (e ChainError) Error() string {
	return fmt.Sprintf("%v: %s at event %s (seq %d): %s",
		ErrHashChainViolation, e.Kind, e.EventID, e.SequenceNumber, e.Message)
}

func (e ChainError) Unwrap() error {
	return ErrHashChainViolation
}

// VerificationResult is the outcome of a full chain walk. Verification
// only reports; it never repairs.
type VerificationResult struct {
	Valid      bool
	EventCount int
	Errors     []ChainError
}

// =============================================================================
// PER-AGGREGATE LOCK TABLE
// =============================================================================

// lockTable hands out one mutex per aggregate id. Entries are never
// removed; the table grows with the number of distinct aggregates seen by
// this process.
type lockTable struct {
	mu    sync.Mutex
	locks map[AggregateID]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[AggregateID]*sync.Mutex)}
}

func (lt *lockTable) lock(id AggregateID) func() {
	lt.mu.Lock()
	m, ok := lt.locks[id]
	if !ok {
		m = &sync.Mutex{}
		lt.locks[id] = m
	}
	lt.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// =============================================================================
// DEFAULT LEDGER - Implementation over a TxStore
// =============================================================================

type DefaultLedger struct {
	store TxStore
	locks *lockTable
}

// NewLedger creates a ledger with its own per-aggregate lock table. When
// the ledger is used through an Engine, share the engine's table instead
// (NewEngine wires this up).
func NewLedger(store TxStore) *DefaultLedger {
	return newLedger(store, newLockTable())
}

func newLedger(store TxStore, locks *lockTable) *DefaultLedger {
	return &DefaultLedger{store: store, locks: locks}
}

func (l *DefaultLedger) Append(ctx context.Context, in AppendInput) (*LedgerEvent, error) {
	unlock := l.locks.lock(in.AggregateID)
	defer unlock()

	var ev *LedgerEvent
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		ev, err = l.appendLocked(ctx, s, in, time.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// appendLocked performs the read-last/compute-hash/write-new sequence.
// The caller must hold the aggregate's lock and supply the transactional
// store view.
func (l *DefaultLedger) appendLocked(ctx context.Context, s Store, in AppendInput, now time.Time) (*LedgerEvent, error) {
	last, err := s.LastEvent(ctx, in.AggregateID)
	if err != nil {
		return nil, fmt.Errorf("reading last event: %w", err)
	}

	seq := int64(1)
	prevHash := ZeroHash
	if last != nil {
		seq = last.SequenceNumber + 1
		prevHash = last.EventHash
	}

	ev := LedgerEvent{
		ID:                EventID(uuid.NewString()),
		AggregateID:       in.AggregateID,
		SequenceNumber:    seq,
		Type:              in.Type,
		Data:              in.Data,
		Actor:             in.Actor,
		AuthorityContext:  in.AuthorityContext,
		EvidenceRefs:      in.EvidenceRefs,
		FromState:         in.FromState,
		ToState:           in.ToState,
		PreviousEventHash: prevHash,
		RecordedAt:        now.UTC(),
	}

	ev.EventHash, err = ComputeEventHash(ev)
	if err != nil {
		return nil, fmt.Errorf("hashing event: %w", err)
	}

	if err := s.AppendEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("appending event: %w", err)
	}
	return &ev, nil
}

func (l *DefaultLedger) History(ctx context.Context, id AggregateID, q HistoryQuery) ([]LedgerEvent, error) {
	return l.store.LoadEvents(ctx, id, q)
}

// VerifyChain checks, in order: sequence numbers are exactly 1..N, the
// first event uses the ZeroHash sentinel, each previousEventHash equals
// the prior event's eventHash, and each eventHash recomputes to its
// stored value. All defects are collected, not just the first.
func (l *DefaultLedger) VerifyChain(ctx context.Context, id AggregateID) (*VerificationResult, error) {
	events, err := l.store.LoadEvents(ctx, id, HistoryQuery{Oldest: true})
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}

	result := &VerificationResult{Valid: true, EventCount: len(events)}
	report := func(ev LedgerEvent, kind ChainErrorKind, msg string) {
		result.Valid = false
		result.Errors = append(result.Errors, ChainError{
			EventID:        ev.ID,
			SequenceNumber: ev.SequenceNumber,
			Kind:           kind,
			Message:        msg,
		})
	}

	for i, ev := range events {
		expectedSeq := int64(i + 1)
		if ev.SequenceNumber != expectedSeq {
			report(ev, ChainErrSequence,
				fmt.Sprintf("expected sequence %d, found %d", expectedSeq, ev.SequenceNumber))
		}

		if i == 0 {
			if ev.PreviousEventHash != ZeroHash {
				report(ev, ChainErrBadSentinel,
					fmt.Sprintf("first event must use the zero sentinel, found %s", ev.PreviousEventHash))
			}
		} else if ev.PreviousEventHash != events[i-1].EventHash {
			report(ev, ChainErrLinkBroken,
				fmt.Sprintf("previous hash %s does not match event %s hash %s",
					ev.PreviousEventHash, events[i-1].ID, events[i-1].EventHash))
		}

		computed, err := ComputeEventHash(ev)
		if err != nil {
			report(ev, ChainErrHashMismatch, fmt.Sprintf("hash not computable: %v", err))
			continue
		}
		if computed != ev.EventHash {
			report(ev, ChainErrHashMismatch,
				fmt.Sprintf("stored hash %s, recomputed %s", ev.EventHash, computed))
		}
	}

	return result, nil
}
