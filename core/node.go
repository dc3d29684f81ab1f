package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"splitvault/core/events"
	"splitvault/crypto"
	"splitvault/native/splitter"
	"splitvault/observability"
	"splitvault/storage"
)

const (
	stateKey       = "splitter/state"
	eventKeyPrefix = "events/"

	subscriberBuffer = 128
	backlogLimit     = 1024
)

// Genesis seeds a fresh node: the initial administrator and the settlement
// account allocations available for deposits.
type Genesis struct {
	Admin       [20]byte
	Allocations map[[20]byte]*big.Int
}

// EventRecord is a journaled ledger event. Records are immutable once
// written; the checksum covers the canonical encoding so tampering with the
// journal is detectable.
type EventRecord struct {
	Sequence   uint64            `json:"sequence"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"timestamp"`
	Checksum   string            `json:"checksum"`
}

type subscriber struct {
	ch chan EventRecord
	// cursor is the highest sequence already delivered (via backlog or
	// channel); dispatch skips anything at or below it. Guarded by subMu.
	cursor uint64
}

// Node hosts a single ledger instance. It serializes every public operation
// behind one mutex (the reference model runs operations as atomic
// transactions), persists an engine snapshot after each successful mutation
// and journals the events the operation emitted.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	bank    *Bank
	engine  *splitter.Engine
	pending []*events.Event

	eventSeq uint64

	subMu   sync.Mutex
	subs    map[uint64]*subscriber
	nextSub uint64

	nowFn func() int64
}

// NewNode opens or initialises a node on the supplied database. A stored
// snapshot wins over genesis; genesis is only applied to a fresh database.
func NewNode(db storage.Database, genesis Genesis) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	n := &Node{
		db:    db,
		bank:  NewBank(db),
		subs:  make(map[uint64]*subscriber),
		nowFn: func() int64 { return time.Now().Unix() },
	}

	snap, err := n.loadSnapshot()
	if err != nil {
		return nil, err
	}
	if snap != nil {
		engine, err := splitter.RestoreEngine(snap, n.bank)
		if err != nil {
			return nil, fmt.Errorf("core: restore ledger: %w", err)
		}
		n.engine = engine
	} else {
		engine, err := splitter.NewEngine(genesis.Admin, n.bank)
		if err != nil {
			return nil, fmt.Errorf("core: initialise ledger: %w", err)
		}
		n.engine = engine
		for addr, amount := range genesis.Allocations {
			if amount == nil || amount.Sign() <= 0 {
				continue
			}
			if err := n.bank.Credit(addr, amount); err != nil {
				return nil, fmt.Errorf("core: apply genesis allocation: %w", err)
			}
		}
		if err := n.persistSnapshot(); err != nil {
			return nil, err
		}
	}
	n.engine.SetEmitter(events.EmitterFunc(n.collectEvent))

	if err := n.db.IteratePrefix([]byte(eventKeyPrefix), func(_, value []byte) bool {
		var rec EventRecord
		if err := json.Unmarshal(value, &rec); err == nil && rec.Sequence > n.eventSeq {
			n.eventSeq = rec.Sequence
		}
		return true
	}); err != nil {
		return nil, fmt.Errorf("core: scan journal: %w", err)
	}

	observability.Splitter().SetCustody(n.engine.Custody())
	return n, nil
}

// SetNowFunc overrides the journal timestamp source, for tests.
func (n *Node) SetNowFunc(now func() int64) {
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	n.nowFn = now
}

func (n *Node) collectEvent(e *events.Event) {
	n.pending = append(n.pending, e.Clone())
}

// --- persistence ---

type storedState struct {
	Admin    string            `json:"admin"`
	Paused   bool              `json:"paused"`
	Sequence uint64            `json:"sequence"`
	Custody  string            `json:"custody"`
	Balances map[string]string `json:"balances"`
}

func (n *Node) loadSnapshot() (*splitter.Snapshot, error) {
	raw, err := n.db.Get([]byte(stateKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedState
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("core: corrupt snapshot: %w", err)
	}
	admin, err := crypto.DecodeSVT(stored.Admin)
	if err != nil {
		return nil, fmt.Errorf("core: corrupt snapshot admin: %w", err)
	}
	custody, ok := new(big.Int).SetString(stored.Custody, 10)
	if !ok {
		return nil, fmt.Errorf("core: corrupt snapshot custody %q", stored.Custody)
	}
	balances := make(map[[20]byte]*big.Int, len(stored.Balances))
	for encoded, value := range stored.Balances {
		addr, err := crypto.DecodeSVT(encoded)
		if err != nil {
			return nil, fmt.Errorf("core: corrupt snapshot balance key: %w", err)
		}
		amount, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("core: corrupt snapshot balance %q", value)
		}
		balances[addr] = amount
	}
	return &splitter.Snapshot{
		Admin:    admin,
		Paused:   stored.Paused,
		Sequence: stored.Sequence,
		Custody:  custody,
		Balances: balances,
	}, nil
}

func (n *Node) persistSnapshot() error {
	snap := n.engine.Snapshot()
	stored := storedState{
		Admin:    crypto.EncodeSVT(snap.Admin),
		Paused:   snap.Paused,
		Sequence: snap.Sequence,
		Custody:  snap.Custody.String(),
		Balances: make(map[string]string, len(snap.Balances)),
	}
	for addr, bal := range snap.Balances {
		stored.Balances[crypto.EncodeSVT(addr)] = bal.String()
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("core: encode snapshot: %w", err)
	}
	if err := n.db.Put([]byte(stateKey), raw); err != nil {
		return fmt.Errorf("core: persist snapshot: %w", err)
	}
	return nil
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", eventKeyPrefix, seq))
}

func checksum(rec *EventRecord) string {
	keys := make([]string, 0, len(rec.Attributes))
	for k := range rec.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d\n%s\n", rec.Sequence, rec.Type)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%s\n", k, rec.Attributes[k])
	}
	sum := blake3.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyRecord recomputes a journal record's checksum.
func VerifyRecord(rec EventRecord) bool {
	return checksum(&rec) == rec.Checksum
}

// commit runs after a successful mutating operation: snapshot, journal,
// notify. Persistence failures are logged rather than unwound — the
// in-memory ledger has already transitioned and remains authoritative; the
// next successful commit writes a complete snapshot again.
func (n *Node) commit() {
	if err := n.persistSnapshot(); err != nil {
		slog.Error("snapshot persistence failed", "error", err)
	}
	records := make([]EventRecord, 0, len(n.pending))
	now := n.nowFn()
	for _, evt := range n.pending {
		n.eventSeq++
		rec := EventRecord{
			Sequence:   n.eventSeq,
			ID:         uuid.NewString(),
			Type:       evt.Type,
			Attributes: evt.Attributes,
			Timestamp:  now,
		}
		rec.Checksum = checksum(&rec)
		raw, err := json.Marshal(rec)
		if err != nil {
			slog.Error("journal encode failed", "type", rec.Type, "error", err)
			continue
		}
		if err := n.db.Put(eventKey(rec.Sequence), raw); err != nil {
			slog.Error("journal append failed", "type", rec.Type, "error", err)
		}
		records = append(records, rec)
	}
	n.pending = n.pending[:0]
	n.dispatch(records)
	observability.Splitter().SetCustody(n.engine.Custody())
}

func (n *Node) dispatch(records []EventRecord) {
	if len(records) == 0 {
		return
	}
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for id, sub := range n.subs {
		for _, rec := range records {
			if rec.Sequence <= sub.cursor {
				continue
			}
			sub.cursor = rec.Sequence
			select {
			case sub.ch <- rec:
			default:
				// Fire-and-forget delivery: a stalled subscriber loses
				// events instead of blocking the ledger.
				slog.Debug("event subscriber lagging, dropping event", "subscriber", id, "sequence", rec.Sequence)
			}
		}
	}
}

// --- public ledger operations ---

// DepositAndSplit executes the split algorithm as one atomic transaction.
func (n *Node) DepositAndSplit(caller, recipientA, recipientB [20]byte, amount *big.Int) (*splitter.Deposit, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = n.pending[:0]
	dep, err := n.engine.DepositAndSplit(caller, recipientA, recipientB, amount)
	if err != nil {
		n.pending = n.pending[:0]
		if errors.Is(err, splitter.ErrTransferFailed) {
			observability.Splitter().RecordPayoutFailure()
		}
		return nil, err
	}
	n.commit()
	observability.Splitter().RecordDeposit()
	return dep, nil
}

// Withdraw pays out the caller's pending balance atomically.
func (n *Node) Withdraw(caller [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = n.pending[:0]
	amount, err := n.engine.Withdraw(caller)
	if err != nil {
		n.pending = n.pending[:0]
		if errors.Is(err, splitter.ErrTransferFailed) {
			observability.Splitter().RecordPayoutFailure()
		}
		return nil, err
	}
	n.commit()
	observability.Splitter().RecordWithdrawal()
	return amount, nil
}

// Pause suspends value-moving operations. Administrator only.
func (n *Node) Pause(caller [20]byte) error {
	return n.adminOp(func() error { return n.engine.Pause(caller) })
}

// Resume reactivates value-moving operations. Administrator only.
func (n *Node) Resume(caller [20]byte) error {
	return n.adminOp(func() error { return n.engine.Resume(caller) })
}

// TransferAdmin replaces the administrator identity. Administrator only.
func (n *Node) TransferAdmin(caller, next [20]byte) error {
	return n.adminOp(func() error { return n.engine.TransferAdmin(caller, next) })
}

func (n *Node) adminOp(op func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = n.pending[:0]
	if err := op(); err != nil {
		n.pending = n.pending[:0]
		return err
	}
	n.commit()
	return nil
}

// Admin returns the current administrator identity.
func (n *Node) Admin() [20]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Admin()
}

// Paused reports the circuit breaker state.
func (n *Node) Paused() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Paused()
}

// BalanceOf returns a party's pending ledger balance.
func (n *Node) BalanceOf(party [20]byte) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.BalanceOf(party)
}

// Custody returns the total value held by the ledger.
func (n *Node) Custody() *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Custody()
}

// BankBalanceOf returns a party's settlement account balance.
func (n *Node) BankBalanceOf(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bank.BalanceOf(addr)
}

// Events pages the journal, returning records with a sequence strictly above
// cursor. limit <= 0 applies the default backlog limit.
func (n *Node) Events(cursor uint64, limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > backlogLimit {
		limit = backlogLimit
	}
	records := make([]EventRecord, 0, limit)
	var scanErr error
	err := n.db.IteratePrefix([]byte(eventKeyPrefix), func(_, value []byte) bool {
		var rec EventRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			scanErr = fmt.Errorf("core: corrupt journal record: %w", err)
			return false
		}
		if rec.Sequence <= cursor {
			return true
		}
		records = append(records, rec)
		return len(records) < limit
	})
	if err != nil {
		return nil, err
	}
	return records, scanErr
}

// SubscribeEvents registers a live event subscriber. The returned backlog
// covers journal records after cursor; subsequent records arrive on the
// channel until cancel is called or ctx is done.
func (n *Node) SubscribeEvents(ctx context.Context, cursor uint64) (<-chan EventRecord, func(), []EventRecord, error) {
	// Page the backlog and register under subMu so a record journaled while
	// we read the journal cannot slip between the backlog and the channel;
	// the subscriber cursor deduplicates the overlap.
	n.subMu.Lock()
	backlog, err := n.Events(cursor, backlogLimit)
	if err != nil {
		n.subMu.Unlock()
		return nil, nil, nil, err
	}
	sub := &subscriber{ch: make(chan EventRecord, subscriberBuffer), cursor: cursor}
	if len(backlog) > 0 {
		sub.cursor = backlog[len(backlog)-1].Sequence
	}
	n.nextSub++
	id := n.nextSub
	n.subs[id] = sub
	n.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			// Close under subMu so dispatch never sends on a closed
			// channel.
			n.subMu.Lock()
			delete(n.subs, id)
			close(sub.ch)
			n.subMu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return sub.ch, cancel, backlog, nil
}
