package splitter

import (
	"fmt"
	"math/big"
	"time"

	"splitvault/core/events"
)

// Vault is the external value-transfer primitive. Collect takes custody of
// value from a party; Release gives custody up to a party. Implementations
// may re-enter the engine's public operations from within Release, so the
// engine orders its effects to stay consistent under reentrancy.
type Vault interface {
	Collect(from [20]byte, amount *big.Int) error
	Release(to [20]byte, amount *big.Int) error
}

// Deposit is the transient record produced by a successful split. It is
// returned to the caller and mirrored into the deposited event; it is not
// mutable engine state.
type Deposit struct {
	Sequence   uint64
	Initiator  [20]byte
	RecipientA [20]byte
	RecipientB [20]byte
	Amount     *big.Int
	Half       *big.Int
	Remainder  *big.Int
	CreatedAt  int64
}

// Engine implements the value-custody ledger: it owns the pending balance
// mapping exclusively and consults AccessControl for administrative calls and
// the PauseGate before any value-moving call.
//
// The engine performs no locking of its own. The reference execution model is
// one serialized operation at a time, and the hosting node enforces that with
// a single mutex around every public call. Keeping the engine lock-free is
// what allows a reentrant Vault.Release callback on the same goroutine to
// re-enter and observe post-effect state instead of deadlocking.
type Engine struct {
	access   *AccessControl
	gate     *PauseGate
	balances map[[20]byte]*big.Int
	custody  *big.Int
	sequence uint64

	vault   Vault
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a ledger instance administered by admin. The vault is
// required; the emitter defaults to a no-op and can be overridden via
// SetEmitter.
func NewEngine(admin [20]byte, vault Vault) (*Engine, error) {
	if vault == nil {
		return nil, fmt.Errorf("splitter: vault not configured")
	}
	access, err := NewAccessControl(admin)
	if err != nil {
		return nil, err
	}
	return &Engine{
		access:   access,
		gate:     &PauseGate{},
		balances: make(map[[20]byte]*big.Int),
		custody:  big.NewInt(0),
		vault:    vault,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily so tests get deterministic
// deposit timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

// Admin returns the current administrator identity.
func (e *Engine) Admin() [20]byte { return e.access.Admin() }

// Paused reports whether value-moving operations are suspended.
func (e *Engine) Paused() bool { return e.gate.Paused() }

// Sequence returns the number of successful splits processed so far.
func (e *Engine) Sequence() uint64 { return e.sequence }

// TransferAdmin atomically replaces the administrator identity. Restricted to
// the current administrator; the zero identity is rejected.
func (e *Engine) TransferAdmin(caller, next [20]byte) error {
	previous, err := e.access.Transfer(caller, next)
	if err != nil {
		return err
	}
	e.emit(NewAdminChangedEvent(previous, next))
	return nil
}

// Pause suspends all value-moving operations. Administrator only.
func (e *Engine) Pause(caller [20]byte) error {
	if err := e.access.Require(caller); err != nil {
		return err
	}
	if err := e.gate.Pause(); err != nil {
		return err
	}
	e.emit(NewPausedEvent(caller))
	return nil
}

// Resume reactivates value-moving operations. Administrator only.
func (e *Engine) Resume(caller [20]byte) error {
	if err := e.access.Require(caller); err != nil {
		return err
	}
	if err := e.gate.Resume(); err != nil {
		return err
	}
	e.emit(NewResumedEvent(caller))
	return nil
}

// BalanceOf returns the party's pending balance, zero if never credited.
func (e *Engine) BalanceOf(party [20]byte) *big.Int {
	if bal, ok := e.balances[party]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Custody returns the total value currently held by the ledger. The sum of
// all pending balances never exceeds it.
func (e *Engine) Custody() *big.Int { return new(big.Int).Set(e.custody) }

func (e *Engine) credit(party [20]byte, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	if bal, ok := e.balances[party]; ok {
		bal.Add(bal, amount)
		return
	}
	e.balances[party] = new(big.Int).Set(amount)
}

// DepositAndSplit takes custody of the even portion of amount from the
// caller and credits half to each recipient. The odd remainder never leaves
// the caller and never enters custody accounting, so the deposit path has no
// external release and a failing payout primitive cannot strand a partial
// split. Recipients may be equal, in which case that single party is credited
// both halves.
func (e *Engine) DepositAndSplit(caller, recipientA, recipientB [20]byte, amount *big.Int) (*Deposit, error) {
	if err := e.gate.Guard(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if recipientA == ([20]byte{}) || recipientB == ([20]byte{}) {
		return nil, ErrInvalidRecipient
	}

	amt := new(big.Int).Set(amount)
	half := new(big.Int)
	remainder := new(big.Int)
	half.QuoRem(amt, big.NewInt(2), remainder)

	collected := new(big.Int).Sub(amt, remainder)
	if collected.Sign() > 0 {
		if err := e.vault.Collect(caller, collected); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		e.custody.Add(e.custody, collected)
		e.credit(recipientA, half)
		e.credit(recipientB, half)
	}

	e.sequence++
	dep := &Deposit{
		Sequence:   e.sequence,
		Initiator:  caller,
		RecipientA: recipientA,
		RecipientB: recipientB,
		Amount:     amt,
		Half:       half,
		Remainder:  remainder,
		CreatedAt:  e.nowFn(),
	}
	e.emit(NewDepositedEvent(dep))
	return dep, nil
}

// Withdraw pays out the caller's full pending balance through the vault. The
// recorded balance is zeroed before the external release so a reentrant call
// during the payout observes a zero balance and fails with
// ErrNothingToWithdraw. On a failed release the balance is restored
// additively, preserving any credits a reentrant callee applied in between.
func (e *Engine) Withdraw(caller [20]byte) (*big.Int, error) {
	if err := e.gate.Guard(); err != nil {
		return nil, err
	}
	bal, ok := e.balances[caller]
	if !ok || bal.Sign() <= 0 {
		return nil, ErrNothingToWithdraw
	}

	amount := new(big.Int).Set(bal)
	delete(e.balances, caller)
	e.custody.Sub(e.custody, amount)

	if err := e.vault.Release(caller, amount); err != nil {
		e.credit(caller, amount)
		e.custody.Add(e.custody, amount)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return amount, nil
}

// Snapshot captures the full engine state for host-side persistence.
type Snapshot struct {
	Admin    [20]byte
	Paused   bool
	Sequence uint64
	Custody  *big.Int
	Balances map[[20]byte]*big.Int
}

// Snapshot returns a deep copy of the engine state. The host persists it
// after every successful mutating operation.
func (e *Engine) Snapshot() *Snapshot {
	balances := make(map[[20]byte]*big.Int, len(e.balances))
	for party, bal := range e.balances {
		balances[party] = new(big.Int).Set(bal)
	}
	return &Snapshot{
		Admin:    e.access.Admin(),
		Paused:   e.gate.Paused(),
		Sequence: e.sequence,
		Custody:  new(big.Int).Set(e.custody),
		Balances: balances,
	}
}

// RestoreEngine rebuilds an engine from a persisted snapshot.
func RestoreEngine(snap *Snapshot, vault Vault) (*Engine, error) {
	if snap == nil {
		return nil, fmt.Errorf("splitter: nil snapshot")
	}
	engine, err := NewEngine(snap.Admin, vault)
	if err != nil {
		return nil, err
	}
	engine.gate.paused = snap.Paused
	engine.sequence = snap.Sequence
	if snap.Custody != nil {
		engine.custody = new(big.Int).Set(snap.Custody)
	}
	for party, bal := range snap.Balances {
		if bal == nil || bal.Sign() <= 0 {
			continue
		}
		engine.balances[party] = new(big.Int).Set(bal)
	}
	return engine, nil
}
