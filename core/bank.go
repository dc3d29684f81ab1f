package core

import (
	"errors"
	"fmt"
	"math/big"

	"splitvault/crypto"
	"splitvault/storage"
)

// ErrInsufficientFunds is returned when a settlement account cannot cover a
// collection.
var ErrInsufficientFunds = errors.New("bank: insufficient funds")

const bankKeyPrefix = "bank/"

// Bank implements the splitter.Vault collaborator against the node database.
// It keeps one settlement account per party: Collect debits the depositor
// when the ledger takes custody, Release credits the payee when custody is
// given up. The ledger's custody total is accounted by the engine itself; the
// bank only moves the outside ends of each transfer.
type Bank struct {
	db storage.Database
}

// NewBank wraps the supplied database.
func NewBank(db storage.Database) *Bank {
	return &Bank{db: db}
}

func bankKey(addr [20]byte) []byte {
	return []byte(bankKeyPrefix + crypto.EncodeSVT(addr))
}

// BalanceOf returns the settlement account balance, zero for unknown parties.
func (b *Bank) BalanceOf(addr [20]byte) (*big.Int, error) {
	raw, err := b.db.Get(bankKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	bal, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("bank: corrupt balance record for %s", crypto.EncodeSVT(addr))
	}
	return bal, nil
}

func (b *Bank) put(addr [20]byte, bal *big.Int) error {
	return b.db.Put(bankKey(addr), []byte(bal.String()))
}

// Credit adds value to a settlement account. Used for genesis allocations and
// custody releases.
func (b *Bank) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: credit amount must be positive")
	}
	bal, err := b.BalanceOf(addr)
	if err != nil {
		return err
	}
	return b.put(addr, bal.Add(bal, amount))
}

// Collect implements splitter.Vault by debiting the depositor's settlement
// account.
func (b *Bank) Collect(from [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: collect amount must be positive")
	}
	bal, err := b.BalanceOf(from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	return b.put(from, bal.Sub(bal, amount))
}

// Release implements splitter.Vault by crediting the payee's settlement
// account.
func (b *Bank) Release(to [20]byte, amount *big.Int) error {
	return b.Credit(to, amount)
}
