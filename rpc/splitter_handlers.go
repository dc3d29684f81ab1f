package rpc

import (
	"encoding/json"
	"math/big"
	"strings"

	"splitvault/core"
	"splitvault/crypto"
	"splitvault/native/splitter"
)

type depositParams struct {
	RecipientA string `json:"recipientA"`
	RecipientB string `json:"recipientB"`
	Amount     string `json:"amount"`
}

type addressParams struct {
	Address string `json:"address"`
}

type transferAdminParams struct {
	NewAdmin string `json:"newAdmin"`
}

type eventsParams struct {
	Cursor uint64 `json:"cursor"`
	Limit  int    `json:"limit"`
}

type DepositResult struct {
	Sequence   uint64 `json:"sequence"`
	Initiator  string `json:"initiator"`
	RecipientA string `json:"recipientA"`
	RecipientB string `json:"recipientB"`
	Amount     string `json:"amount"`
	Half       string `json:"half"`
	Remainder  string `json:"remainder"`
	Timestamp  int64  `json:"timestamp"`
}

type WithdrawResult struct {
	Amount string `json:"amount"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type AdminResult struct {
	Admin string `json:"admin"`
}

type PausedResult struct {
	Paused bool `json:"paused"`
}

type CustodyResult struct {
	Custody string `json:"custody"`
}

func singleParam(params []json.RawMessage, out interface{}) *rpcError {
	if len(params) != 1 {
		return invalidParams("expected a single parameter object", nil)
	}
	if err := json.Unmarshal(params[0], out); err != nil {
		return invalidParams("malformed parameter object", err.Error())
	}
	return nil
}

func decodeAddressField(name, value string) ([20]byte, *rpcError) {
	addr, err := crypto.DecodeSVT(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, invalidParams(name+" is not a valid address", err.Error())
	}
	return addr, nil
}

func parseAmount(value string) (*big.Int, *rpcError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, invalidParams("amount must be a base-10 integer", value)
	}
	return amount, nil
}

func depositResult(dep *splitter.Deposit) *DepositResult {
	return &DepositResult{
		Sequence:   dep.Sequence,
		Initiator:  crypto.EncodeSVT(dep.Initiator),
		RecipientA: crypto.EncodeSVT(dep.RecipientA),
		RecipientB: crypto.EncodeSVT(dep.RecipientB),
		Amount:     dep.Amount.String(),
		Half:       dep.Half.String(),
		Remainder:  dep.Remainder.String(),
		Timestamp:  dep.CreatedAt,
	}
}

func (s *Server) handleDeposit(caller [20]byte, params []json.RawMessage) (interface{}, *rpcError) {
	var p depositParams
	if rpcErr := singleParam(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	recipientA, rpcErr := decodeAddressField("recipientA", p.RecipientA)
	if rpcErr != nil {
		return nil, rpcErr
	}
	recipientB, rpcErr := decodeAddressField("recipientB", p.RecipientB)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	dep, err := s.node.DepositAndSplit(caller, recipientA, recipientB, amount)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	return depositResult(dep), nil
}

func (s *Server) handleWithdraw(caller [20]byte, params []json.RawMessage) (interface{}, *rpcError) {
	if len(params) != 0 {
		return nil, invalidParams("withdraw takes no parameters", nil)
	}
	amount, err := s.node.Withdraw(caller)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	return &WithdrawResult{Amount: amount.String()}, nil
}

func (s *Server) handlePause(caller [20]byte, params []json.RawMessage) (interface{}, *rpcError) {
	if len(params) != 0 {
		return nil, invalidParams("pause takes no parameters", nil)
	}
	if err := s.node.Pause(caller); err != nil {
		return nil, mapLedgerError(err)
	}
	return &PausedResult{Paused: true}, nil
}

func (s *Server) handleResume(caller [20]byte, params []json.RawMessage) (interface{}, *rpcError) {
	if len(params) != 0 {
		return nil, invalidParams("resume takes no parameters", nil)
	}
	if err := s.node.Resume(caller); err != nil {
		return nil, mapLedgerError(err)
	}
	return &PausedResult{Paused: false}, nil
}

func (s *Server) handleTransferAdmin(caller [20]byte, params []json.RawMessage) (interface{}, *rpcError) {
	var p transferAdminParams
	if rpcErr := singleParam(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	next, rpcErr := decodeAddressField("newAdmin", p.NewAdmin)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.TransferAdmin(caller, next); err != nil {
		return nil, mapLedgerError(err)
	}
	return &AdminResult{Admin: crypto.EncodeSVT(next)}, nil
}

func (s *Server) handleBalanceOf(params []json.RawMessage) (interface{}, *rpcError) {
	var p addressParams
	if rpcErr := singleParam(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := decodeAddressField("address", p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &BalanceResult{
		Address: crypto.EncodeSVT(addr),
		Balance: s.node.BalanceOf(addr).String(),
	}, nil
}

func (s *Server) handleAdmin([]json.RawMessage) (interface{}, *rpcError) {
	return &AdminResult{Admin: crypto.EncodeSVT(s.node.Admin())}, nil
}

func (s *Server) handlePaused([]json.RawMessage) (interface{}, *rpcError) {
	return &PausedResult{Paused: s.node.Paused()}, nil
}

func (s *Server) handleCustody([]json.RawMessage) (interface{}, *rpcError) {
	return &CustodyResult{Custody: s.node.Custody().String()}, nil
}

func (s *Server) handleEvents(params []json.RawMessage) (interface{}, *rpcError) {
	var p eventsParams
	if len(params) > 0 {
		if rpcErr := singleParam(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
	}
	records, err := s.node.Events(p.Cursor, p.Limit)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if records == nil {
		records = []core.EventRecord{}
	}
	return records, nil
}

func (s *Server) handleBankBalanceOf(params []json.RawMessage) (interface{}, *rpcError) {
	var p addressParams
	if rpcErr := singleParam(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := decodeAddressField("address", p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.BankBalanceOf(addr)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	return &BalanceResult{
		Address: crypto.EncodeSVT(addr),
		Balance: balance.String(),
	}, nil
}
