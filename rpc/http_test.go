package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"splitvault/core"
	"splitvault/crypto"
	"splitvault/native/splitter"
	"splitvault/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	adminAddr = testAddr(0x01)
	aliceAddr = testAddr(0xAA)
	bobAddr   = testAddr(0xBB)
	carolAddr = testAddr(0xCC)
)

func newTestServer(t *testing.T, perMinute int) (*httptest.Server, *Authenticator, *core.Node) {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), core.Genesis{
		Admin: adminAddr,
		Allocations: map[[20]byte]*big.Int{
			aliceAddr: big.NewInt(1000),
		},
	})
	require.NoError(t, err)

	auth := NewAuthenticator("test-secret", "splitvault", "splitvault-rpc")
	srv := httptest.NewServer(NewServer(node, auth, perMinute).Handler())
	t.Cleanup(srv.Close)
	return srv, auth, node
}

func call(t *testing.T, srv *httptest.Server, token, method string, params ...interface{}) RPCResponse {
	t.Helper()
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		require.NoError(t, err)
		rawParams = append(rawParams, encoded)
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  rawParams,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decodeResult(t *testing.T, resp RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func issueToken(t *testing.T, auth *Authenticator, addr [20]byte) string {
	t.Helper()
	token, err := auth.Issue(addr, time.Hour)
	require.NoError(t, err)
	return token
}

func TestDepositRequiresToken(t *testing.T) {
	srv, _, _ := newTestServer(t, 60)

	resp := call(t, srv, "", "splitter_deposit", depositParams{
		RecipientA: crypto.EncodeSVT(bobAddr),
		RecipientB: crypto.EncodeSVT(carolAddr),
		Amount:     "10",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestDepositRejectsForeignToken(t *testing.T) {
	srv, _, _ := newTestServer(t, 60)

	other := NewAuthenticator("wrong-secret", "splitvault", "splitvault-rpc")
	resp := call(t, srv, issueToken(t, other, aliceAddr), "splitter_withdraw")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestDepositAndQueries(t *testing.T) {
	srv, auth, node := newTestServer(t, 60)

	resp := call(t, srv, issueToken(t, auth, aliceAddr), "splitter_deposit", depositParams{
		RecipientA: crypto.EncodeSVT(bobAddr),
		RecipientB: crypto.EncodeSVT(carolAddr),
		Amount:     "21",
	})
	var dep DepositResult
	decodeResult(t, resp, &dep)
	require.Equal(t, uint64(1), dep.Sequence)
	require.Equal(t, "21", dep.Amount)
	require.Equal(t, "10", dep.Half)
	require.Equal(t, "1", dep.Remainder)
	require.Equal(t, crypto.EncodeSVT(aliceAddr), dep.Initiator)

	var bal BalanceResult
	decodeResult(t, call(t, srv, "", "splitter_balanceOf", addressParams{Address: crypto.EncodeSVT(bobAddr)}), &bal)
	require.Equal(t, "10", bal.Balance)

	var custody CustodyResult
	decodeResult(t, call(t, srv, "", "splitter_custody"), &custody)
	require.Equal(t, "20", custody.Custody)

	var bank BalanceResult
	decodeResult(t, call(t, srv, "", "bank_balanceOf", addressParams{Address: crypto.EncodeSVT(aliceAddr)}), &bank)
	require.Equal(t, "980", bank.Balance)

	require.Zero(t, node.BalanceOf(carolAddr).Cmp(big.NewInt(10)))
}

func TestWithdrawFlow(t *testing.T) {
	srv, auth, _ := newTestServer(t, 60)

	alice := issueToken(t, auth, aliceAddr)
	resp := call(t, srv, alice, "splitter_deposit", depositParams{
		RecipientA: crypto.EncodeSVT(bobAddr),
		RecipientB: crypto.EncodeSVT(carolAddr),
		Amount:     "10",
	})
	require.Nil(t, resp.Error)

	bob := issueToken(t, auth, bobAddr)
	var paid WithdrawResult
	decodeResult(t, call(t, srv, bob, "splitter_withdraw"), &paid)
	require.Equal(t, "5", paid.Amount)

	again := call(t, srv, bob, "splitter_withdraw")
	require.NotNil(t, again.Error)
	require.Equal(t, codeServerError, again.Error.Code)
}

func TestDepositValidation(t *testing.T) {
	srv, auth, _ := newTestServer(t, 60)
	alice := issueToken(t, auth, aliceAddr)

	resp := call(t, srv, alice, "splitter_deposit", depositParams{
		RecipientA: "garbage",
		RecipientB: crypto.EncodeSVT(carolAddr),
		Amount:     "10",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = call(t, srv, alice, "splitter_deposit", depositParams{
		RecipientA: crypto.EncodeSVT(bobAddr),
		RecipientB: crypto.EncodeSVT(carolAddr),
		Amount:     "0",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestAdminSurface(t *testing.T) {
	srv, auth, node := newTestServer(t, 60)

	// Non-admin cannot pause.
	resp := call(t, srv, issueToken(t, auth, aliceAddr), "splitter_pause")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	admin := issueToken(t, auth, adminAddr)
	var paused PausedResult
	decodeResult(t, call(t, srv, admin, "splitter_pause"), &paused)
	require.True(t, paused.Paused)

	// Deposits fail while suspended.
	resp = call(t, srv, issueToken(t, auth, aliceAddr), "splitter_deposit", depositParams{
		RecipientA: crypto.EncodeSVT(bobAddr),
		RecipientB: crypto.EncodeSVT(carolAddr),
		Amount:     "10",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codePaused, resp.Error.Code)

	decodeResult(t, call(t, srv, admin, "splitter_resume"), &paused)
	require.False(t, paused.Paused)

	var adminResult AdminResult
	decodeResult(t, call(t, srv, admin, "splitter_transferAdmin", transferAdminParams{
		NewAdmin: crypto.EncodeSVT(aliceAddr),
	}), &adminResult)
	require.Equal(t, crypto.EncodeSVT(aliceAddr), adminResult.Admin)
	require.Equal(t, aliceAddr, node.Admin())

	// The previous administrator lost its authority.
	resp = call(t, srv, admin, "splitter_pause")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	srv, _, _ := newTestServer(t, 60)
	resp := call(t, srv, "", "splitter_bogus")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestEventsQuery(t *testing.T) {
	srv, auth, _ := newTestServer(t, 60)
	alice := issueToken(t, auth, aliceAddr)

	for i := 0; i < 3; i++ {
		resp := call(t, srv, alice, "splitter_deposit", depositParams{
			RecipientA: crypto.EncodeSVT(bobAddr),
			RecipientB: crypto.EncodeSVT(carolAddr),
			Amount:     "10",
		})
		require.Nil(t, resp.Error)
	}

	var records []core.EventRecord
	decodeResult(t, call(t, srv, "", "splitter_events", eventsParams{Cursor: 1, Limit: 10}), &records)
	require.Len(t, records, 2)
	require.Equal(t, uint64(2), records[0].Sequence)
	require.Equal(t, splitter.EventTypeDeposited, records[0].Type)
}

func TestRateLimit(t *testing.T) {
	srv, auth, _ := newTestServer(t, 2)
	alice := issueToken(t, auth, aliceAddr)

	deposit := depositParams{
		RecipientA: crypto.EncodeSVT(bobAddr),
		RecipientB: crypto.EncodeSVT(carolAddr),
		Amount:     "10",
	}
	require.Nil(t, call(t, srv, alice, "splitter_deposit", deposit).Error)
	require.Nil(t, call(t, srv, alice, "splitter_deposit", deposit).Error)

	resp := call(t, srv, alice, "splitter_deposit", deposit)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestEventStreamWebsocket(t *testing.T) {
	srv, auth, node := newTestServer(t, 60)
	alice := issueToken(t, auth, aliceAddr)

	resp := call(t, srv, alice, "splitter_deposit", depositParams{
		RecipientA: crypto.EncodeSVT(bobAddr),
		RecipientB: crypto.EncodeSVT(carolAddr),
		Amount:     "10",
	})
	require.Nil(t, resp.Error)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):]+"/ws/events?cursor=0", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Backlog record arrives first.
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var rec core.EventRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	require.Equal(t, uint64(1), rec.Sequence)
	require.Equal(t, splitter.EventTypeDeposited, rec.Type)

	// Then live records.
	require.NoError(t, node.Pause(adminAddr))
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &rec))
	require.Equal(t, uint64(2), rec.Sequence)
	require.Equal(t, splitter.EventTypePaused, rec.Type)
}
