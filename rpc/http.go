package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"splitvault/core"
	"splitvault/native/splitter"
	"splitvault/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codePaused         = -32030
)

type Server struct {
	node *core.Node
	auth *Authenticator

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	perMinute int
}

// NewServer wires a ledger node behind the JSON-RPC surface. perMinute caps
// mutating calls per client IP.
func NewServer(node *core.Node, auth *Authenticator, perMinute int) *Server {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Server{
		node:      node,
		auth:      auth,
		limiters:  make(map[string]*rate.Limiter),
		perMinute: perMinute,
	}
}

// Handler builds the HTTP surface: JSON-RPC on POST /, the event stream on
// /ws/events, plus health and metrics endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/ws/events", s.handleEventsWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// rpcError carries a pre-mapped JSON-RPC failure out of a handler.
type rpcError struct {
	status  int
	code    int
	message string
	data    interface{}
}

func (e *rpcError) Error() string { return e.message }

func invalidParams(message string, data interface{}) *rpcError {
	return &rpcError{status: http.StatusBadRequest, code: codeInvalidParams, message: message, data: data}
}

// mapLedgerError translates domain sentinels into stable wire codes so
// clients can branch without string matching.
func mapLedgerError(err error) *rpcError {
	switch {
	case errors.Is(err, splitter.ErrUnauthorized):
		return &rpcError{status: http.StatusForbidden, code: codeUnauthorized, message: "caller is not the administrator"}
	case errors.Is(err, splitter.ErrPaused):
		return &rpcError{status: http.StatusConflict, code: codePaused, message: "service is suspended"}
	case errors.Is(err, splitter.ErrAlreadyPaused), errors.Is(err, splitter.ErrNotPaused):
		return &rpcError{status: http.StatusConflict, code: codePaused, message: err.Error()}
	case errors.Is(err, splitter.ErrInvalidAmount),
		errors.Is(err, splitter.ErrInvalidRecipient),
		errors.Is(err, splitter.ErrInvalidAdmin):
		return invalidParams(err.Error(), nil)
	case errors.Is(err, splitter.ErrNothingToWithdraw):
		return &rpcError{status: http.StatusConflict, code: codeServerError, message: "nothing to withdraw"}
	case errors.Is(err, splitter.ErrTransferFailed):
		return &rpcError{status: http.StatusBadGateway, code: codeServerError, message: "value transfer failed", data: err.Error()}
	default:
		return &rpcError{status: http.StatusInternalServerError, code: codeServerError, message: err.Error()}
	}
}

func (s *Server) resolveClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allow(clientIP string) bool {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	limiter, ok := s.limiters[clientIP]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMinute)), s.perMinute)
		s.limiters[clientIP] = limiter
	}
	return limiter.Allow()
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	outcome := s.dispatch(w, r, req)
	observability.Splitter().RecordRPC(req.Method, outcome, time.Since(started).Seconds())
}

// dispatch routes a decoded request, returning an outcome label for metrics.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	switch req.Method {
	case "splitter_deposit":
		return s.mutating(w, r, req, s.handleDeposit)
	case "splitter_withdraw":
		return s.mutating(w, r, req, s.handleWithdraw)
	case "splitter_pause":
		return s.mutating(w, r, req, s.handlePause)
	case "splitter_resume":
		return s.mutating(w, r, req, s.handleResume)
	case "splitter_transferAdmin":
		return s.mutating(w, r, req, s.handleTransferAdmin)
	case "splitter_balanceOf":
		return s.query(w, req, s.handleBalanceOf)
	case "splitter_admin":
		return s.query(w, req, s.handleAdmin)
	case "splitter_paused":
		return s.query(w, req, s.handlePaused)
	case "splitter_custody":
		return s.query(w, req, s.handleCustody)
	case "splitter_events":
		return s.query(w, req, s.handleEvents)
	case "bank_balanceOf":
		return s.query(w, req, s.handleBankBalanceOf)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return "method_not_found"
	}
}

// mutating authenticates, rate limits and then invokes a state-changing
// handler with the established caller identity.
func (s *Server) mutating(w http.ResponseWriter, r *http.Request, req *RPCRequest, fn func(caller [20]byte, params []json.RawMessage) (interface{}, *rpcError)) string {
	caller, err := s.auth.Caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "authentication failed", err.Error())
		return "unauthorized"
	}
	if !s.allow(s.resolveClientIP(r)) {
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return "rate_limited"
	}
	result, rpcErr := fn(caller, req.Params)
	if rpcErr != nil {
		writeError(w, rpcErr.status, req.ID, rpcErr.code, rpcErr.message, rpcErr.data)
		return "error"
	}
	writeResult(w, req.ID, result)
	return "ok"
}

func (s *Server) query(w http.ResponseWriter, req *RPCRequest, fn func(params []json.RawMessage) (interface{}, *rpcError)) string {
	result, rpcErr := fn(req.Params)
	if rpcErr != nil {
		writeError(w, rpcErr.status, req.ID, rpcErr.code, rpcErr.message, rpcErr.data)
		return "error"
	}
	writeResult(w, req.ID, result)
	return "ok"
}
