package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"

	"splitvault/crypto"
)

const (
	rpcURLEnv     = "SPLITVAULT_RPC_URL"
	authTokenEnv  = "SPLITVAULT_AUTH_TOKEN"
	authSecretEnv = "SPLITVAULT_AUTH_SECRET"

	defaultRPCURL = "http://localhost:8545"
	tokenTTL      = 24 * time.Hour
)

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = os.Getenv(authTokenEnv)
)

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv(rpcURLEnv)); url != "" {
		return url
	}
	return defaultRPCURL
}

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		printUsage()
		return
	}

	switch args[0] {
	case "balance":
		if len(args) < 2 {
			fatal("Error: please provide an address.")
		}
		query("splitter_balanceOf", map[string]string{"address": args[1]})
	case "bank-balance":
		if len(args) < 2 {
			fatal("Error: please provide an address.")
		}
		query("bank_balanceOf", map[string]string{"address": args[1]})
	case "deposit":
		if len(args) < 4 {
			fatal("Error: please provide two recipient addresses and an amount.")
		}
		mutate("splitter_deposit", map[string]string{
			"recipientA": args[1],
			"recipientB": args[2],
			"amount":     args[3],
		})
	case "withdraw":
		mutate("splitter_withdraw", nil)
	case "pause":
		mutate("splitter_pause", nil)
	case "resume":
		mutate("splitter_resume", nil)
	case "transfer-admin":
		if len(args) < 2 {
			fatal("Error: please provide the new administrator address.")
		}
		mutate("splitter_transferAdmin", map[string]string{"newAdmin": args[1]})
	case "admin":
		query("splitter_admin", nil)
	case "paused":
		query("splitter_paused", nil)
	case "custody":
		query("splitter_custody", nil)
	case "events":
		params := map[string]interface{}{}
		if len(args) > 1 {
			cursor, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				fatal("Error: invalid cursor.")
			}
			params["cursor"] = cursor
		}
		if len(args) > 2 {
			limit, err := strconv.Atoi(args[2])
			if err != nil {
				fatal("Error: invalid limit.")
			}
			params["limit"] = limit
		}
		query("splitter_events", params)
	case "token":
		if len(args) < 2 {
			fatal("Error: please provide the caller address.")
		}
		mintToken(args[1])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: splitvault-cli <command> [args]

Commands:
  balance <address>                      Pending ledger balance of a party
  bank-balance <address>                 Settlement account balance of a party
  deposit <recipientA> <recipientB> <amount>
                                         Deposit and split between two recipients
  withdraw                               Withdraw the caller's pending balance
  pause                                  Suspend value movement (admin only)
  resume                                 Reactivate value movement (admin only)
  transfer-admin <address>               Hand over administration (admin only)
  admin                                  Show the current administrator
  paused                                 Show the circuit breaker state
  custody                                Show total value held by the ledger
  events [cursor] [limit]                Page the event journal
  token <address>                        Mint a development bearer token

Environment:
  SPLITVAULT_RPC_URL      RPC endpoint (default http://localhost:8545)
  SPLITVAULT_AUTH_TOKEN   Bearer token for mutating commands
  SPLITVAULT_AUTH_SECRET  HMAC secret for the token command`)
}

func fatal(message string) {
	fmt.Fprintln(os.Stderr, message)
	os.Exit(1)
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int         `json:"code"`
		Message string      `json:"message"`
		Data    interface{} `json:"data,omitempty"`
	} `json:"error"`
}

func query(method string, params interface{}) {
	doCall(method, params, "")
}

func mutate(method string, params interface{}) {
	token := strings.TrimSpace(rpcAuthToken)
	if token == "" {
		fatal("Error: set " + authTokenEnv + " (see the token command).")
	}
	doCall(method, params, token)
}

func doCall(method string, params interface{}, token string) {
	reqParams := []interface{}{}
	if params != nil {
		reqParams = append(reqParams, params)
	}
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: reqParams, ID: 1})
	if err != nil {
		fatal("Error: " + err.Error())
	}

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		fatal("Error: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fatal("Error: " + err.Error())
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		fatal("Error: malformed response: " + err.Error())
	}
	if decoded.Error != nil {
		fmt.Fprintf(os.Stderr, "RPC error %d: %s\n", decoded.Error.Code, decoded.Error.Message)
		if decoded.Error.Data != nil {
			fmt.Fprintf(os.Stderr, "  %v\n", decoded.Error.Data)
		}
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, decoded.Result, "", "  "); err != nil {
		fmt.Println(string(decoded.Result))
		return
	}
	fmt.Println(pretty.String())
}

// mintToken creates a development bearer token for the given address. The
// signing secret comes from the environment or an interactive prompt; the
// daemon must be configured with the same secret.
func mintToken(address string) {
	if _, err := crypto.DecodeSVT(strings.TrimSpace(address)); err != nil {
		fatal("Error: invalid address: " + err.Error())
	}

	secret := strings.TrimSpace(os.Getenv(authSecretEnv))
	if secret == "" {
		fmt.Fprint(os.Stderr, "Signing secret: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fatal("Error: read secret: " + err.Error())
		}
		secret = strings.TrimSpace(string(raw))
	}
	if secret == "" {
		fatal("Error: signing secret required.")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strings.TrimSpace(address),
		Issuer:    "splitvault",
		Audience:  jwt.ClaimStrings{"splitvault-rpc"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fatal("Error: sign token: " + err.Error())
	}
	fmt.Println(token)
}
