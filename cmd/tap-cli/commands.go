package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"tapfaucet/cmd/internal/passphrase"
	"tapfaucet/crypto"
	"tapfaucet/rpc"
)

const keyPassEnv = "TAP_KEY_PASS"

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
		Data    interface{} `json:"data"`
	} `json:"error"`
}

func call(method string, params interface{}, withAuth bool) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []interface{}{params},
		ID:      1,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("TAP_RPC_TOKEN must be set for this command")
		}
		req.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	return decoded.Result, nil
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := passphrase.NewSource(keyPassEnv).Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func generateKey(path string) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating key: %v\n", err)
		os.Exit(1)
	}
	pass, err := passphrase.NewSource(keyPassEnv).Get()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving keystore: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Keystore written to %s\n", path)
	fmt.Printf("Address: %s\n", key.PubKey().Address())
}

func initialize(admin, token, reward string, cooldown uint64) {
	_, err := call("tap_initialize", map[string]interface{}{
		"admin":           admin,
		"tokenRef":        token,
		"rewardAmount":    reward,
		"cooldownSeconds": cooldown,
	}, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Dispenser initialized.")
}

func fund(amount string) {
	_, err := call("tap_fund", map[string]interface{}{"amount": amount}, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Funded dispenser with %s tokens.\n", amount)
}

func tap(keyfile string) {
	key, err := loadKey(keyfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading key: %v\n", err)
		os.Exit(1)
	}
	user := key.PubKey().Address().String()
	nonce := uint64(time.Now().UnixNano())
	sig, err := key.Sign(rpc.ClaimDigest(user, nonce))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing claim: %v\n", err)
		os.Exit(1)
	}

	result, err := call("tap_claim", map[string]interface{}{
		"user":      user,
		"nonce":     nonce,
		"signature": hex.EncodeToString(sig),
	}, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var claim struct {
		Amount  string `json:"amount"`
		PaidAt  uint64 `json:"paidAt"`
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(result, &claim); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding claim result: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Claimed %s tokens at %d. New balance: %s\n", claim.Amount, claim.PaidAt, claim.Balance)
}

func getBalance(address string) {
	result, err := call("tap_getBalance", map[string]interface{}{"address": address}, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var balance struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(result, &balance); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding balance: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Balance of %s: %s\n", address, balance.Balance)
}

func status(address string) {
	lastTapRaw, err := call("tap_getLastTap", map[string]interface{}{"address": address}, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var last struct {
		LastTap uint64 `json:"lastTap"`
		Claimed bool   `json:"claimed"`
	}
	if err := json.Unmarshal(lastTapRaw, &last); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding status: %v\n", err)
		os.Exit(1)
	}
	if !last.Claimed {
		fmt.Printf("%s has never claimed; eligible now.\n", address)
		return
	}
	nextRaw, err := call("tap_nextClaimAt", map[string]interface{}{"address": address}, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var next struct {
		NextClaimAt uint64 `json:"nextClaimAt"`
	}
	if err := json.Unmarshal(nextRaw, &next); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding next claim: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Last claim at %d; next eligible at %d.\n", last.LastTap, next.NextClaimAt)
}
