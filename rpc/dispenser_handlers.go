package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tapfaucet/core"
	"tapfaucet/core/types"
	"tapfaucet/crypto"
	"tapfaucet/native/dispenser"
	"tapfaucet/observability"
)

type initializeParams struct {
	Admin           string `json:"admin"`
	TokenRef        string `json:"tokenRef"`
	RewardAmount    string `json:"rewardAmount"`
	CooldownSeconds uint64 `json:"cooldownSeconds"`
}

type fundParams struct {
	Amount string `json:"amount"`
}

type claimParams struct {
	User      string `json:"user"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type addressParams struct {
	Address string `json:"address"`
}

type configResult struct {
	Admin           string `json:"admin"`
	TokenRef        string `json:"tokenRef"`
	RewardAmount    string `json:"rewardAmount"`
	CooldownSeconds uint64 `json:"cooldownSeconds"`
	Dispenser       string `json:"dispenser"`
}

type claimResult struct {
	User    string `json:"user"`
	Amount  string `json:"amount"`
	PaidAt  uint64 `json:"paidAt"`
	Balance string `json:"balance"`
}

type lastTapResult struct {
	Address string `json:"address"`
	LastTap uint64 `json:"lastTap"`
	Claimed bool   `json:"claimed"`
}

type nextClaimResult struct {
	Address     string `json:"address"`
	NextClaimAt uint64 `json:"nextClaimAt"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// ClaimDigest is the 32-byte message a user signs to authorize a claim. The
// nonce is chosen by the client and must strictly increase per user.
func ClaimDigest(user string, nonce uint64) []byte {
	payload := "tapfaucet/claim|" + user + "|" + strconv.FormatUint(nonce, 10)
	return ethcrypto.Keccak256([]byte(payload))
}

func decodeParams(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("params required")
	}
	// Accept both positional single-object arrays and bare objects.
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) != 1 {
			return fmt.Errorf("expected exactly one params object")
		}
		raw = list[0]
	}
	return json.Unmarshal(raw, dst)
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", value)
	}
	return amount, nil
}

func (s *Server) handleInitialize(w http.ResponseWriter, req *RPCRequest) {
	var params initializeParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid initialize params", err.Error())
		return
	}
	admin, err := crypto.DecodeAddress(params.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid admin address", err.Error())
		return
	}
	reward, err := parseAmount(params.RewardAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid reward amount", err.Error())
		return
	}

	events, err := s.node.Initialize(&dispenser.Config{
		Admin:           admin.Bytes(),
		TokenRef:        params.TokenRef,
		RewardAmount:    reward,
		CooldownSeconds: params.CooldownSeconds,
	})
	if err != nil {
		status, code := dispenserError(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	s.logEvents(events)
	s.logger.Info("dispenser initialized",
		slog.String("admin", params.Admin),
		slog.String("token", params.TokenRef),
		slog.String("reward", reward.String()),
		slog.Uint64("cooldownSeconds", params.CooldownSeconds))
	writeResult(w, req.ID, true)
}

func (s *Server) handleFund(w http.ResponseWriter, req *RPCRequest) {
	var params fundParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid fund params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid fund amount", err.Error())
		return
	}
	events, err := s.node.FundDispenser(amount)
	if err != nil {
		status, code := dispenserError(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	s.logEvents(events)
	writeResult(w, req.ID, true)
}

func (s *Server) handleClaim(w http.ResponseWriter, req *RPCRequest) {
	var params claimParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid claim params", err.Error())
		return
	}
	user, err := crypto.DecodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(params.Signature, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid signature encoding", err.Error())
		return
	}
	signer, err := crypto.RecoverAddress(ClaimDigest(params.User, params.Nonce), sig)
	if err != nil {
		observability.Faucet().ObserveTap("unauthorized")
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "signature verification failed", err.Error())
		return
	}
	if err := s.checkNonce(params.User, params.Nonce); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "replayed claim nonce", err.Error())
		return
	}

	events, err := s.node.Tap(user.Bytes(), signer.Bytes())
	if err != nil {
		s.logEvents(events)
		observability.Faucet().ObserveTap(tapOutcome(err))
		status, code := dispenserError(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	s.logEvents(events)
	observability.Faucet().ObserveTap("applied")
	observability.Faucet().RewardsPaid.Inc()

	result := claimResult{User: params.User}
	for _, evt := range events {
		if evt.Type == "dispenser.reward.paid" {
			result.Amount = evt.Attributes["amount"]
			if paidAt, perr := strconv.ParseUint(evt.Attributes["paidAt"], 10, 64); perr == nil {
				result.PaidAt = paidAt
			}
		}
	}
	if balance, berr := s.node.BalanceOf(user.Bytes()); berr == nil {
		result.Balance = balance.String()
	}
	writeResult(w, req.ID, result)
}

func tapOutcome(err error) string {
	switch {
	case errors.Is(err, dispenser.ErrCooldownActive):
		return "cooldown_active"
	case errors.Is(err, dispenser.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, dispenser.ErrUninitialized):
		return "uninitialized"
	case errors.Is(err, dispenser.ErrTransferFailed):
		return "transfer_failed"
	default:
		return "error"
	}
}

// logEvents surfaces engine events in the structured log stream.
func (s *Server) logEvents(events []*types.Event) {
	for _, evt := range events {
		attrs := make([]any, 0, len(evt.Attributes)*2)
		for k, v := range evt.Attributes {
			attrs = append(attrs, slog.String(k, v))
		}
		s.logger.Info(evt.Type, attrs...)
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, req *RPCRequest) {
	cfg, err := s.node.Config()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load config", err.Error())
		return
	}
	if cfg == nil {
		status, code := dispenserError(dispenser.ErrUninitialized)
		writeError(w, status, req.ID, code, dispenser.ErrUninitialized.Error(), nil)
		return
	}
	writeResult(w, req.ID, configResult{
		Admin:           crypto.NewAddress(cfg.Admin).String(),
		TokenRef:        cfg.TokenRef,
		RewardAmount:    cfg.RewardAmount.String(),
		CooldownSeconds: cfg.CooldownSeconds,
		Dispenser:       crypto.NewAddress(core.DispenserAddress).String(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) {
	addr, ok := s.decodeAddressParam(w, req)
	if !ok {
		return
	}
	balance, err := s.node.BalanceOf(addr.Bytes())
	if err != nil {
		status, code := dispenserError(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, balanceResult{Address: addr.String(), Balance: balance.String()})
}

func (s *Server) handleGetLastTap(w http.ResponseWriter, req *RPCRequest) {
	addr, ok := s.decodeAddressParam(w, req)
	if !ok {
		return
	}
	lastTap, claimed, err := s.node.LastTap(addr.Bytes())
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to read cooldown ledger", err.Error())
		return
	}
	writeResult(w, req.ID, lastTapResult{Address: addr.String(), LastTap: lastTap, Claimed: claimed})
}

func (s *Server) handleNextClaimAt(w http.ResponseWriter, req *RPCRequest) {
	addr, ok := s.decodeAddressParam(w, req)
	if !ok {
		return
	}
	next, err := s.node.NextClaimAt(addr.Bytes())
	if err != nil {
		status, code := dispenserError(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, nextClaimResult{Address: addr.String(), NextClaimAt: next})
}

func (s *Server) decodeAddressParam(w http.ResponseWriter, req *RPCRequest) (crypto.Address, bool) {
	var params addressParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address params", err.Error())
		return crypto.Address{}, false
	}
	addr, err := crypto.DecodeAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}
