package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"tapfaucet/core"
	"tapfaucet/native/dispenser"
	"tapfaucet/observability"
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
	// Dispenser outcomes get distinct codes so clients can tell the
	// retryable cooldown rejection from permanent failures.
	codeAlreadyInitialized = -32021
	codeUninitialized      = -32022
	codeCooldownActive     = -32023
	codeTransferFailed     = -32024
)

// Server exposes the dispenser over JSON-RPC 2.0. Admin methods are gated by
// a bearer token from the TAP_RPC_TOKEN environment variable; claims are
// authenticated by signature recovery instead.
type Server struct {
	node   *core.Node
	logger *slog.Logger

	authToken string

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastNonces map[string]uint64

	claimRate  rate.Limit
	claimBurst int
}

// ServerOption tweaks server construction.
type ServerOption func(*Server)

// WithClaimRate bounds how many claims a single source may submit.
func WithClaimRate(perMinute, burst int) ServerOption {
	return func(s *Server) {
		if perMinute > 0 {
			s.claimRate = rate.Limit(float64(perMinute) / 60.0)
		}
		if burst > 0 {
			s.claimBurst = burst
		}
	}
}

func NewServer(node *core.Node, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:       node,
		logger:     logger,
		authToken:  strings.TrimSpace(os.Getenv("TAP_RPC_TOKEN")),
		limiters:   make(map[string]*rate.Limiter),
		lastNonces: make(map[string]uint64),
		claimRate:  rate.Limit(1),
		claimBurst: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler serving the RPC endpoint and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
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
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// handle routes a JSON-RPC request to its method handler.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() { _ = reader.Close() }()

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

	start := time.Now()
	defer func() {
		observability.Faucet().Latency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}()

	switch req.Method {
	case "tap_initialize":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleInitialize(w, req)
	case "tap_fund":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleFund(w, req)
	case "tap_claim":
		if !s.allowSource(sourceAddr(r)) {
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "claim rate exceeded, retry later", nil)
			return
		}
		s.handleClaim(w, req)
	case "tap_getConfig":
		s.handleGetConfig(w, req)
	case "tap_getBalance":
		s.handleGetBalance(w, req)
	case "tap_getLastTap":
		s.handleGetLastTap(w, req)
	case "tap_nextClaimAt":
		s.handleNextClaimAt(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func sourceAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.claimRate, s.claimBurst)
		s.limiters[source] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

// checkNonce enforces strictly increasing claim nonces per user to stop
// signature replays. The window is in-memory: it protects the transport, the
// cooldown itself lives in persistent state.
func (s *Server) checkNonce(user string, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastNonces[user]; ok && nonce <= last {
		return fmt.Errorf("nonce %d already used (last %d)", nonce, last)
	}
	s.lastNonces[user] = nonce
	return nil
}

// dispenserError maps engine failures to distinguishable RPC errors.
func dispenserError(err error) (int, int) {
	switch {
	case errors.Is(err, dispenser.ErrAlreadyInitialized):
		return http.StatusConflict, codeAlreadyInitialized
	case errors.Is(err, dispenser.ErrUninitialized):
		return http.StatusConflict, codeUninitialized
	case errors.Is(err, dispenser.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, dispenser.ErrCooldownActive):
		return http.StatusTooManyRequests, codeCooldownActive
	case errors.Is(err, dispenser.ErrTransferFailed):
		return http.StatusConflict, codeTransferFailed
	case errors.Is(err, dispenser.ErrAmountOverflow), errors.Is(err, dispenser.ErrInvalidConfig):
		return http.StatusBadRequest, codeInvalidParams
	default:
		return http.StatusInternalServerError, codeServerError
	}
}
