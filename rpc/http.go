package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"markertransfer/contract"
	"markertransfer/core"
	"markertransfer/core/types"
	"markertransfer/native/marker"
	"markertransfer/observability"
	"markertransfer/rpc/middleware"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	moduleName      = "rpc"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeNotFound       = -32004
	codeForbidden      = -32003
	codeConflict       = -32009
	codeNonceMismatch  = -32011
	codeUnavailable    = -32012
	codeRateLimited    = -32020
)

// Backend is the node surface the server exposes.
type Backend interface {
	ChainID() string
	EscrowAddress() [20]byte
	Execute(ctx context.Context, tx *types.Transaction) (*core.Receipt, error)
	Query(ctx context.Context, msg contract.QueryMsg) (interface{}, error)
	Marker(denom string) (*marker.Marker, error)
	Balance(account [20]byte, denom string) (*big.Int, error)
	Allowance(granter [20]byte, denom string) (*big.Int, error)
	Nonce(account [20]byte) (uint64, error)
}

type ServerConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Auth           middleware.AuthConfig
	RateLimit      middleware.RateLimit
	AllowedOrigins []string
	LogRequests    bool
}

type Server struct {
	node    Backend
	cfg     ServerConfig
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	hub     *Hub
	handler http.Handler
}

func NewServer(node Backend, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:    node,
		cfg:     cfg,
		logger:  logger,
		auth:    middleware.NewAuthenticator(cfg.Auth),
		limiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{moduleName: cfg.RateLimit}, logger),
		obs:     middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "rmtd", LogRequests: cfg.LogRequests}, logger),
		hub:     NewHub(logger),
	}
	if !s.auth.Enabled() {
		logger.Warn("rpc authentication disabled; transactions are accepted on signature alone")
	}
	s.handler = s.routes()
	return s, nil
}

// Hub returns the event stream fed by committed transactions.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}))
	r.With(s.obs.Middleware("rpc"), s.limiter.Middleware(moduleName)).Post("/", s.handle)
	r.With(s.obs.Middleware("healthz")).Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.obs.MetricsHandler())
	r.With(s.obs.Middleware("ws")).Get("/ws/events", s.hub.ServeHTTP)
	return otelhttp.NewHandler(r, "rmt-rpc")
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", slog.String("rpc_addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc: shutdown: %w", err)
	}
	return nil
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id,omitempty"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data interface{}) {
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
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: responseID(id), Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: responseID(id), Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func responseID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "chainId": s.node.ChainID()})
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest) int

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"rmt_sendTransaction": s.handleSendTransaction,
		"rmt_getTransfer":     s.handleGetTransfer,
		"rmt_listTransfers":   s.handleListTransfers,
		"rmt_contractInfo":    s.handleContractInfo,
		"rmt_versionInfo":     s.handleVersionInfo,
		"rmt_query":           s.handleQuery,
		"rmt_getNonce":        s.handleGetNonce,
		"rmt_escrowAddress":   s.handleEscrowAddress,
		"rmt_chainId":         s.handleChainID,
		"marker_get":          s.handleMarkerGet,
		"marker_balance":      s.handleMarkerBalance,
		"marker_allowance":    s.handleMarkerAllowance,
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
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
	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		observability.ModuleMetrics().Observe(moduleName, "unknown", http.StatusNotFound, 0)
		return
	}
	start := time.Now()
	status := handler(w, r, req)
	observability.ModuleMetrics().Observe(moduleName, req.Method, status, time.Since(start))
}

// decodeParam strictly decodes the single object parameter into out.
func decodeParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid parameter object: %w", err)
	}
	return nil
}

func (s *Server) invalidParams(w http.ResponseWriter, req *RPCRequest, err error) int {
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	return http.StatusBadRequest
}

type errorData struct {
	Kind string `json:"kind"`
}

// writeNodeError maps a node or contract failure onto a JSON-RPC error whose
// data carries the error kind.
func (s *Server) writeNodeError(w http.ResponseWriter, req *RPCRequest, err error) int {
	kind := core.ErrorKind(err)
	status, code := classify(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("rpc call failed", slog.String("method", req.Method), slog.Any("error", err))
		message = "internal error"
	}
	writeError(w, status, req.ID, code, message, errorData{Kind: kind})
	return status
}

func classify(kind string) (int, int) {
	switch kind {
	case "NotFound", "NotInstantiated", "MarkerNotFound":
		return http.StatusNotFound, codeNotFound
	case "Unauthorized":
		return http.StatusForbidden, codeForbidden
	case "InvalidSignature":
		return http.StatusUnauthorized, codeUnauthorized
	case "DuplicateId", "InvalidStateTransition", "AlreadyInstantiated":
		return http.StatusConflict, codeConflict
	case "NonceMismatch":
		return http.StatusConflict, codeNonceMismatch
	case "ModulePaused":
		return http.StatusServiceUnavailable, codeUnavailable
	case "QuotaExceeded":
		return http.StatusTooManyRequests, codeRateLimited
	case "InvalidFields", "InvalidAmount", "SameAccount", "UnsupportedMarkerType",
		"SentFundsUnsupported", "InsufficientFunds", "MalformedMessage", "MalformedGrant",
		"UnknownTxType", "ChainIdMismatch", "EscrowFailed", "InvalidContractType", "UnsupportedUpgrade":
		return http.StatusBadRequest, codeInvalidParams
	case "Cancelled":
		return http.StatusRequestTimeout, codeServerError
	default:
		return http.StatusInternalServerError, codeServerError
	}
}
