// Copyright 2025 Certen Protocol
//
// Transaction ingress API: accepts signed randomness transactions over
// HTTP and forwards them to the CometBFT mempool. Plain net/http.Handler
// methods, JSON responses, http.Error for failures. BroadcastTxSync calls
// retry on timeout with a growing per-attempt deadline.

package ingress

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/certen/rng-validator/pkg/auditlog"
	"github.com/certen/rng-validator/pkg/rngschema"
	"github.com/certen/rng-validator/pkg/rngtx"
)

// Broadcaster submits a raw transaction to the mempool and returns its
// hash once CheckTx has accepted it. The production implementation
// wraps a cometbft/rpc/client/http.HTTP client's BroadcastTxSync.
type Broadcaster interface {
	BroadcastTxSync(ctx context.Context, tx []byte) (hash []byte, code uint32, log string, err error)
}

// Snapshotter exposes the latest committed state for read-only
// queries, implemented by *rngabci.App.
type Snapshotter interface {
	Snapshot() *rngschema.Store
}

// HistoryReader serves the recent-rounds feed, implemented by
// *auditlog.Store. Optional: nil when no audit log is configured.
type HistoryReader interface {
	History(ctx context.Context, limit int) ([]auditlog.Round, error)
	Healthy(ctx context.Context) error
}

// Server hosts the randomness service's HTTP surface.
type Server struct {
	broadcaster Broadcaster
	app         Snapshotter
	history     HistoryReader
	logger      *log.Logger

	maxRetries  int
	baseTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithHistoryReader attaches the optional audit-log-backed history feed.
func WithHistoryReader(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

// New constructs a transaction ingress server.
func New(broadcaster Broadcaster, app Snapshotter, opts ...Option) *Server {
	s := &Server{
		broadcaster: broadcaster,
		app:         app,
		logger:      log.New(log.Writer(), "[Ingress] ", log.LstdFlags),
		maxRetries:  3,
		baseTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes registers this server's handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/tx", s.handleSubmitTx)
	mux.HandleFunc("/rng/state", s.handleState)
	mux.HandleFunc("/rng/history", s.handleHistory)
	mux.HandleFunc("/health", s.handleHealth)
}

type txRequest struct {
	Kind string `json:"kind"`

	// seed commitment fields
	PubKey    string `json:"pub_key"`
	Value     string `json:"value"`
	Signature string `json:"signature"`

	// vdf result fields (Seed in addition to the above)
	Seed string `json:"seed"`
}

type txResponse struct {
	TxHash string `json:"tx_hash"`
}

// handleSubmitTx handles POST /tx. The body carries the same hex-encoded
// fields as the wire envelope; the kind tag picks which one.
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req txRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid request body: %s"}`, err.Error()), http.StatusBadRequest)
		return
	}

	raw, err := encodeTx(req)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%s"}`, err.Error()), http.StatusBadRequest)
		return
	}

	decoded, err := rngtx.Decode(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"decode: %s"}`, err.Error()), http.StatusBadRequest)
		return
	}
	var verified bool
	switch decoded.Kind {
	case rngtx.KindPublishSeedCommitment:
		verified = decoded.SeedCommit.Verify()
	case rngtx.KindPublishVdfResult:
		verified = decoded.VdfResult.Verify()
	}
	if !verified {
		http.Error(w, `{"error":"invalid signature"}`, http.StatusBadRequest)
		return
	}

	hash, code, logMsg, err := s.broadcastWithRetry(r.Context(), raw)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"broadcast failed: %s"}`, err.Error()), http.StatusBadGateway)
		return
	}
	if code != 0 {
		http.Error(w, fmt.Sprintf(`{"error":"rejected by mempool: %s"}`, logMsg), http.StatusUnprocessableEntity)
		return
	}

	json.NewEncoder(w).Encode(txResponse{TxHash: hex.EncodeToString(hash)})
}

func encodeTx(req txRequest) ([]byte, error) {
	pubKey, err := hex.DecodeString(req.PubKey)
	if err != nil {
		return nil, fmt.Errorf("decode pub_key: %w", err)
	}
	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	switch req.Kind {
	case "seed_commitment":
		env := rngtx.SignedSeedCommitment{
			Payload:   rngtx.SeedCommitmentPayload{PubKey: pubKey, Value: req.Value},
			Signature: sig,
		}
		return rngtx.EncodeSeedCommitment(env)

	case "vdf_result":
		seedBytes, err := hex.DecodeString(req.Seed)
		if err != nil || len(seedBytes) != 32 {
			return nil, fmt.Errorf("decode seed: invalid hex or length")
		}
		var seed [32]byte
		copy(seed[:], seedBytes)
		env := rngtx.SignedVdfResult{
			Payload:   rngtx.VdfResultPayload{PubKey: pubKey, Seed: seed, Value: req.Value},
			Signature: sig,
		}
		return rngtx.EncodeVdfResult(env)

	default:
		return nil, fmt.Errorf("unknown transaction kind %q", req.Kind)
	}
}

// broadcastWithRetry submits tx via BroadcastTxSync, retrying on
// deadline-exceeded/connection-refused errors with a growing timeout.
func (s *Server) broadcastWithRetry(ctx context.Context, tx []byte) (hash []byte, code uint32, logMsg string, err error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		timeout := s.baseTimeout + time.Duration(attempt-1)*2*time.Second
		syncCtx, cancel := context.WithTimeout(ctx, timeout)
		hash, code, logMsg, err = s.broadcaster.BroadcastTxSync(syncCtx, tx)
		cancel()

		if err == nil {
			return hash, code, logMsg, nil
		}
		if ctx.Err() != nil {
			return nil, 0, "", fmt.Errorf("broadcast: %w", err)
		}
		if strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "connection refused") {
			if attempt < s.maxRetries {
				s.logger.Printf("broadcast attempt %d/%d failed, retrying: %v", attempt, s.maxRetries, err)
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
		}
		return nil, 0, "", fmt.Errorf("broadcast: %w", err)
	}
	return nil, 0, "", fmt.Errorf("broadcast: failed after %d attempts", s.maxRetries)
}

type stateResponse struct {
	CommitmentsCount int    `json:"commitments_count"`
	VdfResultsCount  int    `json:"vdf_results_count"`
	SeedSet          bool   `json:"seed_set"`
	Randomness       string `json:"randomness,omitempty"`
}

// handleState handles GET /rng/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	store := s.app.Snapshot()
	numCommitments, err := store.NumCommitments()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%s"}`, err.Error()), http.StatusInternalServerError)
		return
	}
	numVdfResults, err := store.NumVdfResults()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%s"}`, err.Error()), http.StatusInternalServerError)
		return
	}
	_, hasSeed, err := store.Seed()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%s"}`, err.Error()), http.StatusInternalServerError)
		return
	}
	resp := stateResponse{
		CommitmentsCount: numCommitments,
		VdfResultsCount:  numVdfResults,
		SeedSet:          hasSeed,
	}
	if randomness, ok, err := store.Randomness(); err == nil && ok {
		resp.Randomness = hex.EncodeToString(randomness)
	}
	json.NewEncoder(w).Encode(resp)
}

// handleHistory handles GET /rng/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.history == nil {
		http.Error(w, `{"error":"audit log not configured"}`, http.StatusNotImplemented)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, `{"error":"invalid limit parameter"}`, http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	rounds, err := s.history.History(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%s"}`, err.Error()), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(rounds)
}

type healthResponse struct {
	Healthy   bool   `json:"healthy"`
	AuditLog  string `json:"audit_log"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{Healthy: true, AuditLog: "disabled"}
	if s.history != nil {
		if err := s.history.Healthy(r.Context()); err != nil {
			resp.AuditLog = "unhealthy: " + err.Error()
			resp.Healthy = false
		} else {
			resp.AuditLog = "healthy"
		}
	}

	if !resp.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
