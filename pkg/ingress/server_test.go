// Copyright 2025 Certen Protocol

package ingress

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cometbft/cometbft/crypto/ed25519"

	"github.com/certen/rng-validator/pkg/auditlog"
	"github.com/certen/rng-validator/pkg/kvdb"
	"github.com/certen/rng-validator/pkg/rngschema"
	"github.com/certen/rng-validator/pkg/rngtx"
)

type fakeBroadcaster struct {
	lastTx []byte
	hash   []byte
	code   uint32
	log    string
	err    error
}

func (f *fakeBroadcaster) BroadcastTxSync(ctx context.Context, tx []byte) ([]byte, uint32, string, error) {
	f.lastTx = tx
	return f.hash, f.code, f.log, f.err
}

type fakeSnapshotter struct {
	store *rngschema.Store
}

func (f *fakeSnapshotter) Snapshot() *rngschema.Store { return f.store }

type fakeHistory struct {
	rounds  []auditlog.Round
	healthy bool
}

func (f *fakeHistory) History(ctx context.Context, limit int) ([]auditlog.Round, error) {
	if limit < len(f.rounds) {
		return f.rounds[:limit], nil
	}
	return f.rounds, nil
}

func (f *fakeHistory) Healthy(ctx context.Context) error {
	if f.healthy {
		return nil
	}
	return errUnhealthy
}

var errUnhealthy = &testErr{"audit log unreachable"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

func newTestServer() (*Server, *fakeBroadcaster, *fakeSnapshotter) {
	store := rngschema.New(kvdb.NewMemoryKV())
	snap := &fakeSnapshotter{store: store}
	bc := &fakeBroadcaster{hash: []byte{0xAB, 0xCD}}
	s := New(bc, snap)
	return s, bc, snap
}

func mux(s *Server) *http.ServeMux {
	m := http.NewServeMux()
	s.Routes(m)
	return m
}

func TestHandleSubmitSeedCommitment(t *testing.T) {
	s, bc, _ := newTestServer()
	priv := ed25519.GenPrivKey()
	pub := priv.PubKey().(ed25519.PubKey)

	env, err := rngtx.SignSeedCommitment(priv, pub, "111")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	body := map[string]string{
		"kind":      "seed_commitment",
		"pub_key":   hex.EncodeToString(pub),
		"value":     "111",
		"signature": hex.EncodeToString(env.Signature),
	}

	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/tx", strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()

	mux(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp txResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TxHash != hex.EncodeToString(bc.hash) {
		t.Fatalf("unexpected tx hash: %s", resp.TxHash)
	}
	if bc.lastTx == nil {
		t.Fatalf("expected a transaction to be broadcast")
	}
}

func TestHandleSubmitRejectsBadSignature(t *testing.T) {
	s, _, _ := newTestServer()
	priv := ed25519.GenPrivKey()
	pub := priv.PubKey().(ed25519.PubKey)

	env, err := rngtx.SignSeedCommitment(priv, pub, "999") // signs a different value than what's submitted
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	body := map[string]string{
		"kind":      "seed_commitment",
		"pub_key":   hex.EncodeToString(pub),
		"value":     "111",
		"signature": hex.EncodeToString(env.Signature),
	}
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/tx", strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()

	mux(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleStateReportsCounts(t *testing.T) {
	s, _, snap := newTestServer()
	if err := snap.store.PutCommitment("abc", "111"); err != nil {
		t.Fatalf("put commitment: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/rng/state", nil)
	rec := httptest.NewRecorder()
	mux(s).ServeHTTP(rec, req)

	var resp stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CommitmentsCount != 1 {
		t.Fatalf("expected 1 commitment, got %d", resp.CommitmentsCount)
	}
	if resp.SeedSet {
		t.Fatalf("expected seed unset")
	}
}

func TestHandleHistoryWithoutAuditLogReturns501(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/rng/history", nil)
	rec := httptest.NewRecorder()
	mux(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestHandleHistoryWithAuditLog(t *testing.T) {
	store := rngschema.New(kvdb.NewMemoryKV())
	snap := &fakeSnapshotter{store: store}
	bc := &fakeBroadcaster{}
	hist := &fakeHistory{rounds: []auditlog.Round{{Height: 2}, {Height: 1}}, healthy: true}
	s := New(bc, snap, WithHistoryReader(hist))

	req := httptest.NewRequest(http.MethodGet, "/rng/history?limit=1", nil)
	rec := httptest.NewRecorder()
	mux(s).ServeHTTP(rec, req)

	var rounds []auditlog.Round
	if err := json.Unmarshal(rec.Body.Bytes(), &rounds); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rounds) != 1 {
		t.Fatalf("expected limit to be respected, got %d rounds", len(rounds))
	}
}

func TestHandleHealth(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

