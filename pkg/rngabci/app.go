// Copyright 2025 Certen Protocol
//
// ABCI application: hosts the randomness service's transaction logic on
// CometBFT. A mutex-guarded struct implementing abcitypes.Application,
// decoding/validating in CheckTx, executing against a single per-block
// fork in FinalizeBlock, and folding state into the app hash on Commit.

package rngabci

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"sync"

	abcitypes "github.com/cometbft/cometbft/abci/types"

	"github.com/certen/rng-validator/pkg/kvdb"
	"github.com/certen/rng-validator/pkg/rngschema"
	"github.com/certen/rng-validator/pkg/rngtx"
)

// RoundSink receives a best-effort notification whenever a round
// finalises. Implementations (audit log, dashboard mirror) must never
// block or fail Commit; App only logs their errors.
type RoundSink interface {
	RecordRound(ctx context.Context, height int64, seedHex, randomnessHex string, participants int) error
}

// App implements abcitypes.Application for the randomness service.
type App struct {
	mu sync.Mutex

	kv     kvdb.KV
	logger *log.Logger
	cfg    rngtx.Config

	height  int64
	appHash []byte

	validatorKeys []string

	fork *rngschema.Fork

	// roundJustFinalised and the finalised* fields back the
	// round-finalisation notification fired from Commit.
	roundJustFinalised  bool
	finalisedSeedHex    string
	finalisedRandomness string
	finalisedCount      int

	sinks []RoundSink
}

// New constructs an ABCI application persisting to kv.
func New(kv kvdb.KV, cfg rngtx.Config, sinks ...RoundSink) *App {
	return &App{
		kv:     kv,
		logger: log.New(log.Writer(), "[rngabci] ", log.LstdFlags),
		cfg:    cfg,
		sinks:  sinks,
	}
}

var _ abcitypes.Application = (*App)(nil)

// Info reports the last committed height and app hash. Both are held in
// memory only: they start at zero when the process starts and are not
// read back from the KV handle.
func (a *App) Info(ctx context.Context, req *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &abcitypes.ResponseInfo{
		Data:             "certen randomness beacon",
		Version:          "1.0.0",
		AppVersion:       1,
		LastBlockHeight:  a.height,
		LastBlockAppHash: a.appHash,
	}, nil
}

// InitChain records the genesis validator set. The randomness service
// treats it as N in the Byzantine threshold formula throughout.
func (a *App) InitChain(ctx context.Context, req *abcitypes.RequestInitChain) (*abcitypes.ResponseInitChain, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]string, 0, len(req.Validators))
	for _, v := range req.Validators {
		keys = append(keys, hex.EncodeToString(v.PubKeyBytes))
	}
	a.validatorKeys = keys
	a.logger.Printf("InitChain: chain=%s validators=%d", req.ChainId, len(keys))
	return &abcitypes.ResponseInitChain{}, nil
}

// CheckTx decodes and authenticates a transaction without executing it.
func (a *App) CheckTx(ctx context.Context, req *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	decoded, err := rngtx.Decode(req.Tx)
	if err != nil {
		return &abcitypes.ResponseCheckTx{Code: 1, Log: "decode: " + err.Error()}, nil
	}

	var ok bool
	switch decoded.Kind {
	case rngtx.KindPublishSeedCommitment:
		ok = decoded.SeedCommit.Verify()
	case rngtx.KindPublishVdfResult:
		ok = decoded.VdfResult.Verify()
	}
	if !ok {
		return &abcitypes.ResponseCheckTx{Code: 2, Log: "invalid signature"}, nil
	}

	return &abcitypes.ResponseCheckTx{Code: 0, GasWanted: 1}, nil
}

// FinalizeBlock executes every transaction in block order against a single
// fork shared by the whole block, so every validator applying the same
// block reaches the same state.
func (a *App) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.fork = rngschema.NewFork(a.kv)
	a.roundJustFinalised = false
	store := rngschema.New(a.fork)

	results := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, raw := range req.Txs {
		results[i] = &abcitypes.ExecTxResult{
			Events: a.executeOne(store, raw),
		}
	}

	a.logger.Printf("FinalizeBlock: height=%d txs=%d", req.Height, len(req.Txs))
	return &abcitypes.ResponseFinalizeBlock{TxResults: results}, nil
}

func (a *App) executeOne(store *rngschema.Store, raw []byte) []abcitypes.Event {
	decoded, err := rngtx.Decode(raw)
	if err != nil {
		return nil
	}

	n := len(a.validatorKeys)

	switch decoded.Kind {
	case rngtx.KindPublishSeedCommitment:
		if !decoded.SeedCommit.Verify() {
			return nil
		}
		tx := rngtx.TxPublishSeedCommitment{
			PubKeyHex: hex.EncodeToString(decoded.SeedCommit.Payload.PubKey),
			Value:     decoded.SeedCommit.Payload.Value,
		}
		if err := tx.Execute(store, n); err != nil {
			a.logger.Printf("executing seed commitment: %v", err)
			return nil
		}
		return []abcitypes.Event{{
			Type: "seed_commitment",
			Attributes: []abcitypes.EventAttribute{
				{Key: "pub_key", Value: tx.PubKeyHex},
			},
		}}

	case rngtx.KindPublishVdfResult:
		if !decoded.VdfResult.Verify() {
			return nil
		}
		tx := rngtx.TxPublishVdfResult{
			PubKeyHex: hex.EncodeToString(decoded.VdfResult.Payload.PubKey),
			Seed:      decoded.VdfResult.Payload.Seed,
			Value:     decoded.VdfResult.Payload.Value,
		}

		randomnessBefore, hadRandomnessBefore, _ := store.Randomness()
		resultsBefore, _ := store.VdfResults()

		if err := tx.Execute(store, n, a.cfg); err != nil {
			a.logger.Printf("executing vdf result: %v", err)
			return nil
		}

		randomnessAfter, hasRandomnessAfter, _ := store.Randomness()
		finalised := hasRandomnessAfter && (!hadRandomnessBefore || string(randomnessBefore) != string(randomnessAfter))
		if finalised {
			a.roundJustFinalised = true
			a.finalisedRandomness = hex.EncodeToString(randomnessAfter)
			a.finalisedSeedHex = hex.EncodeToString(tx.Seed[:])
			// Finalisation clears VDF_RESULTS, so count the results
			// recorded before this transaction plus its own.
			count := len(resultsBefore)
			if _, ok := resultsBefore[tx.PubKeyHex]; !ok {
				count++
			}
			a.finalisedCount = count
		}

		return []abcitypes.Event{{
			Type: "vdf_result",
			Attributes: []abcitypes.EventAttribute{
				{Key: "pub_key", Value: tx.PubKeyHex},
			},
		}}
	}
	return nil
}

// Commit persists the block's fork and recomputes the app hash from the
// service's own state-hash contribution. Round sinks are notified on a
// separate goroutine, so Commit does not wait for them.
func (a *App) Commit(ctx context.Context, req *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	a.mu.Lock()

	if a.fork != nil {
		if err := a.fork.Commit(a.kv); err != nil {
			a.mu.Unlock()
			return nil, fmt.Errorf("commit fork: %w", err)
		}
		a.fork = nil
	}

	store := rngschema.New(a.kv)
	stateHash, err := store.StateHash()
	if err != nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("compute state hash: %w", err)
	}
	a.appHash = appHashBytes(stateHash)
	a.height++

	justFinalised := a.roundJustFinalised
	seedHex, randomnessHex, count := a.finalisedSeedHex, a.finalisedRandomness, a.finalisedCount
	height := a.height
	sinks := a.sinks
	a.mu.Unlock()

	if justFinalised && len(sinks) > 0 {
		go func() {
			for _, sink := range sinks {
				if err := sink.RecordRound(context.Background(), height, seedHex, randomnessHex, count); err != nil {
					a.logger.Printf("round sink failed (non-fatal): %v", err)
				}
			}
		}()
	}

	return &abcitypes.ResponseCommit{}, nil
}

func appHashBytes(h rngschema.StateHash) []byte {
	out := make([]byte, 0, 96)
	out = append(out, h.CommitmentsRoot[:]...)
	out = append(out, h.SeedHash[:]...)
	out = append(out, h.RandomnessHash[:]...)
	return out
}

// Query serves read-only lookups over the committed state.
func (a *App) Query(ctx context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	store := rngschema.New(a.kv)

	switch req.Path {
	case "/rng/height":
		return &abcitypes.ResponseQuery{Code: 0, Value: []byte(fmt.Sprintf("%d", a.height))}, nil

	case "/rng/randomness":
		v, ok, err := store.Randomness()
		if err != nil {
			return &abcitypes.ResponseQuery{Code: 1, Log: err.Error()}, nil
		}
		if !ok {
			return &abcitypes.ResponseQuery{Code: 1, Log: "no randomness recorded yet"}, nil
		}
		return &abcitypes.ResponseQuery{Code: 0, Value: v}, nil

	case "/rng/commitment":
		pubKeyHex := string(req.Data)
		has, err := store.HasCommitment(pubKeyHex)
		if err != nil {
			return &abcitypes.ResponseQuery{Code: 1, Log: err.Error()}, nil
		}
		if !has {
			return &abcitypes.ResponseQuery{Code: 1, Log: "no commitment for key"}, nil
		}
		commitments, err := store.Commitments()
		if err != nil {
			return &abcitypes.ResponseQuery{Code: 1, Log: err.Error()}, nil
		}
		return &abcitypes.ResponseQuery{Code: 0, Value: []byte(commitments[pubKeyHex])}, nil

	default:
		return &abcitypes.ResponseQuery{Code: 2, Log: "unknown query path: " + req.Path}, nil
	}
}

// PrepareProposal passes transactions through unmodified; the
// randomness service has no reordering or injection needs.
func (a *App) PrepareProposal(ctx context.Context, req *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	return &abcitypes.ResponsePrepareProposal{Txs: req.Txs}, nil
}

// ProcessProposal accepts any proposal whose transactions all decode and
// authenticate; execution-time validity is re-checked in FinalizeBlock.
func (a *App) ProcessProposal(ctx context.Context, req *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	for _, raw := range req.Txs {
		decoded, err := rngtx.Decode(raw)
		if err != nil {
			return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}, nil
		}
		var ok bool
		switch decoded.Kind {
		case rngtx.KindPublishSeedCommitment:
			ok = decoded.SeedCommit.Verify()
		case rngtx.KindPublishVdfResult:
			ok = decoded.VdfResult.Verify()
		}
		if !ok {
			return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}, nil
		}
	}
	return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_ACCEPT}, nil
}

// ExtendVote and VerifyVoteExtension are unused: this service has no
// need for vote extensions.
func (a *App) ExtendVote(ctx context.Context, req *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (a *App) VerifyVoteExtension(ctx context.Context, req *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

// State-sync snapshots are not supported; the randomness service's state
// is small enough that new nodes simply replay from genesis.
func (a *App) ListSnapshots(ctx context.Context, req *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

func (a *App) OfferSnapshot(ctx context.Context, req *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{Result: abcitypes.ResponseOfferSnapshot_REJECT}, nil
}

func (a *App) LoadSnapshotChunk(ctx context.Context, req *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

func (a *App) ApplySnapshotChunk(ctx context.Context, req *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{Result: abcitypes.ResponseApplySnapshotChunk_REJECT}, nil
}

// ValidatorKeys returns the current validator set's public keys (hex),
// for the post-block driver's own view of N.
func (a *App) ValidatorKeys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.validatorKeys...)
}

// Snapshot returns a read-only schema view over the latest committed
// state, for the post-block driver and HTTP ingress to read from.
func (a *App) Snapshot() *rngschema.Store {
	return rngschema.New(a.kv)
}
