// Copyright 2025 Certen Protocol
//
// Post-block driver: runs on every validator immediately after a block
// commits and decides whether to submit a seed commitment or a VDF result,
// using only the authoritative replicated state as its source of truth so
// it is idempotent across node restarts.

package rngdriver

import (
	"bytes"
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"

	"github.com/cometbft/cometbft/crypto/ed25519"

	"github.com/certen/rng-validator/pkg/rngschema"
	"github.com/certen/rng-validator/pkg/rngtx"
	"github.com/certen/rng-validator/pkg/vdf"
)

// Sender forwards signed transactions to the consensus mempool. It is the
// driver's only side effect; everything else is computed from the
// read-only snapshot it is handed.
type Sender interface {
	SendSeedCommitment(ctx context.Context, env rngtx.SignedSeedCommitment) error
	SendVdfResult(ctx context.Context, env rngtx.SignedVdfResult) error
}

// Identity is the validator's own signing key for the randomness service.
// It is distinct from the CometBFT priv-validator key used for block
// signing, though a deployment may point both at the same key file.
type Identity struct {
	PubKey  ed25519.PubKey
	PrivKey ed25519.PrivKey
}

func (id Identity) pubKeyHex() string {
	return hex.EncodeToString(id.PubKey)
}

// Driver runs the post-block decision procedure against a snapshot
// handed to it after every committed block.
type Driver struct {
	identity Identity
	sender   Sender
	pool     *Pool
	logger   *log.Logger

	// cancelCurrent, if non-nil, cancels an in-flight VDF evaluation whose
	// seed no longer matches the replicated state.
	cancelCurrent context.CancelFunc
	currentSeed   []byte
}

// New constructs a driver that evaluates VDFs on pool and submits results
// through sender.
func New(identity Identity, sender Sender, pool *Pool) *Driver {
	return &Driver{
		identity: identity,
		sender:   sender,
		pool:     pool,
		logger:   log.New(log.Writer(), "[rngdriver] ", log.LstdFlags),
	}
}

// OnBlockCommitted runs the decision procedure against the just-committed
// snapshot. validatorKeys is the current validator set's public keys
// (hex), in the host's configuration order.
func (d *Driver) OnBlockCommitted(ctx context.Context, snapshot *rngschema.Store, validatorKeys []string) {
	pubKeyHex := d.identity.pubKeyHex()

	if !isValidator(pubKeyHex, validatorKeys) {
		return
	}

	has, err := snapshot.HasCommitment(pubKeyHex)
	if err != nil {
		d.logger.Printf("reading commitment state: %v", err)
		return
	}
	if !has {
		d.cancelInFlightEvaluation()
		d.submitSeedCommitment(ctx, pubKeyHex)
		return
	}

	seed, hasSeed, err := snapshot.Seed()
	if err != nil {
		d.logger.Printf("reading seed: %v", err)
		return
	}
	if !hasSeed {
		d.cancelInFlightEvaluation()
		return
	}

	if d.currentSeed != nil && bytes.Equal(d.currentSeed, seed) {
		// Already evaluating this round's seed; nothing new to do.
		return
	}

	d.cancelInFlightEvaluation()
	d.startVdfEvaluation(ctx, pubKeyHex, seed)
}

// OnNewRound should be called whenever the driver observes a SEED change
// that it was not itself the cause of evaluating against, so any
// in-flight evaluation for a now-stale seed is abandoned promptly. In
// practice OnBlockCommitted's own seed comparison already implements
// this; OnNewRound exists for callers that want to react before the next
// full decision pass (e.g. a dedicated event-bus subscriber).
func (d *Driver) OnNewRound(seed []byte) {
	if d.currentSeed != nil && !bytes.Equal(d.currentSeed, seed) {
		d.cancelInFlightEvaluation()
	}
}

func (d *Driver) submitSeedCommitment(ctx context.Context, pubKeyHex string) {
	value, err := randomUint64Decimal()
	if err != nil {
		d.logger.Printf("generating seed contribution: %v", err)
		return
	}

	env, err := rngtx.SignSeedCommitment(d.identity.PrivKey, d.identity.PubKey, value)
	if err != nil {
		d.logger.Printf("signing seed commitment: %v", err)
		return
	}

	if err := d.sender.SendSeedCommitment(ctx, env); err != nil {
		// A mempool submission failure is logged and not retried here.
		// No commitment is recorded for this validator, so the next
		// committed block runs this path again with a fresh value.
		d.logger.Printf("submitting seed commitment %s: %v", pubKeyHex, err)
	}
}

func (d *Driver) startVdfEvaluation(parent context.Context, pubKeyHex string, seed []byte) {
	ctx, cancel := context.WithCancel(parent)
	d.cancelCurrent = cancel
	d.currentSeed = append([]byte(nil), seed...)

	var seedArr [32]byte
	copy(seedArr[:], seed)

	d.pool.Submit(ctx, func(ctx context.Context) {
		value, ok := vdf.Evaluate(seed)
		if !ok {
			d.logger.Printf("evaluating vdf: malformed seed %x", seed)
			return
		}
		if ctx.Err() != nil {
			// Round moved on before evaluation finished; cancellation
			// lets this drop silently.
			return
		}

		env, err := rngtx.SignVdfResult(d.identity.PrivKey, d.identity.PubKey, seedArr, value)
		if err != nil {
			d.logger.Printf("signing vdf result: %v", err)
			return
		}
		if err := d.sender.SendVdfResult(ctx, env); err != nil {
			d.logger.Printf("submitting vdf result %s: %v", pubKeyHex, err)
		}
	})
}

func (d *Driver) cancelInFlightEvaluation() {
	if d.cancelCurrent != nil {
		d.cancelCurrent()
		d.cancelCurrent = nil
	}
	d.currentSeed = nil
}

func isValidator(pubKeyHex string, validatorKeys []string) bool {
	for _, k := range validatorKeys {
		if k == pubKeyHex {
			return true
		}
	}
	return false
}

// randomUint64Decimal draws a uniform 64-bit integer from a
// non-deterministic source and renders it as a decimal string, matching
// the commitment value's wire format. This is the one place in the
// randomness service allowed to touch real randomness, since its output
// only ever reaches consensus as the content of a signed transaction.
func randomUint64Decimal() (string, error) {
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	v := binary.BigEndian.Uint64(buf[:])
	return strconv.FormatUint(v, 10), nil
}
