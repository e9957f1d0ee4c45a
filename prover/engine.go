package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/vocdoni/arbo"

	"github.com/vocdoni/zkdao/crypto/identity"
	"github.com/vocdoni/zkdao/log"
	"github.com/vocdoni/zkdao/types"
)

// Phase is a discrete progress marker of the action pipeline, for external
// observers. The proof engine emits PhaseProving and PhaseVerifying; the
// earlier markers belong to the steps that feed it.
type Phase string

const (
	PhaseDeriving  Phase = "deriving"
	PhasePath      Phase = "path"
	PhaseNullifier Phase = "nullifier"
	PhaseProving   Phase = "proving"
	PhaseVerifying Phase = "verifying"
)

// PhaseObserver receives phase markers. It must be fast and must not block.
type PhaseObserver func(Phase)

// Witness is the full input assignment of the membership circuit: the
// private identity material and inclusion path, and the public signals the
// verifier sees. Root carries the ledger's native byte encoding and is
// converted to a field element internally.
type Witness struct {
	Secret *big.Int
	Salt   *big.Int
	Path   *types.MembershipPath

	Root       types.HexBytes
	Nullifier  *big.Int
	GroupID    uint64
	ContextID  uint64
	Payload    *big.Int
	Commitment *big.Int
}

// PublicSignals returns the public part of the witness in the circuit's
// fixed order: root, nullifier, groupId, contextId, payload, commitment.
// This order is part of the circuit contract; a proof generated with the
// signals permuted verifies against nothing.
func (w *Witness) PublicSignals() []string {
	return []string{
		arbo.BytesToBigInt(w.Root).String(),
		w.Nullifier.String(),
		strconv.FormatUint(w.GroupID, 10),
		strconv.FormatUint(w.ContextID, 10),
		w.Payload.String(),
		w.Commitment.String(),
	}
}

// validate checks the witness dimensions and invariants before the expensive
// proving step. Everything it catches is a defect in the calling code.
func (w *Witness) validate() error {
	for name, v := range map[string]*big.Int{
		"secret":     w.Secret,
		"salt":       w.Salt,
		"nullifier":  w.Nullifier,
		"payload":    w.Payload,
		"commitment": w.Commitment,
	} {
		if v == nil {
			return fmt.Errorf("%w: missing %s", ErrWitnessConstruction, name)
		}
	}
	if w.Nullifier.Sign() == 0 {
		return fmt.Errorf("%w: zero nullifier", ErrWitnessConstruction)
	}
	if w.Path == nil {
		return fmt.Errorf("%w: missing membership path", ErrWitnessConstruction)
	}
	if got := len(w.Path.Siblings); got != types.GroupTreeMaxLevels {
		return fmt.Errorf("%w: path has %d levels, circuit expects %d",
			ErrWitnessConstruction, got, types.GroupTreeMaxLevels)
	}
	if len(w.Root) == 0 {
		return fmt.Errorf("%w: missing root", ErrWitnessConstruction)
	}
	// the commitment must be the one the secret and salt produce, or the
	// circuit constraints cannot be satisfied
	commitment, err := identity.Commitment(w.Secret, w.Salt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWitnessConstruction, err)
	}
	if commitment.Cmp(w.Commitment) != 0 {
		return fmt.Errorf("%w: commitment does not match secret and salt", ErrWitnessConstruction)
	}
	return nil
}

// inputs marshals the witness as the JSON input map the circom witness
// calculator expects, every value a decimal string.
func (w *Witness) inputs() ([]byte, error) {
	pathElements := make([]string, len(w.Path.Siblings))
	for i, sibling := range w.Path.Siblings {
		pathElements[i] = arbo.BytesToBigInt(sibling).String()
	}
	pathIndices := make([]string, len(w.Path.Siblings))
	for i, bit := range w.Path.PathIndices() {
		pathIndices[i] = strconv.Itoa(int(bit))
	}
	signals := w.PublicSignals()
	return json.Marshal(map[string]any{
		"secret":       w.Secret.String(),
		"salt":         w.Salt.String(),
		"pathElements": pathElements,
		"pathIndices":  pathIndices,
		"root":         signals[0],
		"nullifier":    signals[1],
		"groupId":      signals[2],
		"contextId":    signals[3],
		"payload":      signals[4],
		"commitment":   signals[5],
	})
}

// Engine turns witnesses into locally verified proofs. Proving is CPU-bound
// and takes seconds; Prove honors context cancellation throughout.
type Engine struct {
	backend Backend
	observe PhaseObserver
}

// NewEngine creates an Engine over the given backend.
func NewEngine(backend Backend) *Engine {
	return &Engine{backend: backend}
}

// Observe registers a phase observer. Pipelines forward it their own phase
// markers so a caller sees the whole deriving to verifying sequence.
func (e *Engine) Observe(fn PhaseObserver) {
	e.observe = fn
}

// Phase emits a phase marker to the registered observer, if any.
func (e *Engine) Phase(p Phase) {
	if e.observe != nil {
		e.observe(p)
	}
}

// Prove builds the witness assignment, generates a proof and re-verifies it
// against the same public signals before returning it. The verification gate
// is unconditional: a proof that fails it is a defect in proof construction
// or a corrupted artifact, and handing it to the relay would only turn the
// local error into an opaque on-chain rejection.
func (e *Engine) Prove(ctx context.Context, w *Witness) (*Proof, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	inputs, err := w.inputs()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWitnessConstruction, err)
	}

	e.Phase(PhaseProving)
	proof, err := e.proveCancelable(ctx, inputs)
	if err != nil {
		return nil, err
	}

	// the prover's reported public signals must be exactly the ones the
	// witness was built from, in order
	expected := w.PublicSignals()
	if len(proof.PubSignals) != len(expected) {
		return nil, fmt.Errorf("%w: got %d public signals, expected %d",
			ErrProofInvalid, len(proof.PubSignals), len(expected))
	}
	for i, signal := range expected {
		if proof.PubSignals[i] != signal {
			return nil, fmt.Errorf("%w: public signal %d mismatch", ErrProofInvalid, i)
		}
	}

	e.Phase(PhaseVerifying)
	if err := e.backend.Verify(proof); err != nil {
		log.Errorw("freshly generated proof failed local verification", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrProofInvalid, err)
	}
	return proof, nil
}

// proveCancelable runs the backend prover in a goroutine so the caller can
// abandon the wait. A canceled proof still runs to completion in the
// background; its result is discarded.
func (e *Engine) proveCancelable(ctx context.Context, inputs []byte) (*Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type result struct {
		proof *Proof
		err   error
	}
	done := make(chan result, 1)
	go func() {
		proof, err := e.backend.Prove(inputs)
		done <- result{proof, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.proof, res.err
	}
}
