// Package prover builds and checks the groth16 membership proofs. It wraps
// go-rapidsnark (https://github.com/iden3/go-rapidsnark) for witness
// calculation, proving and local verification, and circom2gnark for the
// verification the relay performs on submitted proofs.
package prover

import (
	"encoding/json"
	"fmt"

	"github.com/iden3/go-rapidsnark/prover"
	rapidtypes "github.com/iden3/go-rapidsnark/types"
	"github.com/iden3/go-rapidsnark/verifier"
	"github.com/iden3/go-rapidsnark/witness"
)

var (
	// ErrWitnessConstruction covers malformed witness inputs: missing
	// values, a path with the wrong number of levels, a zero nullifier or
	// anything the witness calculator rejects. Always a defect in the
	// calling code.
	ErrWitnessConstruction = fmt.Errorf("witness construction failed")
	// ErrArtifactUnavailable means the circuit wasm, proving key or
	// verification key is missing or corrupt.
	ErrArtifactUnavailable = fmt.Errorf("proving artifact unavailable")
	// ErrProofGeneration wraps failures of the groth16 prover itself.
	ErrProofGeneration = fmt.Errorf("proof generation failed")
	// ErrProofInvalid means a freshly generated proof failed the local
	// verification gate. Such a proof is never submitted: it cannot
	// succeed on-chain and retrying without a code or artifact fix cannot
	// help.
	ErrProofInvalid = fmt.Errorf("proof failed local verification")
)

// ProofData holds the three curve points of a groth16 proof in the
// circom/snarkjs JSON format. The coordinate encoding is the proving
// artifact's own; it is carried verbatim to the wire codec, never
// re-normalized.
type ProofData struct {
	A []string   `json:"pi_a"`
	B [][]string `json:"pi_b"`
	C []string   `json:"pi_c"`
}

// Proof is a groth16 proof together with its ordered public signals, as
// decimal strings. Proofs are single-use: generated fresh per action and
// discarded after submission resolves.
type Proof struct {
	Data       ProofData `json:"data"`
	PubSignals []string  `json:"pubSignals"`
}

// ParseProof decodes the proof and public signal JSON blobs returned by the
// groth16 prover into a Proof.
func ParseProof(proofData, pubSignals []byte) (*Proof, error) {
	p := &Proof{}
	if err := json.Unmarshal(proofData, &p.Data); err != nil {
		return nil, fmt.Errorf("%w: decoding proof: %w", ErrProofGeneration, err)
	}
	if err := json.Unmarshal(pubSignals, &p.PubSignals); err != nil {
		return nil, fmt.Errorf("%w: decoding public signals: %w", ErrProofGeneration, err)
	}
	return p, nil
}

// Backend produces and checks proofs. The production implementation is
// Rapidsnark; tests substitute a stub since real circuit artifacts are large
// and slow.
type Backend interface {
	// Prove calculates the witness from the marshalled JSON inputs and
	// generates a proof.
	Prove(inputs []byte) (*Proof, error)
	// Verify checks a proof against its public signals. A nil return means
	// the proof is valid.
	Verify(proof *Proof) error
}

// Rapidsnark is the go-rapidsnark backed prover. It holds the circuit
// artifact bundle; EnsureLoaded must have been called on it before proving.
type Rapidsnark struct {
	artifacts *CircuitArtifacts
}

// NewRapidsnark creates a Rapidsnark backend over the given artifacts.
func NewRapidsnark(artifacts *CircuitArtifacts) *Rapidsnark {
	return &Rapidsnark{artifacts: artifacts}
}

// Prove calculates the witness for the JSON inputs with the wasm circuit and
// runs the groth16 prover with the zkey.
func (r *Rapidsnark) Prove(inputs []byte) (*Proof, error) {
	wasm := r.artifacts.Circuit()
	zkey := r.artifacts.ProvingKey()
	if len(wasm) == 0 || len(zkey) == 0 {
		return nil, fmt.Errorf("%w: circuit or proving key not loaded", ErrArtifactUnavailable)
	}
	wtns, err := calcWitness(wasm, inputs)
	if err != nil {
		return nil, err
	}
	proofData, pubSignals, err := prover.Groth16ProverRaw(zkey, wtns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofGeneration, err)
	}
	return ParseProof([]byte(proofData), []byte(pubSignals))
}

// Verify checks the proof with go-rapidsnark/verifier against the bundled
// verification key.
func (r *Rapidsnark) Verify(p *Proof) error {
	vkey := r.artifacts.VerifyingKey()
	if len(vkey) == 0 {
		return fmt.Errorf("%w: verification key not loaded", ErrArtifactUnavailable)
	}
	zkp := rapidtypes.ZKProof{
		Proof: &rapidtypes.ProofData{
			A: p.Data.A,
			B: p.Data.B,
			C: p.Data.C,
		},
		PubSignals: p.PubSignals,
	}
	if err := verifier.VerifyGroth16(zkp, vkey); err != nil {
		return fmt.Errorf("%w: %w", ErrProofInvalid, err)
	}
	return nil
}

// calcWitness runs the circom witness calculator. Bad inputs make the
// calculator panic, so the panic is recovered into an error.
func calcWitness(wasmBytes, inputsBytes []byte) (wtns []byte, panicErr error) {
	defer func() {
		if p := recover(); p != nil {
			err, _ := p.(error)
			panicErr = fmt.Errorf("%w: %v", ErrWitnessConstruction, err)
		}
	}()
	inputs, err := witness.ParseInputs(inputsBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing inputs: %w", ErrWitnessConstruction, err)
	}
	calculator, err := witness.NewCircom2WitnessCalculator(wasmBytes, true)
	if err != nil {
		return nil, fmt.Errorf("%w: instancing witness calculator: %w", ErrArtifactUnavailable, err)
	}
	w, err := calculator.CalculateWTNSBin(inputs, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWitnessConstruction, err)
	}
	return w, nil
}
