package prover

import (
	"encoding/json"
	"fmt"

	"github.com/vocdoni/circom2gnark/parser"
)

// RelayVerifier checks submitted proofs the way the on-chain verifier does.
// It converts the circom proof to the gnark format and verifies it against
// the circuit verification key, parsed once at construction.
type RelayVerifier struct {
	vkey *parser.CircomVerificationKey
}

// NewRelayVerifier parses the snarkjs verification key JSON.
func NewRelayVerifier(vkey []byte) (*RelayVerifier, error) {
	vkeyData, err := parser.UnmarshalCircomVerificationKeyJSON(vkey)
	if err != nil {
		return nil, fmt.Errorf("parsing verification key: %w", err)
	}
	return &RelayVerifier{vkey: vkeyData}, nil
}

// Verify converts the proof to gnark form and verifies it. A non-nil error
// means the proof is invalid or malformed.
func (rv *RelayVerifier) Verify(p *Proof) error {
	// round-trip through the snarkjs JSON form, which the parser expects
	proofJSON, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("encoding proof: %w", err)
	}
	proofData, err := parser.UnmarshalCircomProofJSON(proofJSON)
	if err != nil {
		return fmt.Errorf("parsing proof: %w", err)
	}
	gnarkProof, err := parser.ConvertCircomToGnark(proofData, rv.vkey, p.PubSignals)
	if err != nil {
		return fmt.Errorf("converting proof to gnark: %w", err)
	}
	if ok, err := parser.VerifyProof(gnarkProof); !ok || err != nil {
		return fmt.Errorf("proof verification failed: %v", err)
	}
	return nil
}
