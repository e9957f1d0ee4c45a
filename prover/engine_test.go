package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo"

	"github.com/vocdoni/zkdao/crypto/identity"
	"github.com/vocdoni/zkdao/types"
)

// stubBackend fakes proving: it echoes back the public inputs it received as
// the proof's public signals, the way a real prover would for a satisfied
// circuit.
type stubBackend struct {
	proveErr  error
	verifyErr error
	tamper    func(*Proof)
	block     chan struct{} // if set, Prove waits on it

	proveCalls, verifyCalls int
}

func (s *stubBackend) Prove(inputs []byte) (*Proof, error) {
	s.proveCalls++
	if s.block != nil {
		<-s.block
	}
	if s.proveErr != nil {
		return nil, s.proveErr
	}
	var in map[string]any
	if err := json.Unmarshal(inputs, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWitnessConstruction, err)
	}
	proof := &Proof{
		Data: ProofData{
			A: []string{"1", "2", "1"},
			B: [][]string{{"3", "4"}, {"5", "6"}, {"1", "0"}},
			C: []string{"7", "8", "1"},
		},
	}
	for _, signal := range []string{"root", "nullifier", "groupId", "contextId", "payload", "commitment"} {
		proof.PubSignals = append(proof.PubSignals, in[signal].(string))
	}
	if s.tamper != nil {
		s.tamper(proof)
	}
	return proof, nil
}

func (s *stubBackend) Verify(*Proof) error {
	s.verifyCalls++
	return s.verifyErr
}

func testWitness(t *testing.T) *Witness {
	secret := big.NewInt(12345)
	salt := big.NewInt(67890)
	commitment, err := identity.Commitment(secret, salt)
	qt.Assert(t, err, qt.IsNil)
	nullifier, err := identity.Nullifier(secret, 7, 42)
	qt.Assert(t, err, qt.IsNil)

	siblings := make([]types.HexBytes, types.GroupTreeMaxLevels)
	for i := range siblings {
		siblings[i] = arbo.BigIntToBytes(32, big.NewInt(int64(i+1)))
	}
	return &Witness{
		Secret:     secret,
		Salt:       salt,
		Path:       &types.MembershipPath{Index: 3, Siblings: siblings},
		Root:       arbo.BigIntToBytes(32, big.NewInt(999)),
		Nullifier:  nullifier,
		GroupID:    7,
		ContextID:  42,
		Payload:    big.NewInt(1),
		Commitment: commitment,
	}
}

func TestEngineProve(t *testing.T) {
	c := qt.New(t)
	backend := &stubBackend{}
	engine := NewEngine(backend)

	var phases []Phase
	engine.Observe(func(p Phase) { phases = append(phases, p) })

	w := testWitness(t)
	proof, err := engine.Prove(context.Background(), w)
	c.Assert(err, qt.IsNil)
	c.Assert(proof.PubSignals, qt.DeepEquals, w.PublicSignals())
	c.Assert(backend.verifyCalls, qt.Equals, 1)
	c.Assert(phases, qt.DeepEquals, []Phase{PhaseProving, PhaseVerifying})

	// signal order is root, nullifier, groupId, contextId, payload, commitment
	c.Assert(proof.PubSignals[0], qt.Equals, big.NewInt(999).String())
	c.Assert(proof.PubSignals[1], qt.Equals, w.Nullifier.String())
	c.Assert(proof.PubSignals[2], qt.Equals, "7")
	c.Assert(proof.PubSignals[3], qt.Equals, "42")
	c.Assert(proof.PubSignals[5], qt.Equals, w.Commitment.String())
}

func TestEngineWitnessValidation(t *testing.T) {
	c := qt.New(t)
	backend := &stubBackend{}
	engine := NewEngine(backend)
	ctx := context.Background()

	// wrong path depth
	w := testWitness(t)
	w.Path.Siblings = w.Path.Siblings[:4]
	_, err := engine.Prove(ctx, w)
	c.Assert(err, qt.ErrorIs, ErrWitnessConstruction)

	// zero nullifier
	w = testWitness(t)
	w.Nullifier = big.NewInt(0)
	_, err = engine.Prove(ctx, w)
	c.Assert(err, qt.ErrorIs, ErrWitnessConstruction)

	// commitment not derived from secret and salt
	w = testWitness(t)
	w.Commitment = big.NewInt(555)
	_, err = engine.Prove(ctx, w)
	c.Assert(err, qt.ErrorIs, ErrWitnessConstruction)

	// missing values
	w = testWitness(t)
	w.Payload = nil
	_, err = engine.Prove(ctx, w)
	c.Assert(err, qt.ErrorIs, ErrWitnessConstruction)

	// a malformed witness never reaches the prover
	c.Assert(backend.proveCalls, qt.Equals, 0)
}

func TestEngineSignalMismatch(t *testing.T) {
	c := qt.New(t)
	backend := &stubBackend{
		tamper: func(p *Proof) { p.PubSignals[1] = "666" },
	}
	engine := NewEngine(backend)

	_, err := engine.Prove(context.Background(), testWitness(t))
	c.Assert(err, qt.ErrorIs, ErrProofInvalid)
	// a proof with the wrong signals is rejected before verification
	c.Assert(backend.verifyCalls, qt.Equals, 0)
}

func TestEngineVerificationGate(t *testing.T) {
	c := qt.New(t)
	backend := &stubBackend{verifyErr: fmt.Errorf("pairing check failed")}
	engine := NewEngine(backend)

	_, err := engine.Prove(context.Background(), testWitness(t))
	c.Assert(err, qt.ErrorIs, ErrProofInvalid)
}

func TestEngineCancellation(t *testing.T) {
	c := qt.New(t)
	backend := &stubBackend{block: make(chan struct{})}
	engine := NewEngine(backend)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := engine.Prove(ctx, testWitness(t))
	c.Assert(err, qt.ErrorIs, context.Canceled)
	close(backend.block)
}
