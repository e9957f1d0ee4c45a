package api

import (
	"encoding/hex"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/zkdao/prover"
	"github.com/vocdoni/zkdao/types"
)

func TestProofWireRoundTrip(t *testing.T) {
	c := qt.New(t)
	original := &prover.ProofData{
		A: []string{"11", "22", "1"},
		B: [][]string{{"33", "44"}, {"55", "66"}, {"1", "0"}},
		C: []string{"77", "88", "1"},
	}
	wire, err := EncodeProof(original)
	c.Assert(err, qt.IsNil)
	c.Assert(wire.A, qt.HasLen, proofASize)
	c.Assert(wire.B, qt.HasLen, proofBSize)
	c.Assert(wire.C, qt.HasLen, proofCSize)

	decoded, err := DecodeProof(wire)
	c.Assert(err, qt.IsNil)
	c.Assert(decoded, qt.DeepEquals, original)
}

func TestProofWirePointEncoding(t *testing.T) {
	c := qt.New(t)
	// curve point coordinates are little-endian on the wire, unlike the
	// big-endian scalar fields
	wire, err := EncodeProof(&prover.ProofData{
		A: []string{"1", "256", "1"},
		B: [][]string{{"0", "0"}, {"0", "0"}, {"1", "0"}},
		C: []string{"0", "0", "1"},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(wire.A[0], qt.Equals, byte(0x01))
	// 256 = 0x0100 big-endian is 0x00 0x01 little-endian
	c.Assert(wire.A[pointCoordSize], qt.Equals, byte(0x00))
	c.Assert(wire.A[pointCoordSize+1], qt.Equals, byte(0x01))
}

func TestProofWireBadSizes(t *testing.T) {
	c := qt.New(t)
	_, err := DecodeProof(&ProofWire{A: make([]byte, 10), B: make([]byte, proofBSize), C: make([]byte, proofCSize)})
	c.Assert(err, qt.IsNotNil)
	_, err = DecodeProof(nil)
	c.Assert(err, qt.IsNotNil)
}

func TestScalarWireEncoding(t *testing.T) {
	c := qt.New(t)
	// scalars are fixed-width big-endian hex on the wire
	b := types.ScalarToBytes(big.NewInt(256))
	c.Assert(b, qt.HasLen, types.ScalarSize)
	c.Assert(hex.EncodeToString(b[30:]), qt.Equals, "0100")

	back, err := types.ScalarFromBytes(b)
	c.Assert(err, qt.IsNil)
	c.Assert(back.Int64(), qt.Equals, int64(256))
}

func TestCommentPayload(t *testing.T) {
	c := qt.New(t)
	parent := uint64(5)
	p1 := CommentPayload("Qm1234", nil)
	p2 := CommentPayload("Qm1234", &parent)
	p3 := CommentPayload("Qm9999", nil)
	// the payload binds content and threading position
	c.Assert(p1.Cmp(p2), qt.Not(qt.Equals), 0)
	c.Assert(p1.Cmp(p3), qt.Not(qt.Equals), 0)
	c.Assert(p1.Cmp(CommentPayload("Qm1234", nil)), qt.Equals, 0)

	zero := uint64(0)
	// parentId 0 is distinct from no parent
	c.Assert(CommentPayload("Qm1234", &zero).Cmp(p1), qt.Not(qt.Equals), 0)
}
