package api

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/vocdoni/arbo"

	"github.com/vocdoni/zkdao/prover"
	"github.com/vocdoni/zkdao/types"
	"github.com/vocdoni/zkdao/util"
)

// Wire encoding of a submission. Scalar values (root, nullifier, commitment)
// are fixed-width big-endian hex. The proof curve points keep the proving
// artifact's little-endian coordinate encoding instead; the asymmetry is part
// of the protocol and is carried as-is, never normalized to one convention.

const (
	pointCoordSize = 32
	// proof point widths on the wire: a and c are G1 points (2 coords),
	// b is a G2 point (4 coords)
	proofASize = 2 * pointCoordSize
	proofBSize = 4 * pointCoordSize
	proofCSize = 2 * pointCoordSize
)

// ProofWire is the wire form of a groth16 proof.
type ProofWire struct {
	A types.HexBytes `json:"a"`
	B types.HexBytes `json:"b"`
	C types.HexBytes `json:"c"`
}

// VoteRequest is the body of a vote submission.
type VoteRequest struct {
	DaoID      uint64         `json:"daoId"`
	ProposalID uint64         `json:"proposalId"`
	Choice     bool           `json:"choice"`
	Nullifier  types.HexBytes `json:"nullifier"`
	Root       types.HexBytes `json:"root"`
	Commitment types.HexBytes `json:"commitment"`
	Proof      *ProofWire     `json:"proof"`
}

// CommentRequest is the body of an anonymous comment submission. ParentID is
// nil for a top-level comment.
type CommentRequest struct {
	DaoID      uint64         `json:"daoId"`
	ProposalID uint64         `json:"proposalId"`
	ContentCid string         `json:"contentCid"`
	ParentID   *uint64        `json:"parentId"`
	Nullifier  types.HexBytes `json:"nullifier"`
	Root       types.HexBytes `json:"root"`
	Commitment types.HexBytes `json:"commitment"`
	Proof      *ProofWire     `json:"proof"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	Receipt uuid.UUID `json:"receipt"`
}

// NewGroupRequest creates a membership group.
type NewGroupRequest struct {
	GroupID uint64 `json:"groupId"`
}

// RegisterRequest registers a commitment as a new group member.
type RegisterRequest struct {
	Commitment types.HexBytes `json:"commitment"`
}

// RegisterResponse carries the assigned (or pre-existing) leaf index.
type RegisterResponse struct {
	LeafIndex uint64 `json:"leafIndex"`
}

// RootResponse carries a tree root.
type RootResponse struct {
	Root types.HexBytes `json:"root"`
}

// NullifierResponse reports whether a nullifier was already used.
type NullifierResponse struct {
	Used bool `json:"used"`
}

// NewActionRequest creates an action context within a group. For snapshot
// eligibility the relay pins the group's current root at creation time.
type NewActionRequest struct {
	GroupID   uint64                  `json:"groupId"`
	ContextID uint64                  `json:"contextId"`
	Kind      types.ActionKind        `json:"kind"`
	Policy    types.EligibilityPolicy `json:"policy"`
}

// VotePayload is the payload public signal of a vote: 1 for yes, 0 for no.
func VotePayload(choice bool) *big.Int {
	if choice {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

// CommentPayload is the payload public signal of a comment: the keccak hash
// of the content CID and the parent comment id, reduced to the scalar field.
// Binding the content into the proof keeps a relay from re-attaching a valid
// proof to different content.
func CommentPayload(contentCid string, parentID *uint64) *big.Int {
	parent := make([]byte, 8)
	if parentID != nil {
		binary.BigEndian.PutUint64(parent, *parentID+1)
	}
	return util.BigToFF(new(big.Int).SetBytes(
		ethcrypto.Keccak256([]byte(contentCid), parent)))
}

// EncodeProof converts a proof from the prover's decimal-string points to
// the wire encoding.
func EncodeProof(p *prover.ProofData) (*ProofWire, error) {
	if len(p.A) < 2 || len(p.C) < 2 {
		return nil, fmt.Errorf("expected at least 2 coordinates per G1 point")
	}
	a, err := encodePoint(p.A[:2])
	if err != nil {
		return nil, fmt.Errorf("point a: %w", err)
	}
	if len(p.B) < 2 {
		return nil, fmt.Errorf("point b: expected 2 coordinate pairs, got %d", len(p.B))
	}
	b, err := encodePoint([]string{p.B[0][0], p.B[0][1], p.B[1][0], p.B[1][1]})
	if err != nil {
		return nil, fmt.Errorf("point b: %w", err)
	}
	c, err := encodePoint(p.C[:2])
	if err != nil {
		return nil, fmt.Errorf("point c: %w", err)
	}
	return &ProofWire{A: a, B: b, C: c}, nil
}

// DecodeProof converts a wire proof back to the prover's representation,
// restoring the projective third coordinates the snarkjs format carries.
func DecodeProof(w *ProofWire) (*prover.ProofData, error) {
	if w == nil {
		return nil, fmt.Errorf("missing proof")
	}
	if len(w.A) != proofASize || len(w.B) != proofBSize || len(w.C) != proofCSize {
		return nil, fmt.Errorf("wrong proof point size: a=%d b=%d c=%d",
			len(w.A), len(w.B), len(w.C))
	}
	a := decodePoint(w.A)
	b := decodePoint(w.B)
	c := decodePoint(w.C)
	return &prover.ProofData{
		A: []string{a[0], a[1], "1"},
		B: [][]string{{b[0], b[1]}, {b[2], b[3]}, {"1", "0"}},
		C: []string{c[0], c[1], "1"},
	}, nil
}

// encodePoint packs decimal coordinate strings as concatenated fixed-width
// little-endian coordinates.
func encodePoint(coords []string) (types.HexBytes, error) {
	if len(coords) < 2 {
		return nil, fmt.Errorf("expected at least 2 coordinates, got %d", len(coords))
	}
	out := make([]byte, 0, len(coords)*pointCoordSize)
	for _, coord := range coords {
		v, ok := new(big.Int).SetString(coord, 10)
		if !ok {
			return nil, fmt.Errorf("invalid coordinate %q", coord)
		}
		out = append(out, arbo.BigIntToBytes(pointCoordSize, v)...)
	}
	return out, nil
}

// decodePoint is the inverse of encodePoint.
func decodePoint(data []byte) []string {
	coords := make([]string, 0, len(data)/pointCoordSize)
	for off := 0; off < len(data); off += pointCoordSize {
		coords = append(coords, arbo.BytesToBigInt(data[off:off+pointCoordSize]).String())
	}
	return coords
}

// publicSignals rebuilds the ordered public signal list of a submission from
// its wire fields. The order is the circuit contract: root, nullifier,
// groupId, contextId, payload, commitment.
func publicSignals(root, nullifier, commitment *big.Int, groupID, contextID uint64, payload *big.Int) []string {
	return []string{
		root.String(),
		nullifier.String(),
		new(big.Int).SetUint64(groupID).String(),
		new(big.Int).SetUint64(contextID).String(),
		payload.String(),
		commitment.String(),
	}
}
