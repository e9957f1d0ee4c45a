package types

import "fmt"

// ActionKind tells whether an action context admits a single membership-gated
// action per member or any number of them.
type ActionKind int

const (
	// ActionSingleUse contexts (votes) reject a second proof carrying an
	// already seen nullifier.
	ActionSingleUse ActionKind = iota
	// ActionMultiUse contexts (comments) deliberately do not enforce
	// nullifier uniqueness.
	ActionMultiUse
)

func (k ActionKind) String() string {
	switch k {
	case ActionSingleUse:
		return "single-use"
	case ActionMultiUse:
		return "multi-use"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// EligibilityPolicy governs which tree root a membership proof for the action
// must be checked against.
type EligibilityPolicy int

const (
	// EligibilitySnapshot pins the root captured at action creation time for
	// the whole lifetime of the action.
	EligibilitySnapshot EligibilityPolicy = iota
	// EligibilityLive accepts any root of the tree history that is not older
	// than the action creation (nor older than the member's last removal).
	EligibilityLive
)

func (p EligibilityPolicy) String() string {
	switch p {
	case EligibilitySnapshot:
		return "snapshot"
	case EligibilityLive:
		return "live"
	}
	return fmt.Sprintf("unknown(%d)", int(p))
}

// Action describes a membership-gated action context (a proposal vote, a
// comment thread) the pipeline can produce proofs for.
type Action struct {
	GroupID   uint64            `json:"groupId"`
	ContextID uint64            `json:"contextId"`
	Kind      ActionKind        `json:"kind"`
	Policy    EligibilityPolicy `json:"policy"`
	// PinnedRoot is the eligibility root frozen at action creation time.
	// Required when Policy is EligibilitySnapshot, ignored otherwise.
	PinnedRoot HexBytes `json:"pinnedRoot,omitempty"`
	// CreatedAtRootSeq is the sequence number of the group tree root at
	// action creation, used by live-policy eligibility checks.
	CreatedAtRootSeq uint64 `json:"createdAtRootSeq,omitempty"`
}

// TreeInfo describes the current state of a group membership tree.
type TreeInfo struct {
	Depth     int      `json:"depth"`
	LeafCount uint64   `json:"leafCount"`
	Root      HexBytes `json:"root"`
}

// MembershipPath is a merkle inclusion path for a commitment leaf. Siblings
// carries one element per tree level, leaf to root, padded with zero hashes
// up to GroupTreeMaxLevels. Index is the leaf position; its bits, LSB first,
// are the left/right indicators for each level. PackedSiblings keeps the
// ledger's native (arbo) encoding so the path can be re-checked against a
// root without unpacking.
type MembershipPath struct {
	Index          uint64     `json:"index"`
	Siblings       []HexBytes `json:"siblings"`
	PackedSiblings HexBytes   `json:"packedSiblings"`
	Root           HexBytes   `json:"root"`
}

// PathIndices returns the left/right indicator bits of the path, one per
// level, LSB of the leaf index first.
func (p *MembershipPath) PathIndices() []byte {
	bits := make([]byte, len(p.Siblings))
	for i := range bits {
		bits[i] = byte((p.Index >> uint(i)) & 1)
	}
	return bits
}
