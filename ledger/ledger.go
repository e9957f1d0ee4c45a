// Package ledger defines the read and write operations the anonymous
// membership pipeline consumes from the underlying ledger: the group
// membership accumulators (merkle trees of commitments), their root history
// and the per-context nullifier sets.
//
// The pipeline only depends on the Ledger interface; ledger/arboledger
// provides a complete local implementation used by the reference relay
// service and by tests.
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vocdoni/zkdao/types"
)

var (
	// ErrGroupNotFound is returned when the group does not exist.
	ErrGroupNotFound = fmt.Errorf("group not found")
	// ErrNotFound is returned by reads whose subject does not exist (yet),
	// e.g. a leaf index lookup for an unregistered commitment. It is the
	// error class absorbed by read-after-write retry loops.
	ErrNotFound = fmt.Errorf("not found")
	// ErrCommitmentExists is returned by Register when the commitment is
	// already a leaf of the group tree. Callers treat it as success of an
	// earlier, unobserved registration.
	ErrCommitmentExists = fmt.Errorf("commitment already registered")
	// ErrStaleSequence is returned by Register when the submitting account's
	// transaction counter advanced between build and submit. The operation
	// must be rebuilt fresh and retried.
	ErrStaleSequence = fmt.Errorf("stale transaction sequence")
	// ErrNullifierUsed is returned when spending a nullifier that was
	// already seen within a single-use action context.
	ErrNullifierUsed = fmt.Errorf("nullifier already used")
	// ErrUnknownRoot is returned when a root is not part of the group tree
	// history.
	ErrUnknownRoot = fmt.Errorf("root not in tree history")
	// ErrLeafRemoved is returned for operations on a zeroed (revoked) leaf.
	ErrLeafRemoved = fmt.Errorf("leaf has been removed")
)

// Ledger is the set of group-membership operations the pipeline consumes.
// Implementations must be safe for concurrent use.
type Ledger interface {
	// Register appends the commitment as a new leaf of the group tree and
	// returns its leaf index. Returns ErrCommitmentExists if the commitment
	// is already a leaf, and may return ErrStaleSequence when the
	// registration must be rebuilt and retried.
	Register(ctx context.Context, groupID uint64, commitment *big.Int) (uint64, error)

	// LeafIndex resolves the leaf index of a commitment. Returns
	// ErrNotFound if the commitment is not (or not yet visibly) a leaf.
	LeafIndex(ctx context.Context, groupID uint64, commitment *big.Int) (uint64, error)

	// TreeInfo returns depth, leaf count and current root of the group tree.
	TreeInfo(ctx context.Context, groupID uint64) (*types.TreeInfo, error)

	// CurrentRoot returns the current root of the group tree.
	CurrentRoot(ctx context.Context, groupID uint64) (types.HexBytes, error)

	// MerklePath returns the inclusion path of the leaf at the given index
	// against the current tree state. Returns ErrLeafRemoved for zeroed
	// leaves.
	MerklePath(ctx context.Context, groupID uint64, leafIndex uint64) (*types.MembershipPath, error)

	// NullifierUsed reports whether the nullifier was already seen within
	// the action context.
	NullifierUsed(ctx context.Context, groupID, contextID uint64, nullifier *big.Int) (bool, error)
}
