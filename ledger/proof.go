package ledger

import (
	"math/big"

	"github.com/vocdoni/arbo"

	"github.com/vocdoni/zkdao/types"
)

// HashFunction is the hash used by the group membership trees.
var HashFunction = arbo.HashFunctionPoseidon

// LeafKeyLen is the byte width of a leaf key (the leaf index). The key bits,
// LSB first, are the tree path, so 8*LeafKeyLen must not exceed the tree
// depth.
const LeafKeyLen = 2

// LeafKey encodes a leaf index as a tree key.
func LeafKey(index uint64) []byte {
	return arbo.BigIntToBytes(LeafKeyLen, new(big.Int).SetUint64(index))
}

// LeafValue encodes a commitment as a tree leaf value.
func LeafValue(commitment *big.Int) []byte {
	return arbo.BigIntToBytes(HashFunction.Len(), commitment)
}

// VerifyPath recomputes the tree root from a commitment and its membership
// path and reports whether it equals the given root. Callers use it to make
// sure a path corresponds to the tree state of the root they intend to prove
// against; a mismatch here would otherwise only surface as an opaque
// on-chain rejection.
func VerifyPath(commitment *big.Int, path *types.MembershipPath, root []byte) bool {
	valid, err := arbo.CheckProof(HashFunction,
		LeafKey(path.Index), LeafValue(commitment), root, path.PackedSiblings)
	if err != nil {
		return false
	}
	return valid
}
