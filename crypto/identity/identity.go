// Package identity implements the commitment and nullifier arithmetic of the
// anonymous membership protocol. All values are elements of the BN254 scalar
// field and all hashes are Poseidon, matching the membership circuit and the
// on-chain verifier.
package identity

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/vocdoni/zkdao/util"
)

// ErrZeroNullifier is returned when the computed nullifier is zero, which by
// convention means "no nullifier" and must never be used.
var ErrZeroNullifier = fmt.Errorf("computed nullifier is zero")

// Commitment computes the public commitment binding a secret identity to a
// tree leaf: Poseidon(secret, salt).
func Commitment(secret, salt *big.Int) (*big.Int, error) {
	return poseidon.Hash([]*big.Int{
		util.BigToFF(secret),
		util.BigToFF(salt),
	})
}

// Nullifier computes the context-scoped nullifier of a secret:
// Poseidon(secret, groupId, contextId). The group and context identifiers
// are reduced into the scalar field exactly as the verifier contract does;
// any encoding difference on either side would yield a validly-formed but
// unrecognized nullifier, silently defeating repetition detection.
func Nullifier(secret *big.Int, groupID, contextID uint64) (*big.Int, error) {
	n, err := poseidon.Hash([]*big.Int{
		util.BigToFF(secret),
		new(big.Int).SetUint64(groupID),
		new(big.Int).SetUint64(contextID),
	})
	if err != nil {
		return nil, err
	}
	if n.Sign() == 0 {
		return nil, ErrZeroNullifier
	}
	return n, nil
}
