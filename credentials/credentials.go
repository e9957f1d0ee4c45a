// Package credentials derives and caches the per-group anonymous identity
// material of a member: a secret and a salt obtained deterministically from
// an external signing capability, and the public Poseidon commitment that
// binds them.
//
// Determinism is the core correctness property here: the commitment stored
// on-chain was computed from the first derivation and must match forever, so
// re-deriving on a fresh device has to reproduce byte-identical values.
package credentials

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/vocdoni/zkdao/crypto/identity"
	"github.com/vocdoni/zkdao/util"
)

// ErrDerivationFailed is returned when the signing capability refuses or is
// unable to produce the derivation signature. There is no fallback: a
// non-deterministic derivation would orphan the on-chain commitment.
var ErrDerivationFailed = fmt.Errorf("credential derivation failed")

// Domain separation tags for the secret and salt hashes.
const (
	secretDomain = "zkdao-secret"
	saltDomain   = "zkdao-salt"
)

// Signer is the signing capability used to derive credentials. It must be
// stable: the same message always yields the same signature bytes for the
// same underlying identity, across invocations and devices.
type Signer interface {
	SignEthereum(message []byte) ([]byte, error)
	Address() ethcommon.Address
}

// Credentials is the identity material of a member within one group. Secret
// and Salt are sensitive and must never be transmitted.
type Credentials struct {
	Secret     *big.Int
	Salt       *big.Int
	Commitment *big.Int
	// LeafIndex is the position of Commitment in the group tree. Only
	// meaningful once Registered is true.
	LeafIndex  uint64
	Registered bool
}

// DerivationMessage returns the fixed, group-scoped message signed to derive
// credentials for a group.
func DerivationMessage(groupID uint64) []byte {
	return fmt.Appendf(nil, "derive-credentials:%d", groupID)
}

// Derive obtains the (secret, salt, commitment) triple for a group from the
// given signing capability. The secret and salt are keccak hashes of the
// signature under disjoint domains, reduced into the proving system's scalar
// field.
func Derive(signer Signer, groupID uint64) (*Credentials, error) {
	sig, err := signer.SignEthereum(DerivationMessage(groupID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	secret := util.BigToFF(new(big.Int).SetBytes(
		ethcrypto.Keccak256([]byte(secretDomain), sig)))
	salt := util.BigToFF(new(big.Int).SetBytes(
		ethcrypto.Keccak256([]byte(saltDomain), sig)))
	commitment, err := identity.Commitment(secret, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	return &Credentials{
		Secret:     secret,
		Salt:       salt,
		Commitment: commitment,
	}, nil
}
