// Package ethereum provides the ECDSA signing capability used to derive
// anonymous credentials. Signatures are deterministic for a fixed key and
// message, which is what makes credential re-derivation possible.
package ethereum

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/vocdoni/zkdao/util"
)

// SignatureLength is the size of an ECDSA signature in bytes.
const SignatureLength = 65

// SigningPrefix is the prefix added when hashing a message for signing.
const SigningPrefix = "\u0019Ethereum Signed Message:\n"

// SignKeys represents an ECDSA pair of keys for signing.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys creates an empty ECDSA pair of keys for signing.
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate generates new keys.
func (k *SignKeys) Generate() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a private hex key.
func (k *SignKeys) AddHexKey(privHex string) error {
	key, err := ethcrypto.HexToECDSA(util.TrimHex(privHex))
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// HexString returns the public compressed and private keys as hex strings.
func (k *SignKeys) HexString() (string, string) {
	pubHexComp := fmt.Sprintf("%x", ethcrypto.CompressPubkey(&k.Public))
	privHex := fmt.Sprintf("%x", ethcrypto.FromECDSA(&k.Private))
	return pubHexComp, privHex
}

// Address returns the SignKeys ethereum address.
func (k *SignKeys) Address() ethcommon.Address {
	return ethcrypto.PubkeyToAddress(k.Public)
}

// AddressString returns the ethereum Address as string.
func (k *SignKeys) AddressString() string {
	return ethcrypto.PubkeyToAddress(k.Public).String()
}

// SignEthereum signs a message using the Ethereum personal-message prefix.
// The same key and message always produce the same signature bytes.
func (k *SignKeys) SignEthereum(message []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, errors.New("no private key available")
	}
	return ethcrypto.Sign(HashEthereum(message), &k.Private)
}

// HashEthereum hashes a message prepending the Ethereum personal-message
// prefix, as done by eth_sign and personal_sign.
func HashEthereum(data []byte) []byte {
	prefixed := fmt.Appendf(nil, "%s%d%s", SigningPrefix, len(data), data)
	return ethcrypto.Keccak256(prefixed)
}

// AddrFromSignature recovers the address which created the signature of a
// prefixed message.
func AddrFromSignature(message, signature []byte) (ethcommon.Address, error) {
	if len(signature) != SignatureLength {
		return ethcommon.Address{}, fmt.Errorf("wrong signature length %d", len(signature))
	}
	pub, err := ethcrypto.SigToPub(HashEthereum(message), signature)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
