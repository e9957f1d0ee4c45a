package credentials

import (
	"fmt"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/vocdoni/zkdao/crypto/ethereum"
	"github.com/vocdoni/zkdao/crypto/identity"
)

const testPrivKey = "fad9c8855b740a0b7ed4c221dbad0f33a83a49cad6b3fe8d5817ac83d38b6a19"

func testSigner(t *testing.T) *ethereum.SignKeys {
	t.Helper()
	s := ethereum.NewSignKeys()
	qt.Assert(t, s.AddHexKey(testPrivKey), qt.IsNil)
	return s
}

func TestDeriveDeterminism(t *testing.T) {
	c := qt.New(t)
	signer := testSigner(t)

	creds1, err := Derive(signer, 7)
	c.Assert(err, qt.IsNil)
	creds2, err := Derive(signer, 7)
	c.Assert(err, qt.IsNil)

	c.Assert(creds1.Secret.Cmp(creds2.Secret), qt.Equals, 0)
	c.Assert(creds1.Salt.Cmp(creds2.Salt), qt.Equals, 0)
	c.Assert(creds1.Commitment.Cmp(creds2.Commitment), qt.Equals, 0)

	// commitment must bind secret and salt
	com, err := identity.Commitment(creds1.Secret, creds1.Salt)
	c.Assert(err, qt.IsNil)
	c.Assert(com.Cmp(creds1.Commitment), qt.Equals, 0)
}

func TestDeriveGroupScoping(t *testing.T) {
	c := qt.New(t)
	signer := testSigner(t)

	creds7, err := Derive(signer, 7)
	c.Assert(err, qt.IsNil)
	creds8, err := Derive(signer, 8)
	c.Assert(err, qt.IsNil)

	c.Assert(creds7.Secret.Cmp(creds8.Secret), qt.Not(qt.Equals), 0)
	c.Assert(creds7.Commitment.Cmp(creds8.Commitment), qt.Not(qt.Equals), 0)
}

type refusingSigner struct{ *ethereum.SignKeys }

func (refusingSigner) SignEthereum([]byte) ([]byte, error) {
	return nil, fmt.Errorf("user rejected the signature request")
}

func TestDeriveRefusal(t *testing.T) {
	c := qt.New(t)
	_, err := Derive(refusingSigner{testSigner(t)}, 7)
	c.Assert(err, qt.ErrorIs, ErrDerivationFailed)
}

func TestStoreRoundTrip(t *testing.T) {
	c := qt.New(t)
	signer := testSigner(t)
	store := NewStore(metadb.NewTest(t))

	_, err := store.Get(7, signer.Address())
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	creds, err := Derive(signer, 7)
	c.Assert(err, qt.IsNil)
	creds.LeafIndex = 3
	creds.Registered = true
	c.Assert(store.Set(7, signer.Address(), creds), qt.IsNil)

	loaded, err := store.Get(7, signer.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(loaded.Secret.Cmp(creds.Secret), qt.Equals, 0)
	c.Assert(loaded.Salt.Cmp(creds.Salt), qt.Equals, 0)
	c.Assert(loaded.Commitment.Cmp(creds.Commitment), qt.Equals, 0)
	c.Assert(loaded.LeafIndex, qt.Equals, uint64(3))
	c.Assert(loaded.Registered, qt.IsTrue)

	// rewriting the same deterministic value is a no-op in effect
	c.Assert(store.Set(7, signer.Address(), creds), qt.IsNil)
	again, err := store.Get(7, signer.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(again.Commitment.Cmp(creds.Commitment), qt.Equals, 0)
}

func TestStoreBookkeeping(t *testing.T) {
	c := qt.New(t)
	signer := testSigner(t)
	store := NewStore(metadb.NewTest(t))

	acted, _, err := store.HasActed(7, 42, signer.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(acted, qt.IsFalse)

	nullifier := big.NewInt(123456)
	c.Assert(store.MarkActed(7, 42, signer.Address(), nullifier), qt.IsNil)

	acted, n, err := store.HasActed(7, 42, signer.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(acted, qt.IsTrue)
	c.Assert(n.Cmp(nullifier), qt.Equals, 0)

	// other contexts are unaffected
	acted, _, err = store.HasActed(7, 43, signer.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(acted, qt.IsFalse)
}
