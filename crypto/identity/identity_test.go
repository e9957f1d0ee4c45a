package identity

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestCommitmentBinding(t *testing.T) {
	c := qt.New(t)

	secret := big.NewInt(123456789)
	salt := big.NewInt(987654321)

	com1, err := Commitment(secret, salt)
	c.Assert(err, qt.IsNil)
	com2, err := Commitment(secret, salt)
	c.Assert(err, qt.IsNil)
	c.Assert(com1.Cmp(com2), qt.Equals, 0)

	// changing either input changes the commitment
	comSecret, err := Commitment(new(big.Int).Add(secret, big.NewInt(1)), salt)
	c.Assert(err, qt.IsNil)
	c.Assert(comSecret.Cmp(com1), qt.Not(qt.Equals), 0)

	comSalt, err := Commitment(secret, new(big.Int).Add(salt, big.NewInt(1)))
	c.Assert(err, qt.IsNil)
	c.Assert(comSalt.Cmp(com1), qt.Not(qt.Equals), 0)
}

func TestNullifierDomainSeparation(t *testing.T) {
	c := qt.New(t)

	secret := big.NewInt(424242)

	n1, err := Nullifier(secret, 1, 1)
	c.Assert(err, qt.IsNil)
	n1again, err := Nullifier(secret, 1, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(n1.Cmp(n1again), qt.Equals, 0)

	// different group, same context
	n2, err := Nullifier(secret, 2, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(n2.Cmp(n1), qt.Not(qt.Equals), 0)

	// same group, different context
	n3, err := Nullifier(secret, 1, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(n3.Cmp(n1), qt.Not(qt.Equals), 0)

	// different secret
	n4, err := Nullifier(big.NewInt(424243), 1, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(n4.Cmp(n1), qt.Not(qt.Equals), 0)
}
