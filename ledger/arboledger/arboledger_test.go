package arboledger

import (
	"context"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/vocdoni/zkdao/ledger"
	"github.com/vocdoni/zkdao/types"
)

func newLedger(t *testing.T, groupID uint64) *LocalLedger {
	t.Helper()
	l := New(metadb.NewTest(t))
	qt.Assert(t, l.CreateGroup(groupID), qt.IsNil)
	return l
}

func TestCreateGroup(t *testing.T) {
	c := qt.New(t)
	l := newLedger(t, 7)
	c.Assert(l.Exists(7), qt.IsTrue)
	c.Assert(l.Exists(8), qt.IsFalse)
	c.Assert(l.CreateGroup(7), qt.ErrorIs, ErrGroupExists)

	info, err := l.TreeInfo(context.Background(), 7)
	c.Assert(err, qt.IsNil)
	c.Assert(info.Depth, qt.Equals, types.GroupTreeMaxLevels)
	c.Assert(info.LeafCount, qt.Equals, uint64(0))
}

func TestRegisterIdempotence(t *testing.T) {
	c := qt.New(t)
	l := newLedger(t, 7)
	ctx := context.Background()

	commitment := big.NewInt(1234567)
	index, err := l.Register(ctx, 7, commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(index, qt.Equals, uint64(0))

	// a second registration reports the distinguishable duplicate condition
	_, err = l.Register(ctx, 7, commitment)
	c.Assert(err, qt.ErrorIs, ledger.ErrCommitmentExists)

	// and the leaf index remains resolvable by lookup
	resolved, err := l.LeafIndex(ctx, 7, commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(resolved, qt.Equals, index)

	// unknown commitments are not found
	_, err = l.LeafIndex(ctx, 7, big.NewInt(999))
	c.Assert(err, qt.ErrorIs, ledger.ErrNotFound)
}

func TestMerklePathInclusion(t *testing.T) {
	c := qt.New(t)
	l := newLedger(t, 7)
	ctx := context.Background()

	commitments := []*big.Int{
		big.NewInt(111), big.NewInt(222), big.NewInt(333), big.NewInt(444),
	}
	for i, com := range commitments {
		index, err := l.Register(ctx, 7, com)
		c.Assert(err, qt.IsNil)
		c.Assert(index, qt.Equals, uint64(i))
	}

	root, err := l.CurrentRoot(ctx, 7)
	c.Assert(err, qt.IsNil)

	path, err := l.MerklePath(ctx, 7, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(path.Index, qt.Equals, uint64(2))
	c.Assert(len(path.Siblings), qt.Equals, types.GroupTreeMaxLevels)
	c.Assert([]byte(path.Root), qt.DeepEquals, []byte(root))

	// recomputing the root through the path succeeds
	c.Assert(ledger.VerifyPath(commitments[2], path, root), qt.IsTrue)

	// a path for the wrong commitment does not verify
	c.Assert(ledger.VerifyPath(commitments[1], path, root), qt.IsFalse)

	// mutating the path breaks the equality
	corrupted := make(types.HexBytes, len(path.PackedSiblings))
	copy(corrupted, path.PackedSiblings)
	corrupted[len(corrupted)-1] ^= 0x01
	badPath := *path
	badPath.PackedSiblings = corrupted
	c.Assert(ledger.VerifyPath(commitments[2], &badPath, root), qt.IsFalse)

	// a stale root does not verify against a later path
	_, err = l.Register(ctx, 7, big.NewInt(555))
	c.Assert(err, qt.IsNil)
	newRoot, err := l.CurrentRoot(ctx, 7)
	c.Assert(err, qt.IsNil)
	c.Assert(ledger.VerifyPath(commitments[2], path, newRoot), qt.IsFalse)
}

func TestNullifierPolicy(t *testing.T) {
	c := qt.New(t)
	l := newLedger(t, 7)
	ctx := context.Background()

	nullifier := big.NewInt(987654321)

	used, err := l.NullifierUsed(ctx, 7, 42, nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsFalse)

	// single-use: first spend wins, second is rejected
	c.Assert(l.SpendNullifier(7, 42, nullifier, types.ActionSingleUse), qt.IsNil)
	used, err = l.NullifierUsed(ctx, 7, 42, nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsTrue)
	err = l.SpendNullifier(7, 42, nullifier, types.ActionSingleUse)
	c.Assert(err, qt.ErrorIs, ledger.ErrNullifierUsed)

	// multi-use contexts tolerate repetition
	c.Assert(l.SpendNullifier(7, 43, nullifier, types.ActionMultiUse), qt.IsNil)
	c.Assert(l.SpendNullifier(7, 43, nullifier, types.ActionMultiUse), qt.IsNil)

	// the same nullifier in another context is independent
	used, err = l.NullifierUsed(ctx, 7, 44, nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsFalse)
}

func TestRemoveMember(t *testing.T) {
	c := qt.New(t)
	l := newLedger(t, 7)
	ctx := context.Background()

	commitment := big.NewInt(424242)
	index, err := l.Register(ctx, 7, commitment)
	c.Assert(err, qt.IsNil)

	seqBefore, err := l.CurrentRootSeq(7)
	c.Assert(err, qt.IsNil)

	c.Assert(l.Remove(7, index), qt.IsNil)

	// the leaf index is invalidated
	_, err = l.LeafIndex(ctx, 7, commitment)
	c.Assert(err, qt.ErrorIs, ledger.ErrNotFound)
	_, err = l.MerklePath(ctx, 7, index)
	c.Assert(err, qt.ErrorIs, ledger.ErrLeafRemoved)

	// the removal event is sequenced after the pre-removal root
	removalSeq, removed, err := l.RemovalSeq(7, commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(removed, qt.IsTrue)
	c.Assert(removalSeq > seqBefore, qt.IsTrue)

	// removing twice fails
	c.Assert(l.Remove(7, index), qt.ErrorIs, ledger.ErrLeafRemoved)
}

func TestRootHistory(t *testing.T) {
	c := qt.New(t)
	l := newLedger(t, 7)
	ctx := context.Background()

	root0, err := l.CurrentRoot(ctx, 7)
	c.Assert(err, qt.IsNil)
	_, err = l.Register(ctx, 7, big.NewInt(1))
	c.Assert(err, qt.IsNil)
	root1, err := l.CurrentRoot(ctx, 7)
	c.Assert(err, qt.IsNil)

	seq0, err := l.RootSeq(7, root0)
	c.Assert(err, qt.IsNil)
	c.Assert(seq0, qt.Equals, uint64(0))
	seq1, err := l.RootSeq(7, root1)
	c.Assert(err, qt.IsNil)
	c.Assert(seq1, qt.Equals, uint64(1))

	_, err = l.RootSeq(7, []byte("never-a-root"))
	c.Assert(err, qt.ErrorIs, ledger.ErrUnknownRoot)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)
	ctx := context.Background()

	l := New(database)
	c.Assert(l.CreateGroup(7), qt.IsNil)
	commitment := big.NewInt(777)
	index, err := l.Register(ctx, 7, commitment)
	c.Assert(err, qt.IsNil)
	root, err := l.CurrentRoot(ctx, 7)
	c.Assert(err, qt.IsNil)

	// a fresh instance over the same database sees the same state
	l2 := New(database)
	c.Assert(l2.Exists(7), qt.IsTrue)
	resolved, err := l2.LeafIndex(ctx, 7, commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(resolved, qt.Equals, index)
	root2, err := l2.CurrentRoot(ctx, 7)
	c.Assert(err, qt.IsNil)
	c.Assert([]byte(root2), qt.DeepEquals, []byte(root))
}
