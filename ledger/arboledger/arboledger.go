// Package arboledger implements ledger.Ledger on top of arbo merkle trees
// persisted in a local key-value database. It keeps the whole group state
// the verifier side needs: the commitment accumulator, its root history,
// member removal events and the per-context nullifier sets.
package arboledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/vocdoni/arbo"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/vocdoni/zkdao/ledger"
	"github.com/vocdoni/zkdao/log"
	"github.com/vocdoni/zkdao/types"
)

// maxLeaves is the number of leaves addressable with ledger.LeafKeyLen keys.
const maxLeaves = 1 << (8 * ledger.LeafKeyLen)

var (
	// Database prefixes.
	treePrefix      = []byte("t/")
	groupPrefix     = []byte("g/")
	indexPrefix     = []byte("i/")
	rootSeqPrefix   = []byte("r/")
	rootKeyPrefix   = []byte("k/")
	nullifierPrefix = []byte("n/")
	removalPrefix   = []byte("d/")

	// ErrGroupExists is returned by CreateGroup if the group already exists.
	ErrGroupExists = fmt.Errorf("group already exists")
)

var hashFunction = ledger.HashFunction

// groupMeta is the persisted per-group bookkeeping.
type groupMeta struct {
	LeafCount uint64
	RootSeq   uint64
}

// groupRef holds a loaded group tree. All tree access goes through mu.
type groupRef struct {
	mu   sync.Mutex
	tree *arbo.Tree
	meta groupMeta
}

// LocalLedger is a persistent, concurrency-safe implementation of
// ledger.Ledger backed by arbo trees.
type LocalLedger struct {
	mu     sync.RWMutex
	db     db.Database
	groups map[uint64]*groupRef
}

// New creates a LocalLedger on top of the given database.
func New(database db.Database) *LocalLedger {
	return &LocalLedger{
		db:     database,
		groups: make(map[uint64]*groupRef),
	}
}

func groupKey(groupID uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, groupID)
}

func commitmentKey(groupID uint64, commitment *big.Int) []byte {
	key := groupKey(groupID)
	return append(key, types.ScalarToBytes(commitment)...)
}

func nullifierKey(groupID, contextID uint64, nullifier *big.Int) []byte {
	key := groupKey(groupID)
	key = binary.BigEndian.AppendUint64(key, contextID)
	return append(key, types.ScalarToBytes(nullifier)...)
}

func rootSeqKey(groupID, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(groupKey(groupID), seq)
}

// CreateGroup initializes a new, empty membership tree for the group.
func (l *LocalLedger) CreateGroup(groupID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.groups[groupID]; exists {
		return ErrGroupExists
	}
	if _, err := prefixeddb.NewPrefixedReader(l.db, groupPrefix).Get(groupKey(groupID)); err == nil {
		return ErrGroupExists
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}

	ref, err := l.openTree(groupID)
	if err != nil {
		return err
	}
	root, err := ref.tree.Root()
	if err != nil {
		return err
	}

	wtx := l.db.WriteTx()
	defer wtx.Discard()
	gtx := prefixeddb.NewPrefixedWriteTx(wtx, groupPrefix)
	if err := gtx.Set(groupKey(groupID), encodeMeta(ref.meta)); err != nil {
		return err
	}
	if err := l.writeRoot(wtx, groupID, 0, root); err != nil {
		return err
	}
	if err := wtx.Commit(); err != nil {
		return err
	}
	l.groups[groupID] = ref
	log.Debugw("group created", "groupId", groupID, "root", fmt.Sprintf("%x", root))
	return nil
}

// Exists reports whether the group exists.
func (l *LocalLedger) Exists(groupID uint64) bool {
	l.mu.RLock()
	_, ok := l.groups[groupID]
	l.mu.RUnlock()
	if ok {
		return true
	}
	_, err := prefixeddb.NewPrefixedReader(l.db, groupPrefix).Get(groupKey(groupID))
	return err == nil
}

func (l *LocalLedger) openTree(groupID uint64) (*groupRef, error) {
	treeDB := prefixeddb.NewPrefixedDatabase(l.db, append(treePrefix, groupKey(groupID)...))
	tree, err := arbo.NewTree(arbo.Config{
		Database:     treeDB,
		MaxLevels:    types.GroupTreeMaxLevels,
		HashFunction: hashFunction,
	})
	if err != nil {
		return nil, err
	}
	return &groupRef{tree: tree}, nil
}

// loadGroup returns the in-memory reference of a group, loading it from the
// database the first time.
func (l *LocalLedger) loadGroup(groupID uint64) (*groupRef, error) {
	l.mu.RLock()
	ref, ok := l.groups[groupID]
	l.mu.RUnlock()
	if ok {
		return ref, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if ref, ok := l.groups[groupID]; ok {
		return ref, nil
	}
	data, err := prefixeddb.NewPrefixedReader(l.db, groupPrefix).Get(groupKey(groupID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ledger.ErrGroupNotFound
		}
		return nil, err
	}
	ref, err = l.openTree(groupID)
	if err != nil {
		return nil, err
	}
	ref.meta = decodeMeta(data)
	l.groups[groupID] = ref
	return ref, nil
}

func encodeMeta(m groupMeta) []byte {
	buf := binary.BigEndian.AppendUint64(nil, m.LeafCount)
	return binary.BigEndian.AppendUint64(buf, m.RootSeq)
}

func decodeMeta(b []byte) groupMeta {
	if len(b) < 16 {
		return groupMeta{}
	}
	return groupMeta{
		LeafCount: binary.BigEndian.Uint64(b[:8]),
		RootSeq:   binary.BigEndian.Uint64(b[8:16]),
	}
}

// writeRoot records a root in the group history, both by sequence and by
// value.
func (l *LocalLedger) writeRoot(wtx db.WriteTx, groupID, seq uint64, root []byte) error {
	rtx := prefixeddb.NewPrefixedWriteTx(wtx, rootSeqPrefix)
	if err := rtx.Set(rootSeqKey(groupID, seq), root); err != nil {
		return err
	}
	ktx := prefixeddb.NewPrefixedWriteTx(wtx, rootKeyPrefix)
	return ktx.Set(append(groupKey(groupID), root...), binary.BigEndian.AppendUint64(nil, seq))
}

// persistGroup writes the group meta, the new root history entry and any
// extra key-value pairs in a single transaction.
func (l *LocalLedger) persistGroup(groupID uint64, ref *groupRef, root []byte, extra func(db.WriteTx) error) error {
	wtx := l.db.WriteTx()
	defer wtx.Discard()
	gtx := prefixeddb.NewPrefixedWriteTx(wtx, groupPrefix)
	if err := gtx.Set(groupKey(groupID), encodeMeta(ref.meta)); err != nil {
		return err
	}
	if err := l.writeRoot(wtx, groupID, ref.meta.RootSeq, root); err != nil {
		return err
	}
	if extra != nil {
		if err := extra(wtx); err != nil {
			return err
		}
	}
	return wtx.Commit()
}

// Register appends the commitment as a new leaf and returns its index.
// Returns ledger.ErrCommitmentExists for duplicates, making retries of
// unobserved registrations idempotent.
func (l *LocalLedger) Register(_ context.Context, groupID uint64, commitment *big.Int) (uint64, error) {
	ref, err := l.loadGroup(groupID)
	if err != nil {
		return 0, err
	}

	ref.mu.Lock()
	defer ref.mu.Unlock()

	if _, err := prefixeddb.NewPrefixedReader(l.db, indexPrefix).Get(commitmentKey(groupID, commitment)); err == nil {
		return 0, ledger.ErrCommitmentExists
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return 0, err
	}
	if ref.meta.LeafCount >= maxLeaves {
		return 0, fmt.Errorf("group tree is full")
	}

	index := ref.meta.LeafCount
	if err := ref.tree.Add(ledger.LeafKey(index), ledger.LeafValue(commitment)); err != nil {
		return 0, fmt.Errorf("cannot add leaf: %w", err)
	}
	root, err := ref.tree.Root()
	if err != nil {
		return 0, err
	}
	ref.meta.LeafCount++
	ref.meta.RootSeq++

	err = l.persistGroup(groupID, ref, root, func(wtx db.WriteTx) error {
		itx := prefixeddb.NewPrefixedWriteTx(wtx, indexPrefix)
		return itx.Set(commitmentKey(groupID, commitment), binary.BigEndian.AppendUint64(nil, index))
	})
	if err != nil {
		return 0, err
	}
	log.Debugw("commitment registered",
		"groupId", groupID, "leafIndex", index, "root", fmt.Sprintf("%x", root))
	return index, nil
}

// LeafIndex resolves the leaf index of a commitment.
func (l *LocalLedger) LeafIndex(_ context.Context, groupID uint64, commitment *big.Int) (uint64, error) {
	if _, err := l.loadGroup(groupID); err != nil {
		return 0, err
	}
	data, err := prefixeddb.NewPrefixedReader(l.db, indexPrefix).Get(commitmentKey(groupID, commitment))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, ledger.ErrNotFound
		}
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// TreeInfo returns depth, leaf count and current root of the group tree.
func (l *LocalLedger) TreeInfo(ctx context.Context, groupID uint64) (*types.TreeInfo, error) {
	ref, err := l.loadGroup(groupID)
	if err != nil {
		return nil, err
	}
	root, err := l.CurrentRoot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ref.mu.Lock()
	count := ref.meta.LeafCount
	ref.mu.Unlock()
	return &types.TreeInfo{
		Depth:     types.GroupTreeMaxLevels,
		LeafCount: count,
		Root:      root,
	}, nil
}

// CurrentRoot returns the current root of the group tree.
func (l *LocalLedger) CurrentRoot(_ context.Context, groupID uint64) (types.HexBytes, error) {
	ref, err := l.loadGroup(groupID)
	if err != nil {
		return nil, err
	}
	ref.mu.Lock()
	defer ref.mu.Unlock()
	root, err := ref.tree.Root()
	if err != nil {
		return nil, err
	}
	return types.HexBytes(root), nil
}

// MerklePath returns the inclusion path of the leaf at the given index
// against the current tree state. Sibling hashes keep arbo's native byte
// order, padded with zero elements up to the tree depth.
func (l *LocalLedger) MerklePath(_ context.Context, groupID uint64, leafIndex uint64) (*types.MembershipPath, error) {
	ref, err := l.loadGroup(groupID)
	if err != nil {
		return nil, err
	}
	ref.mu.Lock()
	defer ref.mu.Unlock()

	if leafIndex >= ref.meta.LeafCount {
		return nil, ledger.ErrNotFound
	}
	_, value, packed, existence, err := ref.tree.GenProof(ledger.LeafKey(leafIndex))
	if err != nil {
		return nil, err
	}
	if !existence {
		return nil, ledger.ErrNotFound
	}
	if arbo.BytesToBigInt(value).Sign() == 0 {
		return nil, ledger.ErrLeafRemoved
	}
	root, err := ref.tree.Root()
	if err != nil {
		return nil, err
	}
	siblings, err := arbo.UnpackSiblings(hashFunction, packed)
	if err != nil {
		return nil, fmt.Errorf("cannot unpack siblings: %w", err)
	}
	padded := make([]types.HexBytes, types.GroupTreeMaxLevels)
	for i := range padded {
		if i < len(siblings) {
			padded[i] = types.HexBytes(siblings[i])
		} else {
			padded[i] = make(types.HexBytes, hashFunction.Len())
		}
	}
	return &types.MembershipPath{
		Index:          leafIndex,
		Siblings:       padded,
		PackedSiblings: types.HexBytes(packed),
		Root:           types.HexBytes(root),
	}, nil
}

// NullifierUsed reports whether the nullifier was already seen within the
// action context.
func (l *LocalLedger) NullifierUsed(_ context.Context, groupID, contextID uint64, nullifier *big.Int) (bool, error) {
	_, err := prefixeddb.NewPrefixedReader(l.db, nullifierPrefix).Get(nullifierKey(groupID, contextID, nullifier))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SpendNullifier records the use of a nullifier within an action context.
// For single-use contexts a repeated nullifier returns
// ledger.ErrNullifierUsed; multi-use contexts just increment the counter.
func (l *LocalLedger) SpendNullifier(groupID, contextID uint64, nullifier *big.Int, kind types.ActionKind) error {
	ref, err := l.loadGroup(groupID)
	if err != nil {
		return err
	}
	ref.mu.Lock()
	defer ref.mu.Unlock()

	key := nullifierKey(groupID, contextID, nullifier)
	count := uint64(0)
	data, err := prefixeddb.NewPrefixedReader(l.db, nullifierPrefix).Get(key)
	switch {
	case err == nil:
		if kind == types.ActionSingleUse {
			return ledger.ErrNullifierUsed
		}
		count = binary.BigEndian.Uint64(data)
	case !errors.Is(err, db.ErrKeyNotFound):
		return err
	}

	wtx := prefixeddb.NewPrefixedWriteTx(l.db.WriteTx(), nullifierPrefix)
	defer wtx.Discard()
	if err := wtx.Set(key, binary.BigEndian.AppendUint64(nil, count+1)); err != nil {
		return err
	}
	return wtx.Commit()
}

// Remove zeroes the leaf at the given index, invalidating the member's
// inclusion paths, and records the removal event in the root history so
// live-policy checks can refuse roots older than the removal.
func (l *LocalLedger) Remove(groupID uint64, leafIndex uint64) error {
	ref, err := l.loadGroup(groupID)
	if err != nil {
		return err
	}
	ref.mu.Lock()
	defer ref.mu.Unlock()

	if leafIndex >= ref.meta.LeafCount {
		return ledger.ErrNotFound
	}
	_, value, err := ref.tree.Get(ledger.LeafKey(leafIndex))
	if err != nil {
		return err
	}
	commitment := arbo.BytesToBigInt(value)
	if commitment.Sign() == 0 {
		return ledger.ErrLeafRemoved
	}
	zero := make([]byte, hashFunction.Len())
	if err := ref.tree.Update(ledger.LeafKey(leafIndex), zero); err != nil {
		return err
	}
	root, err := ref.tree.Root()
	if err != nil {
		return err
	}
	ref.meta.RootSeq++

	err = l.persistGroup(groupID, ref, root, func(wtx db.WriteTx) error {
		itx := prefixeddb.NewPrefixedWriteTx(wtx, indexPrefix)
		if err := itx.Delete(commitmentKey(groupID, commitment)); err != nil {
			return err
		}
		dtx := prefixeddb.NewPrefixedWriteTx(wtx, removalPrefix)
		return dtx.Set(commitmentKey(groupID, commitment),
			binary.BigEndian.AppendUint64(nil, ref.meta.RootSeq))
	})
	if err != nil {
		return err
	}
	log.Infow("member removed", "groupId", groupID, "leafIndex", leafIndex)
	return nil
}

// RootSeq returns the history sequence number of a root. Returns
// ledger.ErrUnknownRoot if the root was never a root of the group tree.
func (l *LocalLedger) RootSeq(groupID uint64, root []byte) (uint64, error) {
	if _, err := l.loadGroup(groupID); err != nil {
		return 0, err
	}
	data, err := prefixeddb.NewPrefixedReader(l.db, rootKeyPrefix).Get(append(groupKey(groupID), root...))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, ledger.ErrUnknownRoot
		}
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// CurrentRootSeq returns the sequence number of the current root.
func (l *LocalLedger) CurrentRootSeq(groupID uint64) (uint64, error) {
	ref, err := l.loadGroup(groupID)
	if err != nil {
		return 0, err
	}
	ref.mu.Lock()
	defer ref.mu.Unlock()
	return ref.meta.RootSeq, nil
}

// RemovalSeq returns the root sequence at which the commitment was removed,
// or ok=false if the member was never removed.
func (l *LocalLedger) RemovalSeq(groupID uint64, commitment *big.Int) (uint64, bool, error) {
	data, err := prefixeddb.NewPrefixedReader(l.db, removalPrefix).Get(commitmentKey(groupID, commitment))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return binary.BigEndian.Uint64(data), true, nil
}
