package credentials

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/vocdoni/zkdao/types"
)

var (
	// credentialPrefix is the db prefix for credential records.
	credentialPrefix = []byte("cd/")
	// actionPrefix is the db prefix for action bookkeeping records.
	actionPrefix = []byte("ac/")

	// ErrNotFound is returned when no record exists for a (group, identity)
	// key.
	ErrNotFound = fmt.Errorf("credential record not found")
)

// record is the persisted form of Credentials. It is sensitive and must
// never leave the local database.
type record struct {
	Secret     *types.BigInt `cbor:"1,keyasint"`
	Salt       *types.BigInt `cbor:"2,keyasint"`
	Commitment *types.BigInt `cbor:"3,keyasint"`
	LeafIndex  uint64        `cbor:"4,keyasint,omitempty"`
	Registered bool          `cbor:"5,keyasint,omitempty"`
}

// actionRecord remembers a performed action so "have I already acted"
// queries need no network round-trip.
type actionRecord struct {
	Nullifier *types.BigInt `cbor:"1,keyasint"`
}

// Store is a persistent credential cache keyed by (groupID, identity
// address). It is an explicit dependency of its callers; there is no
// package-level singleton. All methods are safe for concurrent use: writes
// are idempotent because the stored values are deterministic, so a write
// race on first derivation is benign.
type Store struct {
	db db.Database
}

// NewStore creates a credential store on top of the given database. The
// caller owns the database lifetime.
func NewStore(database db.Database) *Store {
	return &Store{db: database}
}

func storeKey(groupID uint64, addr ethcommon.Address) []byte {
	key := binary.BigEndian.AppendUint64(nil, groupID)
	return append(key, addr.Bytes()...)
}

func actionKey(groupID, contextID uint64, addr ethcommon.Address) []byte {
	key := binary.BigEndian.AppendUint64(nil, groupID)
	key = append(key, addr.Bytes()...)
	return binary.BigEndian.AppendUint64(key, contextID)
}

// Get loads the credentials of an identity within a group. Returns
// ErrNotFound if the record does not exist.
func (s *Store) Get(groupID uint64, addr ethcommon.Address) (*Credentials, error) {
	reader := prefixeddb.NewPrefixedReader(s.db, credentialPrefix)
	data, err := reader.Get(storeKey(groupID, addr))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec := &record{}
	if err := cbor.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("cannot decode credential record: %w", err)
	}
	return &Credentials{
		Secret:     rec.Secret.MathBigInt(),
		Salt:       rec.Salt.MathBigInt(),
		Commitment: rec.Commitment.MathBigInt(),
		LeafIndex:  rec.LeafIndex,
		Registered: rec.Registered,
	}, nil
}

// Set persists the credentials of an identity within a group, overwriting
// any previous record.
func (s *Store) Set(groupID uint64, addr ethcommon.Address, creds *Credentials) error {
	data, err := cbor.Marshal(&record{
		Secret:     (*types.BigInt)(creds.Secret),
		Salt:       (*types.BigInt)(creds.Salt),
		Commitment: (*types.BigInt)(creds.Commitment),
		LeafIndex:  creds.LeafIndex,
		Registered: creds.Registered,
	})
	if err != nil {
		return fmt.Errorf("cannot encode credential record: %w", err)
	}
	wtx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), credentialPrefix)
	defer wtx.Discard()
	if err := wtx.Set(storeKey(groupID, addr), data); err != nil {
		return err
	}
	return wtx.Commit()
}

// MarkActed records that the identity performed the action context with the
// given nullifier.
func (s *Store) MarkActed(groupID, contextID uint64, addr ethcommon.Address, nullifier *big.Int) error {
	data, err := cbor.Marshal(&actionRecord{Nullifier: (*types.BigInt)(nullifier)})
	if err != nil {
		return err
	}
	wtx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), actionPrefix)
	defer wtx.Discard()
	if err := wtx.Set(actionKey(groupID, contextID, addr), data); err != nil {
		return err
	}
	return wtx.Commit()
}

// HasActed reports whether the identity already performed the action
// context, returning the nullifier it used if so.
func (s *Store) HasActed(groupID, contextID uint64, addr ethcommon.Address) (bool, *big.Int, error) {
	reader := prefixeddb.NewPrefixedReader(s.db, actionPrefix)
	data, err := reader.Get(actionKey(groupID, contextID, addr))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	rec := &actionRecord{}
	if err := cbor.Unmarshal(data, rec); err != nil {
		return false, nil, fmt.Errorf("cannot decode action record: %w", err)
	}
	return true, rec.Nullifier.MathBigInt(), nil
}
