package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vocdoni/zkdao/ledger"
	"github.com/vocdoni/zkdao/ledger/arboledger"
)

// newGroup creates a new membership group with an empty tree.
// POST /groups
func (a *API) newGroup(w http.ResponseWriter, r *http.Request) {
	req := &NewGroupRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if err := a.ledger.CreateGroup(req.GroupID); err != nil {
		if errors.Is(err, arboledger.ErrGroupExists) {
			ErrGroupExists.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// groupInfo returns the group's tree depth, leaf count and current root.
// GET /groups/{groupId}
func (a *API) groupInfo(w http.ResponseWriter, r *http.Request) {
	groupID, err := urlParamUint64(r, GroupURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	info, err := a.ledger.TreeInfo(r.Context(), groupID)
	if err != nil {
		writeLedgerErr(w, err)
		return
	}
	httpWriteJSON(w, info)
}

// groupRoot returns the group's current tree root.
// GET /groups/{groupId}/root
func (a *API) groupRoot(w http.ResponseWriter, r *http.Request) {
	groupID, err := urlParamUint64(r, GroupURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	root, err := a.ledger.CurrentRoot(r.Context(), groupID)
	if err != nil {
		writeLedgerErr(w, err)
		return
	}
	httpWriteJSON(w, &RootResponse{Root: root})
}

// registerMember appends a commitment to the group tree. Registering an
// already present commitment returns its existing leaf index, so the
// operation is idempotent.
// POST /groups/{groupId}/members
func (a *API) registerMember(w http.ResponseWriter, r *http.Request) {
	groupID, err := urlParamUint64(r, GroupURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	req := &RegisterRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	commitment := new(big.Int).SetBytes(req.Commitment)
	index, err := a.ledger.Register(r.Context(), groupID, commitment)
	if errors.Is(err, ledger.ErrCommitmentExists) {
		index, err = a.ledger.LeafIndex(r.Context(), groupID, commitment)
	}
	if err != nil {
		writeLedgerErr(w, err)
		return
	}
	httpWriteJSON(w, &RegisterResponse{LeafIndex: index})
}

// memberIndex resolves a commitment's leaf index.
// GET /groups/{groupId}/members/{commitment}
func (a *API) memberIndex(w http.ResponseWriter, r *http.Request) {
	groupID, err := urlParamUint64(r, GroupURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	commitment, err := urlParamScalar(r, CommitmentURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	index, err := a.ledger.LeafIndex(r.Context(), groupID, commitment)
	if err != nil {
		writeLedgerErr(w, err)
		return
	}
	httpWriteJSON(w, &RegisterResponse{LeafIndex: index})
}

// memberPath returns the merkle inclusion path of the leaf at the given
// index, against the current root.
// GET /groups/{groupId}/members/{leafIndex}/path
func (a *API) memberPath(w http.ResponseWriter, r *http.Request) {
	groupID, err := urlParamUint64(r, GroupURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	leafIndex, err := urlParamUint64(r, LeafIndexURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	path, err := a.ledger.MerklePath(r.Context(), groupID, leafIndex)
	if err != nil {
		writeLedgerErr(w, err)
		return
	}
	httpWriteJSON(w, path)
}

// nullifierUsed reports whether a nullifier was already used within an
// action context.
// GET /groups/{groupId}/contexts/{contextId}/nullifiers/{nullifier}
func (a *API) nullifierUsed(w http.ResponseWriter, r *http.Request) {
	groupID, err := urlParamUint64(r, GroupURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	contextID, err := urlParamUint64(r, ContextURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	nullifier, err := urlParamScalar(r, NullifierURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	used, err := a.ledger.NullifierUsed(r.Context(), groupID, contextID, nullifier)
	if err != nil {
		writeLedgerErr(w, err)
		return
	}
	httpWriteJSON(w, &NullifierResponse{Used: used})
}

// urlParamScalar parses a big-endian hex URL parameter as a big integer.
func urlParamScalar(r *http.Request, name string) (*big.Int, error) {
	data, err := hex.DecodeString(chi.URLParam(r, name))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return new(big.Int).SetBytes(data), nil
}

// writeLedgerErr maps ledger errors to API errors.
func writeLedgerErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrGroupNotFound):
		ErrGroupNotFound.Write(w)
	case errors.Is(err, ledger.ErrNotFound):
		ErrMemberNotFound.Write(w)
	case errors.Is(err, ledger.ErrLeafRemoved):
		ErrMembershipRevoked.Write(w)
	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}
