package api

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/vocdoni/zkdao/ledger"
	"github.com/vocdoni/zkdao/types"
)

const actionPrefix = "ax/"

// actionStore persists the action registry: which contexts exist per group,
// their kind, eligibility policy and pinned root.
type actionStore struct {
	db db.Database
}

func newActionStore(database db.Database) *actionStore {
	return &actionStore{db: database}
}

func actionKey(groupID, contextID uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key, groupID)
	binary.BigEndian.PutUint64(key[8:], contextID)
	return key
}

// Get returns the action for the given group and context, or
// ledger.ErrNotFound.
func (s *actionStore) Get(groupID, contextID uint64) (*types.Action, error) {
	reader := prefixeddb.NewPrefixedReader(s.db, []byte(actionPrefix))
	data, err := reader.Get(actionKey(groupID, contextID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("could not read action: %w", err)
	}
	action := &types.Action{}
	if err := cbor.Unmarshal(data, action); err != nil {
		return nil, fmt.Errorf("could not decode action: %w", err)
	}
	return action, nil
}

// Set stores an action. Returns an error if it already exists.
func (s *actionStore) Set(action *types.Action) error {
	if _, err := s.Get(action.GroupID, action.ContextID); err == nil {
		return fmt.Errorf("action already exists")
	}
	data, err := cbor.Marshal(action)
	if err != nil {
		return fmt.Errorf("could not encode action: %w", err)
	}
	wtx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), []byte(actionPrefix))
	defer wtx.Discard()
	if err := wtx.Set(actionKey(action.GroupID, action.ContextID), data); err != nil {
		return fmt.Errorf("could not store action: %w", err)
	}
	return wtx.Commit()
}

// newAction creates an action context within a group. For snapshot
// eligibility the group's current root is pinned here and stays fixed for
// the action's lifetime.
// POST /actions
func (a *API) newAction(w http.ResponseWriter, r *http.Request) {
	req := &NewActionRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if !a.ledger.Exists(req.GroupID) {
		ErrGroupNotFound.Write(w)
		return
	}
	action := &types.Action{
		GroupID:   req.GroupID,
		ContextID: req.ContextID,
		Kind:      req.Kind,
		Policy:    req.Policy,
	}
	rootSeq, err := a.ledger.CurrentRootSeq(req.GroupID)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	action.CreatedAtRootSeq = rootSeq
	if req.Policy == types.EligibilitySnapshot {
		root, err := a.ledger.CurrentRoot(r.Context(), req.GroupID)
		if err != nil {
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
		action.PinnedRoot = root
	}
	if err := a.actions.Set(action); err != nil {
		ErrActionExists.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, action)
}

// actionInfo returns an action's parameters.
// GET /actions/{groupId}/{contextId}
func (a *API) actionInfo(w http.ResponseWriter, r *http.Request) {
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
	action, err := a.actions.Get(groupID, contextID)
	if err != nil {
		ErrActionNotFound.Write(w)
		return
	}
	httpWriteJSON(w, action)
}

// urlParamUint64 parses a decimal uint64 URL parameter.
func urlParamUint64(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
