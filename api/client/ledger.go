package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/vocdoni/zkdao/api"
	"github.com/vocdoni/zkdao/ledger"
	"github.com/vocdoni/zkdao/types"
)

// apiError is the JSON error body the relay writes.
type apiError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// decodeError maps a non-200 relay response to an error. Ledger-shaped
// conditions come back as the ledger package's sentinel errors so callers
// can errors.Is on them; everything else is surfaced verbatim.
func decodeError(data []byte, status int) error {
	e := &apiError{}
	if err := json.Unmarshal(data, e); err != nil {
		return fmt.Errorf("http status %d: %s", status, data)
	}
	switch e.Code {
	case api.ErrGroupNotFound.Code:
		return ledger.ErrGroupNotFound
	case api.ErrMemberNotFound.Code, api.ErrResourceNotFound.Code:
		return ledger.ErrNotFound
	case api.ErrGroupExists.Code:
		return fmt.Errorf("%s", e.Error)
	case api.ErrMembershipRevoked.Code:
		return ledger.ErrLeafRemoved
	default:
		return fmt.Errorf("%s (code %d)", e.Error, e.Code)
	}
}

// CreateGroup creates a membership group on the relay.
func (c *HTTPclient) CreateGroup(groupID uint64) error {
	data, status, err := c.Request(HTTPPOST, &api.NewGroupRequest{GroupID: groupID},
		nil, api.GroupsEndpoint)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return decodeError(data, status)
	}
	return nil
}

// CreateAction creates an action context on the relay and returns it with
// the pinned root filled in for snapshot actions.
func (c *HTTPclient) CreateAction(req *api.NewActionRequest) (*types.Action, error) {
	data, status, err := c.Request(HTTPPOST, req, nil, api.ActionsEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(data, status)
	}
	action := &types.Action{}
	if err := json.Unmarshal(data, action); err != nil {
		return nil, fmt.Errorf("could not decode action: %w", err)
	}
	return action, nil
}

// Action fetches an action's parameters.
func (c *HTTPclient) Action(groupID, contextID uint64) (*types.Action, error) {
	data, status, err := c.Request(HTTPGET, nil, nil, "actions",
		strconv.FormatUint(groupID, 10), strconv.FormatUint(contextID, 10))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(data, status)
	}
	action := &types.Action{}
	if err := json.Unmarshal(data, action); err != nil {
		return nil, fmt.Errorf("could not decode action: %w", err)
	}
	return action, nil
}

// Register implements ledger.Ledger over the relay API.
func (c *HTTPclient) Register(_ context.Context, groupID uint64, commitment *big.Int) (uint64, error) {
	data, status, err := c.Request(HTTPPOST,
		&api.RegisterRequest{Commitment: types.ScalarToBytes(commitment)},
		nil, "groups", strconv.FormatUint(groupID, 10), "members")
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, decodeError(data, status)
	}
	res := &api.RegisterResponse{}
	if err := json.Unmarshal(data, res); err != nil {
		return 0, fmt.Errorf("could not decode register response: %w", err)
	}
	return res.LeafIndex, nil
}

// LeafIndex implements ledger.Ledger over the relay API.
func (c *HTTPclient) LeafIndex(_ context.Context, groupID uint64, commitment *big.Int) (uint64, error) {
	data, status, err := c.Request(HTTPGET, nil, nil, "groups",
		strconv.FormatUint(groupID, 10), "members",
		hex.EncodeToString(types.ScalarToBytes(commitment)))
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, decodeError(data, status)
	}
	res := &api.RegisterResponse{}
	if err := json.Unmarshal(data, res); err != nil {
		return 0, fmt.Errorf("could not decode leaf index response: %w", err)
	}
	return res.LeafIndex, nil
}

// TreeInfo implements ledger.Ledger over the relay API.
func (c *HTTPclient) TreeInfo(_ context.Context, groupID uint64) (*types.TreeInfo, error) {
	data, status, err := c.Request(HTTPGET, nil, nil, "groups",
		strconv.FormatUint(groupID, 10))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(data, status)
	}
	info := &types.TreeInfo{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("could not decode tree info: %w", err)
	}
	return info, nil
}

// CurrentRoot implements ledger.Ledger over the relay API.
func (c *HTTPclient) CurrentRoot(_ context.Context, groupID uint64) (types.HexBytes, error) {
	data, status, err := c.Request(HTTPGET, nil, nil, "groups",
		strconv.FormatUint(groupID, 10), "root")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(data, status)
	}
	res := &api.RootResponse{}
	if err := json.Unmarshal(data, res); err != nil {
		return nil, fmt.Errorf("could not decode root response: %w", err)
	}
	return res.Root, nil
}

// MerklePath implements ledger.Ledger over the relay API.
func (c *HTTPclient) MerklePath(_ context.Context, groupID, leafIndex uint64) (*types.MembershipPath, error) {
	data, status, err := c.Request(HTTPGET, nil, nil, "groups",
		strconv.FormatUint(groupID, 10), "members",
		strconv.FormatUint(leafIndex, 10), "path")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(data, status)
	}
	path := &types.MembershipPath{}
	if err := json.Unmarshal(data, path); err != nil {
		return nil, fmt.Errorf("could not decode merkle path: %w", err)
	}
	return path, nil
}

// NullifierUsed implements ledger.Ledger over the relay API.
func (c *HTTPclient) NullifierUsed(_ context.Context, groupID, contextID uint64, nullifier *big.Int) (bool, error) {
	data, status, err := c.Request(HTTPGET, nil, nil, "groups",
		strconv.FormatUint(groupID, 10), "contexts",
		strconv.FormatUint(contextID, 10), "nullifiers",
		hex.EncodeToString(types.ScalarToBytes(nullifier)))
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, decodeError(data, status)
	}
	res := &api.NullifierResponse{}
	if err := json.Unmarshal(data, res); err != nil {
		return false, fmt.Errorf("could not decode nullifier response: %w", err)
	}
	return res.Used, nil
}
