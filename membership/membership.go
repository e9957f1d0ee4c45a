// Package membership covers the on-ledger side of the anonymous pipeline
// before proving: commitment registration, merkle path acquisition and
// eligibility-root selection.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"math/big"

	"github.com/vocdoni/zkdao/ledger"
	"github.com/vocdoni/zkdao/log"
	"github.com/vocdoni/zkdao/retry"
	"github.com/vocdoni/zkdao/types"
)

// ErrRegistrationUnconfirmed is returned when the registration was submitted
// (or already existed) but the leaf index could not be resolved before the
// read retries were exhausted. The condition is recoverable: the caller can
// simply try again shortly.
var ErrRegistrationUnconfirmed = fmt.Errorf("registration not yet confirmed, try again shortly")

// Registrar performs idempotent commitment registrations against a ledger.
type Registrar struct {
	ledger ledger.Ledger
	// submitPolicy retries the registration itself on stale-sequence
	// errors, rebuilding it fresh each attempt.
	submitPolicy retry.Policy
	// resolvePolicy retries the leaf index lookup to absorb the ledger's
	// read-propagation delay.
	resolvePolicy retry.Policy
}

// NewRegistrar creates a Registrar with the default retry policies.
func NewRegistrar(l ledger.Ledger) *Registrar {
	return &Registrar{
		ledger:       l,
		submitPolicy: retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, Jitter: true},
		resolvePolicy: retry.Policy{
			MaxAttempts: 6,
			BaseDelay:   2 * time.Second,
			MaxDelay:    2 * time.Second,
		},
	}
}

// Register submits the commitment to the group accumulator and resolves the
// resulting leaf index. It is idempotent: if the ledger reports the
// commitment as already existing, an earlier unobserved registration
// succeeded and the leaf index is resolved by lookup instead.
func (r *Registrar) Register(ctx context.Context, groupID uint64, commitment *big.Int) (uint64, error) {
	var leafIndex uint64
	alreadyExists := false

	err := r.submitPolicy.Do(ctx, func() error {
		// The registration is rebuilt fresh on every attempt; resubmitting
		// a stale one would hit the same sequence error again.
		index, err := r.ledger.Register(ctx, groupID, commitment)
		switch {
		case err == nil:
			leafIndex = index
			return nil
		case errors.Is(err, ledger.ErrCommitmentExists):
			alreadyExists = true
			return nil
		case errors.Is(err, ledger.ErrStaleSequence):
			log.Debugw("stale sequence on registration, rebuilding",
				"groupId", groupID)
			return err
		default:
			// capability refusals and any other ledger error are fatal and
			// surfaced verbatim
			return retry.Permanent(err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("registration failed: %w", err)
	}
	if !alreadyExists {
		return leafIndex, nil
	}

	// The transaction result is not the source of truth here; the leaf
	// index is resolved by lookup, with backoff for read lag.
	log.Debugw("commitment already registered, resolving leaf index",
		"groupId", groupID)
	err = r.resolvePolicy.Do(ctx, func() error {
		index, err := r.ledger.LeafIndex(ctx, groupID, commitment)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return err
			}
			return retry.Permanent(err)
		}
		leafIndex = index
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return 0, ErrRegistrationUnconfirmed
		}
		return 0, err
	}
	return leafIndex, nil
}

// PathProvider retrieves merkle inclusion paths from a ledger. It is a pure
// read, safe to call concurrently and repeatedly.
type PathProvider struct {
	ledger ledger.Ledger
}

// NewPathProvider creates a PathProvider over the given ledger.
func NewPathProvider(l ledger.Ledger) *PathProvider {
	return &PathProvider{ledger: l}
}

// Path returns the sibling hashes and left/right indicators proving
// inclusion of the leaf at leafIndex. The caller must make sure the path
// corresponds to the same tree state as the root it proves against;
// ledger.VerifyPath performs that check.
func (p *PathProvider) Path(ctx context.Context, groupID, leafIndex uint64) (*types.MembershipPath, error) {
	return p.ledger.MerklePath(ctx, groupID, leafIndex)
}

// RootSelector chooses the eligibility root to prove against, according to
// the action's policy.
type RootSelector struct {
	ledger ledger.Ledger
}

// NewRootSelector creates a RootSelector over the given ledger.
func NewRootSelector(l ledger.Ledger) *RootSelector {
	return &RootSelector{ledger: l}
}

// Select returns the root the proof for the action must be built against.
// Snapshot actions always get the root pinned at creation time; live actions
// get the tree's current root, with whatever staleness the underlying read
// has. A live root changing between proof generation and verification is an
// accepted, bounded race, not an error.
func (s *RootSelector) Select(ctx context.Context, action *types.Action) (types.HexBytes, error) {
	switch action.Policy {
	case types.EligibilitySnapshot:
		if len(action.PinnedRoot) == 0 {
			return nil, fmt.Errorf("snapshot action %d/%d has no pinned root",
				action.GroupID, action.ContextID)
		}
		return action.PinnedRoot, nil
	case types.EligibilityLive:
		return s.ledger.CurrentRoot(ctx, action.GroupID)
	}
	return nil, fmt.Errorf("unknown eligibility policy %d", action.Policy)
}
