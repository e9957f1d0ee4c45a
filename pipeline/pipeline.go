// Package pipeline orchestrates an anonymous action end to end: credential
// derivation, commitment registration, merkle path acquisition, root
// selection, nullifier computation, proof generation and relay submission.
// Each action runs as one strictly sequential workflow; concurrent actions
// run as independent pipeline instances that share only the credential
// store, which is safe because everything it holds is deterministic.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/arbo"

	"github.com/vocdoni/zkdao/api"
	"github.com/vocdoni/zkdao/credentials"
	"github.com/vocdoni/zkdao/crypto/identity"
	"github.com/vocdoni/zkdao/ledger"
	"github.com/vocdoni/zkdao/log"
	"github.com/vocdoni/zkdao/membership"
	"github.com/vocdoni/zkdao/prover"
	"github.com/vocdoni/zkdao/types"
)

// Config wires a Pipeline. All fields are required.
type Config struct {
	Signer    credentials.Signer
	Store     *credentials.Store
	Ledger    ledger.Ledger
	Engine    *prover.Engine
	Submitter Submitter
}

// Pipeline executes anonymous actions against a relay.
type Pipeline struct {
	signer      credentials.Signer
	store       *credentials.Store
	ledger      ledger.Ledger
	registrar   *membership.Registrar
	paths       *membership.PathProvider
	roots       *membership.RootSelector
	engine      *prover.Engine
	coordinator *SubmissionCoordinator
}

// New creates a Pipeline from the given configuration.
func New(conf *Config) (*Pipeline, error) {
	if conf == nil || conf.Signer == nil || conf.Store == nil || conf.Ledger == nil ||
		conf.Engine == nil || conf.Submitter == nil {
		return nil, fmt.Errorf("incomplete pipeline configuration")
	}
	return &Pipeline{
		signer:      conf.Signer,
		store:       conf.Store,
		ledger:      conf.Ledger,
		registrar:   membership.NewRegistrar(conf.Ledger),
		paths:       membership.NewPathProvider(conf.Ledger),
		roots:       membership.NewRootSelector(conf.Ledger),
		engine:      conf.Engine,
		coordinator: NewSubmissionCoordinator(conf.Submitter),
	}, nil
}

// EnsureRegistered returns the member's credentials for the group, deriving
// and registering them on first use. Later calls hit the local cache; a
// fresh device re-derives the same credentials from the signing capability
// and reconciles with the registration already on the ledger.
func (p *Pipeline) EnsureRegistered(ctx context.Context, groupID uint64) (*credentials.Credentials, error) {
	addr := p.signer.Address()
	creds, err := p.store.Get(groupID, addr)
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		return nil, err
	}
	if creds != nil && creds.Registered {
		return creds, nil
	}
	if creds == nil {
		p.engine.Phase(prover.PhaseDeriving)
		creds, err = credentials.Derive(p.signer, groupID)
		if err != nil {
			return nil, err
		}
		// cache before registering, so an aborted registration does not
		// force another signing prompt
		if err := p.store.Set(groupID, addr, creds); err != nil {
			return nil, err
		}
	}
	index, err := p.registrar.Register(ctx, groupID, creds.Commitment)
	if err != nil {
		return nil, err
	}
	creds.LeafIndex = index
	creds.Registered = true
	if err := p.store.Set(groupID, addr, creds); err != nil {
		return nil, err
	}
	log.Infow("member registered", "groupId", groupID, "leafIndex", index)
	return creds, nil
}

// Vote casts an anonymous vote on the action's context.
func (p *Pipeline) Vote(ctx context.Context, action *types.Action, choice bool) (*Outcome, error) {
	return p.run(ctx, action, api.VotePayload(choice),
		func(root, nullifier, commitment types.HexBytes, proof *api.ProofWire) (*Outcome, error) {
			return p.coordinator.SubmitVote(ctx, &api.VoteRequest{
				DaoID:      action.GroupID,
				ProposalID: action.ContextID,
				Choice:     choice,
				Nullifier:  nullifier,
				Root:       root,
				Commitment: commitment,
				Proof:      proof,
			})
		})
}

// Comment posts an anonymous comment on the action's context. ParentID is
// nil for a top-level comment.
func (p *Pipeline) Comment(ctx context.Context, action *types.Action,
	contentCid string, parentID *uint64,
) (*Outcome, error) {
	if contentCid == "" {
		return nil, fmt.Errorf("missing contentCid")
	}
	return p.run(ctx, action, api.CommentPayload(contentCid, parentID),
		func(root, nullifier, commitment types.HexBytes, proof *api.ProofWire) (*Outcome, error) {
			return p.coordinator.SubmitComment(ctx, &api.CommentRequest{
				DaoID:      action.GroupID,
				ProposalID: action.ContextID,
				ContentCid: contentCid,
				ParentID:   parentID,
				Nullifier:  nullifier,
				Root:       root,
				Commitment: commitment,
				Proof:      proof,
			})
		})
}

// run is the shared action workflow. Every step before submission is
// abortable through the context without side effects; the submission itself
// runs to completion once started.
func (p *Pipeline) run(ctx context.Context, action *types.Action, payload *big.Int,
	send func(root, nullifier, commitment types.HexBytes, proof *api.ProofWire) (*Outcome, error),
) (*Outcome, error) {
	creds, err := p.EnsureRegistered(ctx, action.GroupID)
	if err != nil {
		return nil, err
	}

	// local bookkeeping answers "have I already acted" without a network
	// round-trip
	if action.Kind == types.ActionSingleUse {
		acted, usedNullifier, err := p.store.HasActed(action.GroupID, action.ContextID, p.signer.Address())
		if err != nil {
			return nil, err
		}
		if acted {
			return &Outcome{
				Status:    StatusAlreadyActed,
				Nullifier: types.ScalarToBytes(usedNullifier),
			}, nil
		}
	}

	p.engine.Phase(prover.PhasePath)
	root, err := p.roots.Select(ctx, action)
	if err != nil {
		return nil, err
	}
	path, err := p.paths.Path(ctx, action.GroupID, creds.LeafIndex)
	if err != nil {
		if errors.Is(err, ledger.ErrLeafRemoved) {
			return nil, &EligibilityError{
				Code:   api.ErrMembershipRevoked.Code,
				Reason: "membership was revoked",
			}
		}
		return nil, err
	}
	// the path must reach the selected eligibility root; when it does not,
	// the likely cause is a snapshot taken before this member joined (or a
	// tree that changed since), which is a policy outcome, not a transient
	// failure
	if !ledger.VerifyPath(creds.Commitment, path, root) {
		return nil, &EligibilityError{
			Code:   api.ErrJoinedAfterSnapshot.Code,
			Reason: "membership path does not reach the action's eligibility root",
		}
	}

	p.engine.Phase(prover.PhaseNullifier)
	nullifier, err := identity.Nullifier(creds.Secret, action.GroupID, action.ContextID)
	if err != nil {
		return nil, err
	}
	if action.Kind == types.ActionSingleUse {
		used, err := p.ledger.NullifierUsed(ctx, action.GroupID, action.ContextID, nullifier)
		if err != nil {
			return nil, err
		}
		if used {
			// seen on the relay but not in local bookkeeping: an
			// earlier submission from another device — record it
			if err := p.store.MarkActed(action.GroupID, action.ContextID,
				p.signer.Address(), nullifier); err != nil {
				log.Warnw("could not record action bookkeeping", "err", err)
			}
			return &Outcome{
				Status:    StatusAlreadyActed,
				Nullifier: types.ScalarToBytes(nullifier),
			}, nil
		}
	}

	proof, err := p.engine.Prove(ctx, &prover.Witness{
		Secret:     creds.Secret,
		Salt:       creds.Salt,
		Path:       path,
		Root:       root,
		Nullifier:  nullifier,
		GroupID:    action.GroupID,
		ContextID:  action.ContextID,
		Payload:    payload,
		Commitment: creds.Commitment,
	})
	if err != nil {
		return nil, err
	}
	wireProof, err := api.EncodeProof(&proof.Data)
	if err != nil {
		return nil, err
	}

	outcome, err := send(
		types.ScalarToBytes(arbo.BytesToBigInt(root)),
		types.ScalarToBytes(nullifier),
		types.ScalarToBytes(creds.Commitment),
		wireProof)
	if err != nil {
		return nil, err
	}
	if err := p.store.MarkActed(action.GroupID, action.ContextID,
		p.signer.Address(), nullifier); err != nil {
		log.Warnw("could not record action bookkeeping", "err", err)
	}
	log.Infow("action completed", "groupId", action.GroupID,
		"contextId", action.ContextID, "status", outcome.Status.String())
	return outcome, nil
}
