package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/google/uuid"
	"github.com/vocdoni/arbo"

	"github.com/vocdoni/zkdao/ledger"
	"github.com/vocdoni/zkdao/log"
	"github.com/vocdoni/zkdao/prover"
	"github.com/vocdoni/zkdao/types"
)

// submission is the part of a request the eligibility and proof checks need,
// already decoded from the wire encoding.
type submission struct {
	groupID    uint64
	contextID  uint64
	root       *big.Int
	nullifier  *big.Int
	commitment *big.Int
	payload    *big.Int
	proof      *ProofWire
}

// submitVote accepts an anonymous vote.
// POST /votes
func (a *API) submitVote(w http.ResponseWriter, r *http.Request) {
	req := &VoteRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	sub, apiErr := decodeSubmission(req.DaoID, req.ProposalID,
		req.Root, req.Nullifier, req.Commitment, VotePayload(req.Choice), req.Proof)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	if apiErr := a.accept(sub); apiErr != nil {
		apiErr.Write(w)
		return
	}
	log.Infow("vote accepted", "daoId", req.DaoID, "proposalId", req.ProposalID)
	httpWriteJSON(w, &SubmitResponse{Receipt: uuid.New()})
}

// submitComment accepts an anonymous comment. Unlike votes, comments use the
// live eligibility policy and a multi-use nullifier context, so the same
// member can comment repeatedly on one proposal.
// POST /comments
func (a *API) submitComment(w http.ResponseWriter, r *http.Request) {
	req := &CommentRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.ContentCid == "" {
		ErrMalformedBody.With("missing contentCid").Write(w)
		return
	}
	sub, apiErr := decodeSubmission(req.DaoID, req.ProposalID,
		req.Root, req.Nullifier, req.Commitment,
		CommentPayload(req.ContentCid, req.ParentID), req.Proof)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	if apiErr := a.accept(sub); apiErr != nil {
		apiErr.Write(w)
		return
	}
	log.Infow("comment accepted", "daoId", req.DaoID, "proposalId", req.ProposalID,
		"contentCid", req.ContentCid)
	httpWriteJSON(w, &SubmitResponse{Receipt: uuid.New()})
}

// decodeSubmission validates the wire scalars of a request.
func decodeSubmission(groupID, contextID uint64,
	root, nullifier, commitment types.HexBytes, payload *big.Int, proof *ProofWire,
) (*submission, *Error) {
	rootInt, err := types.ScalarFromBytes(root)
	if err != nil {
		e := ErrMalformedBody.Withf("root: %v", err)
		return nil, &e
	}
	nullifierInt, err := types.ScalarFromBytes(nullifier)
	if err != nil {
		e := ErrMalformedBody.Withf("nullifier: %v", err)
		return nil, &e
	}
	if nullifierInt.Sign() == 0 {
		return nil, &ErrZeroNullifier
	}
	commitmentInt, err := types.ScalarFromBytes(commitment)
	if err != nil {
		e := ErrMalformedBody.Withf("commitment: %v", err)
		return nil, &e
	}
	return &submission{
		groupID:    groupID,
		contextID:  contextID,
		root:       rootInt,
		nullifier:  nullifierInt,
		commitment: commitmentInt,
		payload:    payload,
		proof:      proof,
	}, nil
}

// accept runs the full acceptance sequence of a submission: action lookup,
// root eligibility, proof verification and nullifier spending. Spending
// comes last so a rejected submission never burns its nullifier.
func (a *API) accept(sub *submission) *Error {
	action, err := a.actions.Get(sub.groupID, sub.contextID)
	if err != nil {
		return &ErrActionNotFound
	}
	if apiErr := a.checkRoot(action, sub); apiErr != nil {
		return apiErr
	}
	proofData, err := DecodeProof(sub.proof)
	if err != nil {
		e := ErrMalformedProof.WithErr(err)
		return &e
	}
	proof := &prover.Proof{
		Data: *proofData,
		PubSignals: publicSignals(sub.root, sub.nullifier, sub.commitment,
			sub.groupID, sub.contextID, sub.payload),
	}
	if err := a.verifier.Verify(proof); err != nil {
		e := ErrInvalidProof.WithErr(err)
		return &e
	}
	if err := a.ledger.SpendNullifier(sub.groupID, sub.contextID, sub.nullifier, action.Kind); err != nil {
		if errors.Is(err, ledger.ErrNullifierUsed) {
			return &ErrAlreadyActed
		}
		e := ErrGenericInternalServerError.WithErr(err)
		return &e
	}
	return nil
}

// checkRoot enforces the action's eligibility policy on the proof root.
// Snapshot actions accept exactly the pinned root; live actions accept any
// root in the group's history that is not older than the action itself nor
// older than the member's most recent removal.
func (a *API) checkRoot(action *types.Action, sub *submission) *Error {
	if action.Policy == types.EligibilitySnapshot {
		if len(action.PinnedRoot) == 0 {
			e := ErrGenericInternalServerError.With("snapshot action has no pinned root")
			return &e
		}
		// a member registered after the snapshot only has paths to newer
		// roots, so a root mismatch surfaces as this condition
		if arbo.BytesToBigInt(action.PinnedRoot).Cmp(sub.root) != 0 {
			return &ErrJoinedAfterSnapshot
		}
		return nil
	}
	rootSeq, err := a.ledger.RootSeq(sub.groupID, arbo.BigIntToBytes(32, sub.root))
	if err != nil {
		return &ErrRootNotAccepted
	}
	if rootSeq < action.CreatedAtRootSeq {
		return &ErrRootNotAccepted
	}
	removalSeq, removed, err := a.ledger.RemovalSeq(sub.groupID, sub.commitment)
	if err != nil {
		e := ErrGenericInternalServerError.WithErr(err)
		return &e
	}
	if removed && rootSeq < removalSeq {
		return &ErrMembershipRevoked
	}
	return nil
}
