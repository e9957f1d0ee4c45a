package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/vocdoni/zkdao/api"
	"github.com/vocdoni/zkdao/api/client"
	"github.com/vocdoni/zkdao/credentials"
	"github.com/vocdoni/zkdao/crypto/ethereum"
	"github.com/vocdoni/zkdao/ledger/arboledger"
	"github.com/vocdoni/zkdao/prover"
	"github.com/vocdoni/zkdao/types"
)

const testPrivKey = "fad9c8855b740a0b7ed4c221dbad0f33a83a49cad6b3fe8d5817ac83d38b6a19"

// echoBackend stands in for rapidsnark: it produces a structurally valid
// proof whose public signals are copied straight from the witness inputs, so
// the engine's signal check and the relay's wire round-trip both hold.
type echoBackend struct{}

func (echoBackend) Prove(inputs []byte) (*prover.Proof, error) {
	var in map[string]any
	if err := json.Unmarshal(inputs, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", prover.ErrWitnessConstruction, err)
	}
	proof := &prover.Proof{
		Data: prover.ProofData{
			A: []string{"1", "2", "1"},
			B: [][]string{{"3", "4"}, {"5", "6"}, {"1", "0"}},
			C: []string{"7", "8", "1"},
		},
	}
	for _, signal := range []string{"root", "nullifier", "groupId", "contextId", "payload", "commitment"} {
		proof.PubSignals = append(proof.PubSignals, in[signal].(string))
	}
	return proof, nil
}

func (echoBackend) Verify(*prover.Proof) error { return nil }

// acceptVerifier is the relay-side counterpart of echoBackend.
type acceptVerifier struct{}

func (acceptVerifier) Verify(*prover.Proof) error { return nil }

func newTestRelay(t *testing.T) *client.HTTPclient {
	t.Helper()
	database := metadb.NewTest(t)
	a, err := api.NewLocal(&api.APIConfig{
		DB:       database,
		Ledger:   arboledger.New(database),
		Verifier: acceptVerifier{},
	})
	qt.Assert(t, err, qt.IsNil)
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	c, err := client.New(srv.URL)
	qt.Assert(t, err, qt.IsNil)
	return c
}

func newTestPipeline(t *testing.T, relay *client.HTTPclient) *Pipeline {
	t.Helper()
	signer := ethereum.NewSignKeys()
	qt.Assert(t, signer.AddHexKey(testPrivKey), qt.IsNil)
	p, err := New(&Config{
		Signer:    signer,
		Store:     credentials.NewStore(metadb.NewTest(t)),
		Ledger:    relay,
		Engine:    prover.NewEngine(echoBackend{}),
		Submitter: relay,
	})
	qt.Assert(t, err, qt.IsNil)
	return p
}

func TestPipelineVote(t *testing.T) {
	c := qt.New(t)
	relay := newTestRelay(t)
	pipe := newTestPipeline(t, relay)
	ctx := context.Background()

	var phases []prover.Phase
	pipe.engine.Observe(func(p prover.Phase) { phases = append(phases, p) })

	c.Assert(relay.CreateGroup(7), qt.IsNil)

	// register before the snapshot action is created, so the pinned root
	// includes this member
	creds, err := pipe.EnsureRegistered(ctx, 7)
	c.Assert(err, qt.IsNil)
	c.Assert(creds.Registered, qt.IsTrue)

	action, err := relay.CreateAction(&api.NewActionRequest{
		GroupID:   7,
		ContextID: 42,
		Kind:      types.ActionSingleUse,
		Policy:    types.EligibilitySnapshot,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(action.PinnedRoot, qt.Not(qt.HasLen), 0)

	outcome, err := pipe.Vote(ctx, action, true)
	c.Assert(err, qt.IsNil)
	c.Assert(outcome.Status, qt.Equals, StatusAccepted)
	c.Assert(outcome.Receipt.String(), qt.Not(qt.Equals), "00000000-0000-0000-0000-000000000000")
	c.Assert(phases, qt.DeepEquals, []prover.Phase{
		prover.PhaseDeriving, prover.PhasePath, prover.PhaseNullifier,
		prover.PhaseProving, prover.PhaseVerifying,
	})

	// the nullifier is burned on the relay
	nullifier, err := types.ScalarFromBytes(outcome.Nullifier)
	c.Assert(err, qt.IsNil)
	used, err := relay.NullifierUsed(ctx, 7, 42, nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsTrue)

	// a second vote short-circuits on local bookkeeping, without proving
	phases = phases[:0]
	again, err := pipe.Vote(ctx, action, false)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Status, qt.Equals, StatusAlreadyActed)
	c.Assert(again.Nullifier, qt.Not(qt.HasLen), 0)
	c.Assert(phases, qt.HasLen, 0)
}

func TestPipelineDuplicateAcrossDevices(t *testing.T) {
	c := qt.New(t)
	relay := newTestRelay(t)
	first := newTestPipeline(t, relay)
	ctx := context.Background()

	c.Assert(relay.CreateGroup(7), qt.IsNil)
	_, err := first.EnsureRegistered(ctx, 7)
	c.Assert(err, qt.IsNil)

	action, err := relay.CreateAction(&api.NewActionRequest{
		GroupID:   7,
		ContextID: 42,
		Kind:      types.ActionSingleUse,
		Policy:    types.EligibilitySnapshot,
	})
	c.Assert(err, qt.IsNil)

	outcome, err := first.Vote(ctx, action, true)
	c.Assert(err, qt.IsNil)
	c.Assert(outcome.Status, qt.Equals, StatusAccepted)

	// a fresh store with the same signing key models the same member on
	// another device: the relay's nullifier set catches the duplicate
	// before any proof is generated
	second := newTestPipeline(t, relay)
	dup, err := second.Vote(ctx, action, false)
	c.Assert(err, qt.IsNil)
	c.Assert(dup.Status, qt.Equals, StatusAlreadyActed)
	c.Assert(dup.Nullifier.String(), qt.Equals, outcome.Nullifier.String())
}

func TestPipelineSnapshotExcludesLateJoiner(t *testing.T) {
	c := qt.New(t)
	relay := newTestRelay(t)
	pipe := newTestPipeline(t, relay)
	ctx := context.Background()

	c.Assert(relay.CreateGroup(7), qt.IsNil)

	// the action snapshots the empty tree; the member joins afterwards
	action, err := relay.CreateAction(&api.NewActionRequest{
		GroupID:   7,
		ContextID: 42,
		Kind:      types.ActionSingleUse,
		Policy:    types.EligibilitySnapshot,
	})
	c.Assert(err, qt.IsNil)

	_, err = pipe.Vote(ctx, action, true)
	var elig *EligibilityError
	c.Assert(err, qt.ErrorAs, &elig)
	c.Assert(elig.Code, qt.Equals, api.ErrJoinedAfterSnapshot.Code)
}

func TestPipelineComments(t *testing.T) {
	c := qt.New(t)
	relay := newTestRelay(t)
	pipe := newTestPipeline(t, relay)
	ctx := context.Background()

	c.Assert(relay.CreateGroup(7), qt.IsNil)
	action, err := relay.CreateAction(&api.NewActionRequest{
		GroupID:   7,
		ContextID: 43,
		Kind:      types.ActionMultiUse,
		Policy:    types.EligibilityLive,
	})
	c.Assert(err, qt.IsNil)

	// live policy accepts a member who joined after action creation
	top, err := pipe.Comment(ctx, action, "bafybeibwzif6q5z2h3q", nil)
	c.Assert(err, qt.IsNil)
	c.Assert(top.Status, qt.Equals, StatusAccepted)

	// multi-use contexts admit repeated actions from the same member
	parent := uint64(0)
	reply, err := pipe.Comment(ctx, action, "bafybeigdyrzt5sfp7ud", &parent)
	c.Assert(err, qt.IsNil)
	c.Assert(reply.Status, qt.Equals, StatusAccepted)
	c.Assert(reply.Receipt, qt.Not(qt.Equals), top.Receipt)

	_, err = pipe.Comment(ctx, action, "", nil)
	c.Assert(err, qt.IsNotNil)
}

func TestPipelineCancellation(t *testing.T) {
	c := qt.New(t)
	relay := newTestRelay(t)
	pipe := newTestPipeline(t, relay)

	c.Assert(relay.CreateGroup(7), qt.IsNil)
	_, err := pipe.EnsureRegistered(context.Background(), 7)
	c.Assert(err, qt.IsNil)

	action, err := relay.CreateAction(&api.NewActionRequest{
		GroupID:   7,
		ContextID: 42,
		Kind:      types.ActionSingleUse,
		Policy:    types.EligibilitySnapshot,
	})
	c.Assert(err, qt.IsNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pipe.Vote(ctx, action, true)
	c.Assert(err, qt.ErrorIs, context.Canceled)

	// nothing was submitted, so the member can still act
	outcome, err := pipe.Vote(context.Background(), action, true)
	c.Assert(err, qt.IsNil)
	c.Assert(outcome.Status, qt.Equals, StatusAccepted)
}
