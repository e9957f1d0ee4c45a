package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/vocdoni/zkdao/api"
	"github.com/vocdoni/zkdao/api/client"
	"github.com/vocdoni/zkdao/log"
	"github.com/vocdoni/zkdao/retry"
)

// Submitter sends wire-encoded submissions to the relay. The production
// implementation is the api client; tests substitute fakes.
type Submitter interface {
	SubmitVote(req *api.VoteRequest) (*api.SubmitResponse, error)
	SubmitComment(req *api.CommentRequest) (*api.SubmitResponse, error)
}

// SubmissionCoordinator sends a proof to the relay and reconciles the
// response into an Outcome. Transient failures are retried with backoff;
// policy outcomes are terminal on the first response.
type SubmissionCoordinator struct {
	submitter Submitter
	policy    retry.Policy
}

// NewSubmissionCoordinator creates a coordinator over the given submitter.
func NewSubmissionCoordinator(submitter Submitter) *SubmissionCoordinator {
	return &SubmissionCoordinator{
		submitter: submitter,
		policy: retry.Policy{
			MaxAttempts: 4,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
			Jitter:      true,
		},
	}
}

// SubmitVote submits a vote and maps the response.
func (c *SubmissionCoordinator) SubmitVote(ctx context.Context, req *api.VoteRequest) (*Outcome, error) {
	return c.submit(ctx, req.Nullifier, func() (*api.SubmitResponse, error) {
		return c.submitter.SubmitVote(req)
	})
}

// SubmitComment submits a comment and maps the response.
func (c *SubmissionCoordinator) SubmitComment(ctx context.Context, req *api.CommentRequest) (*Outcome, error) {
	return c.submit(ctx, req.Nullifier, func() (*api.SubmitResponse, error) {
		return c.submitter.SubmitComment(req)
	})
}

// submit sends the request, retrying transient failures. The context is
// checked once before the first send; after that the attempt runs to
// completion regardless of cancellation, because the relay may already have
// applied the submission and the outcome must be known.
func (c *SubmissionCoordinator) submit(ctx context.Context, nullifier []byte,
	send func() (*api.SubmitResponse, error),
) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outcome := &Outcome{Nullifier: nullifier}
	err := c.policy.Do(context.WithoutCancel(ctx), func() error {
		res, err := send()
		if err == nil {
			outcome.Status = StatusAccepted
			outcome.Receipt = res.Receipt
			return nil
		}
		subErr := &client.SubmitError{}
		if !errors.As(err, &subErr) {
			// no response at all, the request may or may not have
			// reached the relay; resubmitting is safe because the
			// nullifier makes it idempotent server-side
			log.Warnw("submission attempt failed", "err", err)
			return err
		}
		switch {
		case subErr.Code == api.ErrAlreadyActed.Code:
			outcome.Status = StatusAlreadyActed
			return nil
		case subErr.Code == api.ErrJoinedAfterSnapshot.Code,
			subErr.Code == api.ErrRootNotAccepted.Code,
			subErr.Code == api.ErrMembershipRevoked.Code:
			return retry.Permanent(&EligibilityError{Code: subErr.Code, Reason: subErr.Message})
		case subErr.Transient():
			log.Warnw("relay error, retrying submission",
				"code", subErr.Code, "err", subErr.Message)
			return subErr
		default:
			return retry.Permanent(subErr)
		}
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
