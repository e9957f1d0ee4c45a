package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vocdoni/zkdao/types"
)

// Status is the final state of a submitted action.
type Status int

const (
	// StatusAccepted means the relay accepted the submission.
	StatusAccepted Status = iota
	// StatusAlreadyActed means the relay had already seen this nullifier
	// for this context. For a single-use action this is "you already
	// voted": a settled outcome, not a failure.
	StatusAlreadyActed
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusAlreadyActed:
		return "already-acted"
	}
	return "unknown"
}

// Outcome is the result of a completed pipeline run.
type Outcome struct {
	Status    Status
	Receipt   uuid.UUID
	Nullifier types.HexBytes
}

// EligibilityError is a terminal policy outcome from the relay: the member
// is not eligible to act on this context (joined after the snapshot, proved
// against an unaccepted root, or had membership revoked). It is surfaced
// verbatim for the user and never retried.
type EligibilityError struct {
	Code   int
	Reason string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("not eligible: %s", e.Reason)
}
