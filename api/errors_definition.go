//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 403, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// Clients dispatch on the code, not on the message: 40009 (already acted) and
// 40010/40011/40017 (eligibility) in particular are terminal outcomes the
// client must be able to tell apart from generic failures.
var (
	ErrResourceNotFound    = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody       = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedParam      = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed URL parameter")}
	ErrGroupNotFound       = Error{Code: 40006, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("group not found")}
	ErrMemberNotFound      = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("member not found")}
	ErrActionNotFound      = Error{Code: 40008, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("action not found")}
	ErrAlreadyActed        = Error{Code: 40009, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("already acted on this context")}
	ErrJoinedAfterSnapshot = Error{Code: 40010, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("not eligible: joined after the eligibility snapshot was taken")}
	ErrRootNotAccepted     = Error{Code: 40011, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("not eligible: proof root is not accepted for this action")}
	ErrInvalidProof        = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("proof verification failed")}
	ErrZeroNullifier       = Error{Code: 40013, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("zero nullifier")}
	ErrMalformedProof      = Error{Code: 40014, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed proof encoding")}
	ErrGroupExists         = Error{Code: 40015, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("group already exists")}
	ErrActionExists        = Error{Code: 40016, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("action already exists")}
	ErrMembershipRevoked   = Error{Code: 40017, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("not eligible: membership was revoked")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)
