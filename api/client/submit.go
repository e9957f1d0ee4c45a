package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vocdoni/zkdao/api"
)

// SubmitError is a non-200 response to a submission. It keeps the relay's
// error code so callers can tell terminal policy outcomes (already acted,
// not eligible) apart from transient server failures.
type SubmitError struct {
	Code       int
	HTTPStatus int
	Message    string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Transient reports whether retrying the submission can possibly succeed.
func (e *SubmitError) Transient() bool {
	return e.HTTPStatus >= http.StatusInternalServerError
}

// SubmitVote submits an anonymous vote to the relay.
func (c *HTTPclient) SubmitVote(req *api.VoteRequest) (*api.SubmitResponse, error) {
	return c.submit(req, api.VotesEndpoint)
}

// SubmitComment submits an anonymous comment to the relay.
func (c *HTTPclient) SubmitComment(req *api.CommentRequest) (*api.SubmitResponse, error) {
	return c.submit(req, api.CommentsEndpoint)
}

func (c *HTTPclient) submit(req any, endpoint string) (*api.SubmitResponse, error) {
	data, status, err := c.Request(HTTPPOST, req, nil, endpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		e := &apiError{}
		if err := json.Unmarshal(data, e); err != nil {
			return nil, &SubmitError{HTTPStatus: status, Message: string(data)}
		}
		return nil, &SubmitError{Code: e.Code, HTTPStatus: status, Message: e.Error}
	}
	res := &api.SubmitResponse{}
	if err := json.Unmarshal(data, res); err != nil {
		return nil, fmt.Errorf("could not decode submit response: %w", err)
	}
	return res, nil
}
