package api

import (
	stderrors "errors"
	"net/http"

	"github.com/googly1030/intern-platform/pkg/errors"
)

// ErrInvalidBody reports a request body that is not the expected JSON.
var ErrInvalidBody = errors.BadRequest("invalid request body")

func invalidQuery(name string) error {
	return errors.Newf(errors.InvalidParams, "invalid query parameter %q", name)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// statusOf maps a coded error to its response status. Provider codes never
// reach a client directly, so anything outside the request range is a 500.
func statusOf(code errors.ErrorCode) int {
	switch code {
	case errors.InvalidParams, errors.InvalidRepoReference:
		return http.StatusBadRequest
	case errors.NotFound:
		return http.StatusNotFound
	case errors.Conflict, errors.NotReady:
		return http.StatusConflict
	case errors.Backpressure:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// responseFor builds the status and body for err.
func responseFor(err error) (int, errorResponse) {
	code := errors.GetCode(err)
	status := statusOf(code)
	if status == http.StatusInternalServerError {
		return status, errorResponse{
			Code:    errors.InternalServerError.String(),
			Message: errors.InternalServerError.Message(),
		}
	}
	msg := code.Message()
	var coded *errors.Error
	if stderrors.As(err, &coded) && coded.Message != "" {
		msg = coded.Message
	}
	return status, errorResponse{Code: code.String(), Message: msg}
}
