// Package httpx holds the JSON response helpers shared by the API handlers.
package httpx

import (
	"context"
	"errors"
	"net/http"
)

// Sentinel errors understood by RespondError.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrUnavailable  = errors.New("temporarily unavailable")
)

type errorStatus struct {
	target error
	status int
	title  string
}

// Checked in order; the first match wins.
var errorStatuses = []errorStatus{
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrForbidden, http.StatusForbidden, "Forbidden"},
	{ErrUnavailable, http.StatusServiceUnavailable, "Unavailable"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "Unavailable"},
	{context.Canceled, http.StatusServiceUnavailable, "Unavailable"},
}

// RespondError writes err as a problem document. Errors outside the table
// become 500 with no detail. 503 answers carry Retry-After.
func RespondError(w http.ResponseWriter, err error) {
	for _, es := range errorStatuses {
		if errors.Is(err, es.target) {
			if es.status == http.StatusServiceUnavailable {
				w.Header().Set("Retry-After", "1")
			}
			Problem(w, es.status, es.title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
