// File: internal/api/errors.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/xkilldash9x/pilot/internal/router"
)

// Problem is the error body of every non-2xx response.
type Problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail, code string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&Problem{Title: title, Status: status, Detail: detail, Code: code})
}

func writeBadRequest(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusBadRequest, "Bad Request", detail, "")
}

func writeTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.", "")
}

// writeTurnError maps an error that aborted a turn onto a status code.
// Routing errors are the caller's fault; a browser used before launch is a
// conflict with the session state.
func writeTurnError(w http.ResponseWriter, err error) {
	var rerr *router.Error
	switch {
	case errors.As(err, &rerr) && rerr.Kind == router.KindNotInitialized:
		writeProblem(w, http.StatusConflict, "Backend Not Initialized", rerr.Err.Error(), string(rerr.Code))
	case errors.As(err, &rerr):
		writeProblem(w, http.StatusBadRequest, "Routing Error", rerr.Err.Error(), string(rerr.Code))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, http.StatusServiceUnavailable, "Turn Aborted", err.Error(), "")
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "The turn could not be completed.", "")
	}
}
