package auth

import (
	"context"
	"net/http"
)

// AuthEngine decides whether a request to the HTTP API may proceed.
type AuthEngine interface {

	// AuthenticateRequest reports whether rq carries valid credentials. An
	// error means the credentials could not be checked at all.
	AuthenticateRequest(ctx context.Context, rq *http.Request) (bool, error)
}
