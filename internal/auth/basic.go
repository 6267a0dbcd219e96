package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
)

type BasicAuthEngine struct {
	Username string
	Password string
}

var _ AuthEngine = (*BasicAuthEngine)(nil)

const (
	BasicAuthPrefix = "Basic "
)

// NewBasicAuthEngine creates a new BasicAuthEngine accepting exactly the
// given username and password.
func NewBasicAuthEngine(username string, password string) *BasicAuthEngine {
	return &BasicAuthEngine{
		Username: username,
		Password: password,
	}
}

// AuthenticateRequest checks the Authorization header for valid Basic Auth
// credentials. It returns true if the credentials are valid, false otherwise.
// Malformed headers are treated as invalid credentials, not errors.
func (e *BasicAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (bool, error) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, BasicAuthPrefix) {
		return false, nil
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(auth[len(BasicAuthPrefix):]))
	if err != nil {
		return false, nil
	}

	creds := strings.SplitN(string(payload), ":", 2)
	if len(creds) != 2 {
		return false, nil
	}

	userOK := subtle.ConstantTimeCompare([]byte(creds[0]), []byte(e.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(creds[1]), []byte(e.Password)) == 1
	return userOK && passOK, nil
}
