package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"gridsilo/internal/auth"

	"github.com/stretchr/testify/require"
)

func TestBasicAuthEngine(t *testing.T) {
	t.Parallel()

	engine := auth.NewBasicAuthEngine("admin", "s3cret")
	ctx := context.Background()

	cases := []struct {
		name  string
		setup func(r *http.Request)
		want  bool
	}{
		{"valid", func(r *http.Request) { r.SetBasicAuth("admin", "s3cret") }, true},
		{"wrong password", func(r *http.Request) { r.SetBasicAuth("admin", "nope") }, false},
		{"wrong user", func(r *http.Request) { r.SetBasicAuth("root", "s3cret") }, false},
		{"missing header", func(r *http.Request) {}, false},
		{"bad base64", func(r *http.Request) { r.Header.Set("Authorization", "Basic !!!") }, false},
		{"no colon", func(r *http.Request) { r.Header.Set("Authorization", "Basic YWRtaW4=") }, false},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer token") }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/files", nil)
			tc.setup(r)

			ok, err := engine.AuthenticateRequest(ctx, r)
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)
		})
	}
}
