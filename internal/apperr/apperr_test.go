package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Unauthenticated("bad key"), http.StatusUnauthorized},
		{NotFound("recipient not found"), http.StatusNotFound},
		{Unsupported("message type not supported"), http.StatusTeapot},
		{Invalid("no file"), http.StatusBadRequest},
		{Internal("store", errors.New("disk full")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err), c.err.Error())
	}
}

func TestWrappedErrorKeepsCode(t *testing.T) {
	cause := errors.New("token expired")
	err := fmt.Errorf("authenticate: %w", Wrap(CodeUnauthenticated, "identity verification failed", cause))

	assert.Equal(t, CodeUnauthenticated, CodeOf(err))
	assert.Equal(t, codes.Unauthenticated, GRPCCode(err))
	assert.Equal(t, "identity verification failed", MessageOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestMessageOfHidesPlainErrors(t *testing.T) {
	assert.Equal(t, "internal error", MessageOf(errors.New("connection refused")))
}
