package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrUpstream, http.StatusTeapot, "custom"), http.StatusTeapot},
		{"wrapped not found", fmt.Errorf("fetching: %w", ErrItemNotFound), http.StatusNotFound},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"upstream", fmt.Errorf("algolia: %w", ErrUpstream), http.StatusBadGateway},
		{"timeout", ErrTimeout, http.StatusGatewayTimeout},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrMissingConfig, http.StatusInternalServerError, "missing %s", "ALGOLIA_API_KEY")
	assert.ErrorIs(t, err, ErrMissingConfig)
	assert.Equal(t, "missing configuration: missing ALGOLIA_API_KEY", err.Error())
}
