package errors

import (
	"context"
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
		{"not ready", ErrNotReady, http.StatusServiceUnavailable},
		{"wrapped not ready", fmt.Errorf("search: %w", ErrNotReady), http.StatusServiceUnavailable},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"timeout", ErrTimeout, http.StatusGatewayTimeout},
		{"app error wins", New(ErrInternal, http.StatusTeapot, "x"), http.StatusTeapot},
		{"unknown", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "bad body: %d", 3)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid input: bad body: 3", err.Error())
}
