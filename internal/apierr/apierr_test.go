package apierr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"apexdispatch/internal/apierr"

	"github.com/stretchr/testify/require"
)

func TestToResponse(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		scenario string
		err      error
		status   int
		code     string
		message  string
	}{
		{
			scenario: "not found",
			err:      apierr.JobNotFound(7),
			status:   http.StatusNotFound,
			code:     apierr.CodeJobNotFound,
			message:  "Processing job 7 not found",
		},
		{
			scenario: "wrapped taxonomy error",
			err:      fmt.Errorf("handler: %w", apierr.Unauthorized("missing token")),
			status:   http.StatusUnauthorized,
			code:     apierr.CodeAuthenticationFailed,
			message:  "missing token",
		},
		{
			scenario: "unknown error is not leaked",
			err:      errors.New("pq: connection refused"),
			status:   http.StatusInternalServerError,
			code:     apierr.CodeInternal,
			message:  "An unexpected error occurred.",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			status, body := apierr.ToResponse(tc.err, "req-1")
			require.Equal(t, tc.status, status)
			require.Equal(t, "error", body.Status)
			require.Equal(t, tc.code, body.ErrorCode)
			require.Equal(t, tc.message, body.Message)
			require.Equal(t, "req-1", body.RequestID)
		})
	}
}

func TestUnwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")
	err := apierr.Wrap(cause, http.StatusBadGateway, apierr.CodePlatform, "remote failed")
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "remote failed")
}
