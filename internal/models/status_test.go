package models_test

import (
	"testing"

	"apexdispatch/internal/models"

	"github.com/stretchr/testify/require"
)

func TestIsTerminal(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		status   models.ProcessingStatus
		terminal bool
	}{
		{models.StatusCreated, false},
		{models.StatusQueued, false},
		{models.StatusRunning, false},
		{models.StatusUnknown, false},
		{models.StatusFinished, true},
		{models.StatusFailed, true},
		{models.StatusCanceled, true},
	}
	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			require.Equal(t, tc.terminal, tc.status.IsTerminal())
		})
	}
}

func TestParamsWith(t *testing.T) {
	t.Parallel()
	base := models.Params{"spatial_extent": "base", "temporal_extent": []any{"2025-05-01", "2025-05-02"}}

	merged := base.With("spatial_extent", "tile-1")

	require.Equal(t, "tile-1", merged["spatial_extent"])
	require.Equal(t, base["temporal_extent"], merged["temporal_extent"])
	require.Equal(t, "base", base["spatial_extent"], "original params must not be mutated")
}

func TestServiceDetailsRoundTripsAsSingleDocument(t *testing.T) {
	t.Parallel()
	in := models.ServiceDetails{Endpoint: "https://openeo.example.org", Application: "https://udp.example.org/ndvi.json"}

	v, err := in.Value()
	require.NoError(t, err)
	require.JSONEq(t, `{"endpoint":"https://openeo.example.org","application":"https://udp.example.org/ndvi.json"}`, v.(string))

	var out models.ServiceDetails
	require.NoError(t, out.Scan([]byte(v.(string))))
	require.Equal(t, in, out)

	require.Error(t, out.Scan(42))
}
