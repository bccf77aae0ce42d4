package detector

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heatwatch/heatwatch-go/internal/geometry"
)

const baseURL = "http://detector.local:5000"

func newMockedClient(t *testing.T) *HTTPClient {
	t.Helper()
	c := NewHTTPClient(baseURL, 5*time.Second)
	httpmock.ActivateNonDefault(c.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestAnalyze(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, baseURL+"/inference",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "0.5", req.URL.Query().Get("conf_threshold"))
			require.NoError(t, req.ParseMultipartForm(1<<20))
			file, header, err := req.FormFile("file")
			require.NoError(t, err)
			defer func() { _ = file.Close() }()
			assert.Equal(t, "thermal.jpg", header.Filename)

			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"predictions": []map[string]any{
					{"box": []float64{10, 20, 110, 140}, "class": 0, "confidence": 0.93},
					{"box": []float64{200, 200, 260, 260}, "class": 2, "confidence": 0.61},
				},
			})
		})

	set, err := c.Analyze(context.Background(), []byte("fake-image"), "thermal.jpg", 0.5)
	require.NoError(t, err)
	require.Len(t, set.Predictions, 2)
	assert.Equal(t, geometry.Box{10, 20, 110, 140}, set.Predictions[0].Box)
	assert.InDelta(t, 0.93, set.Predictions[0].Confidence, 1e-9)
}

func TestAnalyzeDefaultsConfidence(t *testing.T) {
	c := newMockedClient(t)

	var gotThreshold string
	httpmock.RegisterResponder(http.MethodPost, baseURL+"/inference",
		func(req *http.Request) (*http.Response, error) {
			gotThreshold = req.URL.Query().Get("conf_threshold")
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"predictions": []any{}})
		})

	_, err := c.Analyze(context.Background(), []byte("img"), "", 0)
	require.NoError(t, err)
	assert.Equal(t, "0.5", gotThreshold)
}

func TestAnalyzeServerError(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, baseURL+"/inference",
		httpmock.NewStringResponder(http.StatusInternalServerError, "model crashed"))

	_, err := c.Analyze(context.Background(), []byte("img"), "x.jpg", 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestAnalyzeMalformedResponse(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, baseURL+"/inference",
		httpmock.NewStringResponder(http.StatusOK, "not json"))

	_, err := c.Analyze(context.Background(), []byte("img"), "x.jpg", 0.5)
	assert.Error(t, err)
}

func TestAnalyzeConnectionRefused(t *testing.T) {
	c := newMockedClient(t)
	// No responder registered: httpmock rejects the request.

	_, err := c.Analyze(context.Background(), []byte("img"), "x.jpg", 0.5)
	assert.Error(t, err)
}

func TestAvailable(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodGet, baseURL+"/",
		httpmock.NewStringResponder(http.StatusOK, "ok"))
	assert.True(t, c.Available(context.Background()))

	httpmock.RegisterResponder(http.MethodGet, baseURL+"/",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
	assert.False(t, c.Available(context.Background()))
}
