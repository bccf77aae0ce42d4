package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heatwatch/heatwatch-go/internal/annotation"
	"github.com/heatwatch/heatwatch-go/internal/conf"
	"github.com/heatwatch/heatwatch-go/internal/datastore"
	"github.com/heatwatch/heatwatch-go/internal/geometry"
	"github.com/heatwatch/heatwatch-go/internal/imagestore"
	"github.com/heatwatch/heatwatch-go/internal/inspection"
)

type testEnv struct {
	e  *echo.Echo
	ds datastore.Interface
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	settings := &conf.Settings{}
	settings.Database.Path = filepath.Join(t.TempDir(), "test.db")
	settings.Images.Dir = filepath.Join(t.TempDir(), "images")
	settings.Detector.DefaultConfidence = 0.5

	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	images, err := imagestore.New(settings.Images.Dir)
	require.NoError(t, err)

	svc := inspection.New(ds, images, nil, nil, settings)

	e := echo.New()
	New(e, svc, images, settings, nil)
	return &testEnv{e: e, ds: ds}
}

func (env *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) seedTransformer(t *testing.T) {
	t.Helper()
	rec := env.request(t, http.MethodPost, "/api/v1/transformers", map[string]any{
		"TransformerNo":   "AZ-8890",
		"Region":          "Nugegoda",
		"PoleNo":          "EN-122-A",
		"Type":            "Bulk",
		"LocationDetails": "Junction",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (env *testEnv) seedInspection(t *testing.T, predictions annotation.PredictionSet) uint {
	t.Helper()
	env.seedTransformer(t)

	rec := env.request(t, http.MethodPost, "/api/v1/inspections", map[string]any{
		"Branch":        "Colombo",
		"TransformerNo": "AZ-8890",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created datastore.Inspection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	i, err := env.ds.GetInspection(created.InspectionNo)
	require.NoError(t, err)
	encoded, err := annotation.EncodePredictionSet(predictions)
	require.NoError(t, err)
	i.AIBoundingBoxes = encoded
	require.NoError(t, env.ds.SaveInspection(&i))
	return created.InspectionNo
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestTransformerEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.seedTransformer(t)

	rec := env.request(t, http.MethodGet, "/api/v1/transformers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []datastore.Transformer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "AZ-8890", list[0].TransformerNo)

	rec = env.request(t, http.MethodGet, "/api/v1/transformers/AZ-8890", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/v1/transformers/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.NotEmpty(t, errResp.CorrelationID)

	rec = env.request(t, http.MethodDelete, "/api/v1/transformers/AZ-8890", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestInspectionValidation(t *testing.T) {
	env := newTestEnv(t)

	// Unknown transformer.
	rec := env.request(t, http.MethodPost, "/api/v1/inspections", map[string]any{
		"TransformerNo": "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed inspection number.
	rec = env.request(t, http.MethodGet, "/api/v1/inspections/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEffectiveDetectionsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedInspection(t, annotation.PredictionSet{
		Predictions: []annotation.Prediction{
			{Box: geometry.Box{10, 10, 50, 50}, Class: annotation.ClassFaulty, Confidence: 0.92},
		},
	})

	rec := env.request(t, http.MethodGet, fmt.Sprintf("/api/v1/inspections/%d/detections", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var set DetectionSetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	assert.Len(t, set.Predictions, 1)
}

func TestEffectiveDetectionsWireShape(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedInspection(t, annotation.PredictionSet{
		Predictions: []annotation.Prediction{
			{Box: geometry.Box{10, 10, 50, 50}, Class: annotation.ClassFaulty, Confidence: 0.92},
		},
	})
	base := fmt.Sprintf("/api/v1/inspections/%d", id)

	rec := env.request(t, http.MethodPut, base+"/annotations", annotation.SaveDiff{
		Edited: []annotation.Entry{{
			Type:        annotation.TypeEdited,
			Box:         geometry.Box{20, 20, 60, 60},
			OriginalBox: &geometry.Box{10, 10, 50, 50},
			Class:       annotation.ClassFaulty,
			Confidence:  0.92,
			Comment:     "moved",
		}},
		Added: []annotation.Entry{{
			Type:       annotation.TypeAdded,
			Box:        geometry.Box{200, 200, 240, 240},
			Class:      annotation.ClassPotentiallyFaulty,
			Confidence: 1,
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.request(t, http.MethodGet, base+"/detections", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "predictions")

	var items []map[string]any
	require.NoError(t, json.Unmarshal(body["predictions"], &items))
	require.Len(t, items, 2)

	// AI-derived detections come first, additions after.
	edited := items[0]
	assert.Equal(t, []any{20.0, 20.0, 60.0, 60.0}, edited["box"])
	assert.Equal(t, 0.0, edited["class"])
	assert.Equal(t, "edited", edited["type"])
	assert.Equal(t, []any{10.0, 10.0, 50.0, 50.0}, edited["originalBox"])
	assert.Equal(t, "moved", edited["comment"])
	assert.NotContains(t, edited, "Box")
	assert.NotContains(t, edited, "Origin")
	assert.NotContains(t, edited, "OriginBox")

	added := items[1]
	assert.Equal(t, []any{200.0, 200.0, 240.0, 240.0}, added["box"])
	assert.Equal(t, "added", added["type"])
	assert.NotContains(t, added, "originalBox")
}

// A client that loads the detection set and posts it straight back must not
// lose provenance: every AI prediction stays claimed by its originalBox and
// nothing is inferred as deleted.
func TestDetectionsSaveRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedInspection(t, annotation.PredictionSet{
		Predictions: []annotation.Prediction{
			{Box: geometry.Box{10, 10, 50, 50}, Class: annotation.ClassFaulty, Confidence: 0.92},
			{Box: geometry.Box{100, 100, 160, 160}, Class: annotation.ClassNormal, Confidence: 0.7},
		},
	})
	base := fmt.Sprintf("/api/v1/inspections/%d", id)

	rec := env.request(t, http.MethodGet, base+"/detections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var set DetectionSetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Predictions, 2)

	rec = env.request(t, http.MethodPost, base+"/annotations/save", map[string]any{
		"detections": set.Predictions,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.request(t, http.MethodGet, base+"/detections/deleted", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = env.request(t, http.MethodGet, base+"/detections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var after DetectionSetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	require.Len(t, after.Predictions, 2)
	assert.Equal(t, set.Predictions[0].Box, after.Predictions[0].Box)
	assert.Equal(t, set.Predictions[1].Box, after.Predictions[1].Box)
}

func TestSaveAndRecoverFlow(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedInspection(t, annotation.PredictionSet{
		Predictions: []annotation.Prediction{
			{Box: geometry.Box{10, 10, 50, 50}, Class: annotation.ClassFaulty, Confidence: 0.92},
		},
	})
	base := fmt.Sprintf("/api/v1/inspections/%d", id)

	// Delete the prediction.
	rec := env.request(t, http.MethodPut, base+"/annotations", annotation.SaveDiff{
		Deleted: []annotation.Entry{{
			Type:        annotation.TypeDeleted,
			Box:         geometry.Box{10, 10, 50, 50},
			DeletedFrom: annotation.DeletedFromAI,
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.request(t, http.MethodGet, base+"/detections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"predictions":[]}`, rec.Body.String())

	rec = env.request(t, http.MethodGet, base+"/detections/deleted", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted []annotation.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deleted))
	require.Len(t, deleted, 1)

	// Recover it.
	rec = env.request(t, http.MethodPost, base+"/detections/recover", map[string]any{
		"box": []float64{10, 10, 50, 50},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.request(t, http.MethodGet, base+"/detections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var restored DetectionSetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &restored))
	assert.Len(t, restored.Predictions, 1)
}

func TestChangeLogEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedInspection(t, annotation.PredictionSet{
		Predictions: []annotation.Prediction{
			{Box: geometry.Box{10, 10, 50, 50}, Class: annotation.ClassFaulty, Confidence: 0.92},
		},
	})
	base := fmt.Sprintf("/api/v1/inspections/%d", id)

	rec := env.request(t, http.MethodPost, base+"/detections/changelog", map[string]any{
		"box": []float64{10, 10, 50, 50},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var lines []annotation.ChangeLogLine
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Len(t, lines, 1)
	assert.Equal(t, "detected", lines[0].Action)

	// No detection at that box.
	rec = env.request(t, http.MethodPost, base+"/detections/changelog", map[string]any{
		"box": []float64{900, 900, 950, 950},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnnotationStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedInspection(t, annotation.PredictionSet{})
	base := fmt.Sprintf("/api/v1/inspections/%d", id)

	rec := env.request(t, http.MethodPut, base+"/annotations", annotation.SaveDiff{
		Added: []annotation.Entry{{Type: annotation.TypeAdded, Box: geometry.Box{1, 1, 10, 10}}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/v1/annotations/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inspectionsWithChanges":1`)

	rec = env.request(t, http.MethodGet, "/api/v1/annotations/stats?transformer=AZ-8890", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inspectionsWithChanges":1`)

	rec = env.request(t, http.MethodGet, "/api/v1/annotations/stats?transformer=XB-0001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inspectionsWithChanges":0`)

	rec = env.request(t, http.MethodPost, "/api/v1/annotations/cleanup?inspection="+fmt.Sprint(id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cleared":1`)
}

func TestImageUploadAndServe(t *testing.T) {
	env := newTestEnv(t)
	env.seedTransformer(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "baseline.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("weather", "Cloudy"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transformers/AZ-8890/baseline-image", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tr datastore.Transformer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	require.NotEmpty(t, tr.BaselineImagePath)
	assert.Equal(t, "Cloudy", tr.BaselineWeather)

	serve := env.request(t, http.MethodGet, "/api/v1/media/images/"+tr.BaselineImagePath, nil)
	assert.Equal(t, http.StatusOK, serve.Code)
	assert.Equal(t, "png-bytes", serve.Body.String())

	missing := env.request(t, http.MethodGet, "/api/v1/media/images/maintenance_1_nope.jpg", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}
