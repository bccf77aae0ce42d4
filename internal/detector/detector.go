// Package detector is the boundary to the external thermal-anomaly
// inference service. The service accepts an image and a confidence
// threshold and returns the raw prediction set; everything downstream of
// that payload belongs to the annotation engine.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/heatwatch/heatwatch-go/internal/annotation"
	"github.com/heatwatch/heatwatch-go/internal/errors"
	"github.com/heatwatch/heatwatch-go/internal/logging"
)

// DefaultConfidenceThreshold is used when the caller passes a
// non-positive threshold.
const DefaultConfidenceThreshold = 0.50

// Client analyzes thermal images.
type Client interface {
	// Analyze submits an image for inference and returns the prediction
	// set produced at the given confidence threshold.
	Analyze(ctx context.Context, image []byte, filename string, confidence float64) (annotation.PredictionSet, error)
	// Available reports whether the inference service is reachable.
	Available(ctx context.Context) bool
}

// HTTPClient implements Client against the inference service's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewHTTPClient creates a client for the inference service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     logging.ForService("detector"),
	}
}

// Analyze posts the image as multipart form data to the inference endpoint
// and decodes the prediction payload.
func (c *HTTPClient) Analyze(ctx context.Context, image []byte, filename string, confidence float64) (annotation.PredictionSet, error) {
	if confidence <= 0 {
		confidence = DefaultConfidenceThreshold
	}
	if filename == "" {
		filename = "image.jpg"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return annotation.PredictionSet{}, c.requestError(err, "create_form_file")
	}
	if _, err := part.Write(image); err != nil {
		return annotation.PredictionSet{}, c.requestError(err, "write_form_file")
	}
	if err := writer.Close(); err != nil {
		return annotation.PredictionSet{}, c.requestError(err, "close_multipart")
	}

	endpoint := fmt.Sprintf("%s/inference?conf_threshold=%s",
		c.baseURL, url.QueryEscape(strconv.FormatFloat(confidence, 'f', -1, 64)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return annotation.PredictionSet{}, c.requestError(err, "build_request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return annotation.PredictionSet{}, c.requestError(err, "post_inference")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return annotation.PredictionSet{}, errors.Newf("inference service returned status %d", resp.StatusCode).
			Component("detector").
			Category(errors.CategoryHTTP).
			Context("status", resp.StatusCode).
			Build()
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return annotation.PredictionSet{}, c.requestError(err, "read_response")
	}

	var set annotation.PredictionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return annotation.PredictionSet{}, errors.New(err).
			Component("detector").
			Category(errors.CategoryProcessing).
			Context("operation", "decode_predictions").
			Build()
	}

	c.log.Debug("image analyzed",
		"predictions", len(set.Predictions),
		"confidence_threshold", confidence,
		"duration", time.Since(start))

	return set, nil
}

// Available probes the service root endpoint.
func (c *HTTPClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

func (c *HTTPClient) requestError(err error, operation string) error {
	return errors.New(err).
		Component("detector").
		Category(errors.CategoryNetwork).
		Context("operation", operation).
		Build()
}
