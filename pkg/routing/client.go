package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/types"
)

const (
	defaultBaseURL             = "https://api.openrouteservice.org"
	defaultProfile             = "driving-hgv"
	requestBodyReadLimit int64 = 1024
	maxAttempts                = 2
	retryBackoff               = 250 * time.Millisecond
)

var (
	errAPIKeyRequired = errors.New("routing api key is required")
)

// Client wraps the OpenRouteService matrix and directions APIs used for
// route planning and ETA recomputation.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	profile    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured routing base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithProfile overrides the routing profile (e.g. driving-car).
func WithProfile(profile string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(profile)
		if trimmed != "" {
			c.profile = trimmed
		}
	}
}

// NewClient builds the routing client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		profile:    defaultProfile,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	if client.profile == "" {
		client.profile = defaultProfile
	}

	return client, nil
}

// MatrixResult holds pairwise travel metrics between the requested points.
// Durations are seconds, Distances are meters, both indexed by input order.
type MatrixResult struct {
	Durations [][]float64
	Distances [][]float64
}

// SegmentResult describes the leg between two consecutive waypoints.
type SegmentResult struct {
	Geometry    types.LineString
	DistanceKm  float64
	DurationMin float64
}

// RouteResult is the full driving route through the requested points in order.
type RouteResult struct {
	Geometry    types.LineString
	Segments    []SegmentResult
	DistanceKm  float64
	DurationMin float64
}

type matrixRequest struct {
	Locations [][]float64 `json:"locations"`
	Metrics   []string    `json:"metrics"`
}

type matrixResponse struct {
	Durations [][]*float64 `json:"durations"`
	Distances [][]*float64 `json:"distances"`
}

// Matrix fetches the full pairwise duration/distance matrix for the points.
func (c *Client) Matrix(ctx context.Context, points []types.GeographyPoint) (*MatrixResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "routing client not configured")
	}
	if len(points) < 2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "matrix requires at least two points")
	}

	body := matrixRequest{
		Locations: toLocations(points),
		Metrics:   []string{"duration", "distance"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal matrix request")
	}

	endpoint := c.buildURL(fmt.Sprintf("v2/matrix/%s", c.profile))

	var apiResp matrixResponse
	if err := c.postJSON(ctx, endpoint, payload, &apiResp); err != nil {
		return nil, err
	}

	n := len(points)
	durations, err := denseGrid(apiResp.Durations, n)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "matrix durations")
	}
	distances, err := denseGrid(apiResp.Distances, n)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "matrix distances")
	}

	return &MatrixResult{Durations: durations, Distances: distances}, nil
}

type directionsRequest struct {
	Coordinates [][]float64 `json:"coordinates"`
}

type directionsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Segments []struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"segments"`
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
			WayPoints []int `json:"way_points"`
		} `json:"properties"`
	} `json:"features"`
}

// DetailedRoute fetches the driving route visiting the points in the given
// order, including per-leg geometry sliced at the waypoint indices.
func (c *Client) DetailedRoute(ctx context.Context, points []types.GeographyPoint) (*RouteResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "routing client not configured")
	}
	if len(points) < 2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route requires at least two points")
	}

	payload, err := json.Marshal(directionsRequest{Coordinates: toLocations(points)})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal directions request")
	}

	endpoint := c.buildURL(fmt.Sprintf("v2/directions/%s/geojson", c.profile))

	var apiResp directionsResponse
	if err := c.postJSON(ctx, endpoint, payload, &apiResp); err != nil {
		return nil, err
	}

	if len(apiResp.Features) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "directions response has no routes")
	}

	feature := apiResp.Features[0]
	coords := feature.Geometry.Coordinates
	props := feature.Properties

	geometry := make(types.LineString, 0, len(coords))
	for _, pair := range coords {
		if len(pair) < 2 {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "directions geometry has malformed coordinate")
		}
		geometry = append(geometry, types.GeographyPoint{Lat: pair[1], Lng: pair[0]})
	}

	if len(props.WayPoints) != len(points) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "directions waypoints do not match requested points")
	}
	if len(props.Segments) != len(points)-1 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "directions segments do not match requested legs")
	}

	segments := make([]SegmentResult, 0, len(props.Segments))
	for i, seg := range props.Segments {
		from := props.WayPoints[i]
		to := props.WayPoints[i+1]
		if from < 0 || to >= len(geometry) || from > to {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "directions waypoint index out of range")
		}
		legGeometry := make(types.LineString, to-from+1)
		copy(legGeometry, geometry[from:to+1])

		segments = append(segments, SegmentResult{
			Geometry:    legGeometry,
			DistanceKm:  seg.Distance / 1000,
			DurationMin: seg.Duration / 60,
		})
	}

	return &RouteResult{
		Geometry:    geometry,
		Segments:    segments,
		DistanceKm:  props.Summary.Distance / 1000,
		DurationMin: props.Summary.Duration / 60,
	}, nil
}

// postJSON executes the request, retrying once on transient failures
// (network errors, 429 and 5xx responses) before decoding into out.
func (c *Client) postJSON(ctx context.Context, endpoint string, payload []byte, out any) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "routing request cancelled")
		}

		resp, err := c.doOnce(ctx, endpoint, payload)
		if err == nil {
			defer func() { _ = resp.Body.Close() }()
			if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, decodeErr, "decode routing response")
			}
			return nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "routing request cancelled")
		case <-timer.C:
		}
	}

	return pkgerrors.Wrap(pkgerrors.CodeDependency, lastErr, "routing request failed")
}

func (c *Client) doOnce(ctx context.Context, endpoint string, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build routing request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		_ = resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	return resp, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		switch se.code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// toLocations converts points to the lng/lat pairs ORS expects.
func toLocations(points []types.GeographyPoint) [][]float64 {
	locations := make([][]float64, 0, len(points))
	for _, p := range points {
		locations = append(locations, []float64{p.Lng, p.Lat})
	}
	return locations
}

// denseGrid validates an n x n grid and rejects unreachable (null) cells.
func denseGrid(grid [][]*float64, n int) ([][]float64, error) {
	if len(grid) != n {
		return nil, fmt.Errorf("expected %d rows, got %d", n, len(grid))
	}
	out := make([][]float64, n)
	for i, row := range grid {
		if len(row) != n {
			return nil, fmt.Errorf("row %d: expected %d cells, got %d", i, n, len(row))
		}
		out[i] = make([]float64, n)
		for j, cell := range row {
			if cell == nil {
				return nil, fmt.Errorf("no road connection between points %d and %d", i, j)
			}
			out[i][j] = *cell
		}
	}
	return out, nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
