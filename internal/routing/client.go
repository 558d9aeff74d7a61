// Package routing fetches driving routes from an OSRM-compatible service and
// draws them on the ride map.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/telemetry"
)

const serviceName = "osrm"

// Route is a decoded driving route.
type Route struct {
	Path     geo.Path `json:"path"`
	Distance float64  `json:"distance"` // metres
	Duration float64  `json:"duration"` // seconds
}

// Router finds a route between two points.
type Router interface {
	Route(ctx context.Context, from, to geo.Coordinate) (*Route, error)
}

type Config struct {
	BaseURL   string
	Profile   string
	UserAgent string
	Timeout   time.Duration
}

// DefaultConfig points at the public OSRM demo server.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://router.project-osrm.org",
		Profile:   "driving",
		UserAgent: "ridemap/1.0",
		Timeout:   10 * time.Second,
	}
}

// Client talks to the OSRM route service.
type Client struct {
	client    *http.Client
	baseURL   string
	profile   string
	userAgent string
	metrics   *telemetry.UpstreamMetrics
}

func NewClient(cfg Config, metrics *telemetry.UpstreamMetrics) *Client {
	if cfg.Profile == "" {
		cfg.Profile = "driving"
	}
	return &Client{
		client:    telemetry.NewHTTPClient(serviceName, &http.Client{Timeout: cfg.Timeout}),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		profile:   cfg.Profile,
		userAgent: cfg.UserAgent,
		metrics:   metrics,
	}
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Routes  []struct {
		Geometry json.RawMessage `json:"geometry"`
		Distance float64         `json:"distance"`
		Duration float64         `json:"duration"`
	} `json:"routes"`
}

// Route requests the full-overview route from one point to another. The
// service answers in [lng, lat] order; the returned path is lat/lng.
func (c *Client) Route(ctx context.Context, from, to geo.Coordinate) (*Route, error) {
	route, err := c.route(ctx, from, to)
	if err != nil {
		c.metrics.RecordRequest(ctx, serviceName, outcomeOf(err))
		return nil, err
	}
	c.metrics.RecordRequest(ctx, serviceName, "ok")
	return route, nil
}

func (c *Client) route(ctx context.Context, from, to geo.Coordinate) (*Route, error) {
	params := url.Values{}
	params.Set("overview", "full")
	params.Set("geometries", "geojson")

	u := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?%s",
		c.baseURL, c.profile, from.Lng, from.Lat, to.Lng, to.Lat, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to build routing request", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewBadResponseError(serviceName, resp.StatusCode, nil)
	}

	var body routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.NewBadResponseError(serviceName, resp.StatusCode, err)
	}
	if body.Code != "Ok" {
		return nil, errors.NewBadResponseError(serviceName, resp.StatusCode, nil).
			WithDetails(strings.TrimSpace(body.Code + " " + body.Message))
	}
	if len(body.Routes) == 0 {
		return nil, errors.NewBadResponseError(serviceName, resp.StatusCode, nil).WithDetails("no routes")
	}

	first := body.Routes[0]
	g, err := geojson.UnmarshalGeometry(first.Geometry)
	if err != nil {
		return nil, errors.NewBadResponseError(serviceName, resp.StatusCode, err)
	}
	line, ok := g.Geometry().(orb.LineString)
	if !ok || len(line) == 0 {
		return nil, errors.NewBadResponseError(serviceName, resp.StatusCode, nil).
			WithDetails(fmt.Sprintf("unexpected geometry %q", g.Type))
	}

	return &Route{
		Path:     geo.PathFromLineString(line),
		Distance: first.Distance,
		Duration: first.Duration,
	}, nil
}

func outcomeOf(err error) string {
	if t, ok := errors.GetErrorType(err); ok {
		return string(t)
	}
	return "error"
}
