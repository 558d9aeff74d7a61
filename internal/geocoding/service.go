// Package geocoding resolves coordinates to addresses with a
// Nominatim-compatible reverse geocoding service.
package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/telemetry"
)

const serviceName = "nominatim"

// Reverser turns a coordinate into an address.
type Reverser interface {
	Reverse(ctx context.Context, c geo.Coordinate) (*ResolvedAddress, error)
}

// Config configures the client.
type Config struct {
	BaseURL   string
	UserAgent string
	Language  string
	Timeout   time.Duration
}

// DefaultConfig points at the public Nominatim instance.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://nominatim.openstreetmap.org",
		UserAgent: "ridemap/1.0",
		Language:  "fa",
		Timeout:   10 * time.Second,
	}
}

type Service struct {
	client    *http.Client
	baseURL   string
	userAgent string
	language  string
	metrics   *telemetry.UpstreamMetrics
}

func NewService(cfg Config, metrics *telemetry.UpstreamMetrics) *Service {
	if cfg.Language == "" {
		cfg.Language = "fa"
	}
	return &Service{
		client:    telemetry.NewHTTPClient(serviceName, &http.Client{Timeout: cfg.Timeout}),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		language:  cfg.Language,
		metrics:   metrics,
	}
}

// Reverse looks up the address at c. Transport failures come back as network
// errors; a non-2xx status, an undecodable body or a Nominatim error payload
// come back as bad response errors.
func (s *Service) Reverse(ctx context.Context, c geo.Coordinate) (*ResolvedAddress, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.NewValidationError("coordinate", err.Error())
	}

	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%f", c.Lat))
	params.Set("lon", fmt.Sprintf("%f", c.Lng))
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("accept-language", s.language)

	var result reverseResult
	if err := s.doRequest(ctx, "reverse", params, &result); err != nil {
		s.metrics.RecordRequest(ctx, serviceName, outcomeOf(err))
		return nil, err
	}
	if result.Error != "" {
		s.metrics.RecordRequest(ctx, serviceName, "bad_response")
		return nil, errors.NewBadResponseError(serviceName, http.StatusOK, nil).WithDetails(result.Error)
	}

	s.metrics.RecordRequest(ctx, serviceName, "ok")
	return &ResolvedAddress{
		DisplayName: result.DisplayName,
		Address:     result.Address,
	}, nil
}

func (s *Service) doRequest(ctx context.Context, endpoint string, params url.Values, v interface{}) error {
	u := fmt.Sprintf("%s/%s?%s", s.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.NewInternalError("failed to build geocoding request", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.NewNetworkError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.NewBadResponseError(serviceName, resp.StatusCode, nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.NewBadResponseError(serviceName, resp.StatusCode, err)
	}
	return nil
}

func outcomeOf(err error) string {
	if t, ok := errors.GetErrorType(err); ok {
		return string(t)
	}
	return "error"
}
