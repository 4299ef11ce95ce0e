package places

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/zodiya/funnel-api/internal/domain/funnel"
	"github.com/zodiya/funnel-api/internal/platform/cache"
	"github.com/zodiya/funnel-api/internal/platform/logging"
	"github.com/zodiya/funnel-api/internal/platform/resilience"
)

const (
	autocompletePath = "/google/places-autocomplete-public"
	geocodePath      = "/google/geocode-public"
)

var errPlacesTransient = crerr.New("places transient failure")

// cityComponentPriority orders the address-component types tried when
// extracting a display city from a geocode result.
var cityComponentPriority = []string{
	"locality",
	"postal_town",
	"administrative_area_level_3",
	"administrative_area_level_2",
	"sublocality",
}

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
	Cache          *cache.Store
}

// Client wraps the place-autocomplete and geocode proxy endpoints. Both
// operations are idempotent reads; callers are expected to fail open when
// they error.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxRetries     int
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
	cache          *cache.Store
}

// PlaceDetails is the resolved geography for a selected place.
type PlaceDetails struct {
	City           string
	Lat            *float64
	Lon            *float64
	UTCOffsetHours *float64
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 10 * time.Second
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		maxRetries:     max(cfg.MaxRetries, 0),
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
		cache:          cfg.Cache,
	}
}

// SearchPlaces returns autocomplete suggestions for the given input. Results
// for the same normalized input are cached briefly.
func (c *Client) SearchPlaces(ctx context.Context, input string) ([]funnel.CitySuggestion, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	load := func(ctx context.Context) (any, error) {
		var decoded autocompleteEnvelope
		if err := c.doJSON(ctx, autocompletePath, map[string]string{"input": input}, &decoded); err != nil {
			return nil, fmt.Errorf("place autocomplete input=%q: %w", input, err)
		}

		suggestions := make([]funnel.CitySuggestion, 0, len(decoded.Predictions))
		for _, p := range decoded.Predictions {
			if strings.TrimSpace(p.Description) == "" {
				continue
			}
			suggestions = append(suggestions, funnel.CitySuggestion{
				Description: p.Description,
				PlaceID:     p.PlaceID,
			})
		}
		return suggestions, nil
	}

	if c.cache == nil {
		out, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return out.([]funnel.CitySuggestion), nil
	}

	out, err := c.cache.GetOrLoad(ctx, "places:autocomplete:"+strings.ToLower(input), load)
	if err != nil {
		return nil, err
	}
	suggestions, ok := out.([]funnel.CitySuggestion)
	if !ok {
		return nil, fmt.Errorf("unexpected cached payload type %T", out)
	}
	return suggestions, nil
}

// ResolvePlace fetches the geocode details for a place id. The returned city
// comes from the highest-priority address component present, falling back to
// the place name.
func (c *Client) ResolvePlace(ctx context.Context, placeID string) (PlaceDetails, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return PlaceDetails{}, fmt.Errorf("place id is required")
	}

	var decoded geocodeEnvelope
	if err := c.doJSON(ctx, geocodePath, map[string]string{"place_id": placeID}, &decoded); err != nil {
		return PlaceDetails{}, fmt.Errorf("geocode place_id=%s: %w", placeID, err)
	}

	result := decoded.Result
	details := PlaceDetails{
		City: extractCity(result.AddressComponents, result.Name),
		Lat:  result.Geometry.Location.Lat,
		Lon:  result.Geometry.Location.Lng,
	}

	offsetMinutes := result.UTCOffsetMinutes
	if offsetMinutes == nil {
		offsetMinutes = result.UTCOffset
	}
	if offsetMinutes != nil {
		hours := *offsetMinutes / 60
		details.UTCOffsetHours = &hours
	}

	return details, nil
}

func (c *Client) doJSON(ctx context.Context, path string, query map[string]string, target any) error {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "places circuit breaker rejected request", "state", c.breaker.State())
			return fmt.Errorf("place lookup temporarily unavailable: %w", err)
		}
	}

	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}

	fullURL := c.baseURL + path
	if encoded := values.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	out, err, _ := c.flight.Do(fullURL, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if reqErr != nil && crerr.Is(reqErr, errPlacesTransient) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return err
	}

	raw, ok := out.([]byte)
	if !ok {
		return fmt.Errorf("unexpected response payload type %T", out)
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode places payload: %w", err)
	}

	return nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: send request: %v", errPlacesTransient, err)
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("%w: read response body: %v", errPlacesTransient, readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return raw, nil
			case isRetryableStatus(resp.StatusCode):
				lastErr = fmt.Errorf("%w: proxy status=%d", errPlacesTransient, resp.StatusCode)
			default:
				return nil, fmt.Errorf("proxy status=%d", resp.StatusCode)
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * 250 * time.Millisecond
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("places request failed")
	}
	c.logger.WarnContext(ctx, "places request failed", "url", fullURL, "error", lastErr)
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func extractCity(components []addressComponent, fallbackName string) string {
	for _, wanted := range cityComponentPriority {
		for _, component := range components {
			for _, t := range component.Types {
				if t == wanted && strings.TrimSpace(component.LongName) != "" {
					return funnel.SanitizeCityName(component.LongName)
				}
			}
		}
	}
	return funnel.SanitizeCityName(fallbackName)
}

type autocompleteEnvelope struct {
	Predictions []prediction `json:"predictions"`
}

type prediction struct {
	Description string `json:"description"`
	PlaceID     string `json:"place_id"`
}

type geocodeEnvelope struct {
	Result geocodeResult `json:"result"`
}

type geocodeResult struct {
	AddressComponents []addressComponent `json:"address_components"`
	Geometry          geometry           `json:"geometry"`
	UTCOffsetMinutes  *float64           `json:"utc_offset_minutes"`
	UTCOffset         *float64           `json:"utc_offset"`
	Name              string             `json:"name"`
}

type addressComponent struct {
	LongName string   `json:"long_name"`
	Types    []string `json:"types"`
}

type geometry struct {
	Location location `json:"location"`
}

type location struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}
