package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const userAgent = "phototrail/1.0"

// reverseResponse models the subset of the Nominatim jsonv2 address object the
// pipeline consumes. Everything else in the response is ignored.
type reverseResponse struct {
	Address struct {
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		Suburb   string `json:"suburb"`
		District string `json:"district"`
		State    string `json:"state"`
	} `json:"address"`
}

// Client resolves decimal coordinates to a human-readable place name using a
// Nominatim-compatible reverse geocoding service.
type Client struct {
	httpClient *http.Client
	endpoint   string
	language   string
	logger     *zap.Logger
}

func NewClient(endpoint, language string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		language:   language,
		logger:     logger,
	}
}

// ReverseGeocode issues one reverse-geocoding request and reduces the address
// to a single display string. Location enrichment is best-effort: every
// failure degrades to nil, never an error.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) *string {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("format", "jsonv2")
	params.Set("accept-language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), http.NoBody)
	if err != nil {
		c.logger.Warn("failed to build reverse geocoding request", zap.Error(err))
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("reverse geocoding request failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("reverse geocoding returned non-200 status",
			zap.Int("status", resp.StatusCode),
			zap.Float64("lat", lat),
			zap.Float64("lon", lon))
		return nil
	}

	var decoded reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.logger.Warn("failed to decode reverse geocoding response", zap.Error(err))
		return nil
	}

	name := displayName(decoded)
	if name == "" {
		return nil
	}
	return &name
}

// displayName picks the first present locality field in priority order and
// appends the state when it adds information.
func displayName(resp reverseResponse) string {
	addr := resp.Address
	locality := firstNonEmpty(addr.City, addr.Town, addr.Village, addr.Suburb, addr.District)
	if locality == "" {
		return ""
	}
	if addr.State != "" && addr.State != locality {
		return locality + ", " + addr.State
	}
	return locality
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
