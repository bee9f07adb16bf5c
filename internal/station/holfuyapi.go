package station

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	holfuyAPIURL       = "http://api.holfuy.com/live/"
	holfuyDateLayout   = "2006-01-02 15:04:05"
	holfuyReplySizeMax = 1024
	holfuyTimeout      = 15 * time.Second
)

type holfuyReply struct {
	StationName string  `json:"stationName"`
	DateTime    string  `json:"dateTime"`
	Temperature float64 `json:"temperature"`
	Wind        struct {
		Speed     float64 `json:"speed"`
		Gust      float64 `json:"gust"`
		Direction int     `json:"direction"`
		Unit      string  `json:"unit"`
	} `json:"wind"`
}

// HolfuyAPI fetches live data from a station's authenticated Holfuy API
// endpoint, the data source recommended for stations the caller controls.
type HolfuyAPI struct {
	id      int
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewHolfuyAPI builds an adapter for Holfuy station id, authenticated with
// apiKey.
func NewHolfuyAPI(id int, apiKey string) *HolfuyAPI {
	return &HolfuyAPI{id: id, apiKey: apiKey, baseURL: holfuyAPIURL, client: &http.Client{Timeout: holfuyTimeout}}
}

func (h *HolfuyAPI) StationID() int { return h.id }

func (h *HolfuyAPI) AvailableData() DataFlags {
	return WindDirection | WindSpeed | WindSpeedGust | Temperature
}

func (h *HolfuyAPI) Fetch(ctx context.Context) (Reading, string, error) {
	url := fmt.Sprintf("%s?s=%d&pw=%s&m=JSON&tu=C&su=km/h&avg=0&utc", h.baseURL, h.id, h.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Reading{}, "", err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Reading{}, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, holfuyReplySizeMax))
	if err != nil {
		return Reading{}, "", err
	}

	var reply holfuyReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return Reading{}, "", fmt.Errorf("station: failed to parse holfuy api reply: %w", err)
	}

	if reply.Wind.Unit != "km/h" {
		return Reading{}, "", fmt.Errorf("station: unexpected wind unit %q", reply.Wind.Unit)
	}

	at, err := time.Parse(holfuyDateLayout, reply.DateTime)
	if err != nil {
		return Reading{}, "", fmt.Errorf("station: failed to parse holfuy api timestamp: %w", err)
	}

	reading := Reading{
		WindDirection: reply.Wind.Direction,
		WindSpeed:     round10(reply.Wind.Speed),
		WindGusts:     round10(reply.Wind.Gust),
		Temperature:   round10(reply.Temperature),
		At:            at.UTC(),
	}
	return reading, reply.StationName, nil
}

// round10 converts a floating-point measurement into tenths of its unit,
// matching the fixed-point Reading fields.
func round10(v float64) int { return roundInt(v * 10) }
