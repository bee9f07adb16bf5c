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
	windbirdAPIURL   = "http://api.pioupiou.fr/v1/live"
	windbirdTimeout  = 15 * time.Second
	windbirdReplyMax = 4096
	// Pioupiou's timestamp may or may not carry milliseconds; both layouts
	// are tried, and each accepts either "Z" or a numeric UTC offset.
	windbirdDateLayout    = "2006-01-02T15:04:05.000Z07:00"
	windbirdDateLayoutAlt = "2006-01-02T15:04:05Z07:00"
)

type windbirdReply struct {
	Data struct {
		ID   int `json:"id"`
		Meta struct {
			Name string `json:"name"`
		} `json:"meta"`
		Measurements struct {
			Date          string  `json:"date"`
			WindHeading   float64 `json:"wind_heading"`
			WindSpeedAvg  float64 `json:"wind_speed_avg"`
			WindSpeedMax  float64 `json:"wind_speed_max"`
		} `json:"measurements"`
	} `json:"data"`
}

// Windbird fetches live data from a Pioupiou/Windbird station via its
// public JSON API.
type Windbird struct {
	id      int
	baseURL string
	client  *http.Client
}

// NewWindbird builds an adapter for Windbird/Pioupiou station id.
func NewWindbird(id int) *Windbird {
	return &Windbird{id: id, baseURL: windbirdAPIURL, client: &http.Client{Timeout: windbirdTimeout}}
}

func (w *Windbird) StationID() int { return w.id }

func (w *Windbird) AvailableData() DataFlags {
	return WindDirection | WindSpeed | WindSpeedGust
}

func (w *Windbird) Fetch(ctx context.Context) (Reading, string, error) {
	url := fmt.Sprintf("%s/%d", w.baseURL, w.id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Reading{}, "", err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return Reading{}, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, windbirdReplyMax))
	if err != nil {
		return Reading{}, "", err
	}

	var reply windbirdReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return Reading{}, "", fmt.Errorf("station: failed to parse windbird reply: %w", err)
	}

	if reply.Data.ID != w.id {
		return Reading{}, "", fmt.Errorf("station: windbird reply for wrong station id %d (want %d)", reply.Data.ID, w.id)
	}

	at, err := parseWindbirdTimestamp(reply.Data.Measurements.Date)
	if err != nil {
		return Reading{}, "", fmt.Errorf("station: failed to parse windbird timestamp: %w", err)
	}

	reading := Reading{
		WindDirection: roundInt(reply.Data.Measurements.WindHeading),
		WindSpeed:     roundInt(reply.Data.Measurements.WindSpeedAvg * 10),
		WindGusts:     roundInt(reply.Data.Measurements.WindSpeedMax * 10),
		Temperature:   TemperatureInvalid,
		At:            at,
	}
	return reading, reply.Data.Meta.Name, nil
}

func parseWindbirdTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(windbirdDateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(windbirdDateLayoutAlt, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func roundInt(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
