package station

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	holfuyWidgetURL          = "https://widget.holfuy.com/"
	holfuyWidgetReplySizeMax = 5120
	holfuyWidgetTimeout      = 15 * time.Second
	holfuyWidgetDelimStart   = "newWind("
	holfuyWidgetDelimStop    = ");"
)

// HolfuyWidget scrapes the public, key-less Holfuy widget page for a
// station's latest reading — intended for quick testing; HolfuyAPI is the
// recommended data source for any station the caller actually controls.
type HolfuyWidget struct {
	id      int
	baseURL string
	client  *http.Client
}

// NewHolfuyWidget builds a widget-scraping adapter for Holfuy station id.
func NewHolfuyWidget(id int) *HolfuyWidget {
	return &HolfuyWidget{id: id, baseURL: holfuyWidgetURL, client: &http.Client{Timeout: holfuyWidgetTimeout}}
}

func (h *HolfuyWidget) StationID() int { return h.id }

func (h *HolfuyWidget) AvailableData() DataFlags {
	return WindDirection | WindSpeed | WindSpeedGust | Temperature
}

func (h *HolfuyWidget) Fetch(ctx context.Context) (Reading, string, error) {
	url := fmt.Sprintf("%s?station=%d&su=km/h&t=C&lang=en&mode=rose&size=160", h.baseURL, h.id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Reading{}, "", err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Reading{}, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, holfuyWidgetReplySizeMax))
	if err != nil {
		return Reading{}, "", err
	}

	reading, err := parseHolfuyWidgetBody(string(body))
	if err != nil {
		return Reading{}, "", err
	}
	return reading, "", nil
}

// parseHolfuyWidgetBody extracts the "newWind(<dir>,<wind>,<temp>,<gust>,'HH:mm')"
// call embedded in the widget page's HTML and parses its five fields.
func parseHolfuyWidgetBody(html string) (Reading, error) {
	start := strings.Index(html, holfuyWidgetDelimStart)
	if start < 0 {
		return Reading{}, fmt.Errorf("station: holfuy widget reply contains no weather data")
	}
	start += len(holfuyWidgetDelimStart)
	stop := strings.Index(html[start:], holfuyWidgetDelimStop)
	if stop < 0 {
		return Reading{}, fmt.Errorf("station: holfuy widget reply truncated")
	}

	raw := html[start : start+stop]
	fields := splitNonEmpty(raw, ',')
	if len(fields) < 5 {
		return Reading{}, fmt.Errorf("station: failed to parse holfuy widget data from %q", raw)
	}

	dir, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Reading{}, fmt.Errorf("station: bad wind direction in %q: %w", raw, err)
	}
	wind, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return Reading{}, fmt.Errorf("station: bad wind speed in %q: %w", raw, err)
	}
	temp, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return Reading{}, fmt.Errorf("station: bad temperature in %q: %w", raw, err)
	}
	gust, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil {
		return Reading{}, fmt.Errorf("station: bad wind gust in %q: %w", raw, err)
	}

	timeField := strings.Trim(strings.TrimSpace(fields[4]), "'")
	t, err := time.Parse("15:04", timeField)
	if err != nil {
		return Reading{}, fmt.Errorf("station: bad timestamp in %q: %w", raw, err)
	}

	now := time.Now().UTC()
	at := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)

	return Reading{
		WindDirection: dir,
		WindSpeed:     wind * 10,
		WindGusts:     gust * 10,
		Temperature:   round10(temp),
		At:            at,
	}, nil
}

func splitNonEmpty(s string, sep byte) []string {
	parts := strings.Split(s, string(sep))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
