// Package station implements the weather-data source adapters (Holfuy's
// authenticated API, Holfuy's public widget, and Windbird/Pioupiou) and the
// polling manager that keeps their readings fresh.
package station

import (
	"context"
	"fmt"
	"time"
)

// DataFlags marks which fields of a Reading a given adapter actually
// populates; the dispatcher consults it to decide which service-payload
// fields to include in a broadcast.
type DataFlags uint8

const (
	NoData         DataFlags = 0
	WindSpeed      DataFlags = 0x01
	WindSpeedGust  DataFlags = 0x02
	WindDirection  DataFlags = 0x04
	Temperature    DataFlags = 0x08
	Humidity       DataFlags = 0x10
)

// Has reports whether f includes all bits of mask.
func (f DataFlags) Has(mask DataFlags) bool { return f&mask == mask }

// TemperatureInvalid is the sentinel value (in the original's Celsius x10
// unit) an adapter puts in Reading.Temperature when its source provides no
// temperature.
const TemperatureInvalid = -2740

// Reading is one station's most recent measurement. WindSpeed, WindGusts
// and Temperature are tenths of their unit (km/h, degrees C) to avoid
// floating point in the hot broadcast path; WindDirection and Humidity are
// whole degrees/percent.
type Reading struct {
	WindDirection int
	WindSpeed     int
	WindGusts     int
	Temperature   int
	Humidity      int
	At            time.Time
}

// Position is a station's fixed geographic location, used as the position
// field of its FANET service broadcasts. Alt is carried for configuration
// completeness only; the Service payload has no altitude field.
type Position struct {
	Lat float64
	Lon float64
	Alt float64
}

// Type identifies which concrete adapter a Config describes.
type Type int

const (
	TypeUnknown Type = iota
	TypeHolfuyAPI
	TypeHolfuyWidget
	TypeWindbird
)

func (t Type) String() string {
	switch t {
	case TypeHolfuyAPI:
		return "holfuy-api"
	case TypeHolfuyWidget:
		return "holfuy-widget"
	case TypeWindbird:
		return "windbird"
	default:
		return "unknown"
	}
}

// Config is one station's static configuration, as loaded from XML.
type Config struct {
	Type           Type
	StationID      int
	StationName    string
	APIKey         string
	Position       Position
	UpdateInterval time.Duration
}

func (c Config) IsValid() bool {
	return c.Type != TypeUnknown && c.StationID >= 0
}

// Adapter is the capability every weather data source implements: a single
// blocking fetch of the source's current reading, safe to call from a
// dedicated goroutine.
type Adapter interface {
	StationID() int
	AvailableData() DataFlags
	// Fetch performs one blocking network round trip and returns the
	// current reading, plus the station's display name if the source
	// reports one (empty if unchanged/unavailable).
	Fetch(ctx context.Context) (Reading, string, error)
}

// NewAdapter builds the concrete Adapter for cfg.Type.
func NewAdapter(cfg Config) (Adapter, error) {
	switch cfg.Type {
	case TypeHolfuyAPI:
		return NewHolfuyAPI(cfg.StationID, cfg.APIKey), nil
	case TypeHolfuyWidget:
		return NewHolfuyWidget(cfg.StationID), nil
	case TypeWindbird:
		return NewWindbird(cfg.StationID), nil
	default:
		return nil, fmt.Errorf("station: unknown station type %v", cfg.Type)
	}
}

// Station couples a Config and Adapter with the station's current reading
// and display name. All fields except the embedded Adapter are only ever
// touched by the owning event loop (via Manager.ApplyResult), never by the
// Fetch goroutine directly, so no locking is needed.
type Station struct {
	Config  Config
	Adapter Adapter

	name       string
	reading    Reading
	lastUpdate time.Time
	interval   time.Duration
}

// NewStation builds a Station in its disabled (interval 0) state.
func NewStation(cfg Config, adapter Adapter) *Station {
	return &Station{
		Config:  cfg,
		Adapter: adapter,
		name:    cfg.StationName,
	}
}

func (s *Station) StationID() int         { return s.Config.StationID }
func (s *Station) Name() string           { return s.name }
func (s *Station) Reading() Reading       { return s.reading }
func (s *Station) LastUpdate() time.Time  { return s.lastUpdate }
func (s *Station) UpdateInterval() time.Duration { return s.interval }

// SetUpdateInterval enables (interval > 0) or disables (interval == 0)
// polling; the Manager owning this Station is responsible for re-arming or
// stopping the corresponding poll goroutine when this changes.
func (s *Station) SetUpdateInterval(d time.Duration) {
	s.interval = d
}

func (s *Station) applyReading(r Reading, name string) {
	s.reading = r
	s.lastUpdate = r.At
	if name != "" {
		s.name = name
	}
}

// FetchResult is what a Station's poll goroutine reports back to the
// owning event loop after each Adapter.Fetch call.
type FetchResult struct {
	StationID int
	Reading   Reading
	Name      string
	Err       error
}

// Manager runs one polling goroutine per configured station and funnels
// every fetch result onto a single channel for the owning event loop to
// apply. This mirrors internal/radio's readLoop pattern: the only
// goroutines here perform blocking I/O (HTTP requests); all reading state
// mutation happens in ApplyResult, called from the single cooperative loop.
type Manager struct {
	stations map[int]*Station
	resultCh chan FetchResult
	cancel   map[int]context.CancelFunc
}

// NewManager builds a Manager over the given stations, keyed by station ID.
func NewManager(stations []*Station) *Manager {
	m := &Manager{
		stations: make(map[int]*Station, len(stations)),
		resultCh: make(chan FetchResult, len(stations)),
		cancel:   make(map[int]context.CancelFunc, len(stations)),
	}
	for _, s := range stations {
		m.stations[s.StationID()] = s
	}
	return m
}

// Stations returns every managed station.
func (m *Manager) Stations() []*Station {
	out := make([]*Station, 0, len(m.stations))
	for _, s := range m.stations {
		out = append(out, s)
	}
	return out
}

// Results returns the channel of fetch outcomes; the owning loop selects on
// this and calls ApplyResult for each.
func (m *Manager) Results() <-chan FetchResult { return m.resultCh }

// Enable starts (or restarts, if already running) a station's poll
// goroutine at its configured update interval, firing an immediate fetch
// first. Enable(0) is a no-op; use Disable to stop polling.
func (m *Manager) Enable(stationID int, interval time.Duration) {
	s, ok := m.stations[stationID]
	if !ok || interval <= 0 {
		return
	}
	m.Disable(stationID)
	s.SetUpdateInterval(interval)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel[stationID] = cancel
	go m.pollLoop(ctx, s, interval)
}

// Disable stops a station's poll goroutine, if running.
func (m *Manager) Disable(stationID int) {
	if cancel, ok := m.cancel[stationID]; ok {
		cancel()
		delete(m.cancel, stationID)
	}
	if s, ok := m.stations[stationID]; ok {
		s.SetUpdateInterval(0)
	}
}

// DisableAll stops every station's polling.
func (m *Manager) DisableAll() {
	for id := range m.cancel {
		m.Disable(id)
	}
}

func (m *Manager) pollLoop(ctx context.Context, s *Station, interval time.Duration) {
	m.fetch(ctx, s)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.fetch(ctx, s)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) fetch(ctx context.Context, s *Station) {
	reading, name, err := s.Adapter.Fetch(ctx)
	select {
	case m.resultCh <- FetchResult{StationID: s.StationID(), Reading: reading, Name: name, Err: err}:
	case <-ctx.Done():
	}
}

// ApplyResult merges a fetch outcome into its station's state. Called only
// from the owning event loop.
func (m *Manager) ApplyResult(r FetchResult) {
	s, ok := m.stations[r.StationID]
	if !ok || r.Err != nil {
		return
	}
	s.applyReading(r.Reading, r.Name)
}
