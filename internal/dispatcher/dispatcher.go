// Package dispatcher implements the scheduler that ties the radio driver
// and the station manager together: timed weather/name broadcasts,
// neighbour-liveness tracking, and the inactivity suspend/resume policy.
//
// Unlike internal/radio and internal/station, which run background
// goroutines for their blocking I/O, a Dispatcher owns no goroutine of its
// own. Its single 1 Hz ticker is exposed via TickC for the owning
// event loop to select on; every exported method is expected to be called
// only from that loop.
package dispatcher

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/fanetwx/fanetwxd/internal/fanetaddr"
	"github.com/fanetwx/fanetwxd/internal/payload"
	"github.com/fanetwx/fanetwxd/internal/radio"
	"github.com/fanetwx/fanetwxd/internal/station"
)

const tickInterval = 1 * time.Second

// Config is the FanetConfig timing policy: four non-negative durations
// loaded once from XML and never mutated.
type Config struct {
	WeatherInterval   time.Duration
	NamesInterval     time.Duration
	InactivityTimeout time.Duration
	WeatherMaxAge     time.Duration
}

// Sender is the subset of radio.Driver the dispatcher depends on, so tests
// can substitute a fake without driving a real UART state machine.
type Sender interface {
	Send(addr fanetaddr.Address, p payload.Payload) bool
	SupportsAddressChange() bool
	Init() error
}

// Dispatcher schedules weather and name broadcasts and tracks mesh
// neighbour liveness. All fields except the ticker are only ever touched
// from the owning event loop.
type Dispatcher struct {
	cfg      Config
	radio    Sender
	stations *station.Manager
	log      *log.Entry

	lastNeighbour time.Time
	lastWeather   time.Time
	lastNames     time.Time

	ticker *time.Ticker
}

// New builds a Dispatcher in its disabled (no ticker armed) state.
func New(cfg Config, r Sender, stations *station.Manager) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		radio:    r,
		stations: stations,
		log:      log.WithField("component", "dispatcher"),
	}
}

// LastNeighbourSeen returns the timestamp of the last Tracking/GroundTracking
// packet received, for the diagnostics endpoint.
func (d *Dispatcher) LastNeighbourSeen() time.Time { return d.lastNeighbour }

// LastWeatherSent returns the timestamp of the last weather broadcast.
func (d *Dispatcher) LastWeatherSent() time.Time { return d.lastWeather }

// LastNamesSent returns the timestamp of the last name broadcast.
func (d *Dispatcher) LastNamesSent() time.Time { return d.lastNames }

// TickC returns the dispatcher's 1 Hz tick channel. It is nil whenever the
// dispatcher is disabled (inactivity suspend, or before the radio first
// becomes Ready); selecting on a nil channel blocks forever, which is
// exactly the no-op the disabled state wants.
func (d *Dispatcher) TickC() <-chan time.Time {
	if d.ticker == nil {
		return nil
	}
	return d.ticker.C
}

// OnTick implements the §4.6 tick policy: check inactivity first, then
// names before weather, matching the original's evaluation order.
func (d *Dispatcher) OnTick(now time.Time) {
	if d.cfg.InactivityTimeout > 0 &&
		(d.lastNeighbour.IsZero() || now.Sub(d.lastNeighbour) > d.cfg.InactivityTimeout) {
		d.log.Warn("no FANET neighbour seen recently, suspending weather updates")
		d.disable()
		return
	}

	if d.cfg.NamesInterval > 0 && now.Sub(d.lastNames) > d.cfg.NamesInterval {
		d.lastNames = now
		d.sendNames()
	}
	if d.cfg.WeatherInterval > 0 && now.Sub(d.lastWeather) > d.cfg.WeatherInterval {
		d.lastWeather = now
		d.sendWeather()
	}
}

// sendWeather composes and transmits one Service payload per station whose
// snapshot is fresh enough, stopping after the first station when the
// radio's stock firmware can't change its sender address per packet.
func (d *Dispatcher) sendWeather() {
	now := time.Now()
	var errs *multierror.Error

	for _, s := range d.stations.Stations() {
		if s.LastUpdate().IsZero() || now.Sub(s.LastUpdate()) > d.cfg.WeatherMaxAge {
			continue
		}

		reading := s.Reading()
		fields := payload.ServiceFields{
			Header: payload.ServiceWind,
			Position: payload.Position{
				Lat: s.Config.Position.Lat,
				Lon: s.Config.Position.Lon,
			},
			Dir:   reading.WindDirection,
			Wind:  reading.WindSpeed,
			Gusts: reading.WindGusts,
		}
		if s.Adapter.AvailableData().Has(station.Temperature) && reading.Temperature != station.TemperatureInvalid {
			fields.Header |= payload.ServiceTemperature
			fields.Temperature = reading.Temperature
		}

		if !d.radio.Send(fanetaddr.Broadcast, payload.ServicePayload(fields)) {
			errs = multierror.Append(errs, fmt.Errorf("station %d: weather send failed", s.StationID()))
		}
		if !d.radio.SupportsAddressChange() {
			break
		}
	}

	if errs != nil {
		d.log.WithError(errs).Warn("weather broadcast had failures")
	}
}

// sendNames composes and transmits one Name payload per station, subject to
// the same single-station limit as sendWeather.
func (d *Dispatcher) sendNames() {
	var errs *multierror.Error

	for _, s := range d.stations.Stations() {
		if s.Name() == "" {
			continue
		}
		if !d.radio.Send(fanetaddr.Broadcast, payload.NamePayload(s.Name())) {
			errs = multierror.Append(errs, fmt.Errorf("station %d: name send failed", s.StationID()))
		}
		if !d.radio.SupportsAddressChange() {
			break
		}
	}

	if errs != nil {
		d.log.WithError(errs).Warn("name broadcast had failures")
	}
}

// OnRadioStateChange implements §4.6's radio-state reaction policy.
func (d *Dispatcher) OnRadioStateChange(s radio.State) {
	switch s {
	case radio.Ready:
		d.enable()
	case radio.ErrorState, radio.ComTimeout:
		d.disable()
		if err := d.radio.Init(); err != nil {
			d.log.WithError(err).Error("radio re-init failed")
		}
	case radio.DevNotFound, radio.DevOpenFail, radio.InitTimeout, radio.WrongFirmware:
		d.log.WithField("state", s).Fatal("unrecoverable radio fault")
	}
}

// HandleReceive implements the inbound half of §4.6: a Tracking or
// GroundTracking packet refreshes neighbour liveness and, if the dispatcher
// was suspended, re-enables it immediately. Updated unconditionally
// regardless of radio readiness, matching fanetradio.cpp's handling of a
// ReceiveEvent that arrives mid-boot.
func (d *Dispatcher) HandleReceive(pkt radio.ReceivedPacket) {
	switch pkt.Payload.Type {
	case payload.Tracking, payload.GroundTracking:
	default:
		return
	}

	d.lastNeighbour = time.Now()
	if d.ticker == nil {
		d.enable()
	}
}

// enable arms the 1 Hz tick and starts every station polling at its
// configured interval. lastWeather/lastNames are left as they are (zero,
// the first time) so the very next tick's "now - last > interval" check is
// immediately true and broadcasts right away, matching
// fanetmessagedispatcher.cpp's enabledWeatherUpdates, which never resets
// them either.
func (d *Dispatcher) enable() {
	if d.ticker != nil {
		return
	}
	for _, s := range d.stations.Stations() {
		d.stations.Enable(s.StationID(), s.Config.UpdateInterval)
	}
	d.ticker = time.NewTicker(tickInterval)
}

// disable stops every station's polling and the tick itself.
func (d *Dispatcher) disable() {
	d.stations.DisableAll()
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
}
