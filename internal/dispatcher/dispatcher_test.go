package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/fanetwx/fanetwxd/internal/fanetaddr"
	"github.com/fanetwx/fanetwxd/internal/payload"
	"github.com/fanetwx/fanetwxd/internal/radio"
	"github.com/fanetwx/fanetwxd/internal/station"
)

type fakeSender struct {
	sent             []payload.Payload
	supportsAddrChg  bool
	sendFails        bool
	initCalls        int
}

func (f *fakeSender) Send(addr fanetaddr.Address, p payload.Payload) bool {
	if f.sendFails {
		return false
	}
	f.sent = append(f.sent, p)
	return true
}

func (f *fakeSender) SupportsAddressChange() bool { return f.supportsAddrChg }

func (f *fakeSender) Init() error {
	f.initCalls++
	return nil
}

type constAdapter struct {
	id      int
	reading station.Reading
	flags   station.DataFlags
}

func (a *constAdapter) StationID() int                 { return a.id }
func (a *constAdapter) AvailableData() station.DataFlags { return a.flags }
func (a *constAdapter) Fetch(context.Context) (station.Reading, string, error) {
	return a.reading, "", nil
}

func freshStation(id int, name string, temp int) *station.Station {
	adapter := &constAdapter{
		id: id,
		reading: station.Reading{
			WindDirection: 90, WindSpeed: 100, WindGusts: 150, Temperature: temp,
			At: time.Now(),
		},
		flags: station.WindSpeed | station.WindDirection | station.Temperature,
	}
	cfg := station.Config{
		Type: station.TypeWindbird, StationID: id, StationName: name,
		Position:       station.Position{Lat: 46.5, Lon: 7.0},
		UpdateInterval: time.Minute,
	}
	return station.NewStation(cfg, adapter)
}

func newTestDispatcher(t *testing.T, sender *fakeSender, stations ...*station.Station) *Dispatcher {
	t.Helper()
	mgr := station.NewManager(stations)
	for _, s := range stations {
		adapter := s.Adapter.(*constAdapter)
		mgr.ApplyResult(station.FetchResult{StationID: s.StationID(), Reading: adapter.reading, Name: s.Name()})
	}
	cfg := Config{
		WeatherInterval:   time.Second,
		NamesInterval:     time.Second,
		InactivityTimeout: time.Minute,
		WeatherMaxAge:     time.Hour,
	}
	return New(cfg, sender, mgr)
}

func TestOnTickSendsNamesThenWeather(t *testing.T) {
	sender := &fakeSender{supportsAddrChg: true}
	s := freshStation(1, "Testpeak", 185)
	d := newTestDispatcher(t, sender, s)
	d.lastNeighbour = time.Now()

	d.OnTick(time.Now())

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d payloads, want 2 (name + weather)", len(sender.sent))
	}
	if sender.sent[0].Type != payload.Name {
		t.Errorf("first payload type = %v, want Name", sender.sent[0].Type)
	}
	if sender.sent[1].Type != payload.Service {
		t.Errorf("second payload type = %v, want Service", sender.sent[1].Type)
	}
}

func TestOnTickInactivityDisables(t *testing.T) {
	sender := &fakeSender{supportsAddrChg: true}
	s := freshStation(1, "Testpeak", 185)
	d := newTestDispatcher(t, sender, s)
	d.lastNeighbour = time.Now().Add(-2 * time.Minute) // older than InactivityTimeout
	d.enable()

	d.OnTick(time.Now())

	if len(sender.sent) != 0 {
		t.Errorf("expected no sends while inactive, got %d", len(sender.sent))
	}
	if d.ticker != nil {
		t.Error("expected tick to be disabled")
	}
	if s.UpdateInterval() != 0 {
		t.Error("expected station polling to be disabled")
	}
}

func TestSendWeatherSkipsStaleStation(t *testing.T) {
	sender := &fakeSender{supportsAddrChg: true}
	s := freshStation(1, "Testpeak", 185)
	d := newTestDispatcher(t, sender, s)
	d.cfg.WeatherMaxAge = time.Nanosecond
	time.Sleep(time.Millisecond)

	d.sendWeather()

	if len(sender.sent) != 0 {
		t.Errorf("expected stale station to be skipped, sent %d", len(sender.sent))
	}
}

func TestSendWeatherStopsAfterFirstWithoutAddressChange(t *testing.T) {
	sender := &fakeSender{supportsAddrChg: false}
	s1 := freshStation(1, "A", 185)
	s2 := freshStation(2, "B", 200)
	d := newTestDispatcher(t, sender, s1, s2)

	d.sendWeather()

	if len(sender.sent) != 1 {
		t.Errorf("sent %d weather payloads, want 1 (no address-change support)", len(sender.sent))
	}
}

func TestSendWeatherOmitsTemperatureWhenInvalid(t *testing.T) {
	sender := &fakeSender{supportsAddrChg: true}
	s := freshStation(1, "Testpeak", station.TemperatureInvalid)
	d := newTestDispatcher(t, sender, s)

	d.sendWeather()

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d", len(sender.sent))
	}
	if sender.sent[0].Bytes[0]&byte(payload.ServiceTemperature) != 0 {
		t.Error("expected temperature bit to be unset for invalid reading")
	}
}

func TestOnRadioStateChangeReadyEnables(t *testing.T) {
	sender := &fakeSender{supportsAddrChg: true}
	s := freshStation(1, "Testpeak", 185)
	d := newTestDispatcher(t, sender, s)

	d.OnRadioStateChange(radio.Ready)

	if d.ticker == nil {
		t.Error("expected tick to be armed after Ready")
	}
	if s.UpdateInterval() != time.Minute {
		t.Errorf("UpdateInterval = %v, want 1m", s.UpdateInterval())
	}
}

func TestOnRadioStateChangeErrorReinits(t *testing.T) {
	sender := &fakeSender{supportsAddrChg: true}
	s := freshStation(1, "Testpeak", 185)
	d := newTestDispatcher(t, sender, s)
	d.enable()

	d.OnRadioStateChange(radio.ErrorState)

	if sender.initCalls != 1 {
		t.Errorf("initCalls = %d, want 1", sender.initCalls)
	}
	if d.ticker != nil {
		t.Error("expected tick to be disabled on error")
	}
}

func TestHandleReceiveUpdatesNeighbourAndReenables(t *testing.T) {
	sender := &fakeSender{supportsAddrChg: true}
	s := freshStation(1, "Testpeak", 185)
	d := newTestDispatcher(t, sender, s)

	pkt := radio.ReceivedPacket{
		Addr:    fanetaddr.New(0x11, 0x2233),
		Payload: payload.Payload{Type: payload.Tracking, Bytes: make([]byte, 11)},
	}
	d.HandleReceive(pkt)

	if d.lastNeighbour.IsZero() {
		t.Error("expected lastNeighbour to be updated")
	}
	if d.ticker == nil {
		t.Error("expected HandleReceive to re-enable a disabled dispatcher")
	}
}

func TestHandleReceiveIgnoresNonTrackingPayload(t *testing.T) {
	sender := &fakeSender{supportsAddrChg: true}
	s := freshStation(1, "Testpeak", 185)
	d := newTestDispatcher(t, sender, s)

	d.HandleReceive(radio.ReceivedPacket{
		Payload: payload.Payload{Type: payload.Name, Bytes: []byte("x")},
	})

	if !d.lastNeighbour.IsZero() {
		t.Error("expected non-tracking payload to not update lastNeighbour")
	}
}
