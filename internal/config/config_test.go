package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fanetwx/fanetwxd/internal/station"
)

func writeTempConfig(t *testing.T, xml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fanetwxd.xml")
	if err := os.WriteFile(path, []byte(xml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const validXML = `<fags version="1.0">
  <radio uart="/dev/ttyUSB0" pinboot="RpiJ8Pin08" pinreset="!RpiJ8Pin10" txpower="14" freq="868"/>
  <fanet txinterval_weather="30" txinterval_names="60" inactivity_timeout="120" weather_maxage="600"/>
  <stations>
    <holfuyapi id="1" name="Testpeak" lon="7.0" lat="46.5" alt="0" ival="60" apikey="secret"/>
    <windbird id="2" name="Birdpeak" lon="7.1" lat="46.6" alt="100" ival="90"/>
  </stations>
</fags>`

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, validXML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Radio.Device != "/dev/ttyUSB0" {
		t.Errorf("Radio.Device = %q", cfg.Radio.Device)
	}
	if cfg.Radio.PinBoot != 14 || cfg.Radio.InvertPinBoot {
		t.Errorf("PinBoot = %d, invert=%v", cfg.Radio.PinBoot, cfg.Radio.InvertPinBoot)
	}
	if cfg.Radio.PinReset != 15 || !cfg.Radio.InvertPinReset {
		t.Errorf("PinReset = %d, invert=%v", cfg.Radio.PinReset, cfg.Radio.InvertPinReset)
	}
	if cfg.Fanet.WeatherInterval.Seconds() != 30 {
		t.Errorf("WeatherInterval = %v", cfg.Fanet.WeatherInterval)
	}
	if len(cfg.Stations) != 2 {
		t.Fatalf("len(Stations) = %d, want 2", len(cfg.Stations))
	}
	if cfg.Stations[0].Type != station.TypeHolfuyAPI || cfg.Stations[0].APIKey != "secret" {
		t.Errorf("Stations[0] = %+v", cfg.Stations[0])
	}
	if cfg.Stations[1].Type != station.TypeWindbird {
		t.Errorf("Stations[1] = %+v", cfg.Stations[1])
	}
}

func TestLoadVersionMismatch(t *testing.T) {
	path := writeTempConfig(t, `<fags version="2.0">
  <radio uart="/dev/ttyUSB0" pinboot="RpiJ8Pin08" pinreset="RpiJ8Pin10" txpower="14" freq="868"/>
  <fanet txinterval_weather="30" txinterval_names="60" inactivity_timeout="120" weather_maxage="600"/>
  <stations><windbird id="1" name="X" lon="0" lat="0" alt="0" ival="60"/></stations>
</fags>`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for major version mismatch")
	}
}

func TestLoadNewerMinorAccepted(t *testing.T) {
	path := writeTempConfig(t, `<fags version="1.5">
  <radio uart="/dev/ttyUSB0" pinboot="RpiJ8Pin08" pinreset="RpiJ8Pin10" txpower="14" freq="868"/>
  <fanet txinterval_weather="30" txinterval_names="60" inactivity_timeout="120" weather_maxage="600"/>
  <stations><windbird id="1" name="X" lon="0" lat="0" alt="0" ival="60"/></stations>
</fags>`)

	if _, err := Load(path); err != nil {
		t.Errorf("expected newer minor to be accepted, got %v", err)
	}
}

func TestLoadMissingUART(t *testing.T) {
	path := writeTempConfig(t, `<fags version="1.0">
  <radio uart="" pinboot="RpiJ8Pin08" pinreset="RpiJ8Pin10" txpower="14" freq="868"/>
  <fanet txinterval_weather="30" txinterval_names="60" inactivity_timeout="120" weather_maxage="600"/>
  <stations><windbird id="1" name="X" lon="0" lat="0" alt="0" ival="60"/></stations>
</fags>`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing uart")
	}
}

func TestLoadInvalidFreq(t *testing.T) {
	path := writeTempConfig(t, `<fags version="1.0">
  <radio uart="/dev/ttyUSB0" pinboot="RpiJ8Pin08" pinreset="RpiJ8Pin10" txpower="14" freq="433"/>
  <fanet txinterval_weather="30" txinterval_names="60" inactivity_timeout="120" weather_maxage="600"/>
  <stations><windbird id="1" name="X" lon="0" lat="0" alt="0" ival="60"/></stations>
</fags>`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid frequency")
	}
}

func TestLoadHolfuyAPIMissingKey(t *testing.T) {
	path := writeTempConfig(t, `<fags version="1.0">
  <radio uart="/dev/ttyUSB0" pinboot="RpiJ8Pin08" pinreset="RpiJ8Pin10" txpower="14" freq="868"/>
  <fanet txinterval_weather="30" txinterval_names="60" inactivity_timeout="120" weather_maxage="600"/>
  <stations><holfuyapi id="1" name="X" lon="0" lat="0" alt="0" ival="60"/></stations>
</fags>`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for holfuyapi station missing apikey")
	}
}

func TestLoadNoStations(t *testing.T) {
	path := writeTempConfig(t, `<fags version="1.0">
  <radio uart="/dev/ttyUSB0" pinboot="RpiJ8Pin08" pinreset="RpiJ8Pin10" txpower="14" freq="868"/>
  <fanet txinterval_weather="30" txinterval_names="60" inactivity_timeout="120" weather_maxage="600"/>
  <stations/>
</fags>`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for config with no stations")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.xml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
