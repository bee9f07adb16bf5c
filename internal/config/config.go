// Package config loads the XML configuration file read once at startup:
// the radio's UART/pin/region settings, the dispatcher's timing policy, and
// the configured weather stations. Nothing in this system ever mutates a
// loaded Config; it is shared by reference exactly as DESIGN NOTES §9
// describes the original's reference-counted, copy-on-write config objects
// minus the copy-on-write (nothing here ever writes after construction).
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/fanetwx/fanetwxd/internal/fanetmsg"
	"github.com/fanetwx/fanetwxd/internal/gpio"
	"github.com/fanetwx/fanetwxd/internal/radio"
	"github.com/fanetwx/fanetwxd/internal/station"
)

// VersionMajor/VersionMinor is the config schema version this build
// understands. A config file's major must equal this exactly; its minor
// must be at least this, per the version policy in the external interfaces.
const (
	VersionMajor = 1
	VersionMinor = 0
)

const defaultBaud = 115200

// Config is the fully parsed, validated configuration: everything the
// radio driver, dispatcher, and station manager need to start running.
type Config struct {
	Radio    radio.Config
	Fanet    FanetConfig
	Stations []station.Config
}

// FanetConfig is the dispatcher's timing policy, converted from the XML's
// plain-integer seconds into time.Duration.
type FanetConfig struct {
	WeatherInterval   time.Duration
	NamesInterval     time.Duration
	InactivityTimeout time.Duration
	WeatherMaxAge     time.Duration
}

type xmlConfig struct {
	XMLName xml.Name    `xml:"fags"`
	Version string      `xml:"version,attr"`
	Radio   xmlRadio    `xml:"radio"`
	Fanet   xmlFanet    `xml:"fanet"`
	Stations xmlStations `xml:"stations"`
}

type xmlRadio struct {
	UART     string `xml:"uart,attr"`
	PinBoot  string `xml:"pinboot,attr"`
	PinReset string `xml:"pinreset,attr"`
	TxPower  int    `xml:"txpower,attr"`
	Freq     int    `xml:"freq,attr"`
}

type xmlFanet struct {
	TxIntervalWeather int `xml:"txinterval_weather,attr"`
	TxIntervalNames   int `xml:"txinterval_names,attr"`
	InactivityTimeout int `xml:"inactivity_timeout,attr"`
	WeatherMaxAge     int `xml:"weather_maxage,attr"`
}

type xmlStations struct {
	HolfuyAPI    []xmlStation `xml:"holfuyapi"`
	HolfuyWidget []xmlStation `xml:"holfuywidget"`
	Windbird     []xmlStation `xml:"windbird"`
}

type xmlStation struct {
	ID     int     `xml:"id,attr"`
	Name   string  `xml:"name,attr"`
	Lon    float64 `xml:"lon,attr"`
	Lat    float64 `xml:"lat,attr"`
	Alt    float64 `xml:"alt,attr"`
	Ival   int     `xml:"ival,attr"`
	APIKey string  `xml:"apikey,attr"`
}

// Load reads and validates the XML configuration file at path. Every
// violation found is collected before returning, matching the original's
// error-aggregating rather than fail-fast loader behaviour (here via
// multierror rather than parsing every attribute before the first error
// check, which Go's encoding/xml doesn't allow interleaving with).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var raw xmlConfig
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	var errs *multierror.Error

	if err := checkVersion(raw.Version); err != nil {
		errs = multierror.Append(errs, err)
	}

	radioCfg, radioErrs := parseRadio(raw.Radio)
	errs = multierror.Append(errs, radioErrs...)

	fanetCfg, fanetErrs := parseFanet(raw.Fanet)
	errs = multierror.Append(errs, fanetErrs...)

	stations, stationErrs := parseStations(raw.Stations)
	errs = multierror.Append(errs, stationErrs...)

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	return &Config{Radio: radioCfg, Fanet: fanetCfg, Stations: stations}, nil
}

func checkVersion(v string) error {
	parts := strings.SplitN(v, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("config: malformed version %q, want MAJOR.MINOR", v)
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return fmt.Errorf("config: malformed version %q, want MAJOR.MINOR", v)
	}
	if major != VersionMajor || minor < VersionMinor {
		return fmt.Errorf("config: version mismatch: file is %d.%d, this build requires %d.%d or a newer minor",
			major, minor, VersionMajor, VersionMinor)
	}
	return nil
}

func parseRadio(r xmlRadio) (radio.Config, []error) {
	var errs []error
	cfg := radio.Config{Device: r.UART, Baud: defaultBaud, TxPower: r.TxPower}

	if r.UART == "" {
		errs = append(errs, fmt.Errorf("config: radio: uart is required"))
	}

	switch r.Freq {
	case 868, 915:
		cfg.Freq = fanetmsg.Freq(r.Freq)
	default:
		errs = append(errs, fmt.Errorf("config: radio: freq must be 868 or 915, got %d", r.Freq))
	}

	if r.TxPower < 2 || r.TxPower > 20 {
		errs = append(errs, fmt.Errorf("config: radio: txpower must be in [2,20], got %d", r.TxPower))
	}

	if pin, invert, ok, err := parsePin(r.PinBoot); err != nil {
		errs = append(errs, fmt.Errorf("config: radio: pinboot: %w", err))
	} else if !ok {
		errs = append(errs, fmt.Errorf("config: radio: pinboot %q is a UART control line, not a GPIO pin", r.PinBoot))
	} else {
		cfg.PinBoot, cfg.InvertPinBoot = pin, invert
	}

	if pin, invert, ok, err := parsePin(r.PinReset); err != nil {
		errs = append(errs, fmt.Errorf("config: radio: pinreset: %w", err))
	} else if !ok {
		errs = append(errs, fmt.Errorf("config: radio: pinreset %q is a UART control line, not a GPIO pin", r.PinReset))
	} else {
		cfg.PinReset, cfg.InvertPinReset = pin, invert
	}

	return cfg, errs
}

func parsePin(s string) (pin int, invert bool, ok bool, err error) {
	if s == "" {
		return 0, false, false, fmt.Errorf("pin attribute is required")
	}
	return gpio.ParsePinName(s)
}

func parseFanet(f xmlFanet) (FanetConfig, []error) {
	var errs []error
	check := func(name string, v int) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("config: fanet: %s must be non-negative, got %d", name, v))
		}
	}
	check("txinterval_weather", f.TxIntervalWeather)
	check("txinterval_names", f.TxIntervalNames)
	check("inactivity_timeout", f.InactivityTimeout)
	check("weather_maxage", f.WeatherMaxAge)

	cfg := FanetConfig{
		WeatherInterval:   time.Duration(f.TxIntervalWeather) * time.Second,
		NamesInterval:     time.Duration(f.TxIntervalNames) * time.Second,
		InactivityTimeout: time.Duration(f.InactivityTimeout) * time.Second,
		WeatherMaxAge:     time.Duration(f.WeatherMaxAge) * time.Second,
	}
	return cfg, errs
}

func parseStations(s xmlStations) ([]station.Config, []error) {
	var errs []error
	var out []station.Config

	add := func(typ station.Type, typeName string, entries []xmlStation) {
		for _, e := range entries {
			cfg := station.Config{
				Type:        typ,
				StationID:   e.ID,
				StationName: e.Name,
				APIKey:      e.APIKey,
				Position:    station.Position{Lat: e.Lat, Lon: e.Lon, Alt: e.Alt},
				UpdateInterval: time.Duration(e.Ival) * time.Second,
			}
			if e.ID < 0 {
				errs = append(errs, fmt.Errorf("config: station %s %q: id must be non-negative", typeName, e.Name))
				continue
			}
			if typ == station.TypeHolfuyAPI && e.APIKey == "" {
				errs = append(errs, fmt.Errorf("config: station %s %q: apikey is required", typeName, e.Name))
				continue
			}
			if e.Ival <= 0 {
				errs = append(errs, fmt.Errorf("config: station %s %q: ival must be positive", typeName, e.Name))
				continue
			}
			out = append(out, cfg)
		}
	}

	add(station.TypeHolfuyAPI, "holfuyapi", s.HolfuyAPI)
	add(station.TypeHolfuyWidget, "holfuywidget", s.HolfuyWidget)
	add(station.TypeWindbird, "windbird", s.Windbird)

	if len(out) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("config: stations: at least one station is required"))
	}

	return out, errs
}
