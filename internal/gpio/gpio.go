// Package gpio implements the minimal sysfs-backed GPIO control the radio
// driver needs to sequence a module's boot/reset lines, plus parsing of the
// original firmware's named-pin configuration syntax (e.g. "RpiJ8Pin08",
// optionally prefixed with "!" for active-low).
//
// This intentionally covers only the Raspberry Pi 40-pin header, the one
// case this system's radio.GPIO interface actually needs to drive; GPIO is
// named as an external/out-of-scope collaborator in the purpose & scope, so
// the UART-control-line pins (CTS/RTS/DTR) the original also recognized are
// parsed for compatibility but rejected at lookup time, since driving them
// requires the serial port handle, not a sysfs pin.
package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const sysfsGPIOPath = "/sys/class/gpio"

// rpiHeaderPins maps a Raspberry Pi J8 physical header pin number to its
// BCM GPIO number, for the subset of pins usable as plain digital I/O.
var rpiHeaderPins = map[int]int{
	3: 2, 5: 3, 7: 4, 8: 14, 10: 15,
	11: 17, 12: 18, 13: 27, 15: 22, 16: 23,
	18: 24, 19: 10, 21: 9, 22: 25, 23: 11,
	24: 8, 26: 7, 29: 5, 31: 6, 32: 12,
	33: 13, 35: 19, 36: 16, 37: 26, 38: 20,
	40: 21,
}

// ParsePinName parses a pin identifier as written in XML configuration:
// an optional leading "!" (active-low) followed by either "RpiJ8PinNN" or
// one of "CTS"/"RTS"/"DTR". It returns the pin's BCM GPIO number and
// whether the configuration requested active-low behaviour. UART
// control-line names parse successfully but return ok=false, since they
// have no sysfs GPIO number.
func ParsePinName(s string) (bcmPin int, invert bool, ok bool, err error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "!") {
		invert = true
		trimmed = trimmed[1:]
	}

	lower := strings.ToLower(trimmed)
	switch lower {
	case "cts", "rts", "dtr":
		return 0, invert, false, nil
	}

	const prefix = "rpij8pin"
	if !strings.HasPrefix(lower, prefix) {
		return 0, false, false, fmt.Errorf("gpio: unrecognized pin name %q", s)
	}

	num, err := strconv.Atoi(lower[len(prefix):])
	if err != nil {
		return 0, false, false, fmt.Errorf("gpio: bad pin number in %q: %w", s, err)
	}

	bcm, found := rpiHeaderPins[num]
	if !found {
		return 0, false, false, fmt.Errorf("gpio: header pin J8-%d has no GPIO function", num)
	}
	return bcm, invert, true, nil
}

// Controller drives BCM GPIO pins through the Linux sysfs GPIO class,
// exporting each pin as direction "out" on first use. Implements
// radio.GPIO.
type Controller struct {
	mu       sync.Mutex
	exported map[int]bool
	basePath string
}

// NewController builds a Controller backed by the real sysfs GPIO tree.
func NewController() *Controller {
	return &Controller{exported: make(map[int]bool), basePath: sysfsGPIOPath}
}

// Assert drives pin active: logical high, unless invert flips it to low.
func (c *Controller) Assert(pin int, invert bool) error {
	return c.write(pin, !invert)
}

// Deassert drives pin inactive: logical low, unless invert flips it to high.
func (c *Controller) Deassert(pin int, invert bool) error {
	return c.write(pin, invert)
}

func (c *Controller) write(pin int, high bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.exported[pin] {
		if err := c.export(pin); err != nil {
			return err
		}
		c.exported[pin] = true
	}

	value := "0"
	if high {
		value = "1"
	}
	return os.WriteFile(filepath.Join(c.pinDir(pin), "value"), []byte(value), 0o644)
}

func (c *Controller) export(pin int) error {
	if _, err := os.Stat(c.pinDir(pin)); err == nil {
		return c.setDirection(pin)
	}
	if err := os.WriteFile(filepath.Join(c.basePath, "export"), []byte(strconv.Itoa(pin)), 0o644); err != nil {
		return fmt.Errorf("gpio: failed to export pin %d: %w", pin, err)
	}
	return c.setDirection(pin)
}

func (c *Controller) setDirection(pin int) error {
	if err := os.WriteFile(filepath.Join(c.pinDir(pin), "direction"), []byte("out"), 0o644); err != nil {
		return fmt.Errorf("gpio: failed to set direction for pin %d: %w", pin, err)
	}
	return nil
}

func (c *Controller) pinDir(pin int) string {
	return filepath.Join(c.basePath, fmt.Sprintf("gpio%d", pin))
}
