package radio

import (
	"errors"
	"os"

	"github.com/tarm/serial"
)

// DialSerial opens the UART configured in cfg at 8N1, no flow control. It is
// the default OpenPort passed to NewDriver outside of tests.
func DialSerial(cfg Config) (Port, error) {
	c := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: 0,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return port, nil
}
