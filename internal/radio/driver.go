// Package radio implements the FANET radio driver: the UART state machine
// that resets, initializes, and supervises the module, translating
// fanetmsg frames to and from application-level sends and receives.
package radio

import (
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fanetwx/fanetwxd/internal/fanetaddr"
	"github.com/fanetwx/fanetwxd/internal/fanetmsg"
	"github.com/fanetwx/fanetwxd/internal/payload"
)

// State is one of the driver's four operating states, or one of its
// terminal error states.
type State uint8

const (
	Disabled State = iota
	Resetting
	Initializing
	Ready

	// Terminal error states. Once entered, only a fresh Init() leaves them.
	ErrorState
	DevNotFound
	DevOpenFail
	InitTimeout
	ComTimeout
	WrongFirmware
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Resetting:
		return "resetting"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case ErrorState:
		return "error"
	case DevNotFound:
		return "device not found"
	case DevOpenFail:
		return "device open failed"
	case InitTimeout:
		return "initialization timeout"
	case ComTimeout:
		return "communication timeout"
	case WrongFirmware:
		return "wrong firmware version"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the driver's unrecoverable error
// states, requiring a fresh Init() (or process restart) to leave.
func (s State) IsTerminal() bool {
	switch s {
	case DevNotFound, DevOpenFail, InitTimeout, WrongFirmware:
		return true
	default:
		return false
	}
}

const (
	resetDuration      = 250 * time.Millisecond
	initTimeout        = 10 * time.Second
	comTimeout         = 3 * time.Second
	initializedMsgCode = 1
	expectedFirmware   = "202201131742"

	// noiseWarnThreshold is how many consecutive identical-checksum frames
	// (see fanetmsg.Parser.SuspectedNoiseCount) trigger a warning log.
	noiseWarnThreshold = 5
)

// Port is the minimal serial-device surface the driver needs; satisfied by
// *serial.Port (github.com/tarm/serial).
type Port interface {
	io.ReadWriteCloser
}

// GPIO is the minimal pin-control surface the driver needs to sequence the
// module's boot/reset lines. Implemented by internal/gpio.Controller.
type GPIO interface {
	Assert(pin int, invert bool) error
	Deassert(pin int, invert bool) error
}

// Config holds everything the driver needs to open and configure the
// module: the UART device, its region settings, and its boot/reset pins.
type Config struct {
	Device         string
	Baud           int
	PinBoot        int
	PinReset       int
	InvertPinBoot  bool
	InvertPinReset bool
	Freq           fanetmsg.Freq
	TxPower        int
}

// OpenPort dials the configured serial device. Overridden in tests.
type OpenPort func(cfg Config) (Port, error)

// ReceivedPacket is a decoded, validated inbound FANET packet, handed
// upward to the dispatcher.
type ReceivedPacket struct {
	Addr      fanetaddr.Address
	Payload   payload.Payload
	Broadcast bool
}

// Driver is the FANET radio state machine. All state transitions happen on
// whichever goroutine calls Init/OnTimeout/OnData/Send — callers are
// expected to serialize those calls from a single event loop, per this
// system's cooperative single-threaded concurrency model. A background
// goroutine only ever reads the UART and forwards raw bytes over a channel;
// it never touches driver state directly.
type Driver struct {
	cfg     Config
	gpio    GPIO
	open    OpenPort
	log     *log.Entry
	parser  *fanetmsg.Parser
	port    Port
	state   State
	timer   *time.Timer
	dataCh  chan []byte
	stopCh  chan struct{}
	doneCh  chan struct{}
	stateCh chan State
	recvCh  chan ReceivedPacket
}

// NewDriver constructs a Driver in the Disabled state. open is normally
// DialSerial; tests substitute a fake.
func NewDriver(cfg Config, gpio GPIO, open OpenPort) *Driver {
	return &Driver{
		cfg:     cfg,
		gpio:    gpio,
		open:    open,
		log:     log.WithField("component", "radio"),
		parser:  fanetmsg.NewParser(),
		state:   Disabled,
		dataCh:  make(chan []byte, 16),
		stateCh: make(chan State, 8),
		recvCh:  make(chan ReceivedPacket, 16),
	}
}

// State returns the driver's current state.
func (d *Driver) State() State { return d.state }

// StateChanges returns a channel that receives every state transition. The
// dispatcher selects on this to drive its radio-state reaction policy.
func (d *Driver) StateChanges() <-chan State { return d.stateCh }

// Received returns the channel of decoded inbound packets.
func (d *Driver) Received() <-chan ReceivedPacket { return d.recvCh }

// DataReady returns the channel of raw byte chunks read from the UART. The
// owning event loop selects on this and calls OnData with what it receives.
func (d *Driver) DataReady() <-chan []byte { return d.dataCh }

// TimerC returns the driver's armed-timer channel, or nil if no timer is
// armed. The owning event loop selects on this and calls OnTimeout when it
// fires.
func (d *Driver) TimerC() <-chan time.Time {
	if d.timer == nil {
		return nil
	}
	return d.timer.C
}

func (d *Driver) armTimer(dur time.Duration) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(dur)
}

func (d *Driver) cancelTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Driver) setState(s State) {
	if s == d.state {
		return
	}
	d.log.WithFields(log.Fields{"from": d.state, "to": s}).Info("radio state changed")
	d.state = s
	select {
	case d.stateCh <- s:
	default:
		d.log.Warn("state change channel full, dropping notification")
	}
}

// Init opens the UART, asserts boot, deasserts reset, and arms the 250ms
// reset timer. On UART open failure it transitions directly to DevNotFound
// or DevOpenFail.
func (d *Driver) Init() error {
	if d.port != nil {
		d.Deinit()
	}

	d.setState(Resetting)

	port, err := d.open(d.cfg)
	if err != nil {
		if isDeviceNotFound(err) {
			d.setState(DevNotFound)
		} else {
			d.setState(DevOpenFail)
		}
		d.log.WithError(err).Error("failed to open serial port")
		return err
	}
	d.port = port
	d.parser = fanetmsg.NewParser()

	if d.gpio != nil {
		_ = d.gpio.Assert(d.cfg.PinBoot, d.cfg.InvertPinBoot)
		_ = d.gpio.Deassert(d.cfg.PinReset, d.cfg.InvertPinReset)
	}

	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.readLoop(d.port, d.stopCh, d.doneCh)

	d.armTimer(resetDuration)
	return nil
}

// Deinit closes the UART and any reader goroutine, returning the driver to
// Disabled.
func (d *Driver) Deinit() {
	if d.gpio != nil {
		_ = d.gpio.Deassert(d.cfg.PinReset, d.cfg.InvertPinReset)
	}
	d.cancelTimer()
	if d.stopCh != nil {
		close(d.stopCh)
	}
	// Close the port before waiting on doneCh: readLoop only notices stopCh
	// between reads, so a Read blocked on idle UART would never return and
	// the wait below would hang forever otherwise. Closing unblocks it.
	if d.port != nil {
		_ = d.port.Close()
		d.port = nil
	}
	if d.stopCh != nil {
		<-d.doneCh
		d.stopCh = nil
	}
	d.setState(Disabled)
}

// readLoop reads raw chunks from the UART and forwards them on dataCh until
// stopCh closes or the read fails.
func (d *Driver) readLoop(port Port, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 256)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := port.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		select {
		case d.dataCh <- chunk:
		case <-stop:
			return
		}
	}
}

// OnTimeout handles the driver's armed timer firing; behaviour depends on
// the current state.
func (d *Driver) OnTimeout() {
	switch d.state {
	case Resetting:
		if d.gpio != nil {
			_ = d.gpio.Assert(d.cfg.PinReset, d.cfg.InvertPinReset)
		}
		d.setState(Initializing)
		d.armTimer(initTimeout)
	case Initializing:
		d.log.Error("timeout initializing radio")
		d.setState(InitTimeout)
	case Ready:
		d.log.Error("communication with radio timed out")
		d.setState(ComTimeout)
	}
}

// OnData feeds a chunk of raw UART bytes through the frame parser and
// dispatches every completed message.
func (d *Driver) OnData(chunk []byte) {
	result := d.parser.Feed(chunk)
	for _, dropped := range result.Dropped {
		d.log.WithField("discarded", string(dropped)).Warn("discarding incomplete message")
	}
	for _, frame := range result.Frames {
		msg, err := fanetmsg.ParseFrame(frame)
		if err != nil {
			d.log.WithError(err).Warn("dropping unparseable frame")
			continue
		}
		if !msg.IsValid() {
			d.log.Warn("dropping invalid frame")
			continue
		}
		d.handleMessage(msg)
	}
	if n := d.parser.SuspectedNoiseCount(); n >= noiseWarnThreshold && n%noiseWarnThreshold == 0 {
		d.log.WithField("repeats", n).Warn("suspected line noise: repeated identical frame checksum")
	}
}

// InjectMessage parses raw already-framed text (no delimiters) as if it had
// arrived over the UART, for diagnostics/testing.
func (d *Driver) InjectMessage(raw string) {
	msg, err := fanetmsg.ParseFrame([]byte(raw))
	if err != nil {
		d.log.WithError(err).Warn("failed to inject message")
		return
	}
	d.handleMessage(msg)
}

func (d *Driver) handleMessage(msg fanetmsg.Message) {
	switch m := msg.(type) {
	case fanetmsg.ReceiveEvent:
		d.log.WithField("addr", m.Addr).Info("received packet")
		select {
		case d.recvCh <- ReceivedPacket{Addr: m.Addr, Payload: m.Payload, Broadcast: m.Broadcast}:
		default:
			d.log.Warn("receive channel full, dropping packet")
		}
	case fanetmsg.TransmitReply:
		if d.state == Initializing {
			d.onRadioInitialized(m)
			return
		}
		d.handleFanetReply(m)
	case fanetmsg.GenericReply:
		d.handleRegionReply(m)
	case fanetmsg.VersionReply:
		d.handleVersionReply(m)
	default:
		d.log.WithField("type", fmt.Sprintf("%T", msg)).Debug("ignored unexpected message")
	}
}

func (d *Driver) onRadioInitialized(reply fanetmsg.TransmitReply) {
	if reply.Kind != fanetmsg.ReplyMsg || reply.Code != initializedMsgCode {
		d.log.WithField("reply", reply).Warn("received unexpected message during initialization")
		return
	}
	d.log.Info("radio found, checking firmware version")
	d.armTimer(comTimeout)
	d.sendMessage(fanetmsg.VersionCommand{})
}

func (d *Driver) handleVersionReply(reply fanetmsg.VersionReply) {
	d.cancelTimer()
	version := reply.Version()
	if version == "" {
		d.log.Error("radio firmware version check failed")
		d.setState(WrongFirmware)
		return
	}
	if version != expectedFirmware {
		d.log.WithFields(log.Fields{"got": version, "want": expectedFirmware}).Error("wrong radio firmware version")
		d.setState(WrongFirmware)
		return
	}
	d.log.WithField("version", version).Info("firmware version accepted")

	cmd := fanetmsg.NewRegionCommand(d.cfg.TxPower, d.cfg.Freq)
	d.log.WithFields(log.Fields{"tx_power": cmd.TxPower, "freq": cmd.Freq}).Info("setting radio region")
	d.sendMessage(cmd)
	d.armTimer(comTimeout)
}

func (d *Driver) handleRegionReply(reply fanetmsg.GenericReply) {
	d.cancelTimer()
	if reply.Kind != fanetmsg.ReplyOk {
		d.log.WithFields(log.Fields{"code": reply.Code, "message": reply.Text}).Error("failed to set radio region")
		d.setState(ErrorState)
		return
	}
	if d.state == Initializing {
		d.sendMessage(fanetmsg.EnableCommand{Enable: true})
		d.armTimer(comTimeout)
		d.log.Info("radio ready")
		d.setState(Ready)
	}
}

func (d *Driver) handleFanetReply(reply fanetmsg.TransmitReply) {
	switch reply.Kind {
	case fanetmsg.ReplyOk:
		d.log.Debug("fanet command reply: ok")
	case fanetmsg.ReplyMsg:
		d.log.WithFields(log.Fields{"code": reply.Code, "message": reply.Text}).Info("fanet command reply")
	case fanetmsg.ReplyAck:
		d.log.Debug("fanet command: ack")
	case fanetmsg.ReplyNack:
		d.log.Debug("fanet command: nack")
	case fanetmsg.ReplyError:
		d.log.WithFields(log.Fields{"code": reply.Code, "message": reply.Text}).Error("fanet command failed")
		d.setState(ErrorState)
	}
}

// Send transmits payload to addr. It fails fast (returning false) unless
// the driver is Ready and addr is valid.
func (d *Driver) Send(addr fanetaddr.Address, p payload.Payload) bool {
	if !addr.IsValid() {
		d.log.Warn("failed to send: invalid address")
		return false
	}
	if d.state != Ready {
		d.log.WithField("state", d.state).Warn("failed to send: radio is not ready")
		return false
	}
	return d.sendMessage(fanetmsg.TransmitCommand{Addr: addr, Payload: p})
}

// SupportsAddressChange reports whether the connected firmware can change
// its sender address for broadcasting on behalf of multiple stations. The
// stock firmware this driver targets does not.
func (d *Driver) SupportsAddressChange() bool { return false }

func (d *Driver) sendMessage(msg fanetmsg.Message) bool {
	if !msg.IsValid() {
		return false
	}
	body := msg.Encode()
	if body == nil {
		return false
	}
	frame := make([]byte, 0, len(body)+2)
	frame = append(frame, '#')
	frame = append(frame, body...)
	frame = append(frame, '\n')

	d.log.WithField("frame", string(body)).Debug("sending message")
	n, err := d.port.Write(frame)
	if err != nil || n != len(frame) {
		d.cancelTimer()
		d.log.WithError(err).Error("failed to write to radio")
		d.setState(ErrorState)
		return false
	}
	return true
}

func isDeviceNotFound(err error) bool {
	return err != nil && err == ErrDeviceNotFound
}

// ErrDeviceNotFound is returned by an OpenPort implementation when the
// configured device path does not exist, distinguishing DevNotFound from a
// general DevOpenFail.
var ErrDeviceNotFound = fmt.Errorf("radio: device not found")
