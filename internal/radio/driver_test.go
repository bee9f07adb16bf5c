package radio

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fanetwx/fanetwxd/internal/fanetaddr"
	"github.com/fanetwx/fanetwxd/internal/payload"
)

// fakePort is an in-memory Port: writes are captured, and reads deliver
// whatever is queued via feed(), blocking until then or Close().
type fakePort struct {
	mu     sync.Mutex
	writes [][]byte
	toRead chan []byte
	closed chan struct{}
}

func newFakePort() *fakePort {
	return &fakePort{
		toRead: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case chunk := <-p.toRead:
		n := copy(buf, chunk)
		return n, nil
	case <-p.closed:
		return 0, errors.New("fakePort: closed")
	}
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	p.writes = append(p.writes, cp)
	return len(data), nil
}

func (p *fakePort) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}

func (p *fakePort) feed(s string) {
	p.toRead <- []byte(s)
}

func (p *fakePort) lastWrite() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.writes) == 0 {
		return ""
	}
	return string(p.writes[len(p.writes)-1])
}

func (p *fakePort) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func testConfig() Config {
	return Config{
		Device:  "/dev/fake0",
		Baud:    115200,
		Freq:    868,
		TxPower: 14,
	}
}

// driveUntil runs the driver's event loop inline, in the test's own
// goroutine — mirroring the single cooperative loop this driver is designed
// to be called from — consuming data chunks and timer fires until want
// holds or timeout elapses.
func driveUntil(t *testing.T, d *Driver, timeout time.Duration, want func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !want() {
		select {
		case chunk := <-d.DataReady():
			d.OnData(chunk)
		case <-d.TimerC():
			d.OnTimeout()
		case <-deadline:
			t.Fatal("driveUntil: timed out")
		}
	}
}

// TestSeedScenario5RadioHappyPath drives a full boot sequence (reset ->
// initializing -> ready) through the fake port, as in spec.md's seed
// scenario 5, and checks the three outbound frames it expects.
func TestSeedScenario5RadioHappyPath(t *testing.T) {
	port := newFakePort()
	d := NewDriver(testConfig(), nil, func(Config) (Port, error) { return port, nil })

	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if d.State() != Resetting {
		t.Fatalf("state after Init = %v, want Resetting", d.State())
	}

	// The 250ms reset timer fires, moving the driver to Initializing.
	driveUntil(t, d, 2*time.Second, func() bool { return d.State() == Initializing })

	// Radio announces itself.
	port.feed("#FNR MSG,1,initialized\n")
	driveUntil(t, d, 2*time.Second, func() bool { return port.writeCount() >= 1 })
	if got := port.lastWrite(); got != "#DGV\n" {
		t.Fatalf("first command = %q, want %q", got, "#DGV\n")
	}

	port.feed("#DGV build-202201131742\n")
	driveUntil(t, d, 2*time.Second, func() bool { return port.writeCount() >= 2 })
	if got := port.lastWrite(); got != "#DGL 868,14\n" {
		t.Fatalf("second command = %q, want %q", got, "#DGL 868,14\n")
	}

	port.feed("#DGR OK\n")
	driveUntil(t, d, 2*time.Second, func() bool { return port.writeCount() >= 3 })
	if got := port.lastWrite(); got != "#DGP 1\n" {
		t.Fatalf("third command = %q, want %q", got, "#DGP 1\n")
	}
	if d.State() != Ready {
		t.Fatalf("state = %v, want Ready", d.State())
	}

	d.Deinit()
}

func TestInitDeviceOpenFailure(t *testing.T) {
	d := NewDriver(testConfig(), nil, func(Config) (Port, error) {
		return nil, ErrDeviceNotFound
	})
	if err := d.Init(); err == nil {
		t.Fatal("expected error")
	}
	if d.State() != DevNotFound {
		t.Errorf("state = %v, want DevNotFound", d.State())
	}
}

func TestInitDeviceOpenOtherFailure(t *testing.T) {
	d := NewDriver(testConfig(), nil, func(Config) (Port, error) {
		return nil, errors.New("permission denied")
	})
	if err := d.Init(); err == nil {
		t.Fatal("expected error")
	}
	if d.State() != DevOpenFail {
		t.Errorf("state = %v, want DevOpenFail", d.State())
	}
}

func TestWrongFirmwareVersionRejected(t *testing.T) {
	port := newFakePort()
	d := NewDriver(testConfig(), nil, func(Config) (Port, error) { return port, nil })
	_ = d.Init()
	driveUntil(t, d, 2*time.Second, func() bool { return d.State() == Initializing })

	port.feed("#FNR MSG,1,initialized\n")
	driveUntil(t, d, 2*time.Second, func() bool { return port.writeCount() >= 1 })

	port.feed("#DGV build-000000000000\n")
	driveUntil(t, d, 2*time.Second, func() bool { return d.State() == WrongFirmware })

	d.Deinit()
}

// TestInitTimeoutReached exercises the Initializing -> InitTimeout
// transition directly, without waiting out the real 10s init timeout:
// the driver is seeded straight into Initializing with a short timer.
func TestInitTimeoutReached(t *testing.T) {
	d := NewDriver(testConfig(), nil, nil)
	d.state = Initializing
	d.armTimer(time.Millisecond)

	<-d.TimerC()
	d.OnTimeout()
	if d.State() != InitTimeout {
		t.Fatalf("state = %v, want InitTimeout", d.State())
	}
}

func TestComTimeoutFromReady(t *testing.T) {
	d := NewDriver(testConfig(), nil, nil)
	d.state = Ready
	d.armTimer(time.Millisecond)

	<-d.TimerC()
	d.OnTimeout()
	if d.State() != ComTimeout {
		t.Fatalf("state = %v, want ComTimeout", d.State())
	}
}

func TestSendRejectsWhenNotReady(t *testing.T) {
	port := newFakePort()
	d := NewDriver(testConfig(), nil, func(Config) (Port, error) { return port, nil })
	if d.Send(fanetaddr.New(0x11, 0x45AA), payload.AckPayload()) {
		t.Error("Send() = true while disabled, want false")
	}
}

func TestSendRejectsInvalidAddress(t *testing.T) {
	d := NewDriver(testConfig(), nil, nil)
	d.state = Ready
	if d.Send(fanetaddr.Invalid, payload.AckPayload()) {
		t.Error("Send() = true for invalid address, want false")
	}
}

func TestSendWhenReady(t *testing.T) {
	port := newFakePort()
	d := NewDriver(testConfig(), nil, func(Config) (Port, error) { return port, nil })
	d.port = port
	d.state = Ready

	ok := d.Send(fanetaddr.New(0x11, 0x45AA), payload.NamePayload("WX"))
	if !ok {
		t.Fatal("Send() = false, want true")
	}
	if got := port.lastWrite(); got != "#FNT 2,11,45aa,1,1,2,5758\n" {
		t.Errorf("write = %q", got)
	}
}

func TestShortWriteSetsError(t *testing.T) {
	port := newFakePort()
	d := NewDriver(testConfig(), nil, func(Config) (Port, error) { return port, nil })
	d.port = &closingPort{}
	d.state = Ready

	d.Send(fanetaddr.New(0x11, 0x45AA), payload.AckPayload())
	if d.State() != ErrorState {
		t.Fatalf("state = %v, want ErrorState", d.State())
	}
}

// closingPort always fails writes, simulating a dropped connection.
type closingPort struct{}

func (closingPort) Read([]byte) (int, error)  { return 0, errors.New("closed") }
func (closingPort) Write([]byte) (int, error) { return 0, errors.New("write failed") }
func (closingPort) Close() error              { return nil }

func TestOnDataIgnoresInvalidFrame(t *testing.T) {
	d := NewDriver(testConfig(), nil, nil)
	d.OnData([]byte("ZZZ garbage\n"))
	select {
	case r := <-d.Received():
		t.Fatalf("unexpected received packet: %+v", r)
	default:
	}
}

func TestInjectMessageDeliversReceivedPacket(t *testing.T) {
	d := NewDriver(testConfig(), nil, nil)
	d.InjectMessage("FNF 11,45aa,1,0,2,2,5758")

	select {
	case r := <-d.Received():
		if r.Addr != fanetaddr.New(0x11, 0x45AA) || !r.Broadcast {
			t.Errorf("got %+v", r)
		}
	default:
		t.Fatal("expected a received packet")
	}
}

func TestStateString(t *testing.T) {
	if Ready.String() != "ready" {
		t.Errorf("Ready.String() = %q", Ready.String())
	}
	if !InitTimeout.IsTerminal() {
		t.Error("InitTimeout.IsTerminal() = false")
	}
	if Ready.IsTerminal() {
		t.Error("Ready.IsTerminal() = true")
	}
}
