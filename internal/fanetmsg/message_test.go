package fanetmsg

import (
	"testing"

	"github.com/fanetwx/fanetwxd/internal/fanetaddr"
	"github.com/fanetwx/fanetwxd/internal/payload"
)

// Seed scenario 5's three outbound frames (defaults txPower=14, freq=868):
// "DGV", "DGL 868,14", "DGP 1" (delimiters are the radio driver's concern,
// not the message encoder's).
func TestOutboundEncodeSeedScenario5(t *testing.T) {
	if got := string(VersionCommand{}.Encode()); got != "DGV" {
		t.Errorf("VersionCommand.Encode() = %q, want %q", got, "DGV")
	}

	region := NewRegionCommand(14, Freq868MHz)
	if got := string(region.Encode()); got != "DGL 868,14" {
		t.Errorf("RegionCommand.Encode() = %q, want %q", got, "DGL 868,14")
	}

	enable := EnableCommand{Enable: true}
	if got := string(enable.Encode()); got != "DGP 1" {
		t.Errorf("EnableCommand.Encode() = %q, want %q", got, "DGP 1")
	}
}

func TestRegionCommandClamping(t *testing.T) {
	if got := NewRegionCommand(0, Freq868MHz).TxPower; got != txPowerMin {
		t.Errorf("TxPower = %d, want clamped to %d", got, txPowerMin)
	}
	if got := NewRegionCommand(99, Freq868MHz).TxPower; got != txPowerMax {
		t.Errorf("TxPower = %d, want clamped to %d", got, txPowerMax)
	}
}

func TestRegionCommandInvalidFreq(t *testing.T) {
	c := NewRegionCommand(14, FreqInvalid)
	if c.IsValid() {
		t.Error("IsValid() = true for FreqInvalid")
	}
	if c.Encode() != nil {
		t.Error("Encode() should be nil for an invalid command")
	}
}

func TestTransmitCommandEncode(t *testing.T) {
	addr := fanetaddr.New(0x11, 0x45AA)
	p := payload.NamePayload("WX")
	cmd := TransmitCommand{Addr: addr, Payload: p}

	got := string(cmd.Encode())
	want := "FNT 2,11,45aa,1,1,2,5758"
	if got != want {
		t.Errorf("TransmitCommand.Encode() = %q, want %q", got, want)
	}
}

func TestTransmitCommandBroadcastNoForwardNoAck(t *testing.T) {
	cmd := TransmitCommand{Addr: fanetaddr.Broadcast, Payload: payload.AckPayload()}
	got := string(cmd.Encode())
	want := "FNT 0,00,0000,0,0,0,"
	if got != want {
		t.Errorf("TransmitCommand.Encode() = %q, want %q", got, want)
	}
}

func TestParseGenericReply(t *testing.T) {
	cases := []struct {
		body string
		want ReplyKind
	}{
		{"OK", ReplyOk},
		{"ACK", ReplyAck},
		{"NACK", ReplyNack},
		{"MSG,1,initialized", ReplyMsg},
		{"ERR,3,bad command", ReplyError},
		{"", ReplyOther},
		{"WAT", ReplyOther},
	}
	for _, c := range cases {
		r := ParseGenericReply([]byte(c.body))
		if r.Kind != c.want {
			t.Errorf("ParseGenericReply(%q).Kind = %v, want %v", c.body, r.Kind, c.want)
		}
	}

	r := ParseGenericReply([]byte("MSG,1,initialized"))
	if r.Code != 1 || r.Text != "initialized" {
		t.Errorf("ParseGenericReply(MSG) = %+v", r)
	}
}

func TestParseTransmitReplyAck(t *testing.T) {
	r := ParseTransmitReply([]byte("ACK,11:45aa"))
	if !r.IsValid() {
		t.Fatalf("IsValid() = false for %+v", r)
	}
	if r.Addr != fanetaddr.New(0x11, 0x45AA) {
		t.Errorf("Addr = %+v", r.Addr)
	}
}

func TestParseTransmitReplyOkHasNoAddress(t *testing.T) {
	r := ParseTransmitReply([]byte("OK"))
	if !r.IsValid() {
		t.Fatalf("IsValid() = false for %+v", r)
	}
	if r.Addr.IsValid() {
		t.Errorf("Addr = %+v, want invalid for a plain OK reply", r.Addr)
	}
}

func TestParseVersionReply(t *testing.T) {
	r := ParseVersionReply([]byte("build-202201131742"))
	if !r.IsValid() {
		t.Fatal("IsValid() = false")
	}
	if got := r.Version(); got != "202201131742" {
		t.Errorf("Version() = %q", got)
	}

	invalid := ParseVersionReply([]byte("garbage"))
	if invalid.IsValid() {
		t.Error("IsValid() = true for non build- prefixed data")
	}
}

func TestParseReceiveEvent(t *testing.T) {
	// mfr=11, dev=45aa, broadcast, sig=0, type=2 (Name), payload "WX" (0x5758)
	body := "11,45aa,1,0,2,2,5758"
	ev, err := ParseReceiveEvent([]byte(body))
	if err != nil {
		t.Fatalf("ParseReceiveEvent: %v", err)
	}
	if !ev.IsValid() {
		t.Fatalf("IsValid() = false for %+v", ev)
	}
	if ev.Addr != fanetaddr.New(0x11, 0x45AA) {
		t.Errorf("Addr = %+v", ev.Addr)
	}
	if !ev.Broadcast {
		t.Error("Broadcast = false, want true")
	}
	if ev.Payload.Name() != "WX" {
		t.Errorf("Payload.Name() = %q", ev.Payload.Name())
	}
}

func TestParseReceiveEventTooShort(t *testing.T) {
	if _, err := ParseReceiveEvent([]byte("11,45aa,1")); err == nil {
		t.Error("expected error for too-short receive event body")
	}
}

func TestParseFrameDispatch(t *testing.T) {
	msg, err := ParseFrame([]byte("FNF 11,45aa,1,0,2,2,5758"))
	if err != nil {
		t.Fatalf("ParseFrame(FNF): %v", err)
	}
	if _, ok := msg.(ReceiveEvent); !ok {
		t.Errorf("ParseFrame(FNF) = %T, want ReceiveEvent", msg)
	}

	if _, err := ParseFrame([]byte("ZZZ nonsense")); err == nil {
		t.Error("expected error for unknown tag")
	}
}
