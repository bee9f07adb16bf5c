package fanetmsg

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/fanetwx/fanetwxd/internal/fanetaddr"
	"github.com/fanetwx/fanetwxd/internal/payload"
)

// Message is the shared capability every command, reply, and event
// implements: a validity check and a wire encoding. There is deliberately
// no shared base struct — each variant carries only the fields its own
// wire format needs.
type Message interface {
	IsValid() bool
	Encode() []byte
}

// Frame tags, the first three bytes of every line after the '#' delimiter.
const (
	tagVersionCmd    = "DGV"
	tagRegionCmd     = "DGL"
	tagEnableCmd     = "DGP"
	tagTransmitCmd   = "FNT"
	tagVersionReply  = "DGV"
	tagRegionReply   = "DGR"
	tagFanetReply    = "FNR"
	tagReceiveEvent  = "FNF"
	tagIdentifierLen = 3
)

// Freq is a supported FANET radio region frequency.
type Freq int

const (
	FreqInvalid Freq = 0
	Freq868MHz  Freq = 868
	Freq915MHz  Freq = 915
)

// VersionCommand asks the radio to report its firmware build.
type VersionCommand struct{}

func (VersionCommand) IsValid() bool  { return true }
func (VersionCommand) Encode() []byte { return []byte(tagVersionCmd) }

// RegionCommand sets the radio's operating frequency and transmit power.
// TxPower is clamped into [2, 20] dBm at construction time.
type RegionCommand struct {
	TxPower int
	Freq    Freq
}

const (
	txPowerMin = 2
	txPowerMax = 20
)

// NewRegionCommand builds a RegionCommand, clamping txPower into its valid
// range. The caller may inspect the returned TxPower to detect clamping.
func NewRegionCommand(txPower int, freq Freq) RegionCommand {
	if txPower < txPowerMin {
		txPower = txPowerMin
	}
	if txPower > txPowerMax {
		txPower = txPowerMax
	}
	return RegionCommand{TxPower: txPower, Freq: freq}
}

func (c RegionCommand) IsValid() bool {
	return c.Freq == Freq868MHz || c.Freq == Freq915MHz
}

func (c RegionCommand) Encode() []byte {
	if !c.IsValid() {
		return nil
	}
	return []byte(fmt.Sprintf("%s %d,%d", tagRegionCmd, c.Freq, c.TxPower))
}

// EnableCommand toggles the radio's receiver.
type EnableCommand struct {
	Enable bool
}

func (EnableCommand) IsValid() bool { return true }

func (c EnableCommand) Encode() []byte {
	bit := byte('0')
	if c.Enable {
		bit = '1'
	}
	return []byte(fmt.Sprintf("%s %c", tagEnableCmd, bit))
}

// TransmitCommand asks the radio to broadcast or address a payload.
type TransmitCommand struct {
	Addr    fanetaddr.Address
	Payload payload.Payload
}

func (c TransmitCommand) IsValid() bool {
	return c.Payload.IsValid()
}

// Encode renders "FNT type,mfr_hex,dev_hex,fwd,ack,len_hex,payload_hex".
// fwd and ack are both 1 unless Addr is the broadcast address.
func (c TransmitCommand) Encode() []byte {
	if !c.IsValid() {
		return nil
	}
	relay := "1"
	if c.Addr.IsBroadcast() {
		relay = "0"
	}
	return []byte(fmt.Sprintf("%s %x,%s,%s,%s,%x,%x",
		tagTransmitCmd,
		uint8(c.Payload.Type),
		c.Addr.ToHex(','),
		relay, relay,
		len(c.Payload.Bytes),
		c.Payload.Bytes,
	))
}

// ReplyKind classifies a GenericReply/TransmitReply body.
type ReplyKind int

const (
	ReplyOther ReplyKind = iota
	ReplyOk
	ReplyMsg
	ReplyError
	ReplyAck
	ReplyNack
)

// GenericReply is the radio's response to a region or enable command:
// "OK", "MSG,<code>,<text>", "ERR,<code>,<text>", "ACK", or "NACK".
type GenericReply struct {
	Kind ReplyKind
	Code int
	Text string
}

func (r GenericReply) IsValid() bool {
	return r.Kind != ReplyOther
}

func (r GenericReply) Encode() []byte {
	return []byte(strings.TrimSpace(fmt.Sprintf("%s %s", tagRegionReply, r.body())))
}

func (r GenericReply) body() string {
	switch r.Kind {
	case ReplyOk:
		return "OK"
	case ReplyAck:
		return "ACK"
	case ReplyNack:
		return "NACK"
	case ReplyMsg:
		return fmt.Sprintf("MSG,%d,%s", r.Code, r.Text)
	case ReplyError:
		return fmt.Sprintf("ERR,%d,%s", r.Code, r.Text)
	default:
		return ""
	}
}

// ParseGenericReply decodes a reply body (the bytes after the frame tag and
// its separating space) into a GenericReply.
func ParseGenericReply(body []byte) GenericReply {
	fields := splitNonEmpty(body)
	if len(fields) == 0 {
		return GenericReply{Kind: ReplyOther}
	}

	r := GenericReply{Kind: ReplyOther}
	switch fields[0] {
	case "OK":
		return GenericReply{Kind: ReplyOk}
	case "ACK":
		r.Kind = ReplyAck
	case "NACK":
		r.Kind = ReplyNack
	case "MSG":
		r.Kind = ReplyMsg
	case "ERR":
		r.Kind = ReplyError
	}
	if len(fields) > 2 {
		code, _ := strconv.Atoi(fields[1])
		r.Code = code
		r.Text = fields[2]
	}
	return r
}

// TransmitReply is the radio's response to a TransmitCommand: a
// GenericReply, plus the acknowledging/rejecting node's address when the
// reply kind is Ack or Nack.
type TransmitReply struct {
	GenericReply
	Addr fanetaddr.Address
}

func (r TransmitReply) IsValid() bool {
	switch r.Kind {
	case ReplyAck, ReplyNack:
		return r.Addr.IsValid() && r.GenericReply.IsValid()
	default:
		return r.GenericReply.IsValid()
	}
}

// Encode overrides GenericReply.Encode to use the FNR tag and append the
// address field for Ack/Nack replies.
func (r TransmitReply) Encode() []byte {
	body := r.body()
	if r.Kind == ReplyAck || r.Kind == ReplyNack {
		body = fmt.Sprintf("%s,%s", body, r.Addr.ToHex(','))
	}
	return []byte(strings.TrimSpace(fmt.Sprintf("%s %s", tagFanetReply, body)))
}

// ParseTransmitReply decodes a TransmitReply body. When the reply kind is
// Ack or Nack, the address is parsed from the remainder of the body after
// the first comma.
func ParseTransmitReply(body []byte) TransmitReply {
	r := TransmitReply{GenericReply: ParseGenericReply(body), Addr: fanetaddr.Invalid}
	if r.Kind == ReplyAck || r.Kind == ReplyNack {
		if i := bytes.IndexByte(body, ','); i >= 0 {
			r.Addr = fanetaddr.Parse(string(bytes.TrimSpace(body[i+1:])))
		}
	}
	return r
}

// VersionReply carries the radio firmware's build identifier, e.g.
// "build-202201131742".
type VersionReply struct {
	raw []byte
}

const versionPrefix = "build-"

func ParseVersionReply(body []byte) VersionReply {
	return VersionReply{raw: bytes.TrimSpace(body)}
}

func (r VersionReply) IsValid() bool {
	return bytes.HasPrefix(r.raw, []byte(versionPrefix))
}

// Version returns the build identifier without its "build-" prefix, e.g.
// "202201131742". Empty if IsValid is false.
func (r VersionReply) Version() string {
	if !r.IsValid() {
		return ""
	}
	return string(r.raw[len(versionPrefix):])
}

func (r VersionReply) Encode() []byte {
	return []byte(fmt.Sprintf("%s %s", tagVersionReply, r.raw))
}

// ReceiveEvent is a decoded incoming FANET packet.
type ReceiveEvent struct {
	Addr      fanetaddr.Address
	Payload   payload.Payload
	Broadcast bool
	Signature string
}

func (e ReceiveEvent) IsValid() bool {
	return e.Addr.IsValid() && e.Payload.IsValid()
}

// ParseReceiveEvent decodes a ReceiveEvent body:
// "<mfr_hex>,<dev_hex>,<broadcast 0|1>,<sig>,<type_hex>,<len_hex>,<payload_hex>".
func ParseReceiveEvent(body []byte) (ReceiveEvent, error) {
	fields := splitNonEmpty(body)
	if len(fields) < 7 {
		return ReceiveEvent{}, fmt.Errorf("fanetmsg: receive event too short: %d fields", len(fields))
	}

	addr := fanetaddr.Parse(fields[0] + "," + fields[1])
	broadcast := strings.TrimSpace(fields[2]) == "1"
	sig := fields[3]

	typeVal, err := strconv.ParseUint(fields[4], 16, 8)
	if err != nil {
		return ReceiveEvent{}, fmt.Errorf("fanetmsg: bad payload type %q: %w", fields[4], err)
	}

	raw, err := hex.DecodeString(fields[6])
	if err != nil {
		return ReceiveEvent{}, fmt.Errorf("fanetmsg: bad payload hex: %w", err)
	}

	p, _ := payload.Decode(payload.Type(typeVal), raw)

	return ReceiveEvent{Addr: addr, Payload: p, Broadcast: broadcast, Signature: sig}, nil
}

// Encode renders "FNF mfr_hex,dev_hex,broadcast,sig,type_hex,len_hex,payload_hex".
func (e ReceiveEvent) Encode() []byte {
	broadcast := byte('0')
	if e.Broadcast {
		broadcast = '1'
	}
	return []byte(fmt.Sprintf("%s %s,%c,%s,%x,%x,%x",
		tagReceiveEvent,
		e.Addr.ToHex(','),
		broadcast,
		e.Signature,
		uint8(e.Payload.Type),
		len(e.Payload.Bytes),
		e.Payload.Bytes,
	))
}

// ParseFrame dispatches a frame body (as yielded by Parser.Feed, without the
// '#'/'\n' delimiters) to the matching Message constructor by its 3-byte
// tag. Unknown tags return an error; the caller logs and drops the frame.
func ParseFrame(frame []byte) (Message, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) <= tagIdentifierLen {
		return nil, fmt.Errorf("fanetmsg: frame too short: %q", frame)
	}

	tag := string(trimmed[:tagIdentifierLen])
	body := bytes.TrimSpace(trimmed[tagIdentifierLen:])

	switch tag {
	case tagReceiveEvent:
		return ParseReceiveEvent(body)
	case tagFanetReply:
		return ParseTransmitReply(body), nil
	case tagVersionReply:
		return ParseVersionReply(body), nil
	case tagRegionReply:
		return ParseGenericReply(body), nil
	default:
		return nil, fmt.Errorf("fanetmsg: unknown frame tag %q", tag)
	}
}

// splitNonEmpty splits body on ',' and drops empty fields, matching the
// firmware's own Qt::SkipEmptyParts comma-splitting behaviour.
func splitNonEmpty(body []byte) []string {
	parts := strings.Split(strings.TrimSpace(string(body)), ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}
