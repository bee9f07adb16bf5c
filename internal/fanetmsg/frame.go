// Package fanetmsg implements the FANET UART frame protocol: the
// '#'...'\n' byte-stream framer and the command/reply/event message set
// exchanged with the radio module.
package fanetmsg

import (
	"github.com/howeyc/crc16"
)

// Frame delimiters, per the radio's line protocol.
const (
	startDelimiter = '#'
	endDelimiter   = '\n'
)

// bootTrainingByte is the byte the radio repeats while it is still training
// its UART baud rate during boot. A buffer consisting only of this byte, of
// any length, is discarded silently rather than logged as a corrupt frame.
const bootTrainingByte = 'C'

// isBootTraining reports whether buf is entirely made of bootTrainingByte.
func isBootTraining(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	for _, b := range buf {
		if b != bootTrainingByte {
			return false
		}
	}
	return true
}

var crcTable = crc16.MakeTable(crc16.CCITT)

// Checksum computes a CRC-16/CCITT over frame. The UART line protocol
// itself carries no integrity field, so this is used only as a line-noise
// heuristic by Parser, never to reject a frame outright.
func Checksum(frame []byte) uint16 {
	return crc16.Checksum(frame, crcTable)
}

// Parser accumulates bytes from the radio's UART stream and yields complete
// frames. It holds no reference to the underlying device; callers feed it
// bytes as they arrive.
type Parser struct {
	buf []byte

	haveLastChecksum bool
	lastChecksum     uint16
	noiseCount       int
}

// NewParser returns an empty frame parser.
func NewParser() *Parser {
	return &Parser{}
}

// SuspectedNoiseCount returns how many times in a row Feed has completed a
// frame whose checksum exactly repeats the previous one — a stuck or
// looping UART line rather than genuine distinct traffic. Callers use this
// as a log-only warning metric; it never causes a frame to be dropped.
func (p *Parser) SuspectedNoiseCount() int { return p.noiseCount }

// Feed appends data to the parser's buffer and returns any frames it
// completes, in order. Dropped holds any partially-collected buffer that
// was discarded because a new frame started before the previous one ended
// (excluding the boot-training sequence, which is dropped silently); the
// caller decides whether that is worth logging.
type FeedResult struct {
	Frames  [][]byte
	Dropped [][]byte
}

// Feed processes data one byte at a time: '#' starts a new frame (discarding
// any partial buffer), '\n' completes the current frame, everything else
// accumulates.
func (p *Parser) Feed(data []byte) FeedResult {
	var result FeedResult
	for _, b := range data {
		switch b {
		case startDelimiter:
			if len(p.buf) > 0 && !isBootTraining(p.buf) {
				dropped := make([]byte, len(p.buf))
				copy(dropped, p.buf)
				result.Dropped = append(result.Dropped, dropped)
			}
			p.buf = p.buf[:0]
		case endDelimiter:
			frame := make([]byte, len(p.buf))
			copy(frame, p.buf)
			result.Frames = append(result.Frames, frame)
			p.buf = p.buf[:0]

			sum := Checksum(frame)
			if p.haveLastChecksum && sum == p.lastChecksum && len(frame) > 0 {
				p.noiseCount++
			} else {
				p.noiseCount = 0
			}
			p.lastChecksum = sum
			p.haveLastChecksum = true
		default:
			p.buf = append(p.buf, b)
		}
	}
	return result
}
