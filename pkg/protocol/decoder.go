package protocol

import "encoding/binary"

// Status is the outcome of a Decoder.Feed call.
type Status int

const (
	// StatusContinue means the decoder consumed this phase's bytes and
	// is requesting N more bytes for the next phase.
	StatusContinue Status = iota
	// StatusFrameReady means Command() now holds a fully decoded frame.
	StatusFrameReady
	// StatusCorrupt means a marker or CRC check failed; the caller must
	// call Restart and resynchronize before feeding more bytes.
	StatusCorrupt
)

type decoderPhase int

const (
	phaseHeader decoderPhase = iota
	phaseArgs
	phaseFooter
)

// ResyncMode selects how the caller recovers after StatusCorrupt.
type ResyncMode int

const (
	// ResyncScan searches the bytes still buffered at the transport for
	// the next start marker within a bounded window before resuming
	// fixed-size reads. This is the recommended, default policy (spec
	// Open Question 1): the source never did this, but robust operation
	// calls for it.
	ResyncScan ResyncMode = iota
	// ResyncDrain reproduces the literal source behavior: discard
	// whatever is buffered and simply hope the next 8 bytes are an
	// aligned header. Kept for compatibility testing against the
	// original policy.
	ResyncDrain
)

// DefaultMaxFrameSize bounds a single frame, matching the spec's ~256 KiB
// maximum legal frame (14 + 4*65535 bytes).
const DefaultMaxFrameSize = 14 + 4*MaxArguments

// Decoder incrementally consumes exactly the bytes the caller supplies for
// the phase it last requested, validating markers and CRC as it goes. It
// never reads past what it is given and never blocks; all I/O is the
// caller's responsibility (the link.Manager read loop).
type Decoder struct {
	phase        decoderPhase
	crc          uint16
	argCount     int
	cmd          Command
	maxFrameSize int
}

// NewDecoder returns a Decoder ready to await a header. maxFrameSize <= 0
// selects DefaultMaxFrameSize.
func NewDecoder(maxFrameSize int) *Decoder {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{maxFrameSize: maxFrameSize}
}

// Restart resets the decoder to AwaitHeader, clearing scratch CRC and
// argument count. Callers must do this after StatusCorrupt and whenever a
// connection is reestablished.
func (d *Decoder) Restart() {
	d.phase = phaseHeader
	d.crc = 0
	d.argCount = 0
	d.cmd = Command{}
}

// Command returns the most recently completed frame. It is only valid
// immediately after a Feed call that returned StatusFrameReady.
func (d *Decoder) Command() Command {
	return d.cmd
}

// Feed advances the state machine with exactly the bytes requested by the
// previous call (8 for the first call after Restart). It returns the
// number of bytes needed for the next phase and the outcome of this one.
// A returned n of 0 with StatusContinue means the next phase needs no
// bytes (arg_count == 0) and Feed should be called again immediately with
// an empty or nil buffer.
func (d *Decoder) Feed(buf []byte) (int, Status) {
	switch d.phase {
	case phaseHeader:
		return d.feedHeader(buf)
	case phaseArgs:
		return d.feedArgs(buf)
	case phaseFooter:
		return d.feedFooter(buf)
	default:
		d.Restart()
		return headerSize, StatusContinue
	}
}

func (d *Decoder) feedHeader(buf []byte) (int, Status) {
	if len(buf) != headerSize {
		return 0, StatusCorrupt
	}
	start1 := binary.BigEndian.Uint16(buf[0:2])
	start2 := binary.BigEndian.Uint16(buf[2:4])
	if start1 != StartCode1 || start2 != StartCode2 {
		return 0, StatusCorrupt
	}

	cmdCode := binary.BigEndian.Uint16(buf[4:6])
	argCount := binary.BigEndian.Uint16(buf[6:8])

	if FrameSize(int(argCount)) > d.maxFrameSize {
		return 0, StatusCorrupt
	}

	d.argCount = int(argCount)
	d.cmd = Command{Code: cmdCode, Arguments: make([]int32, argCount)}
	d.crc = CRC16(buf, 0)
	d.phase = phaseArgs

	return 4 * d.argCount, StatusContinue
}

func (d *Decoder) feedArgs(buf []byte) (int, Status) {
	if len(buf) != 4*d.argCount {
		return 0, StatusCorrupt
	}
	for i := 0; i < d.argCount; i++ {
		word := binary.BigEndian.Uint32(buf[i*4 : i*4+4])
		d.cmd.Arguments[i] = int32(word)
	}
	if len(buf) > 0 {
		d.crc = CRC16(buf, d.crc)
	}
	d.phase = phaseFooter
	return footerSize, StatusContinue
}

func (d *Decoder) feedFooter(buf []byte) (int, Status) {
	if len(buf) != footerSize {
		return 0, StatusCorrupt
	}
	crc := binary.BigEndian.Uint16(buf[0:2])
	end1 := binary.BigEndian.Uint16(buf[2:4])
	end2 := binary.BigEndian.Uint16(buf[4:6])

	if end1 != EndCode1 || end2 != EndCode2 || crc != d.crc {
		return 0, StatusCorrupt
	}

	d.phase = phaseHeader
	return 0, StatusFrameReady
}

// startMarker is the 4-byte sequence a ResyncScan search looks for.
var startMarker = []byte{
	byte(StartCode1 >> 8), byte(StartCode1 & 0xFF),
	byte(StartCode2 >> 8), byte(StartCode2 & 0xFF),
}

// FindStartMarker returns the index of the first occurrence of the 4-byte
// frame start marker in buf, or -1 if it is not present. Used by the
// connection manager's ResyncScan policy to relocate frame alignment after
// StatusCorrupt without simply trusting the next 8 bytes.
func FindStartMarker(buf []byte) int {
	if len(buf) < len(startMarker) {
		return -1
	}
	for i := 0; i+len(startMarker) <= len(buf); i++ {
		if buf[i] == startMarker[0] && buf[i+1] == startMarker[1] &&
			buf[i+2] == startMarker[2] && buf[i+3] == startMarker[3] {
			return i
		}
	}
	return -1
}
