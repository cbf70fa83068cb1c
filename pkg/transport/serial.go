package transport

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// SerialConfig describes a UART line to frame commands over. It is a thin,
// domain-named wrapper over serial.Mode so callers of this package never
// need to import go.bug.st/serial directly.
type SerialConfig struct {
	BaudRate int
	DataBits int // 0 selects go.bug.st/serial's default of 8
}

// OpenSerial opens portName for framed command traffic. The decoder and
// connection manager only need an io.ReadWriteCloser, so a serial line is
// just another stream transport for the same wire protocol: this is the
// teacher's whole domain (framing bytes to an embedded peer over UART),
// generalized from a hardwired nRF52 link to any stream, TCP included.
func OpenSerial(portName string, cfg SerialConfig) (io.ReadWriteCloser, error) {
	dataBits := cfg.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: dataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open serial port %s: %w", portName, err)
	}
	return port, nil
}
