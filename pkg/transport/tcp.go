// Package transport supplies the stream backends the connection manager
// drives: TCP, its native target, and a serial-port adapter for bench
// testing the same wire protocol against embedded hardware without a TCP
// stack in between.
package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultSendBufferSize is the socket send-buffer size the spec calls out
// (§6): a small buffer favors low latency for small messages over
// throughput. The teacher's own UART path has no analogous knob; this
// mirrors the source's SO_SNDBUF=1KiB choice.
const DefaultSendBufferSize = 1024

// DialTCP connects to addr within timeout and applies the send-buffer
// policy before returning.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	if err := ApplySendBuffer(conn, DefaultSendBufferSize); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// ListenTCP binds addr for the server role.
func ListenTCP(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return ln, nil
}

// ApplySendBuffer sets the socket send-buffer size on conn when it is a
// *net.TCPConn. A non-TCP net.Conn (e.g. a pipe used in tests) is left
// untouched. An implementation may choose a larger value
// than DefaultSendBufferSize; this function lets callers document that
// choice explicitly at the call site (spec §6).
func ApplySendBuffer(conn net.Conn, bytes int) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcpConn.SetWriteBuffer(bytes); err != nil {
		return fmt.Errorf("transport: set send buffer: %w", err)
	}
	return nil
}
