package link

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nevisneutrinos/cmdlink/pkg/protocol"
	"github.com/nevisneutrinos/cmdlink/pkg/queue"
	"github.com/nevisneutrinos/cmdlink/pkg/telemetry"
)

// Manager owns one connection at a time: its decoder, its read and write
// loops, its heartbeat and idle timers. A Server reassigns a Manager's
// connection sequentially as new peers are accepted; a Client reassigns it
// each time it reconnects. This mirrors the source's single TCPConnection
// object that swaps socket_ under the same command buffers rather than
// spawning a fresh buffer pair per peer.
type Manager struct {
	role Role
	opts Options

	logger    Logger
	publisher telemetry.Publisher

	inbound  *queue.Queue
	outbound *queue.Queue

	state stateBox

	mu   sync.Mutex
	conn io.ReadWriteCloser
}

func newManager(role Role, opts Options) *Manager {
	return &Manager{
		role:      role,
		opts:      opts,
		logger:    opts.logger(),
		publisher: opts.publisher(),
		inbound:   queue.New(),
		outbound:  queue.New(),
	}
}

// setState updates the connection state and mirrors it to the status
// publisher (telemetry, §4.5 of SPEC_FULL.md).
func (m *Manager) setState(s State) {
	m.state.set(s)
	m.publisher.PublishState(m.role.String(), m.opts.Address, s.String())
}

// State returns the current connection state.
func (m *Manager) State() State {
	return m.state.get()
}

// IsOpen reports whether a peer is currently connected.
func (m *Manager) IsOpen() bool {
	return m.State() == StateConnected
}

// armIdleTimer reports whether the read loop should arm the read-idle
// timer for the current connection. The source ties this to
// !is_server_ (tcp_connection.cpp): a client with heartbeats enabled
// treats read silence as link loss, but a server does not proactively
// drop an accepted peer on silence unless it explicitly opts in via
// Options.ServerIdleTimeout.
func (m *Manager) armIdleTimer() bool {
	if !m.opts.UseHeartbeat {
		return false
	}
	if m.role == RoleClient {
		return true
	}
	return m.opts.ServerIdleTimeout
}

// enqueueSend pushes c onto the outbound queue, honoring the client-role
// drop-while-disconnected policy (spec §7): a client drops outbound items
// while not connected instead of queuing them indefinitely; a server
// queues them for the next accepted peer.
func (m *Manager) enqueueSend(c protocol.Command) {
	if m.role == RoleClient && !m.IsOpen() {
		m.logger.Printf("link: dropping command %#x, client not connected", c.Code)
		return
	}
	m.outbound.Push(c)
}

// runConnection drives one connection's read and write loops until the
// link is lost or parentCtx is canceled, then tears down the workers and
// closes conn. It blocks until the connection ends.
func (m *Manager) runConnection(parentCtx context.Context, conn io.ReadWriteCloser) {
	connCtx, cancel := context.WithCancel(parentCtx)

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	decoder := protocol.NewDecoder(m.opts.maxFrameSize())

	// Closing conn on cancellation unblocks a pending read, so both
	// Endpoint.Close and a write error end the read loop.
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.writeLoop(connCtx, conn)
		cancel()
	}()

	if m.opts.UseHeartbeat {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.heartbeatLoop(connCtx)
		}()
	}

	var err error
	if m.opts.MonitorLink && m.role == RoleClient {
		err = m.monitorReadLoop(connCtx, conn)
	} else {
		err = m.readLoop(connCtx, conn, decoder)
	}
	if err != nil && connCtx.Err() == nil {
		m.logger.Printf("link: %s connection ended: %v", m.role, err)
	}

	cancel()
	wg.Wait()
	conn.Close()
	if m.role == RoleClient {
		// A client drops anything queued while disconnected rather than
		// replaying it to whatever it reconnects to (spec §7). A server
		// keeps its outbound queue for the next accepted peer.
		m.outbound.Drain(m.outbound.Len())
	}

	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
}

// writeLoop pops one command at a time off the outbound queue, serializes
// it, and writes it. A write error ends this connection's lifetime; the
// caller (client/server loop) decides whether to reconnect.
func (m *Manager) writeLoop(ctx context.Context, conn io.Writer) {
	for {
		cmd, ok := m.outbound.PopBlocking(ctx)
		if !ok {
			return
		}
		buf, err := protocol.Serialize(cmd)
		if err != nil {
			m.logger.Printf("link: failed to serialize command %#x: %v", cmd.Code, err)
			continue
		}
		if _, err := conn.Write(buf); err != nil {
			m.logger.Printf("link: write error: %v", err)
			return
		}
	}
}

// heartbeatLoop enqueues a heartbeat command on the normal outbound queue
// every heartbeatInterval, interleaving with application commands in
// enqueue order.
func (m *Manager) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.outbound.Push(protocol.Command{Code: protocol.HeartBeat})
		}
	}
}

// byteSource reads exactly the bytes the decoder asks for, tracking a
// small leftover buffer so the ResyncScan policy can consume bytes beyond
// a single frame boundary without losing them.
type byteSource struct {
	r        io.Reader
	leftover []byte
}

func (s *byteSource) readExact(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copied := copy(out, s.leftover)
	s.leftover = s.leftover[copied:]
	if copied < n {
		if _, err := io.ReadFull(s.r, out[copied:]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// scanForMarker searches up to maxWindow bytes (leftover plus freshly read
// data) for the frame start marker. On success, s.leftover is left
// positioned at the marker so the next readExact resumes from alignment.
// On failure, s.leftover is discarded (same end state as ResyncDrain).
func (s *byteSource) scanForMarker(maxWindow int) bool {
	buf := append([]byte(nil), s.leftover...)
	tmp := make([]byte, 4096)
	for len(buf) < maxWindow {
		if idx := protocol.FindStartMarker(buf); idx >= 0 {
			s.leftover = buf[idx:]
			return true
		}
		n, err := s.r.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			s.leftover = nil
			return false
		}
	}
	if idx := protocol.FindStartMarker(buf); idx >= 0 {
		s.leftover = buf[idx:]
		return true
	}
	s.leftover = nil
	return false
}

// maxScanWindow bounds how much of the stream ResyncScan will search
// before giving up and falling back to blind realignment.
const maxScanWindow = 4096

// readLoop implements spec §4.4's read loop: one outstanding logical read
// for whatever the decoder requests next, heartbeat suppression, idle
// timeout, and corruption recovery.
func (m *Manager) readLoop(ctx context.Context, conn io.ReadWriteCloser, decoder *protocol.Decoder) error {
	decoder.Restart()
	src := &byteSource{r: conn}

	var idleTimer *time.Timer
	if m.armIdleTimer() {
		idleTimer = time.AfterFunc(idleTimeout, func() {
			m.logger.Printf("link: read-idle timeout, closing connection")
			conn.Close()
		})
		defer idleTimer.Stop()
	}

	need := 8
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if idleTimer != nil {
			idleTimer.Reset(idleTimeout)
		}
		chunk, err := src.readExact(need)
		if err != nil {
			return err
		}

		nextN, status := decoder.Feed(chunk)
		switch status {
		case protocol.StatusContinue:
			if nextN == 0 {
				// Zero-argument frame: the args phase needs no
				// bytes but still transitions (spec §4.2).
				nextN, status = decoder.Feed(nil)
				if status == protocol.StatusCorrupt {
					m.onCorrupt(decoder, src)
					need = 8
					continue
				}
				if status == protocol.StatusFrameReady {
					if idleTimer != nil {
						idleTimer.Stop()
					}
					m.deliver(decoder.Command())
					need = 8
					continue
				}
			}
			need = nextN

		case protocol.StatusFrameReady:
			if idleTimer != nil {
				idleTimer.Stop()
			}
			m.deliver(decoder.Command())
			need = 8

		case protocol.StatusCorrupt:
			m.onCorrupt(decoder, src)
			need = 8
		}
	}
}

func (m *Manager) onCorrupt(decoder *protocol.Decoder, src *byteSource) {
	m.logger.Printf("link: framing error, resynchronizing")
	decoder.Restart()
	if m.opts.ResyncMode == protocol.ResyncScan {
		src.scanForMarker(maxScanWindow)
	} else {
		src.leftover = nil
	}
}

// deliver pushes a decoded frame to the inbound queue unless it is a
// heartbeat (never surfaced to consumers, spec §3). Received ack frames
// (protocol.AckCode) are delivered like any other frame. When AckOnReceive
// is set on the client role, a byte-count acknowledgement is enqueued for
// outbound delivery.
func (m *Manager) deliver(cmd protocol.Command) {
	if cmd.IsHeartBeat() {
		return
	}
	m.inbound.Push(cmd)

	if m.role == RoleClient && m.opts.AckOnReceive {
		ack := protocol.Command{
			Code:      protocol.AckCode,
			Arguments: []int32{int32(protocol.FrameSize(len(cmd.Arguments)))},
		}
		m.outbound.Push(ack)
	}
}

// monitorReadLoop implements the monitor-link policy (spec §4.5): oversized
// speculative reads, any non-zero read is liveness, a zero-byte read or
// error means the link is lost.
func (m *Manager) monitorReadLoop(ctx context.Context, conn io.Reader) error {
	buf := make([]byte, monitorReadSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("link: monitor read returned zero bytes")
		}
	}
}
