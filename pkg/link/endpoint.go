package link

import (
	"context"

	"github.com/nevisneutrinos/cmdlink/pkg/protocol"
)

// Endpoint is the public handle for either role: a bound Server or a
// connecting Client. It exposes command send/receive and lifecycle
// methods without leaking whether the underlying transport is being
// reconnected, replaced, or torn down.
type Endpoint struct {
	manager *Manager

	ctx    context.Context
	cancel context.CancelFunc

	done chan struct{}
}

func newEndpoint(role Role, opts Options) *Endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	return &Endpoint{
		manager: newManager(role, opts),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Send enqueues cmd for transmission on the current (or next) connection.
// It never blocks on the network; it only blocks briefly on the outbound
// queue's internal lock.
func (e *Endpoint) Send(cmd protocol.Command) {
	e.manager.enqueueSend(cmd)
}

// SendCommand is a convenience wrapper building a Command from a code and
// its arguments.
func (e *Endpoint) SendCommand(code uint16, args ...int32) {
	e.Send(protocol.Command{Code: code, Arguments: args})
}

// RecvOne blocks until a command is available, ctx is canceled, or the
// endpoint is closed, whichever comes first. ok is false when ctx is
// canceled or the endpoint's inbound queue has been shut down, replacing the source's
// zero-command sentinel with an explicit signal (spec §9 redesign flag).
func (e *Endpoint) RecvOne(ctx context.Context) (protocol.Command, bool) {
	return e.manager.inbound.PopBlocking(ctx)
}

// RecvMany drains up to max currently queued commands without blocking.
// It returns an empty, non-nil slice if none are queued.
func (e *Endpoint) RecvMany(max int) []protocol.Command {
	return e.manager.inbound.Drain(max)
}

// IsOpen reports whether a peer is currently connected.
func (e *Endpoint) IsOpen() bool {
	return e.manager.IsOpen()
}

// State returns the endpoint's current connection state.
func (e *Endpoint) State() State {
	return e.manager.State()
}

// StopReading shuts down the inbound queue, waking any blocked RecvOne
// callers with ok == false, without affecting the connection itself. Use
// this to unblock consumers during an orderly shutdown sequence.
func (e *Endpoint) StopReading() {
	e.manager.inbound.Shutdown()
}

// Close cancels the endpoint's accept/connect loop, closes the current
// connection if any, and shuts down both queues. It blocks until the
// background loop has fully exited.
func (e *Endpoint) Close() error {
	e.cancel()
	<-e.done
	e.manager.inbound.Shutdown()
	e.manager.outbound.Shutdown()
	return nil
}
