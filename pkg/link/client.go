package link

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/nevisneutrinos/cmdlink/pkg/transport"
)

// NewClient dials opts.Address and starts the reconnect loop in the
// background, returning immediately with an Endpoint. Each dial attempt
// times out after the fixed connect timeout (spec §5); a failed dial is
// retried at a fixed interval rather than exponential backoff, since the
// source's StartClient() sleeps a flat 2 seconds between attempts
// (tcp_connection.cpp). After an established connection drops, the client
// redials at once, without waiting for that interval.
func NewClient(opts Options) (*Endpoint, error) {
	opts.IsServer = false
	ep := newEndpoint(RoleClient, opts)
	ep.manager.setState(StateIdle)

	go ep.connectLoop()
	return ep, nil
}

func (e *Endpoint) connectLoop() {
	defer close(e.done)

	policy := backoff.WithContext(backoff.NewConstantBackOff(reconnectInterval), e.ctx)

	for {
		if e.ctx.Err() != nil {
			e.manager.setState(StateStopped)
			return
		}

		e.manager.setState(StateConnecting)
		conn, err := e.dial()
		if err != nil {
			if e.ctx.Err() != nil {
				e.manager.setState(StateStopped)
				return
			}
			e.manager.logger.Printf("link: dial %s failed: %v", e.manager.opts.Address, err)
			wait := policy.NextBackOff()
			if wait == backoff.Stop {
				e.manager.setState(StateStopped)
				return
			}
			e.manager.setState(StateReconnecting)
			sleepOrDone(e.ctx, wait)
			continue
		}

		policy.Reset()
		e.manager.setState(StateConnected)
		e.manager.runConnection(e.ctx, conn)

		if e.ctx.Err() != nil {
			e.manager.setState(StateStopped)
			return
		}
		e.manager.setState(StateReconnecting)
	}
}

// sleepOrDone waits for d or ctx cancellation, whichever comes first.
func sleepOrDone(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (e *Endpoint) dial() (net.Conn, error) {
	ctx, cancel := context.WithTimeout(e.ctx, connectTimeout)
	defer cancel()

	conn, err := transport.DialTCP(ctx, e.manager.opts.Address, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("link: connect: %w", err)
	}

	size := e.manager.opts.SendBufferSize
	if size <= 0 {
		size = transport.DefaultSendBufferSize
	}
	if err := transport.ApplySendBuffer(conn, size); err != nil {
		e.manager.logger.Printf("link: set send buffer: %v", err)
	}
	return conn, nil
}
