package link

import (
	"net"

	"github.com/nevisneutrinos/cmdlink/pkg/transport"
)

// NewServer binds opts.Address and starts accepting connections in the
// background, returning immediately with an Endpoint. Accepted peers are
// served one at a time by the same Manager, reusing its decoder and
// queues, matching the source's StartServer() loop (tcp_connection.cpp),
// which reassigns a single socket_ under the same command buffers rather
// than spawning one object per concurrent peer.
func NewServer(opts Options) (*Endpoint, error) {
	opts.IsServer = true
	listener, err := transport.ListenTCP(opts.Address)
	if err != nil {
		return nil, err
	}

	ep := newEndpoint(RoleServer, opts)
	ep.manager.setState(StateIdle)

	go ep.acceptLoop(listener)
	return ep, nil
}

func (e *Endpoint) acceptLoop(listener net.Listener) {
	defer close(e.done)
	defer listener.Close()

	go func() {
		<-e.ctx.Done()
		listener.Close()
	}()

	for {
		if e.ctx.Err() != nil {
			e.manager.setState(StateStopped)
			return
		}

		e.manager.setState(StateConnecting)
		conn, err := listener.Accept()
		if err != nil {
			if e.ctx.Err() != nil {
				e.manager.setState(StateStopped)
				return
			}
			e.manager.logger.Printf("link: accept error: %v", err)
			continue
		}

		e.manager.setState(StateConnected)
		e.manager.runConnection(e.ctx, conn)

		if e.ctx.Err() != nil {
			e.manager.setState(StateStopped)
			return
		}
	}
}
