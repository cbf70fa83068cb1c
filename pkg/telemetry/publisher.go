// Package telemetry mirrors connection-state transitions to an external
// observer. It carries no command payloads and persists nothing in-flight;
// it exists purely so operators can watch link health, the way the
// teacher's fleet watches vehicle state over Redis pub/sub.
package telemetry

// Publisher is notified whenever a connection manager changes state.
type Publisher interface {
	// PublishState reports that the connection identified by role and
	// address just transitioned to state (the String form of a link.State,
	// e.g. "connected").
	PublishState(role, address, state string)
}

// Noop discards every state transition. It is the default Publisher.
type Noop struct{}

// PublishState implements Publisher.
func (Noop) PublishState(string, string, string) {}
