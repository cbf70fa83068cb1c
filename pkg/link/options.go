package link

import (
	"time"

	"github.com/nevisneutrinos/cmdlink/pkg/protocol"
	"github.com/nevisneutrinos/cmdlink/pkg/telemetry"
)

// Timing constants from spec §5 Cancellation and timeouts. They are not
// exposed as Options fields because the spec pins their values; a future
// revision that wants them configurable should add fields rather than
// changing these.
const (
	connectTimeout    = 5 * time.Second
	reconnectInterval = 2 * time.Second
	heartbeatInterval = 1 * time.Second
	idleTimeout       = 1500 * time.Millisecond
	monitorReadSize   = 0xFFFF
)

// Options configures an Endpoint. The zero value is a usable default: a
// client, no heartbeat, no monitor mode, drain-based resync disabled (scan
// is the default), no automatic ack, a discard telemetry publisher, and a
// logger writing to stderr.
type Options struct {
	// IsServer selects the listening role (Server) over the connecting
	// role (Client).
	IsServer bool

	// Address is the bind address (server) or destination address
	// (client), e.g. "0.0.0.0:9000" or "10.0.0.5:9000".
	Address string

	// UseHeartbeat enables periodic heartbeat emission and, for the
	// client role, the read-idle timer that depends on the peer sending
	// them back.
	UseHeartbeat bool

	// ServerIdleTimeout opts a server into arming the read-idle timer
	// for its accepted peers too. The source only ever arms this timer
	// client-side (tcp_connection.cpp checks !is_server_); a server
	// must explicitly ask for the same behavior rather than get it by
	// default from UseHeartbeat alone.
	ServerIdleTimeout bool

	// MonitorLink switches the client to oversized speculative reads
	// instead of header-framed decoding (spec §4.5); only meaningful
	// for the client role.
	MonitorLink bool

	// AckOnReceive enables the client-role automatic acknowledgement
	// policy (spec §9 Open Question 2). Default false: no automatic
	// ack, matching the spec's stated default.
	AckOnReceive bool

	// ResyncMode selects the decoder resynchronization policy after a
	// framing error (spec §9 Open Question 1). Zero value is
	// protocol.ResyncScan.
	ResyncMode protocol.ResyncMode

	// MaxFrameSize bounds the decoder's accepted arg_count, and with it
	// the size of any single read the read loop allocates. Zero selects
	// protocol.DefaultMaxFrameSize.
	MaxFrameSize int

	// SendBufferSize is the TCP send-buffer size applied to client
	// connections (spec §6); zero selects transport.DefaultSendBufferSize.
	SendBufferSize int

	// Logger receives framing/transport diagnostics. Nil selects a
	// stderr-backed default.
	Logger Logger

	// StatusPublisher is notified of connection state transitions. Nil
	// selects telemetry.Noop.
	StatusPublisher telemetry.Publisher
}

func (o Options) logger() Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return newStdLogger()
}

func (o Options) publisher() telemetry.Publisher {
	if o.StatusPublisher != nil {
		return o.StatusPublisher
	}
	return telemetry.Noop{}
}

func (o Options) maxFrameSize() int {
	if o.MaxFrameSize > 0 {
		return o.MaxFrameSize
	}
	return protocol.DefaultMaxFrameSize
}
