// Command cmdlinkctl is a smoke-test driver for the cmdlink library: it
// runs one side of a framed command link, either as the listening peer
// or the connecting one, and prints every frame it receives while
// emitting a counter frame of its own every second. It is not part of
// the library's public surface.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nevisneutrinos/cmdlink/pkg/link"
	"github.com/nevisneutrinos/cmdlink/pkg/telemetry"
)

var (
	mode         = flag.String("mode", "client", "role to run: client or server")
	addr         = flag.String("addr", "127.0.0.1:9000", "address to bind (server) or dial (client)")
	heartbeat    = flag.Bool("heartbeat", true, "send and expect periodic heartbeats")
	monitor      = flag.Bool("monitor", false, "client only: run in monitor-link mode")
	redisAddr    = flag.String("redis-addr", "", "optional Redis address for connection-state telemetry")
	redisPass    = flag.String("redis-pass", "", "Redis password")
	redisDB      = flag.Int("redis-db", 0, "Redis database number")
	ackOnReceive = flag.Bool("ack", false, "client only: send a byte-count ack for every received frame")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	opts := link.Options{
		Address:      *addr,
		UseHeartbeat: *heartbeat,
		MonitorLink:  *monitor,
		AckOnReceive: *ackOnReceive,
	}

	if *redisAddr != "" {
		pub, err := telemetry.NewRedisPublisher(*redisAddr, *redisPass, *redisDB, "cmdlink:state")
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer pub.Close()
		opts.StatusPublisher = pub
		log.Printf("Publishing connection state to %s", *redisAddr)
	}

	var (
		ep  *link.Endpoint
		err error
	)
	switch *mode {
	case "server":
		log.Printf("Binding %s as server", *addr)
		ep, err = link.NewServer(opts)
	case "client":
		log.Printf("Connecting to %s as client", *addr)
		ep, err = link.NewClient(opts)
	default:
		log.Fatalf("unknown -mode %q, expected client or server", *mode)
	}
	if err != nil {
		log.Fatalf("Failed to start %s: %v", *mode, err)
	}
	defer ep.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go recvLoop(ctx, ep)
	go sendCounterLoop(ctx, ep)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("Shutting down...")
}

func recvLoop(ctx context.Context, ep *link.Endpoint) {
	for {
		cmd, ok := ep.RecvOne(ctx)
		if !ok {
			return
		}
		log.Printf("received command %#04x args=%v", cmd.Code, cmd.Arguments)
	}
}

func sendCounterLoop(ctx context.Context, ep *link.Endpoint) {
	var n int32
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			ep.SendCommand(0x0001, n)
		}
	}
}
