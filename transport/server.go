package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"hostbridge/discovery"
	"hostbridge/messenger"
)

// Server accepts UI-side connections for one named bridge and serves every
// connection from a single handler registry: a handler registered once
// answers calls from all connected clients.
//
// Request pipeline:
//
//	Accept conn → Endpoint.recvLoop (single goroutine reads frames)
//	  → per message: go handleMessage → registry.Dispatch → reply frame
type Server struct {
	bridge        string
	registry      *messenger.HandlerRegistry
	listener      net.Listener
	inflight      sync.WaitGroup // In-flight dispatches across all connections
	shutdown      atomic.Bool    // Suppresses the Accept error caused by Shutdown's listener close
	reg           discovery.Registry
	advertiseAddr string // Address registered for discovery — a routable address, unlike a ":0" listen address

	mu        sync.Mutex
	endpoints map[*Endpoint]struct{}
}

// NewServer creates a server for the named bridge.
func NewServer(bridge string) *Server {
	return &Server{
		bridge:    bridge,
		registry:  messenger.NewHandlerRegistry(),
		endpoints: make(map[*Endpoint]struct{}),
	}
}

// SetMessageHandler registers a channel handler shared by all connections.
// Channels are usually wired through channel.MethodChannel, with the server
// as the messenger for its host side.
func (s *Server) SetMessageHandler(channel string, handler messenger.BinaryHandler) {
	s.registry.Set(channel, handler)
}

// Send is not supported on the listening side: a server has no single peer
// to address. Host-initiated calls go through the per-connection Endpoint
// (see OnConnect-style wiring in the accept loop's caller via Endpoints).
func (s *Server) Send(channel string, message []byte, onReply messenger.BinaryReply) {
	if onReply != nil {
		onReply(nil)
	}
}

var _ messenger.BinaryMessenger = (*Server)(nil)

// Endpoints snapshots the currently connected endpoints, for host-initiated
// calls toward specific clients.
func (s *Server) Endpoints() []*Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Endpoint, 0, len(s.endpoints))
	for ep := range s.endpoints {
		out = append(out, ep)
	}
	return out
}

// Serve listens on address and enters the accept loop. When reg is non-nil
// the bridge is registered for discovery under advertiseAddr with a 10s
// lease, renewed automatically, so crashed hosts disappear on their own.
// Serve blocks until the listener fails or Shutdown is called.
func (s *Server) Serve(network, address, advertiseAddr string, reg discovery.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listener = listener

	s.advertiseAddr = advertiseAddr
	if reg != nil {
		s.reg = reg
		if err := reg.Register(s.bridge, discovery.Instance{Addr: advertiseAddr}, 10); err != nil {
			listener.Close()
			return fmt.Errorf("register bridge %s: %w", s.bridge, err)
		}
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Shutdown closes the listener, which surfaces here as an
			// error; the flag tells an intentional close from a real one.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		ep := newEndpoint(conn, s.registry, &s.inflight, s.untrack)
		s.track(ep)
		ep.start()
	}
}

func (s *Server) track(ep *Endpoint) {
	s.mu.Lock()
	s.endpoints[ep] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(ep *Endpoint) {
	s.mu.Lock()
	delete(s.endpoints, ep)
	s.mu.Unlock()
}

// Shutdown stops the server gracefully:
//  1. deregister from discovery, so clients stop dialing this host;
//  2. set the shutdown flag, then close the listener;
//  3. wait (bounded by timeout) for in-flight dispatches to finish;
//  4. close every live connection, which fails the clients' outstanding
//     calls with the channel-gone signal rather than leaving them hanging.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.reg != nil {
		s.reg.Deregister(s.bridge, s.advertiseAddr)
	}

	// Flag before close: otherwise the Accept error races the flag and
	// Serve returns a spurious error.
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-time.After(timeout):
		waitErr = fmt.Errorf("timeout waiting for in-flight calls to finish")
	}

	// Snapshot first: Close triggers the endpoint's onClose, which is
	// untrack, and untrack takes s.mu too.
	s.mu.Lock()
	live := make([]*Endpoint, 0, len(s.endpoints))
	for ep := range s.endpoints {
		live = append(live, ep)
	}
	s.endpoints = make(map[*Endpoint]struct{})
	s.mu.Unlock()
	for _, ep := range live {
		ep.Close()
	}

	return waitErr
}

// DialBridge discovers the registered hosts for a bridge and dials one,
// chosen by the picker (round-robin when nil).
func DialBridge(reg discovery.Registry, picker discovery.Picker, bridge string) (*Endpoint, error) {
	instances, err := reg.Discover(bridge)
	if err != nil {
		return nil, err
	}
	if picker == nil {
		picker = &discovery.RoundRobin{}
	}
	instance, err := picker.Pick(instances)
	if err != nil {
		return nil, fmt.Errorf("pick host for bridge %s: %w", bridge, err)
	}
	return Dial(instance.Addr)
}
