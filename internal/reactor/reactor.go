// Package reactor implements the single-threaded-in-spirit event
// demultiplexer described by the design: one accept loop per listener and
// one lightweight reader goroutine per connection, each of which hands
// decoded frames to a Dispatcher and then blocks until its outstanding task
// re-arms it. Go's scheduler stands in for the original select(2) loop; the
// per-connection serialization the design requires is preserved by the
// reader goroutine never issuing a second Read until told to resume.
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/wordquizzle/wqserver/internal/logging"
	"github.com/wordquizzle/wqserver/internal/metrics"
	"github.com/wordquizzle/wqserver/internal/protocol"
)

// Dispatcher receives decoded frames and disconnect notifications from the
// Reactor. Implementations are expected to hand the work off to a worker
// pool rather than run it inline, so as to never block the reader goroutine
// that called them for longer than it takes to enqueue a job.
type Dispatcher interface {
	// Dispatch handles one decoded control-protocol request. It MUST
	// eventually call sess.Resume() (directly, or indirectly via the
	// Mailman) so the reader goroutine can proceed.
	Dispatch(sess *Session, req protocol.Request)

	// Disconnect handles a detected peer crash or graceful close. It is
	// called instead of Dispatch and does not need to call Resume.
	Disconnect(sess *Session)
}

// Config configures a Reactor.
type Config struct {
	TCPAddr        string
	UDPAddr        string
	ReadBufferSize int

	// MaxConnections caps concurrent client sessions; 0 means unlimited.
	MaxConnections int
}

// Reactor owns the TCP listener and the UDP discovery endpoint, and serves
// each live client connection on its own reader goroutine.
type Reactor struct {
	cfg        Config
	dispatcher Dispatcher
	logger     *slog.Logger
	collector  metrics.Collector
	gate       *ConnGate

	tcpListener net.Listener
	tcpPort     int
	udpConn     *net.UDPConn
	udpPort     int
}

// New creates a Reactor. Listen must be called to bind its sockets.
func New(cfg Config, dispatcher Dispatcher, logger *slog.Logger, collector metrics.Collector) *Reactor {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	gate := (*ConnGate)(nil)
	if cfg.MaxConnections > 0 {
		gate = NewConnGate(cfg.MaxConnections)
	}
	return &Reactor{cfg: cfg, dispatcher: dispatcher, logger: logger, collector: collector, gate: gate}
}

// Listen binds the TCP and UDP sockets. Call before Run.
func (rc *Reactor) Listen() error {
	ln, err := net.Listen("tcp", rc.cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("reactor: listen tcp %s: %w", rc.cfg.TCPAddr, err)
	}
	rc.tcpListener = ln

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		return fmt.Errorf("reactor: parse tcp listen addr: %w", err)
	}
	fmt.Sscanf(portStr, "%d", &rc.tcpPort)

	udpAddr, err := net.ResolveUDPAddr("udp", rc.cfg.UDPAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("reactor: resolve udp %s: %w", rc.cfg.UDPAddr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("reactor: listen udp %s: %w", rc.cfg.UDPAddr, err)
	}
	rc.udpConn = udpConn
	rc.udpPort = udpConn.LocalAddr().(*net.UDPAddr).Port

	return nil
}

// TCPPort returns the bound TCP port (useful when Config.TCPAddr used port 0).
func (rc *Reactor) TCPPort() int { return rc.tcpPort }

// UDPPort returns the bound UDP discovery port.
func (rc *Reactor) UDPPort() int { return rc.udpPort }

// Run starts the accept loop and the UDP discovery responder. It blocks
// until ctx is cancelled, then closes both listeners.
func (rc *Reactor) Run(ctx context.Context) error {
	go rc.discoveryLoop(ctx)
	go rc.acceptLoop(ctx)

	<-ctx.Done()
	rc.tcpListener.Close()
	rc.udpConn.Close()
	return ctx.Err()
}

func (rc *Reactor) acceptLoop(ctx context.Context) {
	for {
		conn, err := rc.tcpListener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			rc.logger.Error("reactor: accept error", "error", err)
			continue
		}

		if rc.gate != nil && !rc.gate.TryEnter() {
			rc.logger.Warn("reactor: connection limit reached, shedding", "remote_addr", conn.RemoteAddr().String())
			conn.Close()
			continue
		}

		sess := NewSession(conn, rc.cfg.ReadBufferSize)
		rc.collector.ConnectionOpened()
		go rc.handleConn(ctx, sess)
	}
}

func (rc *Reactor) handleConn(ctx context.Context, sess *Session) {
	defer func() {
		sess.Close()
		if rc.gate != nil {
			rc.gate.Leave()
		}
		rc.collector.ConnectionClosed()
	}()

	ctx = logging.WithLogger(ctx, rc.logger.With("remote_addr", sess.RemoteAddr().String()))
	buf := make([]byte, rc.cfg.ReadBufferSize)

	for {
		n, err := sess.conn.Read(buf)
		if err != nil || n == 0 {
			rc.dispatcher.Disconnect(sess)
			return
		}

		frame, ok := protocol.SplitFrame(buf[:n])
		if !ok {
			continue
		}

		req, err := protocol.Decode(frame)
		if err != nil {
			logging.FromContext(ctx).Debug("reactor: malformed frame", "error", err)
			continue
		}

		rc.dispatcher.Dispatch(sess, req)

		<-sess.resume
		if sess.IsClosed() {
			return
		}
	}
}

func (rc *Reactor) discoveryLoop(ctx context.Context) {
	buf := make([]byte, 64)
	for {
		_, addr, err := rc.udpConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		rc.udpConn.WriteToUDP(protocol.EncodeDiscoveryReply(rc.tcpPort), addr)
	}
}
