package reactor

import (
	"net"
	"strconv"
	"sync"
)

// Session is the server-side state bound to one client TCP connection: the
// connection itself, the stable remote ephemeral port that identifies it in
// the Registry, and whichever nickname (if any) has logged in on it.
//
// A Session implements depot.Destination so the Mailman can write to it and
// re-arm its reader without either package depending on the other's
// concrete types.
type Session struct {
	conn       net.Conn
	remotePort int
	bufSize    int
	resume     chan struct{}

	mu         sync.Mutex
	closed     bool
	loggedInAs string
	udpPort    int
}

func NewSession(conn net.Conn, bufSize int) *Session {
	port := 0
	if host, portStr, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		_ = host
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}
	return &Session{
		conn:       conn,
		remotePort: port,
		bufSize:    bufSize,
		resume:     make(chan struct{}, 1),
	}
}

// RemotePort returns the stable remote ephemeral port identifying this
// connection in OnlineUsers.
func (s *Session) RemotePort() int { return s.remotePort }

// RemoteAddr returns the connection's remote address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Write implements depot.Destination.
func (s *Session) Write(p []byte) (int, error) { return s.conn.Write(p) }

// Resume re-arms the reader goroutine blocked waiting for this session's
// outstanding task to finish.
func (s *Session) Resume() { s.wake() }

func (s *Session) wake() {
	select {
	case s.resume <- struct{}{}:
	default:
	}
}

// Close closes the underlying connection and wakes any reader goroutine
// blocked on Resume so it can observe the closed state and exit. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.conn.Close()
	s.wake()
	return err
}

// IsClosed reports whether Close has already run.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SetLoggedInAs records the nickname authenticated on this session.
func (s *Session) SetLoggedInAs(nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedInAs = nick
}

// LoggedInAs returns the nickname authenticated on this session, or "".
func (s *Session) LoggedInAs() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedInAs
}

// SetUDPInvitePort records the UDP port the client supplied at login, used
// to build its MatchBook address.
func (s *Session) SetUDPInvitePort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.udpPort = port
}

// UDPInvitePort returns the port recorded by SetUDPInvitePort.
func (s *Session) UDPInvitePort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpPort
}
