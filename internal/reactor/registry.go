package reactor

import (
	"errors"
	"net"
	"sync"
)

// ErrAlreadyLoggedIn is returned by Login when the nickname is already
// mapped in the registry.
var ErrAlreadyLoggedIn = errors.New("reactor: nickname already logged in")

// ErrConnectionAlreadyBound is returned by Login when the connection's port
// is already mapped to a nickname.
var ErrConnectionAlreadyBound = errors.New("reactor: connection already logged in with another account")

// Registry is the combined OnlineUsers/MatchBook table: a bijection between
// remote ephemeral ports and nicknames, plus each online nickname's UDP
// invitation address and owning Session. Login and Logout update both
// halves atomically so external observers never see a nickname present in
// one without the other.
type Registry struct {
	mu        sync.Mutex
	online    map[int]string          // remote port -> nickname
	matchBook map[string]*net.UDPAddr // nickname -> udp invite address
	sessions  map[string]*Session     // nickname -> owning session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		online:    make(map[int]string),
		matchBook: make(map[string]*net.UDPAddr),
		sessions:  make(map[string]*Session),
	}
}

// Login binds port to nick with the given UDP invitation address and
// session, iff neither is already bound.
func (r *Registry) Login(port int, nick string, udpAddr *net.UDPAddr, sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.online[port]; ok {
		return ErrConnectionAlreadyBound
	}
	if _, ok := r.matchBook[nick]; ok {
		return ErrAlreadyLoggedIn
	}

	r.online[port] = nick
	r.matchBook[nick] = udpAddr
	r.sessions[nick] = sess
	return nil
}

// Logout removes port's binding, returning the nickname it was bound to.
// Idempotent: ok is false if port had no binding.
func (r *Registry) Logout(port int) (nick string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nick, ok = r.online[port]
	if !ok {
		return "", false
	}
	delete(r.online, port)
	delete(r.matchBook, nick)
	delete(r.sessions, nick)
	return nick, true
}

// IsOnline reports whether nick is currently logged in.
func (r *Registry) IsOnline(nick string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.matchBook[nick]
	return ok
}

// MatchAddr returns the UDP invitation address recorded for nick.
func (r *Registry) MatchAddr(nick string) (*net.UDPAddr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.matchBook[nick]
	return addr, ok
}

// SessionFor returns the owning Session for an online nickname.
func (r *Registry) SessionFor(nick string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[nick]
	return sess, ok
}

// NicknameForPort returns the nickname currently bound to port, if any.
func (r *Registry) NicknameForPort(port int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nick, ok := r.online[port]
	return nick, ok
}
