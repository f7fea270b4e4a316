package tasks

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/wordquizzle/wqserver/internal/depot"
	"github.com/wordquizzle/wqserver/internal/protocol"
	"github.com/wordquizzle/wqserver/internal/reactor"
	"github.com/wordquizzle/wqserver/internal/store"
	"github.com/wordquizzle/wqserver/internal/workpool"
)

func protocolLogin(nick, pwd string, udpPort int) protocol.Request {
	return protocol.Request{Kind: protocol.KindLogin, Nickname: nick, Password: pwd, UDPPort: udpPort}
}

func protocolAddFriend(friend string) protocol.Request {
	return protocol.Request{Kind: protocol.KindAddFriend, Friend: friend}
}

func protocolKindOnly(code int) protocol.Request {
	switch code {
	case 1:
		return protocol.Request{Kind: protocol.KindLogout}
	case 3:
		return protocol.Request{Kind: protocol.KindFriendList}
	case 4:
		return protocol.Request{Kind: protocol.KindScore}
	case 5:
		return protocol.Request{Kind: protocol.KindScoreboard}
	default:
		panic("unsupported kind-only code in test helper")
	}
}

// testHarness wires a Dispatcher to a real depot.Mailman and a real TCP
// loopback listener, so each session gets a distinct ephemeral remote port
// the way a live deployment would (net.Pipe's fake addresses all collapse
// to the same "port", which would corrupt the OnlineUsers bijection in
// these tests).
type testHarness struct {
	t        *testing.T
	st       *store.Store
	registry *reactor.Registry
	dispatch *Dispatcher
	pool     *workpool.Pool
	mailman  *depot.Mailman
	listener net.Listener
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "Database.json"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}

	queue := depot.NewQueue(16)
	mailman := depot.NewMailman(queue, nil)
	go mailman.Run()
	t.Cleanup(mailman.Stop)

	registry := reactor.NewRegistry()
	pool := workpool.New(2, 16)
	t.Cleanup(pool.Close)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	h := &testHarness{t: t, st: st, registry: registry, pool: pool, mailman: mailman, listener: ln}
	h.dispatch = NewDispatcher(Deps{
		Store:    st,
		Registry: registry,
		Depot:    queue,
		Pool:     pool,
		Matches:  noopMatchRunner{},
	})
	return h
}

type noopMatchRunner struct{}

func (noopMatchRunner) Run(sess *reactor.Session, challenger, friend string) {}

// newSession dials h's loopback listener and wraps the accepted server-side
// connection in a *reactor.Session; the dialed client side is returned for
// reading responses.
func (h *testHarness) newSession(t *testing.T) (*reactor.Session, net.Conn) {
	t.Helper()
	client, err := net.Dial("tcp", h.listener.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial() error = %v", err)
	}
	server, err := h.listener.Accept()
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	sess := reactor.NewSession(server, 512)
	t.Cleanup(func() {
		sess.Close()
		client.Close()
	})
	return sess, client
}

func readLine(t *testing.T, conn net.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString() error = %v", err)
	}
	return line
}

func TestLoginSuccessAndFailure(t *testing.T) {
	h := newHarness(t)
	if err := h.st.Register("alice", "secret"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	sess, client := h.newSession(t)
	h.dispatch.Dispatch(sess, protocolLogin("alice", "wrong", 40000))
	if got := readLine(t, client); got != "wrong password\n" {
		t.Errorf("wrong password response = %q", got)
	}

	h.dispatch.Dispatch(sess, protocolLogin("alice", "secret", 40000))
	if got := readLine(t, client); got != "Login successful.\n" {
		t.Errorf("login response = %q", got)
	}
	if sess.LoggedInAs() != "alice" {
		t.Errorf("LoggedInAs() = %q, want alice", sess.LoggedInAs())
	}
	if !h.registry.IsOnline("alice") {
		t.Error("IsOnline(alice) = false, want true after login")
	}

	sess2, client2 := h.newSession(t)
	h.dispatch.Dispatch(sess2, protocolLogin("alice", "secret", 40001))
	if got := readLine(t, client2); got != "already logged in\n" {
		t.Errorf("double-login response = %q", got)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	h := newHarness(t)
	sess, client := h.newSession(t)
	h.dispatch.Dispatch(sess, protocolLogin("ghost", "x", 1))
	want := "Login error: user ghost not found. Please register.\n"
	if got := readLine(t, client); got != want {
		t.Errorf("response = %q, want %q", got, want)
	}
}

func TestLogoutGracefulClosesConnection(t *testing.T) {
	h := newHarness(t)
	h.st.Register("alice", "a")

	sess, client := h.newSession(t)
	h.dispatch.Dispatch(sess, protocolLogin("alice", "a", 1))
	readLine(t, client)

	h.dispatch.Dispatch(sess, protocolKindOnly(1))
	if got := readLine(t, client); got != "Logout successful.\n" {
		t.Errorf("logout response = %q", got)
	}
	if h.registry.IsOnline("alice") {
		t.Error("IsOnline(alice) = true, want false after logout")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sess.IsClosed() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("session never closed after graceful logout")
}

func TestBrutalLogoutCleansUpWithoutReply(t *testing.T) {
	h := newHarness(t)
	h.st.Register("alice", "a")

	sess, client := h.newSession(t)
	h.dispatch.Dispatch(sess, protocolLogin("alice", "a", 1))
	readLine(t, client)

	h.dispatch.Disconnect(sess)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !h.registry.IsOnline("alice") && sess.IsClosed() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("brutal logout did not clean up registry and close session")
}

func TestAddFriendAndFriendList(t *testing.T) {
	h := newHarness(t)
	h.st.Register("alice", "a")
	h.st.Register("bob", "b")

	sess, client := h.newSession(t)
	h.dispatch.Dispatch(sess, protocolLogin("alice", "a", 1))
	readLine(t, client)

	h.dispatch.Dispatch(sess, protocolAddFriend("bob"))
	if got := readLine(t, client); got != "bob is now your friend.\n" {
		t.Errorf("add_friend response = %q", got)
	}

	h.dispatch.Dispatch(sess, protocolKindOnly(3))
	if got := readLine(t, client); got != "Your friends are: bob\n" {
		t.Errorf("friend_list response = %q", got)
	}

	h.dispatch.Dispatch(sess, protocolAddFriend("bob"))
	if got := readLine(t, client); got != "bob is already your friend.\n" {
		t.Errorf("duplicate add_friend response = %q", got)
	}
}

func TestFriendListEmpty(t *testing.T) {
	h := newHarness(t)
	h.st.Register("alice", "a")
	sess, client := h.newSession(t)
	h.dispatch.Dispatch(sess, protocolLogin("alice", "a", 1))
	readLine(t, client)

	h.dispatch.Dispatch(sess, protocolKindOnly(3))
	if got := readLine(t, client); got != "You currently have no friends, add some!\n" {
		t.Errorf("empty friend_list response = %q", got)
	}
}

func TestScoreAndScoreboard(t *testing.T) {
	h := newHarness(t)
	h.st.Register("alice", "a")
	h.st.Register("bob", "b")
	h.st.Register("carol", "c")
	h.st.AddFriend("alice", "bob")
	h.st.AddFriend("alice", "carol")
	h.st.AddScore("alice", 10)
	h.st.AddScore("bob", 3)
	h.st.AddScore("carol", 7)

	sess, client := h.newSession(t)
	h.dispatch.Dispatch(sess, protocolLogin("alice", "a", 1))
	readLine(t, client)

	h.dispatch.Dispatch(sess, protocolKindOnly(4))
	if got := readLine(t, client); got != "alice, your score is: 10\n" {
		t.Errorf("score response = %q", got)
	}

	h.dispatch.Dispatch(sess, protocolKindOnly(5))
	if got := readLine(t, client); got != "alice 10 carol 7 bob 3 \n" {
		t.Errorf("scoreboard response = %q", got)
	}
}
