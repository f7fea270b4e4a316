package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/wordquizzle/wqserver/internal/config"
	"github.com/wordquizzle/wqserver/internal/registration"
	"github.com/wordquizzle/wqserver/internal/registration/registrationpb"
)

// startServer wires and runs a full server on ephemeral ports with a
// three-word dictionary, returning it once its sockets are bound.
func startServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	dictPath := filepath.Join(dir, "dictionary.txt")
	if err := os.WriteFile(dictPath, []byte("casa\ncane\ngatto\n"), 0o644); err != nil {
		t.Fatalf("write dictionary: %v", err)
	}

	cfg := config.Default()
	cfg.TCPPort = 0
	cfg.UDPPort = 0
	cfg.MatchMinutes = 1
	cfg.InvitationSeconds = 1
	cfg.WordsPerMatch = 3
	cfg.WorkerThreads = 4
	cfg.DatabasePath = filepath.Join(dir, "Database.json")
	cfg.DictionaryPath = dictPath
	cfg.Registration.Address = "127.0.0.1:0"

	srv, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Run(ctx)

	return srv
}

// client is one test-side TCP control connection.
type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialControl(t *testing.T, srv *Server) *client {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", srv.TCPPort()))
	if err != nil {
		t.Fatalf("dial control port: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(t *testing.T, line string) string {
	t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := c.r.ReadString('\n')
	if err != nil {
		t.Fatalf("read response to %q: %v", line, err)
	}
	return resp
}

func registerUser(t *testing.T, srv *Server, nick, pwd string) string {
	t.Helper()
	conn, err := grpc.NewClient(srv.RegistrationAddr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := registrationpb.NewRegistrationClient(conn).Register(ctx, &registrationpb.RegisterRequest{
		Username: nick,
		Password: pwd,
	})
	if err != nil {
		t.Fatalf("Register(%s) RPC error = %v", nick, err)
	}
	return reply.GetMessage()
}

func TestRegisterLoginLogout(t *testing.T) {
	srv := startServer(t)

	if got := registerUser(t, srv, "alice", "a"); got != registration.ReplySucceeded {
		t.Fatalf("first register = %q, want %q", got, registration.ReplySucceeded)
	}
	if got := registerUser(t, srv, "alice", "b"); got != registration.ReplyNicknameTaken {
		t.Fatalf("second register = %q, want %q", got, registration.ReplyNicknameTaken)
	}

	c := dialControl(t, srv)
	if got := c.send(t, "0 alice a 40000"); got != "Login successful.\n" {
		t.Fatalf("login = %q", got)
	}
	if got := c.send(t, "1"); got != "Logout successful.\n" {
		t.Fatalf("logout = %q", got)
	}

	// The server closes the connection after the logout response; further
	// reads on this endpoint must fail.
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.r.ReadByte(); err == nil {
		t.Error("connection still readable after logout")
	}
}

func TestFriendshipSymmetry(t *testing.T) {
	srv := startServer(t)
	registerUser(t, srv, "alice", "a")
	registerUser(t, srv, "bob", "b")

	alice := dialControl(t, srv)
	bob := dialControl(t, srv)
	alice.send(t, "0 alice a 40000")
	bob.send(t, "0 bob b 40001")

	if got := alice.send(t, "2 bob"); got != "bob is now your friend.\n" {
		t.Fatalf("add_friend = %q", got)
	}
	if got := bob.send(t, "3"); got != "Your friends are: alice\n" {
		t.Fatalf("bob's friend_list = %q", got)
	}
}

func TestScoreboardOrder(t *testing.T) {
	srv := startServer(t)
	st := srv.Store()
	for _, u := range []struct {
		nick  string
		score int
	}{{"alice", 10}, {"bob", 3}, {"carol", 7}} {
		if err := st.Register(u.nick, "x"); err != nil {
			t.Fatalf("Register(%s) error = %v", u.nick, err)
		}
		if err := st.AddScore(u.nick, u.score); err != nil {
			t.Fatalf("AddScore(%s) error = %v", u.nick, err)
		}
	}
	st.AddFriend("alice", "bob")
	st.AddFriend("alice", "carol")

	alice := dialControl(t, srv)
	alice.send(t, "0 alice x 40000")

	if got := alice.send(t, "5"); got != "alice 10 carol 7 bob 3 \n" {
		t.Fatalf("scoreboard = %q", got)
	}
}

func TestUDPDiscovery(t *testing.T) {
	srv := startServer(t)

	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", srv.UDPPort()))
	if err != nil {
		t.Fatalf("dial discovery port: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(nil); err != nil {
		t.Fatalf("send discovery datagram: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read discovery reply: %v", err)
	}
	if got := string(buf[:n]); got != strconv.Itoa(srv.TCPPort()) {
		t.Errorf("discovery reply = %q, want %q", got, strconv.Itoa(srv.TCPPort()))
	}
}

func TestInvitationTimeout(t *testing.T) {
	srv := startServer(t)
	registerUser(t, srv, "alice", "a")
	registerUser(t, srv, "bob", "b")
	srv.Store().AddFriend("alice", "bob")

	// Bob logs in with a real UDP invite socket but never answers it.
	bobInvite, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen bob invite socket: %v", err)
	}
	defer bobInvite.Close()
	bobPort := bobInvite.LocalAddr().(*net.UDPAddr).Port

	alice := dialControl(t, srv)
	bob := dialControl(t, srv)
	alice.send(t, "0 alice a 40000")
	bob.send(t, fmt.Sprintf("0 bob b %d", bobPort))

	if got := alice.send(t, "6 bob"); got != "Match error: invitation to bob timed out.\n" {
		t.Fatalf("match timeout = %q", got)
	}

	// Bob's client first sees the invitation itself, then the purge notice.
	bobInvite.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := bobInvite.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read invitation: %v", err)
	}
	if got := string(buf[:n]); !strings.HasPrefix(got, "alice/") {
		t.Errorf("invitation = %q, want alice/<port>", got)
	}
	n, _, err = bobInvite.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read timeout notice: %v", err)
	}
	if got := string(buf[:n]); got != "TIMEOUT/alice" {
		t.Errorf("timeout notice = %q, want TIMEOUT/alice", got)
	}
}
