// Package tasks implements the per-command request handlers: login, logout,
// add_friend, friend_list, score, scoreboard, and match. Each one reads and
// mutates the shared store.Store and reactor.Registry and either enqueues a
// depot.Mail or, for logout's brutal path, closes the connection directly.
package tasks

import (
	"fmt"
	"log/slog"
	"net"
	"sort"

	"github.com/wordquizzle/wqserver/internal/depot"
	"github.com/wordquizzle/wqserver/internal/metrics"
	"github.com/wordquizzle/wqserver/internal/protocol"
	"github.com/wordquizzle/wqserver/internal/reactor"
	"github.com/wordquizzle/wqserver/internal/store"
	"github.com/wordquizzle/wqserver/internal/workpool"
)

// MatchRunner runs the full match state machine for one challenge. It is
// implemented by internal/match.Engine; Dispatcher depends on the interface
// so this package never imports the match engine's machinery. Run blocks
// for the lifetime of the invitation and (if accepted) the match, occupying
// its worker for that whole window.
type MatchRunner interface {
	Run(sess *reactor.Session, challenger, friend string)
}

// Deps bundles everything a Dispatcher needs to execute tasks.
type Deps struct {
	Store     *store.Store
	Registry  *reactor.Registry
	Depot     *depot.Queue
	Pool      *workpool.Pool
	Matches   MatchRunner
	Logger    *slog.Logger
	Collector metrics.Collector
}

// Dispatcher implements reactor.Dispatcher, submitting each decoded request
// to the worker pool and executing it there.
type Dispatcher struct {
	deps Deps
}

// NewDispatcher creates a Dispatcher bound to deps.
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Collector == nil {
		deps.Collector = &metrics.NoopCollector{}
	}
	return &Dispatcher{deps: deps}
}

// Dispatch submits req for execution on the worker pool. It blocks the
// calling reader goroutine only while the pool's job queue is full.
func (d *Dispatcher) Dispatch(sess *reactor.Session, req protocol.Request) {
	d.deps.Pool.Submit(func() {
		d.deps.Collector.CommandProcessed(req.Kind.String())
		d.execute(sess, req)
	})
}

// Disconnect submits a brutal-logout for sess: peer-closed detection on the
// reactor side, cleaned up on the worker pool like any other task.
func (d *Dispatcher) Disconnect(sess *reactor.Session) {
	d.deps.Pool.Submit(func() {
		d.brutalLogout(sess)
	})
}

func (d *Dispatcher) execute(sess *reactor.Session, req protocol.Request) {
	switch req.Kind {
	case protocol.KindLogin:
		d.login(sess, req)
	case protocol.KindLogout:
		d.logout(sess)
	case protocol.KindAddFriend:
		d.addFriend(sess, req)
	case protocol.KindFriendList:
		d.friendList(sess)
	case protocol.KindScore:
		d.score(sess)
	case protocol.KindScoreboard:
		d.scoreboard(sess)
	case protocol.KindMatch:
		d.match(sess, req)
	default:
		d.reply(sess, fmt.Sprintf("Unknown command kind %v", req.Kind), false)
	}
}

// reply enqueues a single-line response to sess, closing the connection
// afterward iff closeAfter (used by the graceful logout payload).
func (d *Dispatcher) reply(sess *reactor.Session, message string, closeAfter bool) {
	d.deps.Depot.Enqueue(&depot.Mail{
		Dest:       sess,
		Payload:    protocol.EncodeResponse(message),
		CloseAfter: closeAfter,
	})
}

func (d *Dispatcher) login(sess *reactor.Session, req protocol.Request) {
	if _, ok := d.deps.Store.Get(req.Nickname); !ok {
		d.deps.Collector.LoginAttempt(false)
		d.reply(sess, fmt.Sprintf("Login error: user %s not found. Please register.", req.Nickname), false)
		return
	}
	if !d.deps.Store.CheckPassword(req.Nickname, req.Password) {
		d.deps.Collector.LoginAttempt(false)
		d.reply(sess, "wrong password", false)
		return
	}

	udpAddr := &net.UDPAddr{IP: remoteIP(sess), Port: req.UDPPort}

	err := d.deps.Registry.Login(sess.RemotePort(), req.Nickname, udpAddr, sess)
	switch err {
	case reactor.ErrAlreadyLoggedIn:
		d.deps.Collector.LoginAttempt(false)
		d.reply(sess, "already logged in", false)
		return
	case reactor.ErrConnectionAlreadyBound:
		d.deps.Collector.LoginAttempt(false)
		d.reply(sess, "already logged with another account", false)
		return
	}

	sess.SetLoggedInAs(req.Nickname)
	sess.SetUDPInvitePort(req.UDPPort)
	d.deps.Collector.LoginAttempt(true)
	d.deps.Logger.Info("login succeeded", "nickname", req.Nickname)
	d.reply(sess, "Login successful.", false)
}

func (d *Dispatcher) logout(sess *reactor.Session) {
	d.deps.Registry.Logout(sess.RemotePort())
	sess.SetLoggedInAs("")
	d.reply(sess, "Logout successful.", true)
}

// brutalLogout is the crash-detection path: no response is sent, the
// connection is closed directly, and the Mailman is never involved.
func (d *Dispatcher) brutalLogout(sess *reactor.Session) {
	nick, ok := d.deps.Registry.Logout(sess.RemotePort())
	if ok {
		d.deps.Logger.Info("brutal logout", "nickname", nick)
	}
	sess.Close()
}

func (d *Dispatcher) addFriend(sess *reactor.Session, req protocol.Request) {
	me := sess.LoggedInAs()
	if _, ok := d.deps.Store.Get(req.Friend); !ok {
		d.reply(sess, fmt.Sprintf("%s is not a registered user.", req.Friend), false)
		return
	}

	err := d.deps.Store.AddFriend(me, req.Friend)
	switch err {
	case store.ErrSelfFriend:
		d.reply(sess, "You cannot add yourself as a friend.", false)
		return
	case store.ErrAlreadyFriends:
		d.reply(sess, fmt.Sprintf("%s is already your friend.", req.Friend), false)
		return
	case nil:
		d.reply(sess, fmt.Sprintf("%s is now your friend.", req.Friend), false)
		return
	default:
		d.reply(sess, fmt.Sprintf("Could not add %s as a friend.", req.Friend), false)
	}
}

func (d *Dispatcher) friendList(sess *reactor.Session) {
	friends := d.deps.Store.Friends(sess.LoggedInAs())
	if len(friends) == 0 {
		d.reply(sess, "You currently have no friends, add some!", false)
		return
	}

	msg := "Your friends are:"
	for _, f := range friends {
		msg += " " + f
	}
	d.reply(sess, msg, false)
}

func (d *Dispatcher) score(sess *reactor.Session) {
	nick := sess.LoggedInAs()
	u, _ := d.deps.Store.Get(nick)
	d.reply(sess, fmt.Sprintf("%s, your score is: %d", nick, u.Score), false)
}

func (d *Dispatcher) scoreboard(sess *reactor.Session) {
	nick := sess.LoggedInAs()
	u, ok := d.deps.Store.Get(nick)
	if !ok {
		d.reply(sess, "", false)
		return
	}

	type entry struct {
		nick  string
		score int
		order int
	}
	entries := []entry{{nick: nick, score: u.Score, order: 0}}
	for i, f := range d.deps.Store.Friends(nick) {
		fu, ok := d.deps.Store.Get(f)
		if !ok {
			continue
		}
		entries = append(entries, entry{nick: f, score: fu.Score, order: i + 1})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	msg := ""
	for _, e := range entries {
		msg += fmt.Sprintf("%s %d ", e.nick, e.score)
	}
	d.reply(sess, msg, false)
}

func (d *Dispatcher) match(sess *reactor.Session, req protocol.Request) {
	d.deps.Matches.Run(sess, sess.LoggedInAs(), req.Friend)
}

// remoteIP extracts the IP address sess's connection is reachable at, used
// to build its MatchBook UDP invitation address.
func remoteIP(sess *reactor.Session) net.IP {
	if tcpAddr, ok := sess.RemoteAddr().(*net.TCPAddr); ok {
		return tcpAddr.IP
	}
	host, _, err := net.SplitHostPort(sess.RemoteAddr().String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}
