package match

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/wordquizzle/wqserver/internal/protocol"
)

// participant is one of the two match TCP connections plus the nickname it
// belongs to and the running tally of answers collected during Play.
type participant struct {
	nickname string
	conn     net.Conn
	answers  []string // answers[i] is the reply to words[i], "" if unanswered
}

// awaitJoin accepts exactly two connections on ln and attributes them by
// comparing the connecting peer's IP against challengerAddr (the
// challenger's primary control connection): the first connection from that
// host is the challenger's, any other is the challenged player's — the
// match protocol itself carries no nickname on connect, only on the first
// frame.
func (e *Engine) awaitJoin(ln net.Listener, challenger, challenged string, challengerAddr net.Addr) (*participant, *participant, error) {
	var chal, chld *participant

	for i := 0; i < 2; i++ {
		if tl, ok := ln.(*net.TCPListener); ok {
			tl.SetDeadline(time.Now().Add(e.cfg.AcceptDuration))
		}
		conn, err := ln.Accept()
		if err != nil {
			if chal != nil {
				chal.conn.Close()
			}
			if chld != nil {
				chld.conn.Close()
			}
			return nil, nil, fmt.Errorf("match: await join: %w", err)
		}

		if isSameHost(conn.RemoteAddr(), challengerAddr) && chal == nil {
			chal = &participant{nickname: challenger, conn: conn}
			continue
		}
		chld = &participant{nickname: challenged, conn: conn}
	}

	if chal == nil || chld == nil {
		if chal != nil {
			chal.conn.Close()
		}
		if chld != nil {
			chld.conn.Close()
		}
		return nil, nil, fmt.Errorf("match: await join: could not attribute both connections")
	}
	return chal, chld, nil
}

// isSameHost compares the host portion of two net.Addr values, ignoring
// port: the match connection always originates from the same machine as the
// primary control connection or the recorded UDP invite address.
func isSameHost(a, b net.Addr) bool {
	ah, _, aerr := net.SplitHostPort(a.String())
	bh, _, berr := net.SplitHostPort(b.String())
	if aerr != nil || berr != nil {
		return false
	}
	return ah == bh
}

// frameEvent is one decoded match-channel frame plus which participant
// produced it and whether its connection died first.
type frameEvent struct {
	from  *participant
	frame protocol.MatchFrame
	err   error
}

// play runs the quiz itself: each participant gets a reader goroutine that
// decodes `<body>/<nick>` frames onto a shared channel, and the main select
// loop advances both players' word indices by the turn rules. START
// triggers the first word, each answer advances to the next word, and a
// crash or the deadline force-completes every remaining answer as blank.
func (e *Engine) play(chal, chld *participant, words []wordEntry, available bool) (outcome string, timedOut bool) {
	events := make(chan frameEvent, 4)
	stop := make(chan struct{})
	defer close(stop)

	readFrames(chal, events, stop)
	readFrames(chld, events, stop)

	if !available {
		return e.playUnavailable(chal, chld, events), false
	}

	n := len(words)
	idx := make(map[*participant]int, 2)
	idx[chal] = 0
	idx[chld] = 0
	chal.answers = make([]string, n)
	chld.answers = make([]string, n)

	deadline := time.NewTimer(e.cfg.MatchDuration)
	defer deadline.Stop()

	done := map[*participant]bool{}

	advance := func(p *participant) {
		i := idx[p]
		if i >= n {
			return
		}
		p.conn.Write(protocol.EncodeMatchFrame(protocol.MatchFrame{Body: words[i].Source, Nickname: p.nickname}))
	}

loop:
	for len(done) < 2 {
		select {
		case ev := <-events:
			if ev.err != nil {
				done[ev.from] = true
				forceFinish(ev.from, idx, n)
				continue
			}

			body := ev.frame.Body
			if strings.EqualFold(body, "START") {
				advance(ev.from)
				idx[ev.from] = 1
				continue
			}

			i := idx[ev.from]
			if i > 0 && i <= n {
				ev.from.answers[i-1] = body
			}
			if i < n {
				advance(ev.from)
				idx[ev.from] = i + 1
			} else {
				// The post-last answer: this player has now seen and
				// answered every word.
				done[ev.from] = true
			}

		case <-deadline.C:
			timedOut = true
			forceFinish(chal, idx, n)
			forceFinish(chld, idx, n)
			break loop
		}
	}

	outcome = "completed"
	if timedOut {
		outcome = "timeout"
	}
	return outcome, timedOut
}

// playUnavailable handles the translator-down path: each player's first
// frame is answered once with the unavailability notice and that player is
// marked terminated; the loop exits when both are. The match deadline still
// bounds the wait so a silent client cannot pin the worker forever.
func (e *Engine) playUnavailable(chal, chld *participant, events <-chan frameEvent) string {
	deadline := time.NewTimer(e.cfg.MatchDuration)
	defer deadline.Stop()

	done := map[*participant]bool{}
	for len(done) < 2 {
		select {
		case ev := <-events:
			if done[ev.from] {
				continue
			}
			if ev.err == nil {
				ev.from.conn.Write(protocol.EncodeMatchEnd("Sorry, the translation service is unavailable. Try later."))
			}
			done[ev.from] = true
		case <-deadline.C:
			return "unavailable"
		}
	}
	return "unavailable"
}

// forceFinish marks a participant's remaining words unanswered, used on
// crash detection and on match-deadline expiry. answers already default to
// "" (blank, scored 0), so there is nothing to fill in beyond the index.
func forceFinish(p *participant, idx map[*participant]int, n int) {
	idx[p] = n
}

// readFrames spawns the per-connection reader goroutine that decodes match
// frames and forwards them to events until the connection errors or stop
// is closed, mirroring the main reactor's one-reader-per-connection shape.
func readFrames(p *participant, events chan<- frameEvent, stop <-chan struct{}) {
	go func() {
		buf := make([]byte, 512)
		for {
			n, err := p.conn.Read(buf)
			if err != nil || n == 0 {
				select {
				case events <- frameEvent{from: p, err: fmt.Errorf("match: connection closed")}:
				case <-stop:
				}
				return
			}

			line, ok := protocol.SplitFrame(buf[:n])
			if !ok {
				continue
			}
			frame, err := protocol.DecodeMatchFrame(line)
			if err != nil {
				continue
			}

			select {
			case events <- frameEvent{from: p, frame: frame}:
			case <-stop:
				return
			}
		}
	}()
}

// score tallies both players' answers against the acceptable translation
// lists, applies the +3 winner bonus on a non-tie, persists both scores,
// and writes each player's composed result message to their match
// connection. The "Time out: " prefix appears iff the deadline ended Play.
func (e *Engine) score(challenger, friend string, chal, chld *participant, words []wordEntry, timedOut bool) {
	chalScore := tally(chal.answers, words)
	chldScore := tally(chld.answers, words)

	switch {
	case chalScore > chldScore:
		chalScore += 3
	case chldScore > chalScore:
		chldScore += 3
	}

	e.store.AddScore(challenger, chalScore)
	e.store.AddScore(friend, chldScore)

	prefix := ""
	if timedOut {
		prefix = "Time out: "
	}

	chal.conn.Write(protocol.EncodeMatchEnd(prefix + resultFor(friend, chalScore, chldScore)))
	chld.conn.Write(protocol.EncodeMatchEnd(prefix + resultFor(challenger, chldScore, chalScore)))
}

// tally counts one player's answers against the acceptable list for each
// word: +2 for an exact case-sensitive match against any acceptable
// candidate, -1 for an incorrect non-blank answer, 0 for a blank one.
func tally(answers []string, words []wordEntry) int {
	total := 0
	for i, w := range words {
		if i >= len(answers) {
			break
		}
		ans := answers[i]
		if ans == "" {
			continue
		}
		if contains(w.Acceptable, ans) {
			total += 2
		} else {
			total--
		}
	}
	return total
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// resultFor composes one player's result message: their score, their
// opponent's, and the verdict from their own point of view.
func resultFor(opponent string, mine, theirs int) string {
	base := fmt.Sprintf("You scored %d points, %s scored %d points. ", mine, opponent, theirs)
	switch {
	case mine > theirs:
		return base + "You won."
	case mine < theirs:
		return base + "You lost."
	default:
		return base + "You drew."
	}
}
