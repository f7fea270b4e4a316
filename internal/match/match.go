// Package match implements the match-session state machine: invitation
// over UDP, a subordinate TCP acceptor for the two players, the per-turn
// play loop, deadline-bounded scoring, and restoring the challenger's
// primary connection to read-ready. It reuses the main reactor's shape —
// a reader goroutine per connection handing decoded frames to one select
// loop — scaled down to a two-participant session.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/wordquizzle/wqserver/internal/depot"
	"github.com/wordquizzle/wqserver/internal/metrics"
	"github.com/wordquizzle/wqserver/internal/protocol"
	"github.com/wordquizzle/wqserver/internal/reactor"
	"github.com/wordquizzle/wqserver/internal/store"
)

// Translator fetches acceptable translations for a set of source words.
// internal/translator.Client implements it.
type Translator interface {
	Fetch(ctx context.Context, words []string) (map[string][]string, error)
}

// WordSource picks n distinct source words for one match.
// internal/dictionary.List implements it.
type WordSource interface {
	PickWords(n int) ([]string, error)
}

// Config holds the match session's timing and size parameters, sourced
// from the server's mandatory CLI arguments.
type Config struct {
	AcceptDuration time.Duration
	MatchDuration  time.Duration
	WordsPerMatch  int
}

// Engine runs the MatchTask state machine. One Engine is shared by every
// match; Run is safe to call concurrently for independent challenges.
type Engine struct {
	cfg        Config
	registry   *reactor.Registry
	store      *store.Store
	depotQueue *depot.Queue
	words      WordSource
	translator Translator
	logger     *slog.Logger
	collector  metrics.Collector
}

// NewEngine creates an Engine. logger and collector may be nil.
func NewEngine(cfg Config, registry *reactor.Registry, st *store.Store, depotQueue *depot.Queue, words WordSource, translator Translator, logger *slog.Logger, collector metrics.Collector) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	return &Engine{
		cfg:        cfg,
		registry:   registry,
		store:      st,
		depotQueue: depotQueue,
		words:      words,
		translator: translator,
		logger:     logger,
		collector:  collector,
	}
}

// wordEntry is one picked source word plus its acceptable translations.
type wordEntry struct {
	Source     string
	Acceptable []string
}

// Run executes the full state machine for one challenge: challenger (the
// logged-in nickname on sess) against friend. It blocks for the lifetime
// of the invitation and, if accepted, the match itself, occupying the
// worker pool slot that dispatched it for the whole window.
func (e *Engine) Run(sess *reactor.Session, challenger, friend string) {
	// Pre-check.
	if friend == challenger {
		e.replyToChallenger(sess, "Match error: you cannot challenge yourself.")
		return
	}
	if !e.store.AreFriends(challenger, friend) {
		e.replyToChallenger(sess, fmt.Sprintf("Match error: %s is not your friend.", friend))
		return
	}
	if !e.registry.IsOnline(friend) {
		e.replyToChallenger(sess, fmt.Sprintf("Match error: %s is not online.", friend))
		return
	}

	challengedAddr, ok := e.registry.MatchAddr(friend)
	if !ok {
		e.replyToChallenger(sess, fmt.Sprintf("Match error: %s is not online.", friend))
		return
	}

	// Invite.
	matchListener, err := net.Listen("tcp", ":0")
	if err != nil {
		e.logger.Error("match: listen failed", "error", err)
		e.replyToChallenger(sess, fmt.Sprintf("Match error: could not start a match with %s.", friend))
		return
	}
	tcpPort := matchListener.Addr().(*net.TCPAddr).Port

	invConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		matchListener.Close()
		e.logger.Error("match: udp invite socket failed", "error", err)
		e.replyToChallenger(sess, fmt.Sprintf("Match error: could not start a match with %s.", friend))
		return
	}
	defer invConn.Close()

	if _, err := invConn.WriteToUDP(protocol.EncodeInvite(challenger, tcpPort), challengedAddr); err != nil {
		matchListener.Close()
		e.logger.Warn("match: invite send failed", "error", err)
		e.replyToChallenger(sess, fmt.Sprintf("Match error: could not reach %s.", friend))
		return
	}

	invConn.SetReadDeadline(time.Now().Add(e.cfg.AcceptDuration))
	buf := make([]byte, 8)
	n, _, err := invConn.ReadFromUDP(buf)
	if err != nil {
		matchListener.Close()
		// TimedOut: tell the challenged client to purge its pending entry,
		// then inform the challenger.
		invConn.WriteToUDP(protocol.EncodeInviteTimeout(challenger), challengedAddr)
		e.replyToChallenger(sess, fmt.Sprintf("Match error: invitation to %s timed out.", friend))
		return
	}
	response := string(buf[:n])

	if protocol.IsInviteRefused(response) {
		matchListener.Close()
		e.replyToChallenger(sess, fmt.Sprintf("%s refused your match invitation.", friend))
		return
	}
	if !protocol.IsInviteAccepted(response) {
		matchListener.Close()
		e.replyToChallenger(sess, fmt.Sprintf("Match error: %s sent an unexpected invitation response.", friend))
		return
	}

	// The acceptance notice is a direct write to the challenger's primary
	// connection: it must NOT resume reading, since the connection stays
	// read-disabled until the match is over.
	acceptNotice := fmt.Sprintf("%s accepted your match invitation./%d", friend, tcpPort)
	writeAll(sess, protocol.EncodeResponse(acceptNotice))

	chal, chld, err := e.awaitJoin(matchListener, challenger, friend, sess.RemoteAddr())
	matchListener.Close()
	if err != nil {
		e.logger.Error("match: await join failed", "error", err)
		sess.Resume()
		return
	}
	defer chal.conn.Close()
	defer chld.conn.Close()

	e.collector.MatchStarted()

	words, available := e.fetchWords()

	outcome, timedOut := e.play(chal, chld, words, available)

	if available {
		e.score(challenger, friend, chal, chld, words, timedOut)
	}
	e.collector.MatchFinished(outcome)

	// Done: restore the challenger's primary connection to read-ready.
	sess.Resume()
}

// replyToChallenger routes a terminal Pre-check/Invite-failure message
// through the depot so the challenger's connection resumes reading
// normally, exactly like any other command response.
func (e *Engine) replyToChallenger(sess *reactor.Session, message string) {
	e.depotQueue.Enqueue(&depot.Mail{
		Dest:    sess,
		Payload: protocol.EncodeResponse(message),
	})
}

// writeAll retries until every byte of p is written or an error occurs,
// the same blocking-drain behaviour the Mailman uses (internal/depot).
func writeAll(dest interface{ Write([]byte) (int, error) }, p []byte) error {
	for len(p) > 0 {
		n, err := dest.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (e *Engine) fetchWords() ([]wordEntry, bool) {
	sourceWords, err := e.words.PickWords(e.cfg.WordsPerMatch)
	if err != nil {
		e.logger.Warn("match: word pick failed", "error", err)
		return nil, false
	}

	start := time.Now()
	translations, err := e.translator.Fetch(context.Background(), sourceWords)
	e.collector.TranslatorRequest(err == nil, time.Since(start).Seconds())
	if err != nil {
		e.logger.Warn("match: translator unavailable", "error", err)
		return nil, false
	}

	words := make([]wordEntry, 0, len(sourceWords))
	for _, w := range sourceWords {
		words = append(words, wordEntry{Source: w, Acceptable: translations[w]})
	}
	return words, true
}
