// Package server assembles the WordQuizzle server from its parts: the user
// store, the online-user registry, the depot and its Mailman, the worker
// pool, the match engine, the request dispatcher, the reactor, and the
// registration endpoint. It owns startup order and shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/wordquizzle/wqserver/internal/config"
	"github.com/wordquizzle/wqserver/internal/depot"
	"github.com/wordquizzle/wqserver/internal/dictionary"
	"github.com/wordquizzle/wqserver/internal/match"
	"github.com/wordquizzle/wqserver/internal/metrics"
	"github.com/wordquizzle/wqserver/internal/reactor"
	"github.com/wordquizzle/wqserver/internal/registration"
	"github.com/wordquizzle/wqserver/internal/store"
	"github.com/wordquizzle/wqserver/internal/tasks"
	"github.com/wordquizzle/wqserver/internal/translator"
	"github.com/wordquizzle/wqserver/internal/workpool"
)

// depotCapacity bounds how many mails can be pending before a task blocks
// on Enqueue. Tasks outnumbering this means the Mailman has fallen far
// behind; blocking the worker briefly is the correct backpressure.
const depotCapacity = 256

// jobQueueCapacity sizes the worker pool's job channel. A reader goroutine
// submitting a task blocks only once this many jobs are already waiting,
// for example while every worker is pinned inside a match.
const jobQueueCapacity = 1024

// Server is the fully-wired WordQuizzle server.
type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	collector metrics.Collector

	store    *store.Store
	registry *reactor.Registry
	queue    *depot.Queue
	mailman  *depot.Mailman
	pool     *workpool.Pool
	reactor  *reactor.Reactor

	regServer   *registration.Server
	regListener net.Listener
}

// New wires a Server from cfg. It loads the user database and the dictionary
// but does not bind any socket; call Listen before Run.
func New(cfg config.Config, logger *slog.Logger, collector metrics.Collector) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("server: open user store: %w", err)
	}

	dictPath := cfg.DictionaryPath
	if dictPath == "" {
		dictPath = "dictionary.txt"
	}
	words, err := dictionary.Load(dictPath)
	if err != nil {
		return nil, fmt.Errorf("server: load dictionary: %w", err)
	}

	registry := reactor.NewRegistry()
	queue := depot.NewQueue(depotCapacity)
	mailman := depot.NewMailman(queue, logger)
	pool := workpool.New(cfg.WorkerThreads, jobQueueCapacity)

	trans := translator.New(cfg.Translator.BaseURL, cfg.Translator.Timeout())

	engine := match.NewEngine(match.Config{
		AcceptDuration: cfg.InvitationDuration(),
		MatchDuration:  cfg.MatchDuration(),
		WordsPerMatch:  cfg.WordsPerMatch,
	}, registry, st, queue, words, trans, logger, collector)

	dispatcher := tasks.NewDispatcher(tasks.Deps{
		Store:     st,
		Registry:  registry,
		Depot:     queue,
		Pool:      pool,
		Matches:   engine,
		Logger:    logger,
		Collector: collector,
	})

	rc := reactor.New(reactor.Config{
		TCPAddr:        fmt.Sprintf(":%d", cfg.TCPPort),
		UDPAddr:        fmt.Sprintf(":%d", cfg.UDPPort),
		ReadBufferSize: cfg.ReadBufferSize,
		MaxConnections: cfg.MaxConnections,
	}, dispatcher, logger, collector)

	return &Server{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		store:     st,
		registry:  registry,
		queue:     queue,
		mailman:   mailman,
		pool:      pool,
		reactor:   rc,
		regServer: registration.New(st, logger),
	}, nil
}

// Listen binds every socket the server needs: the reactor's TCP and UDP
// endpoints and the registration listener. Failure here is fatal.
func (s *Server) Listen() error {
	if err := s.reactor.Listen(); err != nil {
		return err
	}
	lis, err := net.Listen("tcp", s.cfg.Registration.Address)
	if err != nil {
		return fmt.Errorf("server: listen registration %s: %w", s.cfg.Registration.Address, err)
	}
	s.regListener = lis
	return nil
}

// TCPPort returns the reactor's bound TCP port, useful when the config used
// port 0.
func (s *Server) TCPPort() int { return s.reactor.TCPPort() }

// UDPPort returns the reactor's bound UDP discovery port.
func (s *Server) UDPPort() int { return s.reactor.UDPPort() }

// RegistrationAddr returns the bound registration listener address.
func (s *Server) RegistrationAddr() net.Addr { return s.regListener.Addr() }

// Store exposes the user store, primarily for the registration endpoint's
// callers and tests.
func (s *Server) Store() *store.Store { return s.store }

// Run starts the Mailman, the registration endpoint, and the reactor, then
// blocks until ctx is cancelled. Listen must have been called.
func (s *Server) Run(ctx context.Context) error {
	go s.mailman.Run()
	defer s.mailman.Stop()

	go func() {
		if err := s.regServer.Serve(ctx, s.regListener); err != nil {
			s.logger.Error("registration endpoint stopped", "error", err)
		}
	}()

	s.logger.Info("wqserver listening",
		"tcp_port", s.reactor.TCPPort(),
		"udp_port", s.cfg.UDPPort,
		"workers", s.cfg.WorkerThreads,
	)

	return s.reactor.Run(ctx)
}
