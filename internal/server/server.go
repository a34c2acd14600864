// Package server runs the two-socket update service: a control plane
// answering newline-delimited JSON queries and a data plane streaming raw
// blobs by download index. Both planes share one immutable catalog
// generation through an atomic store; a filesystem watcher triggers
// rebuilds that swap the generation without disturbing in-flight
// transfers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/plugrelay/plugrelay/internal/catalog"
	"github.com/plugrelay/plugrelay/internal/watcher"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultMaxTransfers = 64
	DefaultIOTimeout    = 30 * time.Second
)

// Config carries the server settings.
type Config struct {
	// PluginRoot is the directory scanned for plugin directories. Created
	// if missing.
	PluginRoot string

	// Port is the control-plane port; the data plane binds Port+1.
	// Port 0 picks a free adjacent pair (used by tests).
	Port int

	// Quiescence is the watcher settle window.
	Quiescence time.Duration

	// MaxTransfers bounds concurrent data-plane workers.
	MaxTransfers int

	// IOTimeout is the per-connection read/write deadline.
	IOTimeout time.Duration

	Logger *slog.Logger
}

// Server hosts the catalog and both protocol planes.
type Server struct {
	cfg    Config
	store  *catalog.Store
	logger *slog.Logger

	controlLn net.Listener
	dataLn    net.Listener
	watch     *watcher.Watcher

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New builds a server from cfg, applying defaults.
func New(cfg Config) *Server {
	if cfg.MaxTransfers <= 0 {
		cfg.MaxTransfers = DefaultMaxTransfers
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		store:  catalog.NewStore(),
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}
}

// Start builds the initial catalog, binds both listeners, and spawns the
// accept and rebuild loops. It returns once the server is ready to accept
// connections.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.PluginRoot, 0755); err != nil {
		return fmt.Errorf("creating plugin root: %w", err)
	}

	gen, err := catalog.Build(s.cfg.PluginRoot, s.store.NextSeq(), s.logger)
	if err != nil {
		return err
	}
	s.store.Replace(gen)
	s.logger.Info("catalog built",
		"generation", gen.Seq, "plugins", len(gen.Entries), "blobs", gen.TableLen())

	if err := s.listen(); err != nil {
		return err
	}

	// Hot reload is best effort: a broken watcher degrades to
	// restart-to-refresh, it never takes the server down.
	w, err := watcher.New(s.cfg.PluginRoot, s.cfg.Quiescence, s.logger)
	if err != nil {
		s.logger.Warn("plugin watcher unavailable, hot reload disabled", "error", err)
	} else {
		s.watch = w
		s.wg.Add(1)
		go s.rebuildLoop(ctx)
	}

	s.wg.Add(2)
	go s.serveControl()
	go s.serveData()

	s.logger.Info("serving",
		"control", s.controlLn.Addr().String(), "data", s.dataLn.Addr().String())
	return nil
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
}

// Close shuts both listeners and the watcher and waits for the accept
// loops to drain. Safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.controlLn != nil {
			s.controlLn.Close()
		}
		if s.dataLn != nil {
			s.dataLn.Close()
		}
		if s.watch != nil {
			s.watch.Close()
		}
	})
	s.wg.Wait()
	return nil
}

// ControlAddr returns the bound control-plane address.
func (s *Server) ControlAddr() string { return s.controlLn.Addr().String() }

// DataAddr returns the bound data-plane address.
func (s *Server) DataAddr() string { return s.dataLn.Addr().String() }

// listen binds the control port and the adjacent data port. With Port 0
// it probes ephemeral ports until an adjacent pair is free.
func (s *Server) listen() error {
	if s.cfg.Port != 0 {
		return s.bindPair(s.cfg.Port)
	}

	for attempt := 0; attempt < 20; attempt++ {
		probe, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("probing free port: %w", err)
		}
		port := probe.Addr().(*net.TCPAddr).Port
		probe.Close()

		if err := s.bindPair(port); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no adjacent free port pair found")
}

// bindPair binds the control listener on port and the data listener on
// port+1, releasing the first on failure of the second.
func (s *Server) bindPair(port int) error {
	control, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("binding control port %d: %w", port, err)
	}
	data, err := net.Listen("tcp", fmt.Sprintf(":%d", port+1))
	if err != nil {
		control.Close()
		return fmt.Errorf("binding data port %d: %w", port+1, err)
	}
	s.controlLn = control
	s.dataLn = data
	return nil
}

// rebuildLoop swaps in a fresh generation after every settled change.
func (s *Server) rebuildLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.watch.Changed():
			s.rebuild()
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// rebuild builds and publishes a new generation. On failure the previous
// generation keeps serving.
func (s *Server) rebuild() {
	s.logger.Info("change detected, refreshing plugins")
	gen, err := catalog.Build(s.cfg.PluginRoot, s.store.NextSeq(), s.logger)
	if err != nil {
		s.logger.Error("catalog rebuild failed, keeping previous generation", "error", err)
		return
	}
	s.store.Replace(gen)
	s.logger.Info("catalog reloaded",
		"generation", gen.Seq, "plugins", len(gen.Entries), "blobs", gen.TableLen())
}

// closing reports whether Close has begun, to silence accept errors
// during shutdown.
func (s *Server) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
