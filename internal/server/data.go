package server

import (
	"encoding/binary"
	"io"
	"net"
	"time"
)

// serveData accepts data-plane connections and hands each to its own
// transfer worker so parallel downloads never block one another or new
// accepts. The semaphore bounds concurrent workers.
func (s *Server) serveData() {
	defer s.wg.Done()
	sem := make(chan struct{}, s.cfg.MaxTransfers)

	for {
		conn, err := s.dataLn.Accept()
		if err != nil {
			if s.closing() {
				return
			}
			s.logger.Warn("data accept failed", "error", err)
			continue
		}

		sem <- struct{}{}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-sem }()
			s.handleTransfer(conn)
		}()
	}
}

// handleTransfer reads the 8-byte big-endian download index, streams the
// matching blob, and closes. An unknown or stale index closes the
// connection with zero bytes written — never a fault, never the wrong
// blob.
func (s *Server) handleTransfer(conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(s.cfg.IOTimeout))

	var buf [8]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		s.logger.Debug("failed to read download index", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	index := binary.BigEndian.Uint64(buf[:])

	// The generation is pinned here for the whole transfer; a concurrent
	// catalog swap cannot free this blob out from under the write.
	gen := s.store.Current()
	if gen == nil {
		return
	}
	file, ok := gen.Lookup(index)
	if !ok {
		s.logger.Debug("rejecting download index",
			"remote", conn.RemoteAddr(), "index", index, "generation", gen.Seq)
		return
	}

	conn.SetWriteDeadline(time.Now().Add(s.cfg.IOTimeout))
	if _, err := conn.Write(file.Data); err != nil {
		s.logger.Debug("transfer aborted", "remote", conn.RemoteAddr(), "error", err)
	}
}
