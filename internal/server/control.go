package server

import (
	"bufio"
	"net"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/plugrelay/plugrelay/internal/catalog"
	"github.com/plugrelay/plugrelay/protocol"
)

// serveControl accepts control-plane connections and handles each one
// synchronously, in arrival order. A control exchange is one short request
// and one short reply, so sequential handling keeps responses ordered and
// the catalog view consistent within a burst of queries.
func (s *Server) serveControl() {
	defer s.wg.Done()
	for {
		conn, err := s.controlLn.Accept()
		if err != nil {
			if s.closing() {
				return
			}
			s.logger.Warn("control accept failed", "error", err)
			continue
		}
		s.handleControl(conn)
	}
}

// handleControl reads one request, writes exactly one response, and
// closes the connection.
func (s *Server) handleControl(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout))

	gen := s.store.Current()

	req, err := protocol.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		s.logger.Debug("malformed control request", "remote", conn.RemoteAddr(), "error", err)
		s.respond(conn, protocol.InvalidRequest())
		return
	}

	switch {
	case req.Update != nil:
		s.respond(conn, s.checkUpdate(gen, req.Update))
	case req.Metadata != nil:
		s.respond(conn, s.metadata(gen, req.Metadata))
	}
}

// respond writes one JSON line; write failures are connection-local.
func (s *Server) respond(conn net.Conn, v any) {
	if err := protocol.WriteMessage(conn, v); err != nil {
		s.logger.Debug("control response failed", "remote", conn.RemoteAddr(), "error", err)
	}
}

// checkUpdate resolves an update query against the serving generation.
func (s *Server) checkUpdate(gen *catalog.Generation, req *protocol.UpdateRequest) *protocol.UpdateResponse {
	if gen == nil {
		return protocol.PluginNotFound()
	}

	entry, found := gen.Resolve(req.PluginName, req.AllowBeta())
	if !found {
		return protocol.PluginNotFound()
	}

	clientVersion, err := semver.NewVersion(req.PluginVersion)
	if err != nil {
		return protocol.InvalidRequest()
	}

	if !entry.Version.GreaterThan(clientVersion) {
		return protocol.NoUpdate()
	}

	return &protocol.UpdateResponse{
		Code:             protocol.CodeUpdate,
		UpdatePlugin:     true,
		PluginName:       req.PluginName,
		NewPluginVersion: entry.Version.String(),
		RequiredFiles:    entry.Files,
	}
}

// metadata resolves a metadata query. An unknown plugin gets an explicit
// not-found reply so the client never waits on a closed socket.
func (s *Server) metadata(gen *catalog.Generation, req *protocol.MetadataRequest) *protocol.PluginMetadata {
	if gen == nil {
		return &protocol.PluginMetadata{Code: protocol.CodePluginNotFound}
	}
	entry, found := gen.Resolve(req.PluginName, req.AllowBeta())
	if !found {
		return &protocol.PluginMetadata{Code: protocol.CodePluginNotFound}
	}
	md := entry.Metadata
	return &md
}
