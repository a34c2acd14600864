// Package client implements the update-side peer of the protocol: it asks
// a server whether a newer plugin version is hosted, lets an Installer
// capability confirm the offer, downloads each offered file over the data
// plane, and drives the install step. Plugins embed this package to update
// themselves against a private-network server.
package client

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/plugrelay/plugrelay/internal/bundle"
	"github.com/plugrelay/plugrelay/internal/pathseg"
	"github.com/plugrelay/plugrelay/protocol"
)

// State names a position in the update flow. A CheckUpdate call moves
// Idle → RequestSent → one of the response states, and on an accepted
// offer through Downloading to Succeeded or Failed.
type State int

// Update flow states.
const (
	StateIdle State = iota
	StateRequestSent
	StateNoUpdate
	StateInvalidRequest
	StatePluginNotFound
	StateOffered
	StateDeclined
	StateDownloading
	StateSucceeded
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:           "Idle",
	StateRequestSent:    "RequestSent",
	StateNoUpdate:       "NoUpdate",
	StateInvalidRequest: "InvalidRequest",
	StatePluginNotFound: "PluginNotFound",
	StateOffered:        "Offered",
	StateDeclined:       "Declined",
	StateDownloading:    "Downloading",
	StateSucceeded:      "Succeeded",
	StateFailed:         "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Result is the outcome of one update check.
type Result struct {
	State State

	// Offer is the server's update response when one was received.
	Offer *protocol.UpdateResponse
}

// Client talks to one update server. It opens a single outstanding
// connection at a time and downloads one file at a time.
type Client struct {
	controlAddr string
	dataAddr    string
	dialTimeout time.Duration
	ioTimeout   time.Duration
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithDialTimeout sets the connect timeout for both planes.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithIOTimeout sets the per-connection read/write deadline.
func WithIOTimeout(d time.Duration) Option {
	return func(c *Client) { c.ioTimeout = d }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the server at addr ("host" or "host:port";
// a bare host uses the well-known control port). The data plane is always
// the next port up.
func New(addr string, opts ...Option) (*Client, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host, portStr = addr, strconv.Itoa(protocol.DefaultPort)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", addr, err)
	}

	c := &Client{
		controlAddr: net.JoinHostPort(host, strconv.Itoa(port)),
		dataAddr:    net.JoinHostPort(host, strconv.Itoa(port+1)),
		dialTimeout: 10 * time.Second,
		ioTimeout:   60 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CheckUpdate runs the full update flow for one plugin: query the server,
// let the installer confirm an offer, then download and install every
// offered file in server order. Clean protocol outcomes (no update,
// unknown plugin, rejected request, declined offer) return a nil error;
// transport and install failures return StateFailed with the cause.
func (c *Client) CheckUpdate(name, version string, beta bool, inst Installer) (*Result, error) {
	offer, err := c.GetUpdateInfo(name, version, beta)
	if err != nil {
		return &Result{State: StateFailed}, err
	}

	switch offer.Code {
	case protocol.CodeNoUpdate:
		return &Result{State: StateNoUpdate, Offer: offer}, nil
	case protocol.CodeInvalidRequest:
		return &Result{State: StateInvalidRequest, Offer: offer}, nil
	case protocol.CodePluginNotFound:
		return &Result{State: StatePluginNotFound, Offer: offer}, nil
	case protocol.CodeUpdate:
	default:
		return &Result{State: StateFailed, Offer: offer},
			fmt.Errorf("unexpected response code %q", offer.Code)
	}

	if !inst.ShouldUpdate(offer) {
		return &Result{State: StateDeclined, Offer: offer}, nil
	}

	if err := c.InstallUpdate(offer, inst); err != nil {
		return &Result{State: StateFailed, Offer: offer}, err
	}
	return &Result{State: StateSucceeded, Offer: offer}, nil
}

// GetUpdateInfo sends one CheckUpdate request and returns the raw
// response without installing anything.
func (c *Client) GetUpdateInfo(name, version string, beta bool) (*protocol.UpdateResponse, error) {
	req := &protocol.Request{Update: &protocol.UpdateRequest{
		PluginName:    name,
		PluginVersion: version,
		Beta:          &beta,
	}}
	var resp protocol.UpdateResponse
	if err := c.controlExchange(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMetadata fetches the display metadata for a hosted plugin.
func (c *Client) GetMetadata(name string, beta bool) (*protocol.PluginMetadata, error) {
	req := &protocol.Request{Metadata: &protocol.MetadataRequest{
		PluginName: name,
		Beta:       &beta,
	}}
	var resp protocol.PluginMetadata
	if err := c.controlExchange(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InstallUpdate downloads and installs every file of a previously fetched
// offer, in server order. The first failure aborts the remaining
// pipeline; files already installed stay installed — there is no
// rollback.
func (c *Client) InstallUpdate(offer *protocol.UpdateResponse, inst Installer) error {
	for i, file := range offer.RequiredFiles {
		path, ok := file.InstallLocation.Path()
		if !ok {
			return fmt.Errorf("file %d: unsupported install location %s", i, file.InstallLocation)
		}

		c.logger.Debug("downloading file",
			"path", path, "index", file.DownloadIndex, "size", file.Size)

		data, err := c.Download(file.DownloadIndex)
		if err != nil {
			return fmt.Errorf("downloading %s: %w", path, err)
		}
		if uint64(len(data)) != file.Size {
			return fmt.Errorf("downloading %s: got %d bytes, server declared %d (stale offer?)",
				path, len(data), file.Size)
		}

		if err := inst.InstallFile(path, data); err != nil {
			return fmt.Errorf("installing %s: %w", path, err)
		}

		// Packaged bundles are expanded into the sibling directory named by
		// stripping the archive extension. Entry names carry the bundle
		// folder as their first segment, so the folder lands under that
		// directory.
		if dest, isArchive := pathseg.StripArchiveExt(path); isArchive {
			if err := extractArchive(data, dest, inst); err != nil {
				return fmt.Errorf("extracting %s: %w", path, err)
			}
		}
	}
	return nil
}

// Download fetches one blob by download index over the data plane. A
// server rejecting the index closes without bytes, which surfaces here as
// an empty slice.
func (c *Client) Download(index uint64) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", c.dataAddr, c.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to data plane %s: %w", c.dataAddr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.ioTimeout))

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	if _, err := conn.Write(buf[:]); err != nil {
		return nil, fmt.Errorf("sending download index: %w", err)
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("reading download stream: %w", err)
	}
	return data, nil
}

// controlExchange performs one request/response cycle on the control
// plane. The server writes a single line and closes.
func (c *Client) controlExchange(req *protocol.Request, resp any) error {
	conn, err := net.DialTimeout("tcp", c.controlAddr, c.dialTimeout)
	if err != nil {
		return fmt.Errorf("connecting to update server %s: %w", c.controlAddr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.ioTimeout))

	if err := protocol.WriteMessage(conn, req); err != nil {
		return err
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && (err != io.EOF || len(line) == 0) {
		return fmt.Errorf("reading server response: %w", err)
	}
	if err := json.Unmarshal(line, resp); err != nil {
		return fmt.Errorf("decoding server response: %w", err)
	}
	return nil
}

// extractArchive installs every archive entry through the installer,
// rooted at dest. Using the installer for entry writes keeps headless and
// on-target installs on the same code path.
func extractArchive(archive []byte, dest string, inst Installer) error {
	return bundle.Walk(bytes.NewReader(archive), func(name string, data []byte) error {
		target, err := pathseg.SafeJoin(dest, name)
		if err != nil {
			return err
		}
		return inst.InstallFile(target, data)
	})
}
