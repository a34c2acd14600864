package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// DefaultPort is the well-known control-plane port. The data plane always
// binds the next port up.
const DefaultPort = 45000

// MaxRequestLine bounds a single control-plane request line. Anything
// longer is treated as malformed.
const MaxRequestLine = 64 * 1024

// ResponseCode classifies the outcome of a control-plane request.
type ResponseCode string

// Control-plane response codes.
const (
	CodeNoUpdate       ResponseCode = "NoUpdate"
	CodeUpdate         ResponseCode = "Update"
	CodeInvalidRequest ResponseCode = "InvalidRequest"
	CodePluginNotFound ResponseCode = "PluginNotFound"
	CodeOk             ResponseCode = "Ok"
)

// Request is the externally tagged control-plane request envelope.
// Exactly one of the variant fields is set.
type Request struct {
	Update   *UpdateRequest   `json:"Update,omitempty"`
	Metadata *MetadataRequest `json:"Metadata,omitempty"`
}

// UpdateRequest asks whether a newer version of a plugin is hosted.
type UpdateRequest struct {
	PluginName    string `json:"plugin_name"`
	PluginVersion string `json:"plugin_version"`
	Beta          *bool  `json:"beta,omitempty"`
}

// MetadataRequest asks for the display metadata of a hosted plugin.
type MetadataRequest struct {
	PluginName string `json:"plugin_name"`
	Beta       *bool  `json:"beta,omitempty"`
}

// AllowBeta reports whether the request opted in to beta versions.
func (r *UpdateRequest) AllowBeta() bool { return r.Beta != nil && *r.Beta }

// AllowBeta reports whether the request opted in to beta versions.
func (r *MetadataRequest) AllowBeta() bool { return r.Beta != nil && *r.Beta }

// UpdateFile describes one downloadable file in an update offer.
type UpdateFile struct {
	Size            uint64          `json:"size"`
	DownloadIndex   uint64          `json:"download_index"`
	InstallLocation InstallLocation `json:"install_location"`
}

// UpdateResponse is the reply to an UpdateRequest. The update_skyline and
// new_skyline_version fields signal a pending runtime update; the server
// never sets them today but they stay on the wire for compatibility.
type UpdateResponse struct {
	Code              ResponseCode `json:"code"`
	UpdatePlugin      bool         `json:"update_plugin"`
	UpdateSkyline     bool         `json:"update_skyline"`
	PluginName        string       `json:"plugin_name"`
	NewPluginVersion  string       `json:"new_plugin_version"`
	NewSkylineVersion *string      `json:"new_skyline_version,omitempty"`
	RequiredFiles     []UpdateFile `json:"required_files"`
}

// NoUpdate builds the stock "already current" reply.
func NoUpdate() *UpdateResponse {
	return &UpdateResponse{Code: CodeNoUpdate}
}

// InvalidRequest builds the stock malformed-request reply.
func InvalidRequest() *UpdateResponse {
	return &UpdateResponse{Code: CodeInvalidRequest}
}

// PluginNotFound builds the stock unknown-plugin reply.
func PluginNotFound() *UpdateResponse {
	return &UpdateResponse{Code: CodePluginNotFound}
}

// PluginMetadata is the reply to a MetadataRequest. The index fields are
// download indices into the data plane, valid for the generation that
// produced them. Code is CodeOk on success and CodePluginNotFound when no
// matching plugin is hosted, so a client never waits on a silent server.
type PluginMetadata struct {
	Code           ResponseCode `json:"code"`
	Name           *string      `json:"name,omitempty"`
	Description    *string      `json:"description,omitempty"`
	ImagesIndex    uint64       `json:"images_index"`
	ImageCount     uint64       `json:"image_count"`
	ChangelogIndex uint64       `json:"changelog_index"`
}

// ReadRequest reads one newline-terminated JSON request from r.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if (req.Update == nil) == (req.Metadata == nil) {
		return nil, fmt.Errorf("decoding request: expected exactly one variant")
	}
	return &req, nil
}

// WriteMessage writes v as a single JSON line to w.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// readLine reads up to MaxRequestLine bytes of a single line, without the
// trailing newline. EOF before any byte is an error; EOF after content
// terminates the line (the original client does not always send the
// newline before shutting down its write side).
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err == io.EOF && len(line) > 0 {
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading request line: %w", err)
	}
	if len(line) > MaxRequestLine {
		return nil, fmt.Errorf("request line exceeds %d bytes", MaxRequestLine)
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}
