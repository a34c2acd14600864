package protocol

import (
	"encoding/json"
	"fmt"
)

// Location tags. Only one variant exists today; the tagged representation
// keeps the wire format open for future variants (SD-card-relative,
// title-relative, ...) without breaking old clients.
const (
	TagAbsolutePath = "AbsolutePath"
)

// InstallLocation is a tagged variant describing where a downloaded file
// is installed. On the wire it is an externally tagged single-key object,
// e.g. {"AbsolutePath": "/plugins/foo.bin"}.
type InstallLocation struct {
	tag     string
	payload string
}

// AbsolutePath returns an InstallLocation pointing at an absolute
// filesystem path on the target.
func AbsolutePath(path string) InstallLocation {
	return InstallLocation{tag: TagAbsolutePath, payload: path}
}

// Tag returns the variant tag.
func (l InstallLocation) Tag() string { return l.tag }

// Path returns the install path and true when the location is an
// AbsolutePath variant.
func (l InstallLocation) Path() (string, bool) {
	if l.tag != TagAbsolutePath {
		return "", false
	}
	return l.payload, true
}

// IsZero reports whether the location is unset.
func (l InstallLocation) IsZero() bool { return l.tag == "" }

// String renders the location for logs and error messages.
func (l InstallLocation) String() string {
	if l.tag == "" {
		return "<unset>"
	}
	return l.tag + "(" + l.payload + ")"
}

// MarshalJSON encodes the location as a single-key tagged object.
func (l InstallLocation) MarshalJSON() ([]byte, error) {
	if l.tag == "" {
		return nil, fmt.Errorf("marshaling install location: no variant set")
	}
	return json.Marshal(map[string]string{l.tag: l.payload})
}

// UnmarshalJSON decodes a tagged object. Exactly one known tag must be
// present; anything else is a protocol error.
func (l *InstallLocation) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding install location: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("decoding install location: expected exactly one variant tag, got %d", len(raw))
	}
	for tag, payload := range raw {
		switch tag {
		case TagAbsolutePath:
			l.tag = tag
			l.payload = payload
		default:
			return fmt.Errorf("decoding install location: unknown variant %q", tag)
		}
	}
	return nil
}
