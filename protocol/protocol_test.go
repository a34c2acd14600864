package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInstallLocationTaggedForm(t *testing.T) {
	loc := AbsolutePath("/plugins/foo.bin")

	data, err := json.Marshal(loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"AbsolutePath":"/plugins/foo.bin"}` {
		t.Errorf("unexpected encoding: %s", data)
	}

	var decoded InstallLocation
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path, ok := decoded.Path()
	if !ok || path != "/plugins/foo.bin" {
		t.Errorf("Path() = %q, %v; want /plugins/foo.bin, true", path, ok)
	}
}

func TestInstallLocationRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown tag", `{"RelativePath":"foo"}`},
		{"two tags", `{"AbsolutePath":"a","Other":"b"}`},
		{"empty object", `{}`},
		{"bare string", `"/plugins/foo.bin"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var loc InstallLocation
			if err := json.Unmarshal([]byte(tt.input), &loc); err == nil {
				t.Errorf("expected error decoding %s", tt.input)
			}
		})
	}
}

func TestReadRequestVariants(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantUpdate   bool
		wantMetadata bool
		wantErr      bool
	}{
		{
			name:       "update request",
			line:       `{"Update":{"plugin_name":"Foo","plugin_version":"0.9.0","beta":true}}`,
			wantUpdate: true,
		},
		{
			name:         "metadata request",
			line:         `{"Metadata":{"plugin_name":"Foo"}}`,
			wantMetadata: true,
		},
		{
			name:    "neither variant",
			line:    `{"Something":{}}`,
			wantErr: true,
		},
		{
			name:    "both variants",
			line:    `{"Update":{"plugin_name":"a","plugin_version":"1.0.0"},"Metadata":{"plugin_name":"a"}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			line:    `hello there`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ReadRequest(bufio.NewReader(strings.NewReader(tt.line + "\n")))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", req)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (req.Update != nil) != tt.wantUpdate {
				t.Errorf("Update presence = %v, want %v", req.Update != nil, tt.wantUpdate)
			}
			if (req.Metadata != nil) != tt.wantMetadata {
				t.Errorf("Metadata presence = %v, want %v", req.Metadata != nil, tt.wantMetadata)
			}
		})
	}
}

func TestReadRequestWithoutTrailingNewline(t *testing.T) {
	// Clients may shut down the write side without sending '\n'.
	line := `{"Update":{"plugin_name":"Foo","plugin_version":"1.0.0"}}`
	req, err := ReadRequest(bufio.NewReader(strings.NewReader(line)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Update == nil || req.Update.PluginName != "Foo" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.Update.AllowBeta() {
		t.Error("absent beta flag must default to false")
	}
}

func TestWriteMessageAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, NoUpdate()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("message not newline terminated: %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("expected exactly one line, got %q", out)
	}

	var resp UpdateResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Code != CodeNoUpdate {
		t.Errorf("code = %q, want %q", resp.Code, CodeNoUpdate)
	}
}

func TestUpdateResponseRoundTrip(t *testing.T) {
	resp := &UpdateResponse{
		Code:             CodeUpdate,
		UpdatePlugin:     true,
		PluginName:       "Foo",
		NewPluginVersion: "1.2.3",
		RequiredFiles: []UpdateFile{
			{Size: 42, DownloadIndex: 7, InstallLocation: AbsolutePath("/plugins/foo.bin")},
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded UpdateResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Code != CodeUpdate || len(decoded.RequiredFiles) != 1 {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
	f := decoded.RequiredFiles[0]
	if f.Size != 42 || f.DownloadIndex != 7 {
		t.Errorf("unexpected file: %+v", f)
	}
	if path, ok := f.InstallLocation.Path(); !ok || path != "/plugins/foo.bin" {
		t.Errorf("unexpected location: %v", f.InstallLocation)
	}
}
