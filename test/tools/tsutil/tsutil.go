// Package tsutil holds what the siflow test tools share: the stream
// manifest and the location of the generated captures.
package tsutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TSPacketSize is the size of an MPEG-TS packet.
const TSPacketSize = 188

// ManifestFile is the manifest name inside the streams directory.
const ManifestFile = "manifest.json"

// StreamConfig describes one generated capture.
type StreamConfig struct {
	Number      int    `json:"number"`
	Key         string `json:"key"`
	Description string `json:"description"`
	TSID        uint16 `json:"tsid"`
	ONID        uint16 `json:"onid"`
	Services    int    `json:"services"`
	Versions    int    `json:"versions"`
	Repeat      int    `json:"repeat"`
	Format      string `json:"format,omitempty"`
	// Rate is the playout rate in bytes per second that repeats the SDT
	// twice a second.
	Rate float64 `json:"rate"`
}

// FileName returns the capture file name of the stream.
func (s StreamConfig) FileName() string {
	ext := ".ts"
	if s.Format == "m2ts" {
		ext = ".m2ts"
	}
	return fmt.Sprintf("stream_%d%s", s.Number, ext)
}

// Manifest lists the generated captures.
type Manifest struct {
	Generated string         `json:"generated"`
	Streams   []StreamConfig `json:"streams"`
}

// ReadManifest loads the manifest of dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest stores m in dir.
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644)
}

// FindStreamsDir walks up from the working directory to the module root
// and returns its test/streams directory.
func FindStreamsDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if FileExists(filepath.Join(dir, "go.mod")) {
			return filepath.Join(dir, "test", "streams"), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (no go.mod found)")
		}
		dir = parent
	}
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
