// Package manifest writes the gzip-compressed JSON run report the engine
// drops into the destination tree after a backup completes. It is purely
// informational: DoBackup's returned error, not the manifest, is
// authoritative.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"

	"github.com/paulschiretz/hotbackup/pkg/metrics"
)

// FileName is the manifest's fixed name within the destination directory.
const FileName = ".hotbackup-manifest.json.gz"

// Report is the document written to FileName.
type Report struct {
	Source    string           `json:"source"`
	Dest      string           `json:"dest"`
	StartedAt time.Time        `json:"startedAt"`
	EndedAt   time.Time        `json:"endedAt"`
	Metrics   metrics.Snapshot `json:"metrics"`
	Error     string           `json:"error,omitempty"`
}

// Write gzip-compresses and writes r to <destDir>/FileName.
func Write(destDir string, r Report) error {
	path := destDir + string(os.PathSeparator) + FileName
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("manifest: cannot create %s: %w", path, err)
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		gz.Close()
		return fmt.Errorf("manifest: cannot encode report: %w", err)
	}
	return gz.Close()
}

// Read decompresses and parses a manifest previously written by Write; used
// by tests and by any operator tooling that wants to inspect a past run.
func Read(path string) (Report, error) {
	var r Report
	f, err := os.Open(path)
	if err != nil {
		return r, fmt.Errorf("manifest: cannot open %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return r, fmt.Errorf("manifest: cannot decompress %s: %w", path, err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return r, fmt.Errorf("manifest: cannot read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("manifest: cannot parse %s: %w", path, err)
	}
	return r, nil
}
