package browser

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const snapshotLayout = "20060102_150405"

// Snapshotter keeps a screenshot and the markup of pages that looked like a
// block, so detections can be reviewed after the run.
type Snapshotter struct {
	dir string
	now func() time.Time
}

// NewSnapshotter returns a snapshotter writing into dir. An empty dir disables it.
func NewSnapshotter(dir string) *Snapshotter {
	return &Snapshotter{dir: dir, now: time.Now}
}

// Save writes detection_<timestamp>.png and .html and returns the paths written.
// Failures are logged; diagnostics never fail a fetch.
func (s *Snapshotter) Save(png []byte, html string) []string {
	if s == nil || s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		slog.Warn("Failed to create diagnostics directory", "dir", s.dir, "error", err)
		return nil
	}

	base := filepath.Join(s.dir, "detection_"+s.now().Format(snapshotLayout))
	var written []string
	if len(png) > 0 {
		if err := os.WriteFile(base+".png", png, 0o644); err != nil {
			slog.Warn("Failed to write screenshot", "path", base+".png", "error", err)
		} else {
			written = append(written, base+".png")
		}
	}
	if html != "" {
		if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
			slog.Warn("Failed to write page source", "path", base+".html", "error", err)
		} else {
			written = append(written, base+".html")
		}
	}
	if len(written) > 0 {
		slog.Info("Saved detection diagnostics", "files", written)
	}
	return written
}
