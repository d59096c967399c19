package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths contains the directories the tools write to.
type Paths struct {
	BaseDir    string
	ReportsDir string
	LogsDir    string
}

// GetPaths resolves the configured report and log locations. Relative paths are
// taken against the current working directory.
func (c *Config) GetPaths() (*Paths, error) {
	base, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	return &Paths{
		BaseDir:    base,
		ReportsDir: resolve(base, c.Reports.Directory),
		LogsDir:    resolve(base, filepath.Dir(c.Logging.FilePath)),
	}, nil
}

// EnsureDirectories creates all necessary directories
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ReportsDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetReportPath returns the full path for a report file
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
