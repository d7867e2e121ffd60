package trainer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/born-ml/vae/internal/diagnostics"
	"github.com/born-ml/vae/internal/experiment"
)

const versionPrefix = "version_"

// RunDirs are created in every new run directory.
var RunDirs = []string{
	diagnostics.SamplesDir,
	diagnostics.ReconstructionsDir,
	experiment.CheckpointDir,
	diagnostics.FiguresDir,
}

// NextVersion returns the first unused version number under dir.
func NextVersion(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list runs: %w", err)
	}

	next := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), versionPrefix) {
			continue
		}
		v, err := strconv.Atoi(strings.TrimPrefix(e.Name(), versionPrefix))
		if err != nil || v < 0 {
			continue
		}
		next = max(next, v+1)
	}
	return next, nil
}

// NewRun creates <saveDir>/<name>/version_<k> with the next free k and its
// output subdirectories.
func NewRun(saveDir, name string) (experiment.Run, error) {
	base := filepath.Join(saveDir, name)
	version, err := NextVersion(base)
	if err != nil {
		return experiment.Run{}, err
	}

	run := experiment.Run{Name: name, LogDir: filepath.Join(base, versionPrefix+strconv.Itoa(version))}
	for _, sub := range RunDirs {
		if err := os.MkdirAll(run.Path(sub), 0o755); err != nil {
			return experiment.Run{}, fmt.Errorf("create run directory: %w", err)
		}
	}
	return run, nil
}
