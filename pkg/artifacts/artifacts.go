// Package artifacts discovers build-produced files (binaries,
// installers, archives) after a build step, for a later release step
// to publish.
package artifacts

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildforge/buildforge/pkg/buildsys"
)

// candidate output directories per build system, tried in order; the
// first existing non-empty one wins.
var outputDirs = map[buildsys.System][]string{
	buildsys.SystemBun:    {"dist", "build", "out"},
	buildsys.SystemPnpm:   {"dist", "build", "out"},
	buildsys.SystemYarn:   {"dist", "build", "out"},
	buildsys.SystemNpm:    {"dist", "build", "out"},
	buildsys.SystemCargo:  {"target/release"},
	buildsys.SystemGo:     {"bin", "dist"},
	buildsys.SystemMaven:  {"target"},
	buildsys.SystemGradle: {"build/libs"},
	buildsys.SystemCMake:  {"build"},
	buildsys.SystemMake:   {"build", "out"},
	buildsys.SystemPython: {"dist"},
}

// distributable extensions for the broad fallback search.
var artifactExtensions = []string{
	".dmg", ".pkg", ".msi", ".exe", ".deb", ".rpm",
	".appimage", ".zip", ".tar.gz", ".tgz", ".jar", ".whl",
}

// directories never descended into during the broad search.
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
	"__pycache__":  true,
	"debug":        true, // cargo debug builds are not distributables
}

// Locator finds candidate artifact paths under a build directory.
type Locator struct {
	logger *slog.Logger
}

// NewLocator returns an artifact locator.
func NewLocator(logger *slog.Logger) *Locator {
	return &Locator{logger: logger.With("module", "artifacts")}
}

// Locate returns candidate artifact paths. An explicit glob pattern
// takes precedence; otherwise the system's usual output directories
// are probed; otherwise a broad extension search runs. An empty result
// is not an error here; callers decide whether that is fatal.
func (l *Locator) Locate(dir string, system buildsys.System, pattern string) []string {
	if pattern != "" {
		return l.locateByPattern(dir, pattern)
	}

	if found := l.locateByOutputDir(dir, system); len(found) > 0 {
		return found
	}

	return l.broadSearch(dir)
}

func (l *Locator) locateByPattern(dir, pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		// Malformed pattern: fall back to the literal joined path.
		literal := filepath.Join(dir, pattern)
		if _, statErr := os.Stat(literal); statErr == nil {
			return []string{literal}
		}

		l.logger.Warn("artifact pattern matched nothing", "pattern", pattern, "error", err)

		return nil
	}

	return matches
}

func (l *Locator) locateByOutputDir(dir string, system buildsys.System) []string {
	for _, candidate := range outputDirs[system] {
		full := filepath.Join(dir, candidate)

		entries, err := os.ReadDir(full)
		if err != nil || len(entries) == 0 {
			continue
		}

		paths := make([]string, 0, len(entries))
		for _, entry := range entries {
			paths = append(paths, filepath.Join(full, entry.Name()))
		}

		l.logger.Info("artifacts located", "dir", full, "count", len(paths))

		return paths
	}

	return nil
}

// broadSearch walks the whole build directory for files with
// distributable extensions, skipping dependency and VCS trees.
func (l *Locator) broadSearch(dir string) []string {
	var found []string

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if excludedDirs[strings.ToLower(d.Name())] {
				return filepath.SkipDir
			}

			return nil
		}

		if hasArtifactExtension(d.Name()) {
			found = append(found, path)
		}

		return nil
	})

	return found
}

func hasArtifactExtension(name string) bool {
	lower := strings.ToLower(name)

	for _, ext := range artifactExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

// ExpandDirs replaces directory entries with their regular files so a
// directory artifact (an .app bundle, a dist folder) uploads as its
// constituent files.
func ExpandDirs(paths []string) []string {
	var expanded []string

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if !info.IsDir() {
			expanded = append(expanded, path)

			continue
		}

		_ = filepath.WalkDir(path, func(sub string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				expanded = append(expanded, sub)
			}

			return nil
		})
	}

	return expanded
}
