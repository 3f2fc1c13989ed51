package preview

import (
	"path/filepath"

	"github.com/typlive/typlive/internal/config"
)

// CollectWatchPaths returns a normalized list of watch paths for the
// configuration. With recompilation the document's directory is watched;
// without it, only the served artifact.
func CollectWatchPaths(cfg *config.Config) []string {
	baseDir := cfg.Dir()
	var paths []string
	if cfg.NoRecompile {
		paths = append(paths, cfg.ArtifactPath())
	} else {
		paths = append(paths, filepath.Dir(cfg.Filename))
	}

	for _, path := range cfg.Watch {
		paths = append(paths, resolvePath(baseDir, path))
	}

	unique := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		clean := filepath.Clean(path)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		unique = append(unique, clean)
	}

	return unique
}

func resolvePath(baseDir, path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
