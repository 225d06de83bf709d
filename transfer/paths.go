package transfer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

// ExpandPaths resolves glob patterns (doublestar syntax, ~ and env vars allowed) to absolute file paths.
// Patterns without a match and paths that don't exist are skipped with a warning.
func ExpandPaths(patterns []string, pathModifier pathutil.PathModifier, pathChecker pathutil.PathChecker, logger log.Logger) ([]string, error) {
	var expandedPaths []string
	for _, pattern := range patterns {
		if !strings.Contains(pattern, "*") {
			expandedPaths = append(expandedPaths, pattern)
			continue
		}

		base, glob := doublestar.SplitPattern(pattern)
		absBase, err := pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), glob, doublestar.WithNoFollow(), doublestar.WithFilesOnly())
		if err != nil {
			logger.Warnf("Error in path pattern '%s': %s", pattern, err)
			continue
		}
		if len(matches) == 0 {
			logger.Warnf("No match for path pattern: %s", pattern)
			continue
		}

		for _, match := range matches {
			expandedPaths = append(expandedPaths, filepath.Join(absBase, match))
		}
	}

	var finalPaths []string
	seen := map[string]bool{}
	for _, pth := range expandedPaths {
		absPath, err := pathModifier.AbsPath(pth)
		if err != nil {
			logger.Warnf("Failed to parse path %s, error: %s", pth, err)
			continue
		}

		exists, err := pathChecker.IsPathExists(absPath)
		if err != nil {
			logger.Warnf("Failed to check path %s, error: %s", absPath, err)
		}
		if !exists {
			logger.Warnf("Path doesn't exist: %s", pth)
			continue
		}

		isDir, err := pathChecker.IsDirExists(absPath)
		if err == nil && isDir {
			logger.Warnf("Skipping directory: %s", pth)
			continue
		}

		if seen[absPath] {
			continue
		}
		seen[absPath] = true
		finalPaths = append(finalPaths, absPath)
	}

	return finalPaths, nil
}
