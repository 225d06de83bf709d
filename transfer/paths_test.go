package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"review/intro.mp4", "review/cut/final.mp4", "review/poster.png", "notes.pdf"} {
		pth := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(pth), 0700))
		require.NoError(t, os.WriteFile(pth, []byte(name), 0600))
	}

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{
			name:     "recursive glob",
			patterns: []string{filepath.Join(dir, "review", "**", "*.mp4")},
			want:     []string{filepath.Join(dir, "review/cut/final.mp4"), filepath.Join(dir, "review/intro.mp4")},
		},
		{
			name:     "plain path",
			patterns: []string{filepath.Join(dir, "notes.pdf")},
			want:     []string{filepath.Join(dir, "notes.pdf")},
		},
		{
			name:     "missing paths and directories are skipped",
			patterns: []string{filepath.Join(dir, "missing.mov"), filepath.Join(dir, "review"), filepath.Join(dir, "*.mov")},
			want:     nil,
		},
		{
			name:     "duplicates are dropped",
			patterns: []string{filepath.Join(dir, "*.pdf"), filepath.Join(dir, "notes.pdf")},
			want:     []string{filepath.Join(dir, "notes.pdf")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPaths(tt.patterns, pathutil.NewPathModifier(), pathutil.NewPathChecker(), log.NewLogger())
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}
