package core

import (
	"os"
	"path/filepath"
	"testing"
)

// tree describes files (string content) and directories (nested tree).
type tree map[string]any

// mkTree materializes layout under a fresh temp directory and returns it.
func mkTree(t *testing.T, layout tree) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, layout)
	return root
}

func writeTree(t *testing.T, base string, layout tree) {
	t.Helper()
	for name, v := range layout {
		path := filepath.Join(base, name)
		switch v := v.(type) {
		case string:
			if err := os.WriteFile(path, []byte(v), 0o644); err != nil {
				t.Fatalf("write %s: %v", path, err)
			}
		case tree:
			if err := os.Mkdir(path, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", path, err)
			}
			writeTree(t, path, v)
		default:
			t.Fatalf("unsupported entry %s: %T", name, v)
		}
	}
}

// writeFile creates a single file in its own temp directory.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	return filepath.Join(mkTree(t, tree{name: content}), name)
}
