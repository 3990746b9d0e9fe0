package vault

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// writeTree creates files under root from relative path -> content.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func TestScan_FiltersAndRecurses(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md":         "alpha",
		".hidden/b.md": "hidden",
		"c.txt":        "not a document",
		"sub/d.md":     "delta",
		".dotfile.md":  "dot",
	})

	files, err := Scan(root, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)

	want := []string{"a.md", "sub/d.md"}
	if len(paths) != len(want) {
		t.Fatalf("expected paths %v, got %v", want, paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("expected paths %v, got %v", want, paths)
		}
	}
}

func TestScan_ReadsContent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"note.md": "body text"})

	files, err := Scan(root, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].Content != "body text" {
		t.Errorf("expected content %q, got %q", "body text", files[0].Content)
	}
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "absent"), nil)
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestScan_EmptyVault(t *testing.T) {
	files, err := Scan(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %d", len(files))
	}
}
