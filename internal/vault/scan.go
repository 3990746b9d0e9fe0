package vault

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jamesshedden/clawcontrol-openclaw/pkg/protocol"
)

// DocExt is the recognized document extension. Only files carrying it are
// scanned, watched, or synchronized.
const DocExt = ".md"

// Scan walks root recursively and collects every document file as a
// (relative path, content) pair. Dot-prefixed files and directories are
// excluded; unreadable files are skipped, not fatal. Paths are returned
// forward-slash separated.
func Scan(root string, log *zap.Logger) ([]protocol.FileEntry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var files []protocol.FileEntry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// an unreadable root is fatal; anything below it is skipped
			if path == root {
				return err
			}
			log.Warn("scan: skipping unreadable entry", zap.String("path", path), zap.Error(err))
			return nil
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(d.Name()) != DocExt {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			log.Warn("scan: skipping unreadable file", zap.String("path", path), zap.Error(readErr))
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		files = append(files, protocol.FileEntry{
			Path:    filepath.ToSlash(rel),
			Content: string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
