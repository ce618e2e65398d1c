package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
)

// Snapshot is the set of currently tracked files for one repository,
// path (relative, slash-separated) to byte content.
type Snapshot struct {
	RepoID string
	Files  map[string][]byte
}

// Paths returns the snapshot's file paths in sorted order.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// MaxSnapshotFileSize caps how large a file the snapshot loader reads.
const MaxSnapshotFileSize = 2 << 20 // 2 MiB

// LoadSnapshot builds a snapshot from a directory tree. Hidden directories
// and oversized files are skipped; unreadable files are skipped silently
// since reconcile reports per-file problems itself.
func LoadSnapshot(repoID, root string) (*Snapshot, error) {
	snap := &Snapshot{RepoID: repoID, Files: make(map[string][]byte)}

	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: false,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			name := de.Name()
			if de.IsDir() {
				if strings.HasPrefix(name, ".") && osPathname != root {
					return filepath.SkipDir
				}
				return nil
			}
			if !de.IsRegular() || strings.HasPrefix(name, ".") {
				return nil
			}

			info, err := os.Stat(osPathname)
			if err != nil || info.Size() > MaxSnapshotFileSize {
				return nil
			}

			content, err := os.ReadFile(osPathname)
			if err != nil {
				return nil
			}

			rel, err := filepath.Rel(root, osPathname)
			if err != nil {
				return err
			}
			snap.Files[filepath.ToSlash(rel)] = content
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return snap, nil
}
