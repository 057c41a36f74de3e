// Package fsaccess provides FSAccess implementations: a real
// filesystem-backed one for production runs, and an in-memory one for
// tests, so loadContents/directory-listing behavior can be exercised
// without touching disk.
package fsaccess

import (
	"context"
	"fmt"
	"os"

	"github.com/cwlgo/wfcore/workflow"
)

// LocalFS implements workflow.FSAccess against the local filesystem.
// Location values are plain paths; no URI scheme handling is
// attempted, since resolving staging/URI schemes is an explicit
// non-goal of the core.
type LocalFS struct{}

func (LocalFS) Open(_ context.Context, location string) (workflow.ReadCloser, error) {
	return os.Open(location)
}

func (LocalFS) Listing(_ context.Context, dir string) ([]any, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, &workflow.DirRef{Location: dir + "/" + e.Name()})
		} else {
			out = append(out, &workflow.FileRef{Location: dir + "/" + e.Name()})
		}
	}
	return out, nil
}
