package fsaccess

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/cwlgo/wfcore/workflow"
)

// MemFS is an in-memory workflow.FSAccess for tests: Files map a
// location to its byte content, Dirs map a location to its listing.
type MemFS struct {
	Files map[string][]byte
	Dirs  map[string][]any
}

// NewMemFS builds an empty MemFS.
func NewMemFS() *MemFS {
	return &MemFS{Files: make(map[string][]byte), Dirs: make(map[string][]any)}
}

func (m *MemFS) Open(_ context.Context, location string) (workflow.ReadCloser, error) {
	data, ok := m.Files[location]
	if !ok {
		return nil, fmt.Errorf("memfs: no such file %q", location)
	}
	return readCloser{bytes.NewReader(data)}, nil
}

func (m *MemFS) Listing(_ context.Context, dir string) ([]any, error) {
	listing, ok := m.Dirs[dir]
	if !ok {
		return nil, fmt.Errorf("memfs: no such directory %q", dir)
	}
	return listing, nil
}

type readCloser struct {
	io.Reader
}

func (readCloser) Close() error { return nil }
