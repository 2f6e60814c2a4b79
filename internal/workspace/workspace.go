// Package workspace manages the shared scratch directory where submitted
// sources and their compiled binaries live for the duration of one request.
//
// Entries are named with a random UUID, so concurrent requests never collide
// and no locking is needed around the directory.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/itstheanurag/coderunner/internal/metrics"
)

// DirName is the scratch directory created under the host temp root.
const DirName = "code_runner"

// Workspace is the process-wide scratch directory. It is created once at
// startup and never torn down while serving.
type Workspace struct {
	Root string

	live atomic.Int64
}

// New creates the scratch root if it does not exist.
func New(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving scratch root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("creating scratch root: %w", err)
	}
	return &Workspace{Root: abs}, nil
}

// DefaultRoot returns <os temp dir>/code_runner.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), DirName)
}

// Materialize writes source verbatim into a freshly named file with the
// given extension and returns the entry owning it.
func (w *Workspace) Materialize(ext, source string) (*Entry, error) {
	id := uuid.New().String()
	path := filepath.Join(w.Root, id+"."+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating source file: %w", err)
	}
	if _, err := f.WriteString(source); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing source file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("closing source file: %w", err)
	}

	w.live.Add(1)
	metrics.WorkspaceEntries.Inc()

	return &Entry{
		ws:       w,
		Source:   path,
		Artifact: strings.TrimSuffix(path, "."+ext),
	}, nil
}

// Destroy removes path. A file that is already gone is not an error.
func (w *Workspace) Destroy(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Live returns the number of entries materialized and not yet released.
func (w *Workspace) Live() int64 {
	return w.live.Load()
}

// Sweep removes files left in the scratch root by a previous process, e.g.
// one that crashed mid-request. Only regular files named like an entry
// (a UUID, optionally with an extension) are touched, so a misconfigured
// root never loses unrelated data. Call it before serving starts.
func (w *Workspace) Sweep() (int, error) {
	entries, err := os.ReadDir(w.Root)
	if err != nil {
		return 0, fmt.Errorf("reading scratch root: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !ownedName(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(w.Root, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("removing scratch entry %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// ownedName reports whether name has the shape Materialize produces.
func ownedName(name string) bool {
	stem, _, _ := strings.Cut(name, ".")
	if len(stem) != 36 {
		return false
	}
	_, err := uuid.Parse(stem)
	return err == nil
}

// Entry is one request's share of the scratch directory: the submitted
// source and the binary compiled from it.
type Entry struct {
	ws       *Workspace
	Source   string
	Artifact string

	once sync.Once
	err  error
}

// DiscardSource deletes the source file once compilation no longer needs it.
func (e *Entry) DiscardSource() error {
	return e.ws.Destroy(e.Source)
}

// Release deletes every file the entry owns. Safe to call more than once.
func (e *Entry) Release() error {
	e.once.Do(func() {
		e.err = errors.Join(e.ws.Destroy(e.Source), e.ws.Destroy(e.Artifact))
		e.ws.live.Add(-1)
		metrics.WorkspaceEntries.Dec()
	})
	return e.err
}
