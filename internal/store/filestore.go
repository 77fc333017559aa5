// Package store provides flat-file JSON document storage for the TripWise
// platform. Every collection (country records, user accounts, pending
// signups) is one named JSON resource under a fixed root directory.
//
// The store offers read-with-fallback semantics: reading a resource that does
// not exist yet is not an error, the caller's preloaded value stands in as
// the empty collection. Writes always replace the whole document atomically
// (temp file + rename). Read-modify-write sequences go through Update, which
// serializes access per resource name so concurrent mutations of the same
// document cannot lose writes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tripwise/internal/types"
)

// resourceExt is the only file extension the store serves. Names supplied by
// untrusted input are rejected unless they carry it.
const resourceExt = ".json"

// ErrUnchanged can be returned by an Update mutation function to signal that
// the document does not need to be persisted. Update then returns nil
// without writing.
var ErrUnchanged = errors.New("store: document unchanged")

// FileStore stores JSON documents under a root directory.
//
// All exported methods are safe for concurrent use. Update additionally
// guarantees mutual exclusion per resource name, so two concurrent Updates
// of the same document run one after the other, each seeing the other's
// completed write.
type FileStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a FileStore rooted at the given directory. The
// directory must already exist; the store never creates its own root.
func NewFileStore(root string) (*FileStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("store root %q is not accessible", root), err)
	}
	if !info.IsDir() {
		return nil, types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("store root %q is not a directory", root), nil)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore,
			"failed to resolve store root", err)
	}

	return &FileStore{
		root:  abs,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the absolute root directory of the store.
func (s *FileStore) Root() string {
	return s.root
}

// resolve validates a resource name and maps it to an absolute path under
// the store root. Names arrive from untrusted input (HTTP path parameters),
// so resolution rejects anything that does not end in .json or whose cleaned
// path would escape the root.
func (s *FileStore) resolve(name string) (string, error) {
	if !strings.HasSuffix(name, resourceExt) {
		return "", types.NewAppError(types.ErrCodeValidationInvalidResource,
			fmt.Sprintf("resource name %q must end in %s", name, resourceExt), nil)
	}

	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", types.NewAppError(types.ErrCodeValidationInvalidResource,
			fmt.Sprintf("resource name %q escapes the store root", name), nil)
	}

	abs := filepath.Join(s.root, cleaned)

	// Join cleans again; re-check the result is still under the root.
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", types.NewAppError(types.ErrCodeValidationInvalidResource,
			fmt.Sprintf("resource name %q escapes the store root", name), nil)
	}

	return abs, nil
}

// lockFor returns the mutex dedicated to a resource name, creating it on
// first use. Lock identity is keyed by the cleaned path so spelling variants
// of the same name share one lock.
func (s *FileStore) lockFor(name string) *sync.Mutex {
	key := filepath.Clean(filepath.FromSlash(name))

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Read loads the named resource into out. If the resource does not exist,
// out is left untouched and Read reports found=false; callers preload out
// with their fallback value (typically an empty collection). Any other I/O
// or parse failure is an error: a document that exists but cannot be decoded
// must never be silently treated as empty.
func (s *FileStore) Read(ctx context.Context, name string, out any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, err := s.resolve(name)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("failed to read resource %q", name), err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("resource %q holds invalid JSON", name), err)
	}

	return true, nil
}

// Write replaces the named resource with the JSON encoding of doc. The
// document is written to a temporary file in the target directory and
// renamed into place, so readers never observe a partially written file.
// Parent directories are created as needed.
func (s *FileStore) Write(ctx context.Context, name string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.resolve(name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("failed to encode resource %q", name), err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("failed to create directory for resource %q", name), err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*"+resourceExt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("failed to create temp file for resource %q", name), err)
	}
	tmpName := tmp.Name()

	// On any failure past this point the temp file must not survive.
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("failed to write resource %q", name), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("failed to sync resource %q", name), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("failed to close temp file for resource %q", name), err)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("failed to set permissions on resource %q", name), err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("failed to replace resource %q", name), err)
	}

	return nil
}

// Update runs a read-modify-write sequence on the named resource while
// holding that resource's lock. doc is loaded via Read (left untouched when
// the resource does not exist), then fn is invoked with the found flag and
// may mutate doc in place. When fn returns nil the document is persisted;
// when fn returns ErrUnchanged nothing is written and Update returns nil;
// any other error aborts the update without writing.
func (s *FileStore) Update(ctx context.Context, name string, doc any, fn func(found bool) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Validate the name before taking the lock so traversal attempts never
	// allocate lock state.
	if _, err := s.resolve(name); err != nil {
		return err
	}

	l := s.lockFor(name)
	l.Lock()
	defer l.Unlock()

	found, err := s.Read(ctx, name, doc)
	if err != nil {
		return err
	}

	if err := fn(found); err != nil {
		if errors.Is(err, ErrUnchanged) {
			return nil
		}
		return err
	}

	return s.Write(ctx, name, doc)
}

// List returns the resource names of all JSON documents directly under the
// given subdirectory of the store root, sorted lexically. The returned names
// are relative to the root and valid inputs for Read/Write/Update. A missing
// subdirectory yields an empty list, mirroring read-with-fallback semantics.
func (s *FileStore) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reuse resource validation by probing a synthetic name inside dir.
	if _, err := s.resolve(filepath.ToSlash(filepath.Join(dir, "probe"+resourceExt))); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(dir)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalStore,
			fmt.Sprintf("failed to list resources under %q", dir), err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), resourceExt) {
			continue
		}
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			continue // in-flight atomic write
		}
		names = append(names, filepath.ToSlash(filepath.Join(dir, entry.Name())))
	}

	return names, nil
}
