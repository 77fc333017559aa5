// Package main implements the snapshot CLI tool for the TripWise platform.
//
// It exports a data root into a single zstd-compressed tar archive and
// restores such archives into a fresh root. Snapshots are the backup and
// migration story for the flat-file catalog: one file, portable across
// hosts, safe to take while the API is stopped.
//
// Usage:
//
//	go run ./cmd/tools/snapshot export --data-root=./data --out=catalog.tar.zst
//	go run ./cmd/tools/snapshot restore --data-root=./data-new --in=catalog.tar.zst
package main

import (
	"archive/tar"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

// maxSnapshotEntrySize caps a single restored file. Catalog documents are
// small; anything near this size is a corrupt or hostile archive.
const maxSnapshotEntrySize = 64 << 20

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr *os.File) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	sub := args[0]
	fs := flag.NewFlagSet(sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataRoot := fs.String("data-root", "./data", "Directory holding the flat-file catalog")

	switch sub {
	case "export":
		out := fs.String("out", "catalog.tar.zst", "Path for the snapshot archive")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		count, err := exportSnapshot(*dataRoot, *out)
		if err != nil {
			logger.Error("export failed", "error", err)
			return 1
		}
		logger.Info("snapshot written", "path", *out, "files", count)
		return 0

	case "restore":
		in := fs.String("in", "catalog.tar.zst", "Snapshot archive to restore")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		count, err := restoreSnapshot(*in, *dataRoot)
		if err != nil {
			logger.Error("restore failed", "error", err)
			return 1
		}
		logger.Info("snapshot restored", "path", *dataRoot, "files", count)
		return 0

	default:
		fmt.Fprintf(stderr, "error: unknown subcommand %q\n\n", sub)
		usage(stderr)
		return 1
	}
}

func usage(w *os.File) {
	fmt.Fprintf(w, "TripWise Snapshot Tool\n\n")
	fmt.Fprintf(w, "Exports and restores flat-file catalog snapshots.\n\n")
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  snapshot export  --data-root=DIR [--out=PATH]\n")
	fmt.Fprintf(w, "  snapshot restore --data-root=DIR [--in=PATH]\n")
}

// snapshotEntry is one catalog file staged for archiving.
type snapshotEntry struct {
	rel  string
	mode int64
	data []byte
}

// exportSnapshot archives every regular file under root into a
// zstd-compressed tar at out. Files are loaded concurrently, then written
// in sorted order so identical roots produce identical archives.
func exportSnapshot(root, out string) (int, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking data root: %w", err)
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("data root %s contains no files", root)
	}

	entries := make([]snapshotEntry, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			entries[i] = snapshotEntry{
				rel:  filepath.ToSlash(rel),
				mode: int64(info.Mode().Perm()),
				data: data,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("reading catalog files: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return 0, fmt.Errorf("creating zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	for _, e := range entries {
		hdr := &tar.Header{
			Name: e.rel,
			Mode: e.mode,
			Size: int64(len(e.data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return 0, fmt.Errorf("writing header for %s: %w", e.rel, err)
		}
		if _, err := tw.Write(e.data); err != nil {
			return 0, fmt.Errorf("writing %s: %w", e.rel, err)
		}
	}

	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("finalizing tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finalizing zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing archive: %w", err)
	}
	return len(entries), nil
}

// restoreSnapshot unpacks a snapshot archive into root. The root must not
// already contain catalog files: restore never merges into a live catalog.
func restoreSnapshot(in, root string) (int, error) {
	if entries, err := os.ReadDir(root); err == nil && len(entries) > 0 {
		return 0, fmt.Errorf("refusing to restore into non-empty directory %s", root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return 0, fmt.Errorf("creating data root: %w", err)
	}

	f, err := os.Open(in)
	if err != nil {
		return 0, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	count := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > maxSnapshotEntrySize {
			return count, fmt.Errorf("entry %s exceeds size limit", hdr.Name)
		}

		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return count, err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return count, fmt.Errorf("creating directory for %s: %w", hdr.Name, err)
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxSnapshotEntrySize))
		if err != nil {
			return count, fmt.Errorf("reading %s: %w", hdr.Name, err)
		}
		mode := os.FileMode(hdr.Mode).Perm()
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(target, data, mode); err != nil {
			return count, fmt.Errorf("writing %s: %w", hdr.Name, err)
		}
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("archive %s contains no files", in)
	}
	return count, nil
}

// safeJoin resolves an archive entry name under root, rejecting absolute
// paths and traversal.
func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("unsafe entry name %q in archive", name)
	}
	return filepath.Join(root, clean), nil
}
