// Package relocation moves duplicate files out of the scanned tree.
package relocation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/steveyegge/dupsweep/internal/embedding"
)

// maxNameAttempts bounds the collision suffix search.
const maxNameAttempts = 10000

// Relocator performs the filesystem side of a handoff.
type Relocator interface {
	// Relocate places a copy of src in the target location and returns
	// where it went.
	Relocate(ctx context.Context, src embedding.FileID) (string, error)

	// RemoveSource deletes src after a successful Relocate.
	RemoveSource(ctx context.Context, src embedding.FileID) error
}

// FileRelocator copies files into a single flat target directory. Name
// collisions get a numeric suffix: photo.jpg, photo_1.jpg, photo_2.jpg.
type FileRelocator struct {
	fs     afero.Fs
	target string
	dryRun bool

	mu       sync.Mutex
	reserved map[string]struct{} // Destinations handed out in this process
}

var _ Relocator = (*FileRelocator)(nil)

// NewFileRelocator creates the target directory if needed. In dry-run mode
// nothing on fs is changed, including the target directory.
func NewFileRelocator(fs afero.Fs, target string, dryRun bool) (*FileRelocator, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if target == "" {
		return nil, fmt.Errorf("target directory is required")
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target %s: %w", target, err)
	}

	if info, err := fs.Stat(abs); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("target %s is not a directory", abs)
		}
	} else if !dryRun {
		if err := fs.MkdirAll(abs, 0755); err != nil {
			return nil, fmt.Errorf("failed to create target %s: %w", abs, err)
		}
	}

	return &FileRelocator{
		fs:       fs,
		target:   abs,
		dryRun:   dryRun,
		reserved: make(map[string]struct{}),
	}, nil
}

// Target returns the absolute target directory.
func (r *FileRelocator) Target() string {
	return r.target
}

// Relocate copies src into the target directory and preserves its mode and
// modification time.
func (r *FileRelocator) Relocate(ctx context.Context, src embedding.FileID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := r.fs.Stat(string(src))
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", src)
	}

	if r.dryRun {
		return r.reserve(filepath.Base(string(src)), nil)
	}

	var dst afero.File
	dest, err := r.reserve(filepath.Base(string(src)), func(path string) error {
		f, err := r.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
		if err != nil {
			return err
		}
		dst = f
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := r.copyInto(dst, string(src)); err != nil {
		_ = r.fs.Remove(dest)
		return "", fmt.Errorf("failed to copy %s to %s: %w", src, dest, err)
	}
	_ = r.fs.Chtimes(dest, info.ModTime(), info.ModTime())
	return dest, nil
}

// RemoveSource deletes src. In dry-run mode it only checks that src exists.
func (r *FileRelocator) RemoveSource(ctx context.Context, src embedding.FileID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.dryRun {
		if _, err := r.fs.Stat(string(src)); err != nil {
			return fmt.Errorf("failed to stat %s: %w", src, err)
		}
		return nil
	}
	if err := r.fs.Remove(string(src)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", src, err)
	}
	return nil
}

// reserve picks the first free name for base in the target directory. create,
// if set, must create the file exclusively; an os.ErrExist from it moves on
// to the next candidate.
func (r *FileRelocator) reserve(base string, create func(path string) error) (string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	r.mu.Lock()
	defer r.mu.Unlock()

	for n := 0; n < maxNameAttempts; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		path := filepath.Join(r.target, name)

		if _, taken := r.reserved[path]; taken {
			continue
		}
		if _, err := r.fs.Stat(path); err == nil {
			continue
		}
		if create != nil {
			if err := create(path); err != nil {
				if errors.Is(err, os.ErrExist) {
					continue
				}
				return "", fmt.Errorf("failed to create %s: %w", path, err)
			}
		}
		r.reserved[path] = struct{}{}
		return path, nil
	}
	return "", fmt.Errorf("no free name for %s in %s after %d attempts", base, r.target, maxNameAttempts)
}

func (r *FileRelocator) copyInto(dst afero.File, src string) error {
	in, err := r.fs.Open(src)
	if err != nil {
		_ = dst.Close()
		return err
	}
	defer in.Close()

	if _, err := io.Copy(dst, in); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}
