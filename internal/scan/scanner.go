// Package scan finds candidate image files under one or more roots.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/steveyegge/dupsweep/internal/embedding"
)

// Options controls which files a scan returns.
type Options struct {
	// Extensions are matched case-insensitively against the file suffix.
	Extensions []string

	// ExcludePatterns for files/directories to skip. Patterns containing glob
	// metacharacters are matched against the base name; others match at
	// path component boundaries relative to the root.
	ExcludePatterns []string

	// Recursive descends into subdirectories (default: true)
	Recursive bool

	// IncludeHidden keeps dot-files and dot-directories
	IncludeHidden bool

	// SkipDirs are absolute directories never entered, typically the
	// relocation target.
	SkipDirs []string
}

// DefaultOptions returns options matching common photo formats.
func DefaultOptions() Options {
	return Options{
		Extensions: []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tif", ".tiff"},
		Recursive:  true,
	}
}

// Result is the outcome of a scan.
type Result struct {
	// Files are absolute, de-duplicated and sorted.
	Files []embedding.FileID

	// Warnings are per-entry errors that did not stop the walk.
	Warnings []error
}

// Scanner walks directories on a filesystem.
type Scanner struct {
	fs   afero.Fs
	opts Options
	exts map[string]struct{}
	skip map[string]struct{}
}

// New creates a scanner over fs.
func New(fs afero.Fs, opts Options) (*Scanner, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if len(opts.Extensions) == 0 {
		return nil, fmt.Errorf("at least one extension is required")
	}

	s := &Scanner{
		fs:   fs,
		opts: opts,
		exts: make(map[string]struct{}, len(opts.Extensions)),
		skip: make(map[string]struct{}, len(opts.SkipDirs)),
	}
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.exts[ext] = struct{}{}
	}
	for _, dir := range opts.SkipDirs {
		if abs, err := filepath.Abs(dir); err == nil {
			s.skip[filepath.Clean(abs)] = struct{}{}
		}
	}
	return s, nil
}

// Scan walks every root and returns the matching files. A root that does not
// exist or is not a directory is an error; unreadable entries below a root
// are reported as warnings.
func (s *Scanner) Scan(ctx context.Context, roots ...string) (*Result, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one root directory is required")
	}

	seen := make(map[embedding.FileID]struct{})
	res := &Result{}

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
		}
		info, err := s.fs.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to stat root %s: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("root %s is not a directory", root)
		}

		if err := s.walk(ctx, abs, seen, res); err != nil {
			return nil, err
		}
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i] < res.Files[j] })
	return res, nil
}

func (s *Scanner) walk(ctx context.Context, root string, seen map[embedding.FileID]struct{}, res *Result) error {
	return afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Errorf("%s: %w", path, err))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == root {
			return nil
		}

		if info.IsDir() {
			if _, skip := s.skip[filepath.Clean(path)]; skip {
				return filepath.SkipDir
			}
			if !s.opts.Recursive {
				return filepath.SkipDir
			}
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if s.excluded(relPath, info) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		if _, ok := s.exts[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		id := embedding.FileID(path)
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			res.Files = append(res.Files, id)
		}
		return nil
	})
}

func (s *Scanner) excluded(relPath string, info os.FileInfo) bool {
	name := info.Name()
	if !s.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return shouldExcludePath(filepath.ToSlash(relPath), name, s.opts.ExcludePatterns)
}

// shouldExcludePath matches patterns at path component boundaries so that
// "raw/" matches "raw/img.png" but not "rawhide/img.png".
func shouldExcludePath(relPath, name string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.ContainsAny(pattern, "*?[") {
			if ok, _ := filepath.Match(pattern, name); ok {
				return true
			}
			continue
		}
		dir := strings.TrimSuffix(pattern, "/")
		if relPath == dir ||
			strings.HasPrefix(relPath, pattern) ||
			strings.Contains(relPath, "/"+pattern) ||
			strings.HasSuffix(relPath, "/"+dir) {
			return true
		}
	}
	return false
}
