package scan

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/steveyegge/dupsweep/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func photoTree(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, path := range []string{
		"/photos/a.jpg",
		"/photos/B.PNG",
		"/photos/notes.txt",
		"/photos/.hidden.jpg",
		"/photos/.cache/thumb.jpg",
		"/photos/2023/c.webp",
		"/photos/2023/raw/d.tiff",
		"/photos/rawhide/e.gif",
		"/photos/dupes/f.jpg",
		"/other/g.bmp",
	} {
		require.NoError(t, afero.WriteFile(fs, path, []byte("x"), 0644))
	}
	return fs
}

func TestScan(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		roots  []string
		want   []embedding.FileID
	}{
		{
			name:  "defaults",
			roots: []string{"/photos"},
			want: []embedding.FileID{
				"/photos/2023/c.webp", "/photos/2023/raw/d.tiff", "/photos/B.PNG",
				"/photos/a.jpg", "/photos/dupes/f.jpg", "/photos/rawhide/e.gif",
			},
		},
		{
			name:   "non recursive",
			mutate: func(o *Options) { o.Recursive = false },
			roots:  []string{"/photos"},
			want:   []embedding.FileID{"/photos/B.PNG", "/photos/a.jpg"},
		},
		{
			name:   "skip target dir",
			mutate: func(o *Options) { o.SkipDirs = []string{"/photos/dupes"} },
			roots:  []string{"/photos"},
			want: []embedding.FileID{
				"/photos/2023/c.webp", "/photos/2023/raw/d.tiff", "/photos/B.PNG",
				"/photos/a.jpg", "/photos/rawhide/e.gif",
			},
		},
		{
			name:   "exclude at component boundary",
			mutate: func(o *Options) { o.ExcludePatterns = []string{"raw/", "*.gif"} },
			roots:  []string{"/photos"},
			want: []embedding.FileID{
				"/photos/2023/c.webp", "/photos/B.PNG", "/photos/a.jpg", "/photos/dupes/f.jpg",
			},
		},
		{
			name:   "hidden included",
			mutate: func(o *Options) { o.IncludeHidden = true; o.Extensions = []string{"jpg"} },
			roots:  []string{"/photos"},
			want: []embedding.FileID{
				"/photos/.cache/thumb.jpg", "/photos/.hidden.jpg", "/photos/a.jpg", "/photos/dupes/f.jpg",
			},
		},
		{
			name:   "multiple roots with overlap",
			mutate: func(o *Options) { o.Extensions = []string{".bmp", ".webp"} },
			roots:  []string{"/other", "/photos", "/photos/2023"},
			want:   []embedding.FileID{"/other/g.bmp", "/photos/2023/c.webp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			s, err := New(photoTree(t), opts)
			require.NoError(t, err)

			res, err := s.Scan(context.Background(), tt.roots...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Files)
		})
	}
}

func TestScanRootErrors(t *testing.T) {
	fs := photoTree(t)
	s, err := New(fs, DefaultOptions())
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), "/missing")
	assert.ErrorContains(t, err, "failed to stat root")

	_, err = s.Scan(context.Background(), "/photos/a.jpg")
	assert.ErrorContains(t, err, "not a directory")

	_, err = s.Scan(context.Background())
	assert.Error(t, err)
}

func TestScanCanceled(t *testing.T) {
	s, err := New(photoTree(t), DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Scan(ctx, "/photos")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, DefaultOptions())
	assert.Error(t, err)

	_, err = New(afero.NewMemMapFs(), Options{})
	assert.ErrorContains(t, err, "extension")
}
