package source

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	rlerrors "github.com/routelens/routelens/pkg/errors"
)

// Local serves files from one directory. Subdirectories are not listed.
type Local struct {
	dir string
}

// NewLocal returns a Source over dir.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// Dir returns the directory being served.
func (l *Local) Dir() string { return l.dir }

func (l *Local) String() string { return "local:" + l.dir }

// Path returns the on-disk path for name.
func (l *Local) Path(name string) string {
	return filepath.Join(l.dir, name)
}

// ReadText reads name, falling back to name.gz when only the compressed
// file exists.
func (l *Local) ReadText(ctx context.Context, name string) (string, error) {
	data, err := l.read(ctx, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadJSON reads name and decodes it into v.
func (l *Local) ReadJSON(ctx context.Context, name string, v any) error {
	data, err := l.read(ctx, name)
	if err != nil {
		return err
	}
	return decodeJSON(name, data, v)
}

func (l *Local) read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, rlerrors.ContextCanceled("read " + name)
	}

	path := l.Path(name)
	f, err := os.Open(path)
	gzipped := IsGzip(name)
	if errors.Is(err, fs.ErrNotExist) && !gzipped {
		f, err = os.Open(path + ".gz")
		gzipped = true
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, rlerrors.FileNotFound(path)
		}
		return nil, rlerrors.ReadFailed(path, err)
	}
	defer f.Close()

	data, err := readAll(f, gzipped)
	if err != nil {
		return nil, rlerrors.ReadFailed(path, err)
	}
	return data, nil
}

// ListFiles lists regular files whose uncompressed name matches pattern.
// A file present both plain and compressed is listed once.
func (l *Local) ListFiles(ctx context.Context, pattern *regexp.Regexp) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, rlerrors.ContextCanceled("list " + l.dir)
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, rlerrors.FileNotFound(l.dir)
		}
		return nil, rlerrors.ReadFailed(l.dir, err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := StripCompression(e.Name())
		if seen[name] || !pattern.MatchString(name) {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// OpenFile opens a single file for streaming, decompressing it when the
// name ends in .gz. Closing the result closes the underlying file.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, rlerrors.FileNotFound(path)
		}
		return nil, rlerrors.ReadFailed(path, err)
	}
	if !IsGzip(path) {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, rlerrors.ReadFailed(path, err)
	}
	return &gzipFile{Reader: gz, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	g.Reader.Close()
	return g.file.Close()
}
