// Package source abstracts where profile files live. A Source reads base
// logs and JSON profile files by name and lists the names it holds; the
// local implementation reads a directory, the S3 implementation a bucket
// prefix. Compressed (.gz) files are served under their uncompressed name.
package source

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"github.com/routelens/routelens/pkg/config"
	rlerrors "github.com/routelens/routelens/pkg/errors"
)

// Source reads profile files by name.
type Source interface {
	// ReadText returns the whole content of name. A missing file yields an
	// error for which errors.IsNotFound reports true.
	ReadText(ctx context.Context, name string) (string, error)

	// ReadJSON decodes name into v.
	ReadJSON(ctx context.Context, name string, v any) error

	// ListFiles returns the sorted names matching pattern.
	ListFiles(ctx context.Context, pattern *regexp.Regexp) ([]string, error)

	// String describes the location, for logs.
	String() string
}

// New builds the Source selected by cfg.
func New(ctx context.Context, cfg config.SourceConfig) (Source, error) {
	switch cfg.Kind {
	case config.SourceS3:
		return NewS3(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			UsePathStyle:    cfg.UsePathStyle,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	case config.SourceLocal, "":
		return NewLocal(cfg.Dir), nil
	default:
		return nil, rlerrors.New(rlerrors.CodeConfig, "unknown source kind").
			WithContext("kind", cfg.Kind)
	}
}

// IsGzip reports whether name carries the gzip extension.
func IsGzip(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".gz")
}

// StripCompression removes a trailing .gz from name.
func StripCompression(name string) string {
	if IsGzip(name) {
		return name[:len(name)-3]
	}
	return name
}

// readAll reads r, decompressing it when gzipped is set.
func readAll(r io.Reader, gzipped bool) ([]byte, error) {
	if !gzipped {
		return io.ReadAll(r)
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

func decodeJSON(name string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return rlerrors.JSONParse(name, err)
	}
	return nil
}
