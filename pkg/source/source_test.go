package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/routelens/routelens/pkg/config"
	rlerrors "github.com/routelens/routelens/pkg/errors"
)

var baseLogPattern = regexp.MustCompile(`^TrRAt_([a-zA-Z0-9_\s-]+?)_base\.log$`)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeFiles(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLocal_ReadText(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		"TrRAt_alpha_base.log":   []byte("plain"),
		"TrRAt_beta_base.log.gz": gzipBytes(t, "compressed"),
		"TrRAt_alpha_OW_x.json":  []byte(`{"a": 1}`),
		"TrRAt_broken_OW_x.json": []byte(`{"a": `),
	})
	src := NewLocal(dir)
	ctx := context.Background()

	got, err := src.ReadText(ctx, "TrRAt_alpha_base.log")
	if err != nil || got != "plain" {
		t.Errorf("ReadText(alpha) = %q, %v", got, err)
	}

	got, err = src.ReadText(ctx, "TrRAt_beta_base.log")
	if err != nil || got != "compressed" {
		t.Errorf("ReadText(beta) = %q, %v; want gz fallback", got, err)
	}

	_, err = src.ReadText(ctx, "TrRAt_gamma_base.log")
	if !rlerrors.IsNotFound(err) {
		t.Errorf("ReadText(missing) error = %v, want not found", err)
	}

	var v map[string]int
	if err := src.ReadJSON(ctx, "TrRAt_alpha_OW_x.json", &v); err != nil || v["a"] != 1 {
		t.Errorf("ReadJSON() = %v, %v", v, err)
	}
	if err := src.ReadJSON(ctx, "TrRAt_broken_OW_x.json", &v); !rlerrors.IsCode(err, rlerrors.CodeJSONParse) {
		t.Errorf("ReadJSON(broken) error = %v, want %s", err, rlerrors.CodeJSONParse)
	}
}

func TestLocal_ListFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		"TrRAt_b_base.log":    nil,
		"TrRAt_a_base.log":    nil,
		"TrRAt_a_base.log.gz": gzipBytes(t, ""),
		"TrRAt_c_base.log.gz": gzipBytes(t, ""),
		"notes.txt":           nil,
	})
	if err := os.Mkdir(filepath.Join(dir, "TrRAt_sub_base.log"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := NewLocal(dir).ListFiles(context.Background(), baseLogPattern)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	want := []string{"TrRAt_a_base.log", "TrRAt_b_base.log", "TrRAt_c_base.log"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListFiles() mismatch (-want +got):\n%s", diff)
	}

	_, err = NewLocal(filepath.Join(dir, "nope")).ListFiles(context.Background(), baseLogPattern)
	if !rlerrors.IsNotFound(err) {
		t.Errorf("ListFiles(missing dir) error = %v, want not found", err)
	}
}

func TestLocal_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocal(t.TempDir()).ReadText(ctx, "x")
	if !rlerrors.IsCode(err, rlerrors.CodeContextCanceled) {
		t.Errorf("ReadText() error = %v, want canceled", err)
	}
}

func TestRelativeName(t *testing.T) {
	tests := []struct {
		prefix, key string
		want        string
		ok          bool
	}{
		{"logs/", "logs/TrRAt_a_base.log", "TrRAt_a_base.log", true},
		{"logs/", "logs/old/TrRAt_a_base.log", "", false},
		{"logs/", "logs/", "", false},
		{"logs/", "other/TrRAt_a_base.log", "", false},
		{"", "TrRAt_a_base.log", "TrRAt_a_base.log", true},
	}
	for _, tt := range tests {
		got, ok := relativeName(tt.prefix, tt.key)
		if got != tt.want || ok != tt.ok {
			t.Errorf("relativeName(%q, %q) = %q, %v; want %q, %v", tt.prefix, tt.key, got, ok, tt.want, tt.ok)
		}
	}
}

// fakeS3 answers path-style ListObjectsV2 and GetObject requests for one bucket.
func fakeS3(t *testing.T, bucket string, objects map[string][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/"+bucket)
		if path == "" || path == "/" {
			prefix := r.URL.Query().Get("prefix")
			var sb strings.Builder
			sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
			fmt.Fprintf(&sb, "<Name>%s</Name><Prefix>%s</Prefix><IsTruncated>false</IsTruncated>", bucket, prefix)
			for key, data := range objects {
				if strings.HasPrefix(key, prefix) {
					fmt.Fprintf(&sb, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", key, len(data))
				}
			}
			sb.WriteString("</ListBucketResult>")
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(sb.String()))
			return
		}

		data, ok := objects[strings.TrimPrefix(path, "/")]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		_, _ = w.Write(data)
	}))
}

func TestS3_ReadAndList(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	srv := fakeS3(t, "trade-logs", map[string][]byte{
		"prod/TrRAt_alpha_base.log":                  []byte("alpha log"),
		"prod/TrRAt_beta_base.log.gz":                gzipBytes(t, "beta log"),
		"prod/archive/TrRAt_x_base.log":              []byte("old"),
		"prod/TrRAt_alpha_OW_remaining-deficit.json": []byte(`{"ok": true}`),
	})
	defer srv.Close()

	ctx := context.Background()
	src, err := New(ctx, config.SourceConfig{
		Kind:            config.SourceS3,
		Bucket:          "trade-logs",
		Prefix:          "/prod/",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		UsePathStyle:    true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if src.String() != "s3://trade-logs/prod/" {
		t.Errorf("String() = %q", src.String())
	}

	names, err := src.ListFiles(ctx, baseLogPattern)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if diff := cmp.Diff([]string{"TrRAt_alpha_base.log", "TrRAt_beta_base.log"}, names); diff != "" {
		t.Errorf("ListFiles() mismatch (-want +got):\n%s", diff)
	}

	text, err := src.ReadText(ctx, "TrRAt_alpha_base.log")
	if err != nil || text != "alpha log" {
		t.Errorf("ReadText(alpha) = %q, %v", text, err)
	}
	text, err = src.ReadText(ctx, "TrRAt_beta_base.log")
	if err != nil || text != "beta log" {
		t.Errorf("ReadText(beta) = %q, %v", text, err)
	}

	var v struct{ OK bool }
	if err := src.ReadJSON(ctx, "TrRAt_alpha_OW_remaining-deficit.json", &v); err != nil || !v.OK {
		t.Errorf("ReadJSON() = %+v, %v", v, err)
	}

	if _, err := src.ReadText(ctx, "TrRAt_gamma_base.log"); !rlerrors.IsNotFound(err) {
		t.Errorf("ReadText(missing) error = %v, want not found", err)
	}
}

func TestNew(t *testing.T) {
	src, err := New(context.Background(), config.SourceConfig{Dir: "/data"})
	if err != nil {
		t.Fatalf("New(local) error = %v", err)
	}
	if l, ok := src.(*Local); !ok || l.Dir() != "/data" {
		t.Errorf("New(local) = %v", src)
	}

	if _, err := New(context.Background(), config.SourceConfig{Kind: "ftp"}); !rlerrors.IsCode(err, rlerrors.CodeConfig) {
		t.Errorf("New(ftp) error = %v, want config error", err)
	}
	if _, err := New(context.Background(), config.SourceConfig{Kind: config.SourceS3}); !rlerrors.IsCode(err, rlerrors.CodeConfig) {
		t.Errorf("New(s3 without bucket) error = %v, want config error", err)
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	plainPath := filepath.Join(dir, "plain.log")
	gzPath := filepath.Join(dir, "packed.log.gz")
	if err := os.WriteFile(plainPath, []byte("one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(gzPath, gzipBytes(t, "two\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for path, want := range map[string]string{plainPath: "one\n", gzPath: "two\n"} {
		rc, err := OpenFile(path)
		if err != nil {
			t.Fatalf("OpenFile(%s) error = %v", path, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil || string(data) != want {
			t.Errorf("OpenFile(%s) read %q, %v; want %q", path, data, err, want)
		}
	}

	if _, err := OpenFile(filepath.Join(dir, "missing.log")); !rlerrors.IsNotFound(err) {
		t.Errorf("missing file error = %v, want FileNotFound", err)
	}
}
