package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/klauspost/compress/gzip"
)

// Source opens the compressed dump file for a table and returns a decoder
// ready to stream decompressed bytes.
type Source interface {
	Open(ctx context.Context, table string) (io.ReadCloser, error)
}

// LocalSource reads "{table}.sql.gz" files from a directory on local disk.
type LocalSource struct {
	Dir string
}

// Open implements Source.
func (s LocalSource) Open(_ context.Context, table string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir, table+".sql.gz"))
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", table, err)
	}
	return wrapGzip(f)
}

// GCSSource reads "{prefix}/{table}.sql.gz" objects from a Google Cloud
// Storage bucket.
type GCSSource struct {
	Client *storage.Client
	Bucket string
	Prefix string
}

// Open implements Source.
func (s GCSSource) Open(ctx context.Context, table string) (io.ReadCloser, error) {
	name := table + ".sql.gz"
	if s.Prefix != "" {
		name = s.Prefix + "/" + name
	}
	r, err := s.Client.Bucket(s.Bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest: open gs://%s/%s: %w", s.Bucket, name, err)
	}
	return wrapGzip(r)
}

// gzipReadCloser wraps a gzip.Reader together with the underlying
// compressed stream so both are closed together.
type gzipReadCloser struct {
	gz  *gzip.Reader
	src io.Closer
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	srcErr := g.src.Close()
	if gzErr != nil {
		return gzErr
	}
	return srcErr
}

func wrapGzip(src io.ReadCloser) (io.ReadCloser, error) {
	gz, err := gzip.NewReader(src)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("ingest: open gzip stream: %w", err)
	}
	return &gzipReadCloser{gz: gz, src: src}, nil
}
