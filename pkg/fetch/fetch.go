// Package fetch opens bulk source files (ontologies, mapping tables) from a
// URL or a local path, decompressing gzip transparently.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// DefaultClient is used for remote sources when no client is given.
// Bulk downloads can be large, so the timeout is generous.
var DefaultClient = &http.Client{Timeout: 10 * time.Minute}

// IsRemote reports whether source should be fetched over HTTP.
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Open returns a reader for source. The caller must close it.
func Open(ctx context.Context, client *http.Client, source string) (io.ReadCloser, error) {
	if source == "" {
		return nil, fmt.Errorf("empty source")
	}

	var rc io.ReadCloser
	if IsRemote(source) {
		if client == nil {
			client = DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request for %s: %w", source, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", source, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to fetch %s: unexpected status %d", source, resp.StatusCode)
		}
		rc = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", source, err)
		}
		rc = f
	}

	if !strings.HasSuffix(strings.ToLower(trimQuery(source)), ".gz") {
		return rc, nil
	}

	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to open gzip stream %s: %w", source, err)
	}
	return &gzipReadCloser{Reader: zr, underlying: rc}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	underlying io.Closer
}

func (g *gzipReadCloser) Close() error {
	zerr := g.Reader.Close()
	if err := g.underlying.Close(); err != nil {
		return err
	}
	return zerr
}

func trimQuery(source string) string {
	if i := strings.IndexAny(source, "?#"); i >= 0 && IsRemote(source) {
		return source[:i]
	}
	return source
}
