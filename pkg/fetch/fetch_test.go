package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestOpen_LocalPlainAndGzip(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "efo.obo")
	packed := filepath.Join(dir, "efo.obo.gz")
	require.NoError(t, os.WriteFile(plain, []byte("format-version: 1.2\n"), 0o600))
	require.NoError(t, os.WriteFile(packed, gzipped(t, "format-version: 1.4\n"), 0o600))

	rc, err := Open(context.Background(), nil, plain)
	require.NoError(t, err)
	assert.Equal(t, "format-version: 1.2\n", readAll(t, rc))

	rc, err = Open(context.Background(), nil, packed)
	require.NoError(t, err)
	assert.Equal(t, "format-version: 1.4\n", readAll(t, rc))
}

func TestOpen_Remote(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/table.tsv":
			w.Write([]byte("230650\tOrphanet_354\n"))
		case "/table.tsv.gz":
			w.Write(gzipped(t, "230650\tOrphanet_79257\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	rc, err := Open(context.Background(), ts.Client(), ts.URL+"/table.tsv")
	require.NoError(t, err)
	assert.Equal(t, "230650\tOrphanet_354\n", readAll(t, rc))

	rc, err = Open(context.Background(), ts.Client(), ts.URL+"/table.tsv.gz?raw=true")
	require.NoError(t, err)
	assert.Equal(t, "230650\tOrphanet_79257\n", readAll(t, rc))

	_, err = Open(context.Background(), ts.Client(), ts.URL+"/missing")
	assert.ErrorContains(t, err, "unexpected status 404")
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), nil, "")
	assert.Error(t, err)

	_, err = Open(context.Background(), nil, filepath.Join(t.TempDir(), "nope.obo"))
	assert.Error(t, err)
}
