package thor

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAssetCacheServeReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("body{}"), 0o644))

	c := NewAssetCache(0)
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, c.Serve(res, dir, "style.css", ""))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())
}

func TestAssetCacheServeRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("body{}"), 0o644))

	c := NewAssetCache(0)
	res := NewResponse(httptest.NewRecorder())

	err := c.Serve(res, dir, "../../../etc/passwd", "")
	assert.Error(t, err)
	herr, ok := err.(*HTTPError)
	assert.True(t, ok)
	assert.Equal(t, KindForbidden, herr.Kind)
}

func TestAssetCacheServeNotFound(t *testing.T) {
	dir := t.TempDir()
	c := NewAssetCache(0)
	res := NewResponse(httptest.NewRecorder())

	err := c.Serve(res, dir, "missing.css", "")
	assert.Error(t, err)
	herr, ok := err.(*HTTPError)
	assert.True(t, ok)
	assert.Equal(t, KindNotFound, herr.Kind)
}

func TestAssetCacheServeSetsDownloadDisposition(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "report.csv"), []byte("a,b\n"), 0o644))

	c := NewAssetCache(0)
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, c.Serve(res, dir, "report.csv", "export.csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="export.csv"`)
}

func TestAssetCacheServeDetectsModification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	assert.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	c := NewAssetCache(0)
	res1 := NewResponse(httptest.NewRecorder())
	assert.NoError(t, c.Serve(res1, dir, "data.txt", ""))

	later := time.Now().Add(time.Second)
	assert.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	assert.NoError(t, os.Chtimes(path, later, later))

	rec2 := httptest.NewRecorder()
	res2 := NewResponse(rec2)
	assert.NoError(t, c.Serve(res2, dir, "data.txt", ""))
	assert.Equal(t, "v2", rec2.Body.String())
}

func TestAssetCacheInvalidateForcesReread(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cached.txt")
	assert.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	c := NewAssetCache(0)
	res1 := NewResponse(httptest.NewRecorder())
	assert.NoError(t, c.Serve(res1, dir, "cached.txt", ""))

	c.Invalidate(dir, "cached.txt")

	assert.NoError(t, os.WriteFile(path, []byte("v2-same-modtime"), 0o644))
	rec2 := httptest.NewRecorder()
	res2 := NewResponse(rec2)
	assert.NoError(t, c.Serve(res2, dir, "cached.txt", ""))
	assert.Equal(t, "v2-same-modtime", rec2.Body.String())
}
