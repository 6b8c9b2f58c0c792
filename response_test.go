package thor

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, res.JSON(200, map[string]string{"a": "b"}))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"a":"b"}`, rec.Body.String())
}

func TestResponseText(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, res.Text(201, "hi"))
	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, "hi", rec.Body.String())
}

func TestResponseHTML(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, res.HTML(200, "<p>hi</p>"))
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestResponseNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, res.NoContent(204))
	assert.Equal(t, 204, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestResponseRedirect(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, res.Redirect(302, "/elsewhere"))
	assert.Equal(t, 302, rec.Code)
	assert.Equal(t, "/elsewhere", rec.Header().Get("Location"))
}

func TestResponseStartIsIdempotent(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	res.Status = 418
	res.Start()
	res.Status = 200
	res.Start()

	assert.Equal(t, 418, rec.Code)
}

func TestResponseSetCookieEmittedAtStart(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)
	res.SetCookie("a", "b", DefaultCookieOptions())

	assert.NoError(t, res.NoContent(204))
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "a=b")
}

func TestResponseWrittenReflectsStart(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)
	assert.False(t, res.Written())
	res.Start()
	assert.True(t, res.Written())
}

func TestResponseFileResponseServesFile(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644))

	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, res.FileResponse(dir, "hello.txt", ""))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
}

func TestResponseFileResponseRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644))

	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	err := res.FileResponse(dir, "../../../etc/passwd", "")
	assert.Error(t, err)
	herr, ok := err.(*HTTPError)
	assert.True(t, ok)
	assert.Equal(t, KindForbidden, herr.Kind)
}

func TestResponseFileResponseNotFound(t *testing.T) {
	dir := t.TempDir()

	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	err := res.FileResponse(dir, "missing.txt", "")
	assert.Error(t, err)
	herr, ok := err.(*HTTPError)
	assert.True(t, ok)
	assert.Equal(t, KindNotFound, herr.Kind)
}

func TestResponseFileResponseSetsDownloadDisposition(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644))

	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, res.FileResponse(dir, "hello.txt", "download.txt"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="download.txt"`)
}
