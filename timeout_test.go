package thor

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutMiddlewareFlushesOnSuccess(t *testing.T) {
	gas := TimeoutMiddleware(time.Second)
	h := gas(func(req *Request, res *Response) error {
		return res.JSON(200, map[string]string{"ok": "yes"})
	})

	rec := httptest.NewRecorder()
	res := NewResponse(rec)
	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)

	assert.NoError(t, h(req, res))
	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"ok":"yes"}`, rec.Body.String())
}

func TestTimeoutMiddlewareReturnsGatewayTimeoutOnDeadlineExceeded(t *testing.T) {
	gas := TimeoutMiddleware(10 * time.Millisecond)
	h := gas(func(req *Request, res *Response) error {
		time.Sleep(100 * time.Millisecond)
		return res.Text(200, "too late")
	})

	rec := httptest.NewRecorder()
	res := NewResponse(rec)
	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)

	err := h(req, res)
	assert.Error(t, err)
	herr, ok := err.(*HTTPError)
	assert.True(t, ok)
	assert.Equal(t, KindGatewayTimeout, herr.Kind)
}

func TestTimeoutMiddlewareNoPartialResponseOnTimeout(t *testing.T) {
	gas := TimeoutMiddleware(10 * time.Millisecond)
	h := gas(func(req *Request, res *Response) error {
		res.Text(200, "partial")
		time.Sleep(100 * time.Millisecond)
		return nil
	})

	rec := httptest.NewRecorder()
	res := NewResponse(rec)
	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)

	err := h(req, res)
	assert.Error(t, err)
	assert.Empty(t, rec.Body.Bytes())
}

func TestTimeoutMiddlewarePropagatesHandlerError(t *testing.T) {
	gas := TimeoutMiddleware(time.Second)
	h := gas(func(req *Request, res *Response) error {
		return ErrNotFound("missing")
	})

	res := NewResponse(httptest.NewRecorder())
	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)

	err := h(req, res)
	herr, ok := err.(*HTTPError)
	assert.True(t, ok)
	assert.Equal(t, KindNotFound, herr.Kind)
}

func TestBufferedResponseWriterDefaultsToOK(t *testing.T) {
	buf := newBufferedResponseWriter()
	buf.Write([]byte("hi"))
	assert.Equal(t, 200, buf.status)
	assert.Equal(t, "hi", buf.body.String())
}

func TestAcquireReleaseBufferedResponseWriterResets(t *testing.T) {
	buf := acquireBufferedResponseWriter()
	buf.WriteHeader(500)
	buf.Write([]byte("x"))
	releaseBufferedResponseWriter(buf)

	buf2 := acquireBufferedResponseWriter()
	assert.Equal(t, 200, buf2.status)
	assert.Equal(t, 0, buf2.body.Len())
	releaseBufferedResponseWriter(buf2)
}
