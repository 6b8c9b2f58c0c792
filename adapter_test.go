package thor

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapHTTPHandlerServesViaStandardHandler(t *testing.T) {
	hh := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(201)
		w.Write([]byte("from net/http"))
	})
	h := WrapHTTPHandler(hh)

	rec := httptest.NewRecorder()
	res := NewResponse(rec)
	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)

	assert.NoError(t, h(req, res))
	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, "from net/http", rec.Body.String())
}

func TestWrapHTTPMiddlewareRunsAroundNext(t *testing.T) {
	var order []string
	hm := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "before")
			next.ServeHTTP(w, r)
			order = append(order, "after")
		})
	}

	gas := WrapHTTPMiddleware(hm)
	h := gas(func(req *Request, res *Response) error {
		order = append(order, "handler")
		return res.NoContent(204)
	})

	res := NewResponse(httptest.NewRecorder())
	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)

	assert.NoError(t, h(req, res))
	assert.Equal(t, []string{"before", "handler", "after"}, order)
}
