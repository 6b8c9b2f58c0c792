package thor

import (
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewCORSMiddlewareRejectsCredentialedBareWildcard(t *testing.T) {
	_, err := NewCORSMiddleware(CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true})
	assert.ErrorIs(t, err, ErrCredentialedWildcard)
}

func TestNewCORSMiddlewareAllowsCredentialedRegexWithWildcard(t *testing.T) {
	_, err := NewCORSMiddleware(CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowOriginRegex: regexp.MustCompile(`.*`),
		AllowCredentials: true,
	})
	assert.NoError(t, err)
}

func TestCORSMiddlewareBareWildcardSetsStarOrigin(t *testing.T) {
	gas, err := NewCORSMiddleware(CORSConfig{AllowOrigins: []string{"*"}})
	assert.NoError(t, err)

	h := gas(func(req *Request, res *Response) error { return res.NoContent(204) })

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Origin", "https://example.com")
	req := NewRequest(r, 0)
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, h(req, res))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddlewareExactOriginMatch(t *testing.T) {
	gas, _ := NewCORSMiddleware(CORSConfig{AllowOrigins: []string{"https://example.com"}})
	h := gas(func(req *Request, res *Response) error { return res.NoContent(204) })

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Origin", "https://example.com")
	req := NewRequest(r, 0)
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, h(req, res))
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORSMiddlewareWildcardSubdomainMatch(t *testing.T) {
	gas, _ := NewCORSMiddleware(CORSConfig{AllowOrigins: []string{"*.example.com"}})
	h := gas(func(req *Request, res *Response) error { return res.NoContent(204) })

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Origin", "https://app.example.com")
	req := NewRequest(r, 0)
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, h(req, res))
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddlewareRegexMatch(t *testing.T) {
	gas, _ := NewCORSMiddleware(CORSConfig{AllowOriginRegex: regexp.MustCompile(`^https://.*\.staging\.internal$`)})
	h := gas(func(req *Request, res *Response) error { return res.NoContent(204) })

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Origin", "https://feature-1.staging.internal")
	req := NewRequest(r, 0)
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, h(req, res))
	assert.Equal(t, "https://feature-1.staging.internal", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddlewareRejectsUnlistedOrigin(t *testing.T) {
	gas, _ := NewCORSMiddleware(CORSConfig{AllowOrigins: []string{"https://example.com"}})
	h := gas(func(req *Request, res *Response) error { return res.NoContent(204) })

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Origin", "https://evil.com")
	req := NewRequest(r, 0)
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, h(req, res))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddlewareNoOriginHeaderPassesThrough(t *testing.T) {
	gas, _ := NewCORSMiddleware(CORSConfig{AllowOrigins: []string{"https://example.com"}})
	called := false
	h := gas(func(req *Request, res *Response) error {
		called = true
		return res.NoContent(204)
	})

	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)
	res := NewResponse(httptest.NewRecorder())

	assert.NoError(t, h(req, res))
	assert.True(t, called)
}

func TestCORSMiddlewarePreflightResponds204WithMethodsAndMaxAge(t *testing.T) {
	gas, _ := NewCORSMiddleware(CORSConfig{
		AllowOrigins: []string{"https://example.com"},
		AllowMethods: []string{"GET", "POST"},
		MaxAge:       10 * time.Minute,
	})
	h := gas(func(req *Request, res *Response) error {
		t.Fatal("handler should not run on preflight")
		return nil
	})

	r := httptest.NewRequest("OPTIONS", "/widgets", nil)
	r.Header.Set("Origin", "https://example.com")
	r.Header.Set("Access-Control-Request-Method", "POST")
	req := NewRequest(r, 0)
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, h(req, res))
	assert.Equal(t, 204, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSMiddlewareCredentialedSetsAllowCredentials(t *testing.T) {
	gas, _ := NewCORSMiddleware(CORSConfig{
		AllowOrigins:     []string{"https://example.com"},
		AllowCredentials: true,
	})
	h := gas(func(req *Request, res *Response) error { return res.NoContent(204) })

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Origin", "https://example.com")
	req := NewRequest(r, 0)
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	assert.NoError(t, h(req, res))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
