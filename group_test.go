package thor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupRegistersUnderPrefix(t *testing.T) {
	a := New(DefaultConfig())
	g := a.Group("/api")

	g.GET("/widgets", func(req *Request, res *Response) error { return nil })

	result := a.Router.Lookup("GET", "/api/widgets")
	assert.NotNil(t, result.Route)
}

func TestGroupGasesWrapHandler(t *testing.T) {
	a := New(DefaultConfig())
	g := a.Group("/api")

	var seen []string
	g.Use(func(next Handler) Handler {
		return func(req *Request, res *Response) error {
			seen = append(seen, "outer")
			return next(req, res)
		}
	})
	g.GET("/ping", func(req *Request, res *Response) error {
		seen = append(seen, "handler")
		return nil
	})

	result := a.Router.Lookup("GET", "/api/ping")
	assert.NotNil(t, result.Route)
	assert.NoError(t, result.Route.Handler(NewRequest(nil, 0), nil))
	assert.Equal(t, []string{"outer", "handler"}, seen)
}

func TestNestedGroupInheritsGasesAndPrefix(t *testing.T) {
	a := New(DefaultConfig())
	outer := a.Group("/api")

	var seen []string
	outer.Use(func(next Handler) Handler {
		return func(req *Request, res *Response) error {
			seen = append(seen, "outer")
			return next(req, res)
		}
	})

	inner := outer.Group("/v1")
	inner.GET("/widgets", func(req *Request, res *Response) error {
		seen = append(seen, "handler")
		return nil
	})

	result := a.Router.Lookup("GET", "/api/v1/widgets")
	assert.NotNil(t, result.Route)
	assert.NoError(t, result.Route.Handler(NewRequest(nil, 0), nil))
	assert.Equal(t, []string{"outer", "handler"}, seen)
}
