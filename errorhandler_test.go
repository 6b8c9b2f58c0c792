package thor

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHandlerGasAssignsRequestID(t *testing.T) {
	gas := ErrorHandlerGas(nil, ErrorHandlerConfig{})
	h := gas(func(req *Request, res *Response) error {
		assert.NotEmpty(t, req.RequestID)
		return res.NoContent(204)
	})

	rec := httptest.NewRecorder()
	res := NewResponse(rec)
	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)

	assert.NoError(t, h(req, res))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestErrorHandlerGasConvertsHTTPError(t *testing.T) {
	gas := ErrorHandlerGas(nil, ErrorHandlerConfig{})
	h := gas(func(req *Request, res *Response) error {
		return ErrNotFound("widget not found")
	})

	rec := httptest.NewRecorder()
	res := NewResponse(rec)
	req := NewRequest(httptest.NewRequest("GET", "/widgets/1", nil), 0)

	assert.NoError(t, h(req, res))
	assert.Equal(t, 404, rec.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "widget not found", body["error"])
	assert.Equal(t, float64(404), body["status_code"])
	assert.NotEmpty(t, body["request_id"])
}

func TestErrorHandlerGasHidesInternalErrorDetail(t *testing.T) {
	gas := ErrorHandlerGas(nil, ErrorHandlerConfig{Debug: true})
	h := gas(func(req *Request, res *Response) error {
		return errors.New("leaked db password: hunter2")
	})

	rec := httptest.NewRecorder()
	res := NewResponse(rec)
	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)

	assert.NoError(t, h(req, res))
	assert.Equal(t, 500, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body["error"])
}

func TestErrorHandlerGasRecoversFromPanic(t *testing.T) {
	gas := ErrorHandlerGas(nil, ErrorHandlerConfig{})
	h := gas(func(req *Request, res *Response) error {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	res := NewResponse(rec)
	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)

	assert.NoError(t, h(req, res))
	assert.Equal(t, 500, rec.Code)
	assert.NotContains(t, rec.Body.String(), "kaboom")
}

func TestErrorHandlerGasMergesExtraFields(t *testing.T) {
	gas := ErrorHandlerGas(nil, ErrorHandlerConfig{})
	h := gas(func(req *Request, res *Response) error {
		return ErrTooManyRequests("slow down", 30)
	})

	rec := httptest.NewRecorder()
	res := NewResponse(rec)
	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)

	assert.NoError(t, h(req, res))
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(30), body["retry_after"])
}

func TestErrorHandlerGasPassesThroughNilError(t *testing.T) {
	gas := ErrorHandlerGas(nil, ErrorHandlerConfig{})
	called := false
	h := gas(func(req *Request, res *Response) error {
		called = true
		return nil
	})

	res := NewResponse(httptest.NewRecorder())
	req := NewRequest(httptest.NewRequest("GET", "/", nil), 0)

	assert.NoError(t, h(req, res))
	assert.True(t, called)
}
