package thor

import (
	"runtime/debug"

	"github.com/google/uuid"
)

// ErrorHandlerConfig configures ErrorHandlerGas.
type ErrorHandlerConfig struct {
	// Debug is carried for configuration but ErrorHandlerGas does not read
	// it: the client body never carries internal error detail, and the
	// server-side log line for a 5xx always includes the cause, whether
	// Debug is set or not.
	Debug bool
}

// ErrorHandlerGas wraps the remainder of the chain. It assigns a fresh
// request-id, injects X-Request-Id into every response, recovers from
// panics, and converts any *HTTPError (or other error) into the
// {error, status_code, request_id} JSON body described in spec §4.6/§7.
// Because it must run outermost to see every other gas's panics and
// errors, it should be the first gas registered in the chain.
func ErrorHandlerGas(logger *Logger, cfg ErrorHandlerConfig) Gas {
	return func(next Handler) Handler {
		return func(req *Request, res *Response) error {
			id := uuid.New().String()
			req.RequestID = id
			res.Header().Set("X-Request-Id", id)

			err := recoverableCall(next, req, res)
			if err == nil {
				return nil
			}

			herr, ok := err.(*HTTPError)
			if !ok {
				herr = ErrInternal(err)
			}

			for k, v := range herr.Headers {
				res.Header().Set(k, v)
			}

			if herr.Status >= 500 {
				if logger != nil {
					logger.Errorf("request_id=%s status=%d cause=%v", id, herr.Status, herr.Unwrap())
				}
			} else if logger != nil {
				logger.Warnf("request_id=%s status=%d detail=%s", id, herr.Status, herr.Detail)
			}

			body := map[string]interface{}{
				"error":       clientFacingMessage(herr),
				"status_code": herr.Status,
				"request_id":  id,
			}
			for k, v := range herr.Extra {
				body[k] = v
			}

			return res.JSON(herr.Status, body)
		}
	}
}

// clientFacingMessage never exposes the original error message or stack
// for an internal error, even when ErrorHandlerConfig.Debug is true, per
// spec §4.6.
func clientFacingMessage(e *HTTPError) string {
	if e.Kind == KindInternal {
		return "Internal Server Error"
	}
	return e.Detail
}

// recoverableCall runs h and converts a panic into an internal *HTTPError
// carrying the stack trace as its (never-exposed) cause.
func recoverableCall(h Handler, req *Request, res *Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrInternal(panicError{value: r, stack: debug.Stack()})
		}
	}()
	return h(req, res)
}

// panicError adapts a recovered panic value into an error carrying its
// stack trace, for logging by ErrorHandlerGas.
type panicError struct {
	value interface{}
	stack []byte
}

func (p panicError) Error() string {
	return "panic: " + toString(p.value) + "\n" + string(p.stack)
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if e, ok := v.(error); ok {
		return e.Error()
	}
	return "non-string panic value"
}
