package thor

import "net/http"

// WrapHTTPHandler adapts a standard http.Handler into a Handler, for
// mounting third-party net/http handlers (e.g. pprof, a metrics exporter)
// directly on a route.
func WrapHTTPHandler(hh http.Handler) Handler {
	return func(req *Request, res *Response) error {
		hh.ServeHTTP(res.w, req.Raw())
		res.started = true
		return nil
	}
}

// WrapHTTPMiddleware adapts a standard net/http middleware
// (func(http.Handler) http.Handler) into a Gas, for reusing middleware
// from the broader net/http ecosystem inside the gas chain.
func WrapHTTPMiddleware(hm func(http.Handler) http.Handler) Gas {
	return func(next Handler) Handler {
		return func(req *Request, res *Response) error {
			var err error
			hm(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				err = next(req, res)
			})).ServeHTTP(res.w, req.Raw())
			return err
		}
	}
}
