package thor

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

// bufferedResponseWriter accumulates a response in memory so that the
// timeout middleware can discard it entirely if the deadline is missed,
// instead of letting a partial response reach the client.
type bufferedResponseWriter struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newBufferedResponseWriter() *bufferedResponseWriter {
	return &bufferedResponseWriter{header: http.Header{}, status: http.StatusOK}
}

func (b *bufferedResponseWriter) Header() http.Header { return b.header }

func (b *bufferedResponseWriter) WriteHeader(status int) {
	if !b.wroteHeader {
		b.status = status
		b.wroteHeader = true
	}
}

func (b *bufferedResponseWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}

// TimeoutMiddleware cancels the downstream chain's context after timeout
// and raises a gateway-timeout error if it has not completed by then. The
// downstream handler writes into an in-memory buffer; it is only copied to
// the real ResponseWriter if the handler finishes in time, so a timed-out
// handler can never leak a partial response to the client, per spec §4.12
// and §5.
func TimeoutMiddleware(timeout time.Duration) Gas {
	return func(next Handler) Handler {
		return func(req *Request, res *Response) error {
			ctx, cancel := context.WithTimeout(req.Context(), timeout)
			defer cancel()

			buf := acquireBufferedResponseWriter()
			defer releaseBufferedResponseWriter(buf)
			bres := NewResponse(buf)
			creq := req.WithContext(ctx)

			done := make(chan error, 1)
			go func() {
				done <- next(creq, bres)
			}()

			select {
			case err := <-done:
				if err != nil {
					return err
				}
				flushBuffered(res, bres, buf)
				return nil
			case <-ctx.Done():
				return ErrGatewayTimeout("handler exceeded the configured timeout")
			}
		}
	}
}

// flushBuffered copies a completed buffered response into the real
// Response, preserving the single start-then-body emission order.
func flushBuffered(res *Response, bres *Response, buf *bufferedResponseWriter) {
	if !bres.started {
		bres.Start()
	}
	res.Status = buf.status
	for k, vs := range buf.header {
		for _, v := range vs {
			res.header.Add(k, v)
		}
	}
	res.Start()
	if buf.body.Len() > 0 {
		res.w.Write(buf.body.Bytes())
		res.written += int64(buf.body.Len())
	}
}
