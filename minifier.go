package thor

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	minifyjson "github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/tdewolff/minify/v2/xml"
)

// Minifier minifies textual response bodies by MIME type, registering
// minifiers lazily on first use of a given type. It is adapted from air's
// minifier.go; the image/jpeg and image/png re-encoders are dropped since
// this module streams files verbatim rather than re-encoding images, and
// the whole step is opt-in (Config.MinifierEnabled) rather than air's
// always-on template-output minification.
type Minifier struct {
	m *minify.M
}

// NewMinifier returns an empty Minifier; minifiers are registered for a
// MIME type the first time that type is seen.
func NewMinifier() *Minifier {
	return &Minifier{m: minify.New()}
}

// Minify minifies b according to mimeType, returning b unchanged if
// mimeType has no known minifier.
func (m *Minifier) Minify(mimeType string, b []byte) ([]byte, error) {
	if parts := strings.SplitN(mimeType, ";", 2); len(parts) > 1 {
		mimeType = parts[0]
	}
	mimeType = strings.TrimSpace(mimeType)

	buf := &bytes.Buffer{}
	err := m.m.Minify(mimeType, buf, bytes.NewReader(b))
	if err == minify.ErrNotExist {
		switch mimeType {
		case "text/html":
			m.m.Add(mimeType, html.DefaultMinifier)
		case "text/css":
			m.m.Add(mimeType, css.DefaultMinifier)
		case "text/javascript":
			m.m.Add(mimeType, js.DefaultMinifier)
		case "application/json":
			m.m.Add(mimeType, minifyjson.DefaultMinifier)
		case "text/xml":
			m.m.Add(mimeType, xml.DefaultMinifier)
		case "image/svg+xml":
			m.m.Add(mimeType, svg.DefaultMinifier)
		default:
			return b, nil
		}
		return m.Minify(mimeType, b)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MinifyGas minifies the response body written by the wrapped handler when
// enabled is true. It buffers the handler's output so the minifier sees
// the complete body before any bytes reach the client, preserving the
// single start-then-body emission order (spec §4.4/§5).
func MinifyGas(m *Minifier, enabled bool) Gas {
	return func(next Handler) Handler {
		if !enabled {
			return next
		}
		return func(req *Request, res *Response) error {
			buf := acquireBufferedResponseWriter()
			defer releaseBufferedResponseWriter(buf)
			bres := NewResponse(buf)

			if err := next(req, bres); err != nil {
				return err
			}
			if !bres.started {
				bres.Start()
			}

			body := buf.body.Bytes()
			if ct := buf.header.Get("Content-Type"); ct != "" && len(body) > 0 {
				if minified, err := m.Minify(ct, body); err == nil {
					body = minified
					buf.header.Set("Content-Length", strconv.Itoa(len(body)))
				}
			}

			res.Status = buf.status
			for k, vs := range buf.header {
				for _, v := range vs {
					res.header.Add(k, v)
				}
			}
			res.Start()
			if len(body) > 0 {
				n, err := res.w.Write(body)
				res.written += int64(n)
				return err
			}
			return nil
		}
	}
}
