package thor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aofei/mimesniffer"
)

// defaultStreamChunkSize is the fixed-size chunk FileResponse and Stream
// write at a time, per spec §4.4.
const defaultStreamChunkSize = 64 * 1024

// Response accumulates a handler's outgoing status, headers, cookies and
// body before the engine emits exactly one "start" (status + headers) and
// one or more body writes, per spec §3's invariant: status and headers are
// emitted exactly once, before any body bytes.
type Response struct {
	w http.ResponseWriter

	Status    int
	header    http.Header
	cookies   []string // pre-rendered Set-Cookie values
	charset   string
	mediaType string

	started     bool
	written     int64
	beforeStart []func()
}

// NewResponse wraps w for framework processing.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w, Status: http.StatusOK, header: http.Header{}, charset: "utf-8"}
}

// Header returns the header map that will be emitted at start time.
func (res *Response) Header() http.Header { return res.header }

// SetCookie appends a Set-Cookie value to be emitted at start time.
func (res *Response) SetCookie(name, value string, options CookieOptions) {
	res.cookies = append(res.cookies, FormatSetCookie(name, value, options))
}

// OnBeforeStart registers fn to run immediately before Start emits the
// status line and headers. A Gas that decides a header or cookie based on
// state the handler mutates while running (e.g. whether a session was
// modified) must register such a hook before calling next, since Start may
// fire during next (on the handler's first Write) rather than after it
// returns.
func (res *Response) OnBeforeStart(fn func()) {
	res.beforeStart = append(res.beforeStart, fn)
}

// SetMediaType sets the response's media type (e.g. "application/json");
// the charset is appended automatically for textual/JSON types.
func (res *Response) SetMediaType(mediaType string) { res.mediaType = mediaType }

var textualPrefixes = []string{"text/", "application/json", "application/xml", "application/javascript"}

func isTextual(mediaType string) bool {
	for _, p := range textualPrefixes {
		if strings.HasPrefix(mediaType, p) {
			return true
		}
	}
	return false
}

// Start emits the status line and headers exactly once; subsequent calls
// are no-ops. It is called implicitly by the Write* helpers and does not
// normally need to be invoked directly.
func (res *Response) Start() {
	if res.started {
		return
	}
	res.started = true

	for _, fn := range res.beforeStart {
		fn()
	}

	for _, c := range res.cookies {
		if c != "" {
			res.header.Add("Set-Cookie", c)
		}
	}

	if res.mediaType != "" {
		ct := res.mediaType
		if isTextual(ct) && res.charset != "" {
			ct = ct + "; charset=" + res.charset
		}
		res.header.Set("Content-Type", ct)
	}

	dst := res.w.Header()
	for k, vs := range res.header {
		dst[k] = vs
	}

	res.w.WriteHeader(res.Status)
}

// Write implements io.Writer, starting the response on first use.
func (res *Response) Write(p []byte) (int, error) {
	res.Start()
	n, err := res.w.Write(p)
	res.written += int64(n)
	return n, err
}

// JSON writes v as a JSON body with status code.
func (res *Response) JSON(status int, v interface{}) error {
	res.Status = status
	res.SetMediaType("application/json")
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	res.header.Set("Content-Length", strconv.Itoa(len(b)))
	_, err = res.Write(b)
	return err
}

// Text writes s as a text/plain body with status code.
func (res *Response) Text(status int, s string) error {
	res.Status = status
	res.SetMediaType("text/plain")
	res.header.Set("Content-Length", strconv.Itoa(len(s)))
	_, err := res.Write([]byte(s))
	return err
}

// HTML writes s as a text/html body with status code.
func (res *Response) HTML(status int, s string) error {
	res.Status = status
	res.SetMediaType("text/html")
	res.header.Set("Content-Length", strconv.Itoa(len(s)))
	_, err := res.Write([]byte(s))
	return err
}

// NoContent emits status with no body.
func (res *Response) NoContent(status int) error {
	res.Status = status
	res.Start()
	return nil
}

// Redirect emits a redirect response to url with status (e.g. 301, 302,
// 303, 307, 308).
func (res *Response) Redirect(status int, url string) error {
	res.Status = status
	res.header.Set("Location", url)
	res.Start()
	return nil
}

// Stream copies from r to the response body in fixed-size chunks, writing
// the "start" message once before the first chunk. Suitable for an
// indefinite sequence of body chunks; the final (possibly empty) Read
// terminates the stream.
func (res *Response) Stream(status int, mediaType string, r io.Reader) error {
	res.Status = status
	if mediaType != "" {
		res.SetMediaType(mediaType)
	}
	res.Start()

	buf := make([]byte, defaultStreamChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := res.w.Write(buf[:n]); werr != nil {
				return werr
			}
			res.written += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// FileResponse resolves name against baseDir (rejecting any path that
// would resolve outside of it — protection against directory traversal),
// sets Content-Length from the file's size and, when downloadName is
// non-empty, a Content-Disposition header, sets a Content-Type sniffed from
// the file's first 512 bytes, and streams the content in fixed-size chunks.
func (res *Response) FileResponse(baseDir, name, downloadName string) error {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return ErrInternal(err)
	}
	absBase, err = filepath.EvalSymlinks(absBase)
	if err != nil {
		return ErrInternal(err)
	}

	joined := filepath.Join(absBase, name)
	absPath, err := filepath.Abs(joined)
	if err != nil {
		return ErrInternal(err)
	}

	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ErrForbidden("file path resolves outside of the allowed base directory")
	}

	f, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound("file not found")
		}
		return ErrInternal(err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return ErrInternal(err)
	}
	if fi.IsDir() {
		return ErrNotFound("file not found")
	}

	sniff := make([]byte, 512)
	n, _ := f.Read(sniff)
	sniff = sniff[:n]
	mediaType := mimesniffer.Sniff(sniff)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ErrInternal(err)
	}

	res.Status = http.StatusOK
	res.SetMediaType(mediaType)
	res.header.Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	if downloadName != "" {
		res.header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, downloadName))
	}
	res.header.Set("Last-Modified", fi.ModTime().UTC().Format(http.TimeFormat))

	return res.streamFile(f)
}

func (res *Response) streamFile(f *os.File) error {
	res.Start()
	buf := make([]byte, defaultStreamChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if _, werr := res.w.Write(buf[:n]); werr != nil {
				return werr
			}
			res.written += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Written reports whether the "start" message (status and headers) has
// been emitted; it is true even when no body byte has been written.
func (res *Response) Written() bool { return res.started }
