package thor

import (
	"bytes"
	"mime"
	"strings"
)

// UploadFile is a single uploaded file extracted from a multipart/form-data
// body.
type UploadFile struct {
	FieldName   string
	Filename    string
	ContentType string
	Header      map[string]string
	Content     []byte
}

// FormData is the result of parsing a request body as form data: ordinary
// fields (repeated names aggregate into an ordered list) and, for
// multipart bodies, uploaded files.
type FormData struct {
	Values map[string][]string
	Files  map[string][]*UploadFile
}

// Get returns the first value of name, or "".
func (f *FormData) Get(name string) string {
	if vs := f.Values[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// File returns the first uploaded file under name, if any.
func (f *FormData) File(name string) (*UploadFile, bool) {
	if fs := f.Files[name]; len(fs) > 0 {
		return fs[0], true
	}
	return nil, false
}

// ParseMultipart splits body on the "--<boundary>" delimiters, strips the
// preamble and the closing "--<boundary>--", and parses each part's
// headers and content. Parts with a filename become UploadFiles; the rest
// become form fields.
func ParseMultipart(body []byte, boundary string) (*FormData, error) {
	fd := &FormData{
		Values: map[string][]string{},
		Files:  map[string][]*UploadFile{},
	}

	delim := []byte("--" + boundary)
	closing := []byte("--" + boundary + "--")

	parts := bytes.Split(body, delim)
	for _, part := range parts {
		if len(part) == 0 {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(part), []byte("--")) {
			continue
		}
		if bytes.HasPrefix(part, []byte("--")) {
			continue // this was the closing delimiter's trailing "--"
		}

		part = trimLeadingCRLF(part)
		if bytes.HasPrefix(part, closing) {
			continue
		}

		headerEnd := bytes.Index(part, []byte("\r\n\r\n"))
		sep := 4
		if headerEnd < 0 {
			headerEnd = bytes.Index(part, []byte("\n\n"))
			sep = 2
			if headerEnd < 0 {
				continue
			}
		}

		rawHeaders := string(part[:headerEnd])
		content := part[headerEnd+sep:]
		content = bytes.TrimSuffix(content, []byte("\r\n"))
		content = bytes.TrimSuffix(content, []byte("\n"))

		headers := parsePartHeaders(rawHeaders)
		disposition := headers["content-disposition"]
		if disposition == "" {
			continue
		}

		_, params, err := mime.ParseMediaType(disposition)
		if err != nil {
			continue
		}

		name := params["name"]
		if name == "" {
			continue
		}

		if filename, ok := params["filename"]; ok {
			contentType := headers["content-type"]
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			uf := &UploadFile{
				FieldName:   name,
				Filename:    filename,
				ContentType: contentType,
				Header:      headers,
				Content:     append([]byte(nil), content...),
			}
			fd.Files[name] = append(fd.Files[name], uf)
		} else {
			fd.Values[name] = append(fd.Values[name], string(content))
		}
	}

	return fd, nil
}

func trimLeadingCRLF(b []byte) []byte {
	b = bytes.TrimPrefix(b, []byte("\r\n"))
	b = bytes.TrimPrefix(b, []byte("\n"))
	return b
}

func parsePartHeaders(raw string) map[string]string {
	headers := map[string]string{}
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		headers[key] = value
	}
	return headers
}
