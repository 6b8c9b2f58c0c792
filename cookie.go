package thor

import (
	"bytes"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SameSite is the value of a cookie's SameSite attribute.
type SameSite int

// Supported SameSite values.
const (
	SameSiteLax SameSite = iota
	SameSiteStrict
	SameSiteNone
)

func (s SameSite) String() string {
	switch s {
	case SameSiteStrict:
		return "Strict"
	case SameSiteNone:
		return "None"
	default:
		return "Lax"
	}
}

// CookieOptions carries the attributes used when formatting a Set-Cookie
// header. DefaultCookieOptions returns the framework defaults: Path=/,
// Secure=true, HttpOnly=true, SameSite=Lax.
type CookieOptions struct {
	MaxAge   int // seconds; 0 means unset, negative deletes the cookie
	Expires  time.Time
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite SameSite
}

// DefaultCookieOptions returns the framework's default cookie attributes.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
		SameSite: SameSiteLax,
	}
}

// ParseCookies parses a Cookie request header into a name->value map. It
// splits on ";", trims surrounding space, and partitions each pair on the
// first "=". An empty header yields an empty map.
func ParseCookies(header string) map[string]string {
	cookies := map[string]string{}
	if header == "" {
		return cookies
	}

	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			cookies[part] = ""
			continue
		}

		name := strings.TrimSpace(part[:eq])
		value := strings.TrimSpace(part[eq+1:])
		value = strings.Trim(value, `"`)
		cookies[name] = value
	}

	return cookies
}

// FormatSetCookie renders a Set-Cookie header value for name=value with the
// given options, in the attribute order required by the framework:
// Max-Age; Expires; Path; Domain; Secure; HttpOnly; SameSite.
func FormatSetCookie(name, value string, options CookieOptions) string {
	if !validCookieName(name) {
		return ""
	}

	buf := bytes.Buffer{}

	n := strings.NewReplacer("\r", "-", "\n", "-").Replace(name)
	v := sanitize(value, validCookieValueByte)
	if strings.IndexByte(v, ' ') >= 0 || strings.IndexByte(v, ',') >= 0 {
		v = `"` + v + `"`
	}

	buf.WriteString(n)
	buf.WriteByte('=')
	buf.WriteString(v)

	if options.MaxAge > 0 {
		buf.WriteString("; Max-Age=")
		buf.WriteString(strconv.Itoa(options.MaxAge))
	} else if options.MaxAge < 0 {
		buf.WriteString("; Max-Age=0")
	}

	if options.Expires.Year() >= 1601 {
		buf.WriteString("; Expires=")
		buf.WriteString(options.Expires.UTC().Format(http.TimeFormat))
	}

	if options.Path != "" {
		buf.WriteString("; Path=")
		buf.WriteString(sanitize(options.Path, func(b byte) bool {
			return 0x20 <= b && b < 0x7f && b != ';'
		}))
	}

	if validCookieDomain(options.Domain) {
		d := options.Domain
		if d[0] == '.' {
			d = d[1:]
		}
		buf.WriteString("; Domain=")
		buf.WriteString(d)
	}

	if options.Secure {
		buf.WriteString("; Secure")
	}

	if options.HTTPOnly {
		buf.WriteString("; HttpOnly")
	}

	buf.WriteString("; SameSite=")
	buf.WriteString(options.SameSite.String())

	return buf.String()
}

// validCookieName reports whether n is a valid cookie name token.
func validCookieName(n string) bool {
	return n != "" && strings.IndexFunc(n, func(r rune) bool {
		return !strings.ContainsRune(
			"!#$%&'*+-."+
				"0123456789"+
				"ABCDEFGHIJKLMNOPQRSTUWVXYZ"+
				"^_`"+
				"abcdefghijklmnopqrstuvwxyz"+
				"|~",
			r,
		)
	}) < 0
}

// validCookieValueByte reports whether b may appear unescaped in a cookie
// value.
func validCookieValueByte(b byte) bool {
	return 0x20 <= b && b < 0x7f && b != '"' && b != ';' && b != '\\'
}

// validCookieDomain reports whether d is a valid cookie domain attribute.
func validCookieDomain(d string) bool {
	if l := len(d); l == 0 || l > 255 {
		return false
	}

	if net.ParseIP(d) != nil && !strings.Contains(d, ":") {
		return true
	}

	if d[0] == '.' {
		d = d[1:]
	}

	ok := false
	last := byte('.')
	partlen := 0
	for i := 0; i < len(d); i++ {
		c := d[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
			ok = true
			partlen++
		case '0' <= c && c <= '9':
			partlen++
		case c == '-':
			if last == '.' {
				return false
			}
			partlen++
		case c == '.':
			if last == '.' || last == '-' {
				return false
			}
			if partlen > 63 || partlen == 0 {
				return false
			}
			partlen = 0
		default:
			return false
		}
		last = c
	}

	if last == '-' || partlen > 63 {
		return false
	}

	return ok
}

// sanitize drops any byte of s rejected by valid.
func sanitize(s string, valid func(byte) bool) string {
	ok := true
	for i := 0; i < len(s); i++ {
		if !valid(s[i]) {
			ok = false
			break
		}
	}

	if ok {
		return s
	}

	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if b := s[i]; valid(b) {
			buf = append(buf, b)
		}
	}

	return string(buf)
}
