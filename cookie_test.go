package thor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCookies(t *testing.T) {
	cookies := ParseCookies(`foo=bar; baz="qux"; flag`)
	assert.Equal(t, "bar", cookies["foo"])
	assert.Equal(t, "qux", cookies["baz"])
	assert.Equal(t, "", cookies["flag"])
}

func TestParseCookiesEmpty(t *testing.T) {
	assert.Empty(t, ParseCookies(""))
}

func TestFormatSetCookieDefaults(t *testing.T) {
	s := FormatSetCookie("session", "abc123", DefaultCookieOptions())
	assert.Equal(t, "session=abc123; Path=/; Secure; HttpOnly; SameSite=Lax", s)
}

func TestFormatSetCookieMaxAgePositive(t *testing.T) {
	opts := DefaultCookieOptions()
	opts.MaxAge = 3600
	s := FormatSetCookie("session", "abc", opts)
	assert.Contains(t, s, "; Max-Age=3600")
}

func TestFormatSetCookieMaxAgeNegativeDeletes(t *testing.T) {
	opts := DefaultCookieOptions()
	opts.MaxAge = -1
	s := FormatSetCookie("session", "abc", opts)
	assert.Contains(t, s, "; Max-Age=0")
}

func TestFormatSetCookieExpires(t *testing.T) {
	opts := DefaultCookieOptions()
	opts.Expires = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	s := FormatSetCookie("session", "abc", opts)
	assert.Contains(t, s, "; Expires=Wed, 02 Jan 2030 03:04:05 GMT")
}

func TestFormatSetCookieDomain(t *testing.T) {
	opts := DefaultCookieOptions()
	opts.Domain = ".example.com"
	s := FormatSetCookie("session", "abc", opts)
	assert.Contains(t, s, "; Domain=example.com")
}

func TestFormatSetCookieInvalidDomainOmitted(t *testing.T) {
	opts := DefaultCookieOptions()
	opts.Domain = "not a domain!"
	s := FormatSetCookie("session", "abc", opts)
	assert.NotContains(t, s, "Domain")
}

func TestFormatSetCookieValueWithSpaceIsQuoted(t *testing.T) {
	opts := DefaultCookieOptions()
	s := FormatSetCookie("session", "has space", opts)
	assert.Contains(t, s, `="has space"`)
}

func TestFormatSetCookieInvalidNameReturnsEmpty(t *testing.T) {
	s := FormatSetCookie("bad name!", "v", DefaultCookieOptions())
	assert.Equal(t, "", s)
}

func TestFormatSetCookieSameSiteVariants(t *testing.T) {
	opts := DefaultCookieOptions()
	opts.SameSite = SameSiteStrict
	assert.Contains(t, FormatSetCookie("a", "b", opts), "SameSite=Strict")

	opts.SameSite = SameSiteNone
	assert.Contains(t, FormatSetCookie("a", "b", opts), "SameSite=None")
}

func TestValidCookieDomainIPLiteral(t *testing.T) {
	assert.True(t, validCookieDomain("192.168.0.1"))
	assert.False(t, validCookieDomain("::1"))
}
