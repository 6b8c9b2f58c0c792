package thor

import (
	"crypto/subtle"
	"net/http"
)

var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// CSRFConfig configures CSRFMiddleware.
type CSRFConfig struct {
	CookieName     string
	HeaderName     string
	FormField      string
	ExemptPrefixes []string
}

// DefaultCSRFConfig returns the framework defaults, per spec §4.9/§6.
func DefaultCSRFConfig() CSRFConfig {
	return CSRFConfig{
		CookieName: "thor_csrf",
		HeaderName: "X-CSRF-Token",
		FormField:  "_csrf_token",
	}
}

// CSRFMiddleware implements double-submit-cookie CSRF protection. Safe
// methods (GET, HEAD, OPTIONS, TRACE) and any path under an exempt prefix
// are never challenged, but still get a token minted and a cookie
// refreshed so a later unsafe request has something to submit.
func CSRFMiddleware(cfg CSRFConfig) Gas {
	if cfg.CookieName == "" {
		cfg.CookieName = "thor_csrf"
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-CSRF-Token"
	}
	if cfg.FormField == "" {
		cfg.FormField = "_csrf_token"
	}

	return func(next Handler) Handler {
		return func(req *Request, res *Response) error {
			token, hadCookie := req.Cookie(cfg.CookieName)
			if !hadCookie || token == "" {
				fresh, err := randomToken(32)
				if err != nil {
					return ErrInternal(err)
				}
				token = fresh
			}
			req.SetCSRFToken(token)
			res.SetCookie(cfg.CookieName, token, csrfCookieOptions())

			exempt := safeMethods[req.Method()] || pathExcluded(req.Path(), cfg.ExemptPrefixes)
			if !exempt {
				submitted := submittedCSRFToken(req, cfg)
				if submitted == "" || !constantTimeStringEqual(submitted, token) {
					return res.JSON(http.StatusForbidden, map[string]interface{}{
						"error":       "CSRF token missing or invalid",
						"status_code": http.StatusForbidden,
					})
				}
			}

			return next(req, res)
		}
	}
}

func submittedCSRFToken(req *Request, cfg CSRFConfig) string {
	if h := req.Header(cfg.HeaderName); h != "" {
		return h
	}
	ct := req.Header("Content-Type")
	if len(ct) >= len("application/x-www-form-urlencoded") &&
		ct[:len("application/x-www-form-urlencoded")] == "application/x-www-form-urlencoded" {
		if fd, err := req.Form(); err == nil {
			return fd.Get(cfg.FormField)
		}
	}
	return ""
}

func constantTimeStringEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still compare to avoid a length-based timing signal.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func csrfCookieOptions() CookieOptions {
	opts := DefaultCookieOptions()
	opts.HTTPOnly = false
	opts.SameSite = SameSiteLax
	return opts
}
