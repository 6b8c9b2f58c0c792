package thor

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CORSConfig configures CORSMiddleware, per spec §4.10.
type CORSConfig struct {
	AllowOrigins     []string
	AllowOriginRegex *regexp.Regexp
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	ExposeHeaders    []string
	MaxAge           time.Duration
}

// ErrCredentialedWildcard is returned by NewCORSMiddleware when
// AllowCredentials is set alongside a bare "*" origin and no regex, a
// combination the CORS spec forbids.
var ErrCredentialedWildcard = errors.New("thor: allow_credentials cannot be combined with a bare wildcard origin")

func hasBareWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// NewCORSMiddleware validates cfg and returns the CORS Gas.
func NewCORSMiddleware(cfg CORSConfig) (Gas, error) {
	if cfg.AllowCredentials && hasBareWildcard(cfg.AllowOrigins) && cfg.AllowOriginRegex == nil {
		return nil, ErrCredentialedWildcard
	}
	if len(cfg.AllowMethods) == 0 {
		cfg.AllowMethods = []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}

	return func(next Handler) Handler {
		return func(req *Request, res *Response) error {
			origin := req.Header("Origin")
			if origin == "" {
				return next(req, res)
			}

			allowed, bareWildcard := matchOrigin(origin, cfg)
			if !allowed {
				return next(req, res)
			}

			if req.Method() == http.MethodOptions && req.Header("Access-Control-Request-Method") != "" {
				writeCORSHeaders(res, origin, bareWildcard, cfg)
				res.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
				if len(cfg.AllowHeaders) > 0 {
					res.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
				} else if reqHeaders := req.Header("Access-Control-Request-Headers"); reqHeaders != "" {
					res.Header().Set("Access-Control-Allow-Headers", reqHeaders)
				}
				if cfg.MaxAge > 0 {
					res.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge/time.Second)))
				}
				return res.NoContent(http.StatusNoContent)
			}

			writeCORSHeaders(res, origin, bareWildcard, cfg)
			if len(cfg.ExposeHeaders) > 0 {
				res.Header().Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
			}
			return next(req, res)
		}
	}, nil
}

func writeCORSHeaders(res *Response, origin string, bareWildcard bool, cfg CORSConfig) {
	if bareWildcard && !cfg.AllowCredentials {
		res.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		res.Header().Set("Access-Control-Allow-Origin", origin)
		res.Header().Add("Vary", "Origin")
	}
	if cfg.AllowCredentials {
		res.Header().Set("Access-Control-Allow-Credentials", "true")
	}
}

// matchOrigin checks origin against cfg in the order required by spec
// §4.10: bare wildcard, exact match, wildcard-subdomain suffix, regex.
// The second return value reports whether the match was via a bare "*".
func matchOrigin(origin string, cfg CORSConfig) (allowed bool, bareWildcard bool) {
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			return true, true
		}
	}
	for _, o := range cfg.AllowOrigins {
		if o == origin {
			return true, false
		}
	}
	for _, o := range cfg.AllowOrigins {
		if suffix, ok := wildcardSuffix(o); ok && strings.HasSuffix(origin, suffix) {
			return true, false
		}
	}
	if cfg.AllowOriginRegex != nil && cfg.AllowOriginRegex.MatchString(origin) {
		return true, false
	}
	return false, false
}

// wildcardSuffix reports whether pattern is of the form "*.suffix" and, if
// so, returns the matching suffix (".suffix").
func wildcardSuffix(pattern string) (string, bool) {
	if strings.HasPrefix(pattern, "*.") {
		return pattern[1:], true
	}
	return "", false
}
