package thor

import (
	"encoding/base64"
	"strings"
)

// User is the uniform shape the auth subsystem attaches to a request's
// state bag, per spec §4.8.
type User interface {
	IsAuthenticated() bool
	ID() string
	Scopes() []string
}

// AuthenticatedUser is a successfully authenticated principal.
type AuthenticatedUser struct {
	UserID   string
	Username string
	Email    string
	Scope    []string
}

// IsAuthenticated always returns true for an AuthenticatedUser.
func (u *AuthenticatedUser) IsAuthenticated() bool { return true }

// ID returns the user's id.
func (u *AuthenticatedUser) ID() string { return u.UserID }

// Scopes returns the user's granted scopes.
func (u *AuthenticatedUser) Scopes() []string { return u.Scope }

// AnonymousUser is the zero-value principal attached when no backend could
// authenticate the request.
type AnonymousUser struct{}

// IsAuthenticated always returns false for an AnonymousUser.
func (AnonymousUser) IsAuthenticated() bool { return false }

// ID always returns "" for an AnonymousUser.
func (AnonymousUser) ID() string { return "" }

// Scopes always returns an empty slice for an AnonymousUser.
func (AnonymousUser) Scopes() []string { return nil }

// AuthBackend authenticates a request, returning an AnonymousUser rather
// than an error on any failure, per spec §4.8.
type AuthBackend interface {
	Authenticate(req *Request) User
}

// TokenVerifier verifies an opaque bearer token (e.g. a JWT) and, on
// success, returns the claims it carries. Token decoding/verification
// itself is out of scope (spec §1); thor only consumes the result.
type TokenVerifier func(token string) (claims map[string]interface{}, ok bool)

// TokenBackend authenticates via "Authorization: Bearer <token>", deferring
// verification to an injected TokenVerifier.
type TokenBackend struct {
	Verify TokenVerifier
}

// Authenticate implements AuthBackend.
func (b *TokenBackend) Authenticate(req *Request) User {
	header := req.Header("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return AnonymousUser{}
	}
	token := strings.TrimPrefix(header, prefix)
	claims, ok := b.Verify(token)
	if !ok {
		return AnonymousUser{}
	}
	return claimsToUser(claims)
}

func claimsToUser(claims map[string]interface{}) User {
	u := &AuthenticatedUser{}
	if id, ok := claims["id"].(string); ok {
		u.UserID = id
	}
	if username, ok := claims["username"].(string); ok {
		u.Username = username
	}
	if email, ok := claims["email"].(string); ok {
		u.Email = email
	}
	if scopes, ok := claims["scopes"].([]string); ok {
		u.Scope = scopes
	} else if scopes, ok := claims["scopes"].([]interface{}); ok {
		for _, s := range scopes {
			if str, ok := s.(string); ok {
				u.Scope = append(u.Scope, str)
			}
		}
	}
	return u
}

// SessionAuthBackend authenticates by reading Key from the request's
// session record and resolving it to a User via LoadUser.
type SessionAuthBackend struct {
	Key      string
	LoadUser func(id interface{}) (User, bool)
}

// Authenticate implements AuthBackend.
func (b *SessionAuthBackend) Authenticate(req *Request) User {
	sess, ok := req.Session()
	if !ok {
		return AnonymousUser{}
	}
	id, ok := sess.Get(b.Key)
	if !ok {
		return AnonymousUser{}
	}
	u, ok := b.LoadUser(id)
	if !ok {
		return AnonymousUser{}
	}
	return u
}

// BasicAuthBackend authenticates via "Authorization: Basic <base64>",
// deferring credential verification to an injected callback.
type BasicAuthBackend struct {
	VerifyCredentials func(username, password string) (User, bool)
}

// Authenticate implements AuthBackend.
func (b *BasicAuthBackend) Authenticate(req *Request) User {
	header := req.Header("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return AnonymousUser{}
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return AnonymousUser{}
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return AnonymousUser{}
	}
	u, ok := b.VerifyCredentials(parts[0], parts[1])
	if !ok {
		return AnonymousUser{}
	}
	return u
}

// AuthMiddleware calls backend for every request whose path is not under
// one of excludePaths, attaches the resulting User to the request's state,
// and forwards.
func AuthMiddleware(backend AuthBackend, excludePaths ...string) Gas {
	return func(next Handler) Handler {
		return func(req *Request, res *Response) error {
			if !pathExcluded(req.Path(), excludePaths) {
				req.SetUser(backend.Authenticate(req))
			}
			return next(req, res)
		}
	}
}

func pathExcluded(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// currentUser returns the request's authenticated/anonymous user, treating
// an absent attachment the same as an AnonymousUser.
func currentUser(req *Request) User {
	v, ok := req.User()
	if !ok {
		return AnonymousUser{}
	}
	u, ok := v.(User)
	if !ok {
		return AnonymousUser{}
	}
	return u
}

// LoginRequired wraps h, rejecting anonymous callers with an unauthorized
// error before h ever runs.
func LoginRequired(h Handler) Handler {
	return func(req *Request, res *Response) error {
		if !currentUser(req).IsAuthenticated() {
			return ErrUnauthorized("authentication required")
		}
		return h(req, res)
	}
}

// RequireScopes returns a gate that rejects an authenticated caller
// lacking any of scopes with a forbidden error, and an anonymous caller
// with an unauthorized error.
func RequireScopes(scopes ...string) func(Handler) Handler {
	return func(h Handler) Handler {
		return func(req *Request, res *Response) error {
			u := currentUser(req)
			if !u.IsAuthenticated() {
				return ErrUnauthorized("authentication required")
			}
			granted := map[string]bool{}
			for _, s := range u.Scopes() {
				granted[s] = true
			}
			for _, want := range scopes {
				if !granted[want] {
					return ErrForbidden("missing required scope: " + want)
				}
			}
			return h(req, res)
		}
	}
}
