package thor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrWeakSecret is returned by NewTokenCodec when the supplied secret is
// shorter than the minimum required length.
var ErrWeakSecret = errors.New("thor: secret key must be at least 16 bytes")

// TokenCodec signs and verifies opaque values using HMAC-SHA256, producing
// tokens of the form "<unix-timestamp>:<payload>:<mac>", where <mac> is the
// URL-safe, unpadded base64 encoding of HMAC-SHA256("<timestamp>:<payload>").
//
// The payload itself MUST NOT contain a colon; Encode/Decode always produce
// colon-free payloads (a base64 alphabet), so this only constrains direct
// callers of Sign/Unsign.
type TokenCodec struct {
	secret []byte
}

// NewTokenCodec returns a TokenCodec keyed by secret. It fails if secret is
// shorter than 16 bytes.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if len(secret) < 16 {
		return nil, ErrWeakSecret
	}
	return &TokenCodec{secret: []byte(secret)}, nil
}

func (c *TokenCodec) mac(timestamp, payload string) []byte {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(timestamp))
	h.Write([]byte(":"))
	h.Write([]byte(payload))
	return h.Sum(nil)
}

// Sign returns a signed token wrapping payload, which MUST NOT contain a
// colon.
func (c *TokenCodec) Sign(payload string) string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := c.mac(ts, payload)
	macStr := base64.RawURLEncoding.EncodeToString(mac)
	return ts + ":" + payload + ":" + macStr
}

// Unsign verifies token and, if valid, returns the payload. maxAge, when
// non-zero, rejects tokens older than maxAge. It never returns an error to
// the caller distinguishable by timing; any failure yields ("", false).
func (c *TokenCodec) Unsign(token string, maxAge time.Duration) (string, bool) {
	// token = <timestamp>:<payload>:<mac>, payload is colon-free so the
	// last two colons delimit it.
	lastColon := strings.LastIndexByte(token, ':')
	if lastColon < 0 {
		return "", false
	}
	rest, macStr := token[:lastColon], token[lastColon+1:]

	firstColon := strings.IndexByte(rest, ':')
	if firstColon < 0 {
		return "", false
	}
	ts, payload := rest[:firstColon], rest[firstColon+1:]

	wantMAC, err := base64.RawURLEncoding.DecodeString(macStr)
	if err != nil {
		return "", false
	}
	gotMAC := c.mac(ts, payload)
	if subtle.ConstantTimeCompare(wantMAC, gotMAC) != 1 {
		return "", false
	}

	if maxAge > 0 {
		seconds, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return "", false
		}
		if time.Since(time.Unix(seconds, 0)) > maxAge {
			return "", false
		}
	}

	return payload, true
}

// Encode JSON-serializes v and signs the result.
func (c *TokenCodec) Encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return c.Sign(base64.RawURLEncoding.EncodeToString(b)), nil
}

// Decode verifies token and, on success, unmarshals the payload into v. It
// returns false (never an error) on any parse, decode, signature, or expiry
// failure.
func (c *TokenCodec) Decode(token string, maxAge time.Duration, v interface{}) bool {
	payload, ok := c.Unsign(token, maxAge)
	if !ok {
		return false
	}
	b, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false
	}
	return true
}

// randomToken returns a URL-safe random string encoding n raw bytes of
// entropy from crypto/rand.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
