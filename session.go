package thor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// flashKey is the reserved Data sub-key flash messages are stored under.
const flashKey = "_flash"

// SessionRecord is the persisted state of one session, per spec §3.
type SessionRecord struct {
	Data       map[string]interface{} `json:"data"`
	CreatedAt  time.Time              `json:"created_at"`
	AccessedAt time.Time              `json:"accessed_at"`
}

func newSessionRecord() *SessionRecord {
	now := time.Now()
	return &SessionRecord{Data: map[string]interface{}{}, CreatedAt: now, AccessedAt: now}
}

// SessionBackend stores and retrieves SessionRecords by id. Implementations
// MUST be safe for concurrent use.
type SessionBackend interface {
	Load(id string) (*SessionRecord, bool)
	Save(id string, rec *SessionRecord) error
	Delete(id string) error
	Cleanup(maxAge time.Duration) error
}

// MemorySessionBackend is an in-memory SessionBackend suitable only for
// single-process use, per spec §4.7.
type MemorySessionBackend struct {
	mu       sync.Mutex
	sessions map[string]*SessionRecord
}

// NewMemorySessionBackend returns an empty MemorySessionBackend.
func NewMemorySessionBackend() *MemorySessionBackend {
	return &MemorySessionBackend{sessions: map[string]*SessionRecord{}}
}

// Load returns a copy of the stored record for id, if any.
func (b *MemorySessionBackend) Load(id string) (*SessionRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.sessions[id]
	if !ok {
		return nil, false
	}
	clone := *rec
	clone.Data = cloneData(rec.Data)
	return &clone, true
}

// Save stores rec under id, replacing any previous record.
func (b *MemorySessionBackend) Save(id string, rec *SessionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clone := *rec
	clone.Data = cloneData(rec.Data)
	b.sessions[id] = &clone
	return nil
}

// Delete removes the record stored under id, if any.
func (b *MemorySessionBackend) Delete(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
	return nil
}

// Cleanup removes every record whose AccessedAt is older than
// now - maxAge.
func (b *MemorySessionBackend) Cleanup(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, rec := range b.sessions {
		if rec.AccessedAt.Before(cutoff) {
			delete(b.sessions, id)
		}
	}
	return nil
}

func cloneData(m map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// FileSessionBackend stores one JSON file per session in Dir. Writes are
// atomic: a temp file is written alongside the target and renamed over it,
// which is atomic on the same filesystem, per spec §4.7.
type FileSessionBackend struct {
	Dir string
}

// NewFileSessionBackend returns a FileSessionBackend rooted at dir. The
// directory is created if it does not already exist.
func NewFileSessionBackend(dir string) (*FileSessionBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileSessionBackend{Dir: dir}, nil
}

// sanitizeSessionID strips any character outside [A-Za-z0-9_-]. An empty
// result is an error, per spec §4.7.
func sanitizeSessionID(id string) (string, error) {
	var b strings.Builder
	for _, r := range id {
		if r == '_' || r == '-' ||
			('A' <= r && r <= 'Z') || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("thor: invalid session id")
	}
	return b.String(), nil
}

func (b *FileSessionBackend) path(id string) (string, error) {
	safe, err := sanitizeSessionID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.Dir, safe+".json"), nil
}

// Load reads the session file for id. Per spec §9, every successful Load
// also touches AccessedAt and re-saves the record.
func (b *FileSessionBackend) Load(id string) (*SessionRecord, bool) {
	p, err := b.path(id)
	if err != nil {
		return nil, false
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	var rec SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	rec.AccessedAt = time.Now()
	_ = b.Save(id, &rec)
	return &rec, true
}

// Save atomically writes rec to the session file for id.
func (b *FileSessionBackend) Save(id string, rec *SessionRecord) error {
	p, err := b.path(id)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.Dir, ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Delete removes the session file for id, if present.
func (b *FileSessionBackend) Delete(id string) error {
	p, err := b.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Cleanup reads every session file in Dir and unlinks those whose
// AccessedAt is older than now - maxAge.
func (b *FileSessionBackend) Cleanup(maxAge time.Duration) error {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		full := filepath.Join(b.Dir, entry.Name())
		raw, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		var rec SessionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if rec.AccessedAt.Before(cutoff) {
			os.Remove(full)
		}
	}
	return nil
}

// Session is the mutable per-request view over a SessionRecord, attached
// to the request's State bag by SessionMiddleware.
type Session struct {
	ID       string
	record   *SessionRecord
	Modified bool
}

// IsNew reports whether this session has never been saved before: true iff
// CreatedAt == AccessedAt, per spec §4.7.
func (s *Session) IsNew() bool {
	return s.record.CreatedAt.Equal(s.record.AccessedAt)
}

// Get returns the value stored under key, if any.
func (s *Session) Get(key string) (interface{}, bool) {
	v, ok := s.record.Data[key]
	return v, ok
}

// Set stores value under key and marks the session modified.
func (s *Session) Set(key string, value interface{}) {
	s.record.Data[key] = value
	s.Modified = true
}

// Delete removes key from the session and marks it modified.
func (s *Session) Delete(key string) {
	if _, ok := s.record.Data[key]; ok {
		delete(s.record.Data, key)
		s.Modified = true
	}
}

// Flash writes value under the reserved "_flash" sub-key so that a single
// future GetFlash call can consume it.
func (s *Session) Flash(key string, value interface{}) {
	flash, _ := s.record.Data[flashKey].(map[string]interface{})
	if flash == nil {
		flash = map[string]interface{}{}
	}
	flash[key] = value
	s.record.Data[flashKey] = flash
	s.Modified = true
}

// GetFlash reads and removes the flash entry under key, pruning the
// "_flash" sub-key entirely once it is empty.
func (s *Session) GetFlash(key string) (interface{}, bool) {
	flash, _ := s.record.Data[flashKey].(map[string]interface{})
	if flash == nil {
		return nil, false
	}
	v, ok := flash[key]
	if !ok {
		return nil, false
	}
	delete(flash, key)
	s.Modified = true
	if len(flash) == 0 {
		delete(s.record.Data, flashKey)
	} else {
		s.record.Data[flashKey] = flash
	}
	return v, true
}

// SessionConfig configures SessionMiddleware.
type SessionConfig struct {
	CookieName string
	MaxAge     time.Duration
}

// DefaultSessionConfig returns the framework defaults: cookie name
// "thor_session", 14-day lifetime, per spec §4.7/§6.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{CookieName: "thor_session", MaxAge: 14 * 24 * time.Hour}
}

// SessionMiddleware loads the session named by the request's session
// cookie (minting a fresh one if absent or unresolvable), attaches a
// *Session view to the request, and — if the session was modified —
// refreshes the cookie when the response starts and persists the session
// to the backend once the downstream handler has returned.
func SessionMiddleware(backend SessionBackend, codec *TokenCodec, cfg SessionConfig) Gas {
	if cfg.CookieName == "" {
		cfg.CookieName = "thor_session"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 14 * 24 * time.Hour
	}

	return func(next Handler) Handler {
		return func(req *Request, res *Response) error {
			var id string
			var rec *SessionRecord

			if raw, ok := req.Cookie(cfg.CookieName); ok {
				if payload, valid := codec.Unsign(raw, cfg.MaxAge); valid {
					if r, found := backend.Load(payload); found {
						id, rec = payload, r
					}
				}
			}

			if rec == nil {
				fresh, err := randomToken(32)
				if err != nil {
					return ErrInternal(err)
				}
				id = fresh
				rec = newSessionRecord()
			}

			sess := &Session{ID: id, record: rec}
			req.State[stateKeySession] = sess

			// Start may fire during next (on the handler's first Write),
			// before this gas's own post-next code would otherwise run, so
			// the cookie refresh has to be registered as a pre-start hook
			// rather than appended after next returns.
			res.OnBeforeStart(func() {
				if sess.Modified {
					res.SetCookie(cfg.CookieName, codec.Sign(id), sessionCookieOptions(cfg.MaxAge))
				}
			})

			err := next(req, res)

			if sess.Modified {
				rec.AccessedAt = time.Now()
				if saveErr := backend.Save(id, rec); saveErr != nil && err == nil {
					err = ErrInternal(saveErr)
				}
			}

			return err
		}
	}
}

func sessionCookieOptions(maxAge time.Duration) CookieOptions {
	opts := DefaultCookieOptions()
	opts.MaxAge = int(maxAge / time.Second)
	return opts
}

// Session returns the *Session attached by SessionMiddleware, if
// any.
func (r *Request) Session() (*Session, bool) {
	v, ok := r.State[stateKeySession]
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}
