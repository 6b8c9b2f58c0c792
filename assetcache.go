package thor

import (
	"bytes"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/aofei/mimesniffer"
	"github.com/cespare/xxhash"
)

// AssetCache is an in-memory byte cache fronting FileResponse's disk
// reads for small, frequently-served files. It is adapted from air's
// coffer.go: the same fastcache-backed cache, keyed here by an xxhash of
// the absolute file path plus its modification time rather than a SHA-256
// content checksum, which is cheaper to recompute on every request and
// still invalidates correctly when the underlying file changes.
type AssetCache struct {
	once  sync.Once
	bytes int

	mu      sync.Mutex
	cache   *fastcache.Cache
	entries map[string]cachedAsset
}

type cachedAsset struct {
	modTime     time.Time
	key         []byte
	mimeType    string
}

// NewAssetCache returns an AssetCache with maxBytes of cache capacity. The
// underlying fastcache.Cache is allocated lazily on first use.
func NewAssetCache(maxBytes int) *AssetCache {
	return &AssetCache{bytes: maxBytes, entries: map[string]cachedAsset{}}
}

func (c *AssetCache) ensure() {
	c.once.Do(func() {
		n := c.bytes
		if n <= 0 {
			n = 32 * 1024 * 1024
		}
		c.cache = fastcache.New(n)
	})
}

// load returns the cached content for absPath, reading and caching it from
// disk if absent or stale (per fi.ModTime()).
func (c *AssetCache) load(absPath string) ([]byte, string, error) {
	c.ensure()

	fi, err := os.Stat(absPath)
	if err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	entry, ok := c.entries[absPath]
	c.mu.Unlock()

	if ok && entry.modTime.Equal(fi.ModTime()) {
		if content := c.cache.Get(nil, entry.key); len(content) > 0 {
			return content, entry.mimeType, nil
		}
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, "", err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(absPath))
	if mimeType == "" {
		sniffLen := 512
		if len(content) < sniffLen {
			sniffLen = len(content)
		}
		mimeType = mimesniffer.Sniff(content[:sniffLen])
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	key := assetCacheKey(absPath, fi.ModTime())
	c.cache.Set(key, content)

	c.mu.Lock()
	c.entries[absPath] = cachedAsset{modTime: fi.ModTime(), key: key, mimeType: mimeType}
	c.mu.Unlock()

	return content, mimeType, nil
}

func assetCacheKey(path string, modTime time.Time) []byte {
	h := xxhash.New()
	h.Write([]byte(path))
	h.Write([]byte(strconv.FormatInt(modTime.UnixNano(), 10)))
	sum := h.Sum64()
	return []byte(strconv.FormatUint(sum, 16))
}

// Serve resolves name against baseDir exactly as Response.FileResponse
// does (rejecting traversal outside baseDir), then streams the cached file
// content through res instead of re-reading the file from disk on every
// request.
func (c *AssetCache) Serve(res *Response, baseDir, name, downloadName string) error {
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

	content, mimeType, err := c.load(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound("file not found")
		}
		return ErrInternal(err)
	}

	res.Status = 200
	res.SetMediaType(mimeType)
	res.header.Set("Content-Length", strconv.Itoa(len(content)))
	if downloadName != "" {
		res.header.Set("Content-Disposition", `attachment; filename="`+downloadName+`"`)
	}
	return res.Stream(200, mimeType, bytes.NewReader(content))
}

// Invalidate drops any cached entry for name under baseDir, forcing the
// next Serve call to re-read it from disk.
func (c *AssetCache) Invalidate(baseDir, name string) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return
	}
	if resolved, err := filepath.EvalSymlinks(absBase); err == nil {
		absBase = resolved
	}
	absPath := filepath.Join(absBase, name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[absPath]; ok {
		c.cache.Del(entry.key)
		delete(c.entries, absPath)
	}
}
