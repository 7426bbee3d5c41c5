package middlewares

import (
	"bytes"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Cached routes. Keys line up with utils.CacheInvalidator.
const (
	eventsListPath = "/api/v1/Event"
	eventsItemPath = "/api/v1/Event/:id"
)

type cachedBody struct {
	Status int
	Header map[string][]string
	Body   []byte
}

// sha1Hex keeps query strings out of the key itself.
func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CacheKeyFrom returns "" for requests that must not be cached.
// Item keys carry the raw id so one event can be purged on its own.
func CacheKeyFrom(c *gin.Context) string {
	// writes are never cached
	if c.Request.Method != "GET" {
		return ""
	}
	rawq := c.Request.URL.RawQuery // ?page=2&search=...

	switch c.FullPath() { // route template, not the concrete path
	case eventsItemPath:
		id := c.Param("id")
		return "cache:events:item:" + id + ":" + sha1Hex(rawq)
	case eventsListPath:
		return "cache:events:list:" + sha1Hex(rawq)
	default:
		return ""
	}
}

// ResponseCache serves cached 2xx bodies with X-Cache: HIT and stores fresh
// ones with X-Cache: MISS. Redis failures fall through to the handler.
func ResponseCache(rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := CacheKeyFrom(c)
		if key == "" {
			c.Next() // not a cached route, straight to the handler
			return
		}
		ctx := c.Request.Context()

		// hit: replay the stored response without touching the handler
		if b, err := rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
			var hit cachedBody
			if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&hit); err == nil {
				for k, vals := range hit.Header {
					for _, v := range vals {
						c.Writer.Header().Add(k, v) // restore the original headers
					}
				}
				c.Writer.Header().Set("X-Cache", "HIT")
				c.Status(hit.Status)
				_, _ = c.Writer.Write(hit.Body)
				c.Abort() // handlers after us must not write again
				return
			}
		}

		// miss: swap in a writer that keeps a copy of the body
		bw := &bufferedWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = bw
		c.Writer.Header().Set("X-Cache", "MISS") // must be set before the handler writes

		c.Next() // run the real handler

		// errors are written later by ErrorHandler, so an unwritten body is not cacheable
		if !bw.Written() || bw.Status() < 200 || bw.Status() >= 300 {
			return
		}
		header := make(map[string][]string)
		for k, v := range bw.Header() {
			// per-request headers are not part of the cached response
			if k == "X-Cache" || k == HeaderRequestID {
				continue
			}
			header[k] = v
		}
		// gob keeps status, headers and body in one value
		var out bytes.Buffer
		if err := gob.NewEncoder(&out).Encode(cachedBody{Status: bw.Status(), Header: header, Body: bw.buf.Bytes()}); err != nil {
			return
		}
		if err := rdb.Set(ctx, key, out.Bytes(), ttl).Err(); err != nil {
			slog.Warn("response cache: store failed", "key", key, "error", err)
		}
	}
}

// bufferedWriter copies the body while it goes out to the client.
type bufferedWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)                   // copy for the cache
	return w.ResponseWriter.Write(b) // and on to the client
}
