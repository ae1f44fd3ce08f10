package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Keys surfaced in the "meta" object of computed responses.
const (
	MetaCacheHit       = "cache_hit"
	MetaProcessingTime = "processing_time_ms"
	MetaWarnings       = "warnings"
)

const (
	responseMetaKey = "response_meta"
	startedAtKey    = "response_started_at"
)

// WithResponseMeta starts the request clock and prepares metadata storage.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(startedAtKey, time.Now())
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetCacheHit records whether the payload was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, MetaCacheHit, hit)
}

// SetMeta stores a metadata entry for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	metaFor(c)[key] = value
}

// ExtractMeta returns a copy of the collected metadata. The elapsed time since
// WithResponseMeta ran is filled in unless a handler already set it.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	out := make(map[string]interface{})
	for k, v := range metaFor(c) {
		out[k] = v
	}
	if _, ok := out[MetaProcessingTime]; !ok {
		if started, ok := c.Get(startedAtKey); ok {
			if t, ok := started.(time.Time); ok {
				out[MetaProcessingTime] = time.Since(t).Milliseconds()
			}
		}
	}
	return out
}

func metaFor(c *gin.Context) map[string]interface{} {
	if raw, exists := c.Get(responseMetaKey); exists {
		if typed, ok := raw.(map[string]interface{}); ok {
			return typed
		}
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
